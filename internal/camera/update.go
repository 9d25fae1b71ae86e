package camera

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrNameRequired is returned when an update omits the camera name.
	ErrNameRequired = errors.New("name is required")
	// ErrInvalidAccessLevel is returned for levels outside 1..3.
	ErrInvalidAccessLevel = errors.New("access level must be 1, 2 or 3")
)

// DecodeUpdate reads a single metadata update. Unlike ImportJSON it is
// strict: the code must be exactly six digits, the name non-empty, and
// coordinates and access level, when present, well formed. An absent
// access level means public. Legacy field names are accepted.
func DecodeUpdate(r io.Reader) (Metadata, error) {
	var rec importRecord
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return Metadata{}, fmt.Errorf("decoding update: %w", err)
	}

	raw := firstRaw(rec.Code, rec.Codigo)
	var s string
	if raw == nil || json.Unmarshal(raw, &s) != nil {
		return Metadata{}, ErrInvalidCode
	}
	code, err := ParseCode(s)
	if err != nil {
		return Metadata{}, err
	}

	name := strings.TrimSpace(firstNonEmpty(rec.Name, rec.Nome))
	if name == "" {
		return Metadata{}, ErrNameRequired
	}

	m := Metadata{
		Code:        code,
		Name:        name,
		Category:    strings.TrimSpace(firstNonEmpty(rec.Category, rec.Categoria, DefaultCategory)),
		Description: firstNonEmpty(rec.Description, rec.Descricao),
		AccessLevel: AccessPublic,
	}
	if m.Category == "" {
		m.Category = DefaultCategory
	}

	if raw := firstRaw(rec.Coordinates, rec.Coords); raw != nil {
		var c Coordinates
		if err := json.Unmarshal(raw, &c); err != nil {
			return Metadata{}, ErrInvalidCoordinates
		}
		m.Coordinates = &c
	}

	if raw := firstRaw(rec.AccessLevel, rec.Level); raw != nil {
		var lvl int
		if err := json.Unmarshal(raw, &lvl); err != nil || !ValidAccessLevel(lvl) {
			return Metadata{}, ErrInvalidAccessLevel
		}
		m.AccessLevel = lvl
	}
	return m, nil
}
