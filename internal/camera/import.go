package camera

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ImportResult summarizes a bulk import.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Kept     int      `json:"kept,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ImportOptions controls how ImportJSON treats existing rows.
type ImportOptions struct {
	// By is recorded as updated_by on every imported row.
	By string
	// Owner, when set, limits replacement to existing rows whose updated_by
	// starts with Owner. Rows edited by anyone else are kept and counted.
	Owner string
}

// importRecord accepts both the current field names and the legacy
// Portuguese ones (codigo, nome, categoria, descricao, coords, level).
type importRecord struct {
	Code        json.RawMessage `json:"code"`
	Codigo      json.RawMessage `json:"codigo"`
	Name        string          `json:"name"`
	Nome        string          `json:"nome"`
	Category    string          `json:"category"`
	Categoria   string          `json:"categoria"`
	Description string          `json:"description"`
	Descricao   string          `json:"descricao"`
	Coordinates json.RawMessage `json:"coordinates"`
	Coords      json.RawMessage `json:"coords"`
	AccessLevel json.RawMessage `json:"accessLevel"`
	Level       json.RawMessage `json:"level"`
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstRaw(vals ...json.RawMessage) json.RawMessage {
	for _, v := range vals {
		if !isNull(v) {
			return v
		}
	}
	return nil
}

// decodeCode accepts "001000", "1000" or 1000.
func decodeCode(raw json.RawMessage) (Code, error) {
	if isNull(raw) {
		return "", ErrInvalidCode
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var n int
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", ErrInvalidCode
		}
		s = strconv.Itoa(n)
	}
	s = strings.TrimSpace(s)
	if len(s) < CodeWidth {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			return FormatCode(n), nil
		}
	}
	return ParseCode(s)
}

// toMetadata applies the import defaults. Only a missing or malformed code
// rejects a record; bad coordinates or levels fall back to defaults.
func (r importRecord) toMetadata() (Metadata, []string, error) {
	code, err := decodeCode(firstRaw(r.Code, r.Codigo))
	if err != nil {
		return Metadata{}, nil, err
	}

	m := Metadata{
		Code:        code,
		Name:        firstNonEmpty(r.Name, r.Nome, DefaultName(code)),
		Category:    firstNonEmpty(r.Category, r.Categoria, DefaultCategory),
		Description: firstNonEmpty(r.Description, r.Descricao),
		AccessLevel: AccessPublic,
	}

	var warnings []string
	if raw := firstRaw(r.Coordinates, r.Coords); raw != nil {
		var c Coordinates
		if err := json.Unmarshal(raw, &c); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: ignoring coordinates: %v", code, err))
		} else {
			m.Coordinates = &c
		}
	}
	if raw := firstRaw(r.AccessLevel, r.Level); raw != nil {
		var lvl int
		if err := json.Unmarshal(raw, &lvl); err == nil && ValidAccessLevel(lvl) {
			m.AccessLevel = lvl
		} else {
			warnings = append(warnings, fmt.Sprintf("%s: invalid level %s, using 1", code, string(raw)))
		}
	}
	return m, warnings, nil
}

// ImportJSON reads a JSON array of camera records from r and upserts them in
// a single transaction. Records without a usable code are skipped.
func (s *Store) ImportJSON(ctx context.Context, r io.Reader, opts ImportOptions) (*ImportResult, error) {
	var records []importRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding camera list: %w", err)
	}

	res := &ImportResult{}
	if len(records) == 0 {
		return res, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC().Truncate(time.Second)
	for i, rec := range records {
		m, warnings, err := rec.toMetadata()
		if err != nil {
			res.Skipped++
			res.Warnings = append(res.Warnings, fmt.Sprintf("record %d: %v", i, err))
			continue
		}
		res.Warnings = append(res.Warnings, warnings...)
		if opts.Owner != "" {
			owned, err := ownedTx(ctx, tx, m.Code, opts.Owner)
			if err != nil {
				return nil, err
			}
			if !owned {
				res.Kept++
				continue
			}
		}
		m.UpdatedAt = now
		m.UpdatedBy = opts.By
		if err := upsertTx(ctx, tx, &m); err != nil {
			return nil, err
		}
		res.Imported++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing import: %w", err)
	}
	return res, nil
}

// ownedTx reports whether code is absent or was last written by owner.
func ownedTx(ctx context.Context, tx *sql.Tx, code Code, owner string) (bool, error) {
	var by string
	err := tx.QueryRowContext(ctx, `SELECT updated_by FROM cameras WHERE code = ?`, string(code)).Scan(&by)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return true, nil
	case err != nil:
		return false, fmt.Errorf("checking camera %s: %w", code, err)
	}
	return strings.HasPrefix(by, owner), nil
}
