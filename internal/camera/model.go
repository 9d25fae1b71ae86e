package camera

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the reachability classification of a camera.
type Status string

// Camera states.
const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Access levels. Anything above Public is only shown to administrators.
const (
	AccessPublic     = 1
	AccessRestricted = 2
	AccessPrivate    = 3
)

// DefaultCategory is used when a camera has no metadata.
const DefaultCategory = "Uncategorized"

// DefaultName returns the display name for a camera without metadata.
func DefaultName(c Code) string {
	return "Camera " + string(c)
}

// ValidAccessLevel reports whether level is within 1..3.
func ValidAccessLevel(level int) bool {
	return level >= AccessPublic && level <= AccessPrivate
}

// Coordinates is a latitude/longitude pair encoded as a two element JSON array.
type Coordinates struct {
	Lat float64
	Lng float64
}

// ErrInvalidCoordinates is returned when coordinates are not two numbers.
var ErrInvalidCoordinates = errors.New("coordinates must be an array of two numbers")

// MarshalJSON encodes the pair as [lat, lng].
func (c Coordinates) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{c.Lat, c.Lng})
}

// UnmarshalJSON accepts exactly [lat, lng].
func (c *Coordinates) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || len(raw) != 2 {
		return ErrInvalidCoordinates
	}
	var vals [2]float64
	for i, r := range raw {
		if err := json.Unmarshal(r, &vals[i]); err != nil {
			return ErrInvalidCoordinates
		}
	}
	if vals[0] < -90 || vals[0] > 90 || vals[1] < -180 || vals[1] > 180 {
		return fmt.Errorf("%w: out of range", ErrInvalidCoordinates)
	}
	c.Lat, c.Lng = vals[0], vals[1]
	return nil
}

// Metadata is the descriptive record kept for a camera in the store.
type Metadata struct {
	Code        Code         `json:"code"`
	Name        string       `json:"name"`
	Category    string       `json:"category"`
	Description string       `json:"description"`
	Coordinates *Coordinates `json:"coordinates"`
	AccessLevel int          `json:"accessLevel"`
	UpdatedAt   time.Time    `json:"updatedAt,omitzero"`
	UpdatedBy   string       `json:"updatedBy,omitempty"`
}

// ProbeResult is the outcome of one reachability check.
type ProbeResult struct {
	Code      Code `json:"code"`
	Reachable bool `json:"reachable"`
}

// StatusRecord is a probe result enriched with metadata, as served to clients.
type StatusRecord struct {
	Code        Code         `json:"code"`
	Status      Status       `json:"status"`
	Name        string       `json:"name"`
	Category    string       `json:"category"`
	Description string       `json:"description"`
	Coordinates *Coordinates `json:"coordinates"`
	AccessLevel int          `json:"accessLevel"`
}

// Online reports whether the record is online.
func (r StatusRecord) Online() bool { return r.Status == StatusOnline }

// Public reports whether the record may be shown to anonymous callers.
func (r StatusRecord) Public() bool {
	return r.AccessLevel <= AccessPublic
}

// isNull reports whether a raw JSON value is absent or null.
func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
