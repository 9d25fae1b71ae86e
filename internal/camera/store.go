package camera

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no metadata exists for a code.
var ErrNotFound = errors.New("camera not found")

// Store persists camera metadata in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a metadata store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const selectColumns = `code, name, category, description, latitude, longitude, access_level, updated_at, updated_by`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMetadata(row rowScanner) (Metadata, error) {
	var (
		m         Metadata
		code      string
		lat, lng  sql.NullFloat64
		updatedAt string
	)
	if err := row.Scan(&code, &m.Name, &m.Category, &m.Description, &lat, &lng, &m.AccessLevel, &updatedAt, &m.UpdatedBy); err != nil {
		return Metadata{}, err
	}
	m.Code = Code(code)
	if lat.Valid && lng.Valid {
		m.Coordinates = &Coordinates{Lat: lat.Float64, Lng: lng.Float64}
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		m.UpdatedAt = t
	}
	return m, nil
}

// List returns every stored record ordered by code.
func (s *Store) List(ctx context.Context) ([]Metadata, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM cameras ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("listing cameras: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Metadata
	for rows.Next() {
		m, err := scanMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning camera: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Index returns every stored record keyed by code.
func (s *Store) Index(ctx context.Context) (map[Code]Metadata, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	idx := make(map[Code]Metadata, len(list))
	for _, m := range list {
		idx[m.Code] = m
	}
	return idx, nil
}

// Get returns the record for code.
func (s *Store) Get(ctx context.Context, code Code) (*Metadata, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM cameras WHERE code = ?`, string(code))
	m, err := scanMetadata(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting camera %s: %w", code, err)
	}
	return &m, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cameras`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting cameras: %w", err)
	}
	return n, nil
}

// Upsert replaces the whole record for m.Code and appends an audit entry.
// UpdatedAt and UpdatedBy on m are set from the call.
func (s *Store) Upsert(ctx context.Context, m *Metadata, by string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	m.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	m.UpdatedBy = by
	if err := upsertTx(ctx, tx, m); err != nil {
		return err
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding audit payload: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO camera_audit (code, changed_by, changed_at, payload) VALUES (?, ?, ?, ?)`,
		string(m.Code), by, m.UpdatedAt.Format(time.RFC3339), string(payload))
	if err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}

	return tx.Commit()
}

func upsertTx(ctx context.Context, tx *sql.Tx, m *Metadata) error {
	var lat, lng sql.NullFloat64
	if m.Coordinates != nil {
		lat = sql.NullFloat64{Float64: m.Coordinates.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: m.Coordinates.Lng, Valid: true}
	}
	level := m.AccessLevel
	if level == 0 {
		level = AccessPublic
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO cameras (code, name, category, description, latitude, longitude, access_level, updated_at, updated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			description = excluded.description,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			access_level = excluded.access_level,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by`,
		string(m.Code), m.Name, m.Category, m.Description, lat, lng, level,
		m.UpdatedAt.UTC().Format(time.RFC3339), m.UpdatedBy)
	if err != nil {
		return fmt.Errorf("upserting camera %s: %w", m.Code, err)
	}
	return nil
}

// AuditEntry is one recorded metadata change.
type AuditEntry struct {
	Code      Code      `json:"code"`
	ChangedBy string    `json:"changedBy"`
	ChangedAt time.Time `json:"changedAt"`
	Payload   string    `json:"payload"`
}

// History returns the audit trail for code, newest first.
func (s *Store) History(ctx context.Context, code Code, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT code, changed_by, changed_at, payload FROM camera_audit
		WHERE code = ? ORDER BY id DESC LIMIT ?`, string(code), limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []AuditEntry
	for rows.Next() {
		var (
			e       AuditEntry
			c, when string
		)
		if err := rows.Scan(&c, &e.ChangedBy, &when, &e.Payload); err != nil {
			return nil, fmt.Errorf("scanning audit: %w", err)
		}
		e.Code = Code(c)
		e.ChangedAt, _ = time.Parse(time.RFC3339, when)
		out = append(out, e)
	}
	return out, rows.Err()
}
