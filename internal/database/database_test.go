package database

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "camwatch.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close() //nolint:errcheck

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// Second run is a no-op.
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate again: %v", err)
	}

	ctx := context.Background()
	for _, table := range []string{"settings", "cameras", "camera_audit"} {
		var name string
		err := db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	var mode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestCameraConstraints(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close() //nolint:errcheck
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	ctx := context.Background()
	if _, err := db.ExecContext(ctx,
		`INSERT INTO cameras (code, name, access_level) VALUES ('001000', 'ok', 1)`); err != nil {
		t.Fatalf("valid insert: %v", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO cameras (code, name, access_level) VALUES ('001001', 'bad', 4)`); err == nil {
		t.Error("expected access_level check to reject 4")
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO cameras (code, name) VALUES ('12', 'short')`); err == nil {
		t.Error("expected code length check to reject short code")
	}
}
