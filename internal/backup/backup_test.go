package backup

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sydlexius/camwatch/internal/database"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "camwatch.db"))
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	_, err = db.ExecContext(context.Background(),
		`INSERT INTO cameras (code, name, category, description, access_level, updated_at, updated_by)
		VALUES ('001000', 'Praça', 'Centro', '', 1, '2026-01-01T00:00:00Z', 'test')`)
	if err != nil {
		t.Fatalf("inserting camera: %v", err)
	}
	return db
}

// newTestService returns a service whose clock advances one minute per
// backup so file names never collide.
func newTestService(t *testing.T, db *sql.DB, opts Options) *Service {
	t.Helper()
	if opts.Dir == "" {
		opts.Dir = filepath.Join(t.TempDir(), "backups")
	}
	svc := NewService(db, opts, testLogger())
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return svc
}

func TestBackup(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, Options{Retention: 7})

	info, err := svc.Backup(context.Background())
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if info.Filename != "camwatch-20260301-120100.db" {
		t.Errorf("filename = %q", info.Filename)
	}
	if info.Size == 0 {
		t.Error("expected non-zero file size")
	}
	if info.Cameras != 1 {
		t.Errorf("cameras = %d, want 1", info.Cameras)
	}

	snap, err := sql.Open("sqlite", filepath.Join(svc.Dir(), info.Filename))
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer snap.Close() //nolint:errcheck

	var name string
	if err := snap.QueryRowContext(context.Background(), "SELECT name FROM cameras WHERE code = '001000'").Scan(&name); err != nil {
		t.Fatalf("querying backup: %v", err)
	}
	if name != "Praça" {
		t.Errorf("name = %q", name)
	}
}

func TestListAndPrune(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, Options{Retention: 2})

	for i := range 4 {
		if _, err := svc.Backup(context.Background()); err != nil {
			t.Fatalf("Backup %d: %v", i, err)
		}
	}

	backups, err := svc.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(backups) != 4 {
		t.Fatalf("expected 4 backups, got %d", len(backups))
	}
	if !backups[0].CreatedAt.After(backups[1].CreatedAt) {
		t.Error("expected backups sorted newest first")
	}

	removed, err := svc.Prune()
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	backups, _ = svc.List()
	if len(backups) != 2 || backups[0].Filename != "camwatch-20260301-120400.db" {
		t.Errorf("after prune = %+v", backups)
	}
}

func TestPruneMaxAge(t *testing.T) {
	db := setupTestDB(t)
	dir := filepath.Join(t.TempDir(), "backups")
	svc := newTestService(t, db, Options{Dir: dir, Retention: 100, MaxAge: 30 * 24 * time.Hour})
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}

	recent := "camwatch-20260228-000000.db"
	old := "camwatch-20260101-000000.db"
	for _, name := range []string{recent, old} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := svc.Prune(); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	backups, err := svc.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 1 || backups[0].Filename != recent {
		t.Errorf("after prune = %+v, want only %s", backups, recent)
	}
}

func TestListEmptyDir(t *testing.T) {
	svc := newTestService(t, setupTestDB(t), Options{Dir: filepath.Join(t.TempDir(), "nonexistent")})
	backups, err := svc.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(backups) != 0 {
		t.Errorf("expected 0 backups, got %d", len(backups))
	}
}

func TestDelete(t *testing.T) {
	svc := newTestService(t, setupTestDB(t), Options{})

	info, err := svc.Backup(context.Background())
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if err := svc.Delete(info.Filename); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if backups, _ := svc.List(); len(backups) != 0 {
		t.Errorf("expected 0 backups after delete, got %d", len(backups))
	}

	if err := svc.Delete("../evil.db"); err == nil {
		t.Error("expected error for invalid filename")
	}
	if err := svc.Delete("camwatch-20260101-000000.db"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestIsValidFilename(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"valid", "camwatch-20260220-143022.db", true},
		{"path traversal", "../camwatch-20260220-143022.db", false},
		{"backslash", "..\\camwatch-20260220-143022.db", false},
		{"wrong prefix", "backup-20260220-143022.db", false},
		{"wrong extension", "camwatch-20260220-143022.sql", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidFilename(tt.input); got != tt.want {
				t.Errorf("IsValidFilename(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
