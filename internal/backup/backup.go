// Package backup snapshots the metadata database to a directory of
// timestamped SQLite files.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const timeLayout = "20060102-150405"

// filenamePattern matches snapshot names: camwatch-YYYYMMDD-HHMMSS.db
var filenamePattern = regexp.MustCompile(`^camwatch-\d{8}-\d{6}\.db$`)

// Info describes a snapshot file.
type Info struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
	Cameras   int       `json:"cameras,omitempty"`
}

// Options configures retention and scheduling.
type Options struct {
	Dir       string
	Interval  time.Duration
	Retention int
	MaxAge    time.Duration
}

// Service manages database snapshots.
type Service struct {
	db     *sql.DB
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a backup service. Retention below one keeps one file.
func NewService(db *sql.DB, opts Options, logger *slog.Logger) *Service {
	if opts.Retention < 1 {
		opts.Retention = 1
	}
	return &Service{
		db:     db,
		opts:   opts,
		logger: logger.With(slog.String("component", "backup")),
		now:    time.Now,
	}
}

// Dir returns the snapshot directory.
func (s *Service) Dir() string {
	return s.opts.Dir
}

// Backup writes a consistent copy of the database using VACUUM INTO and
// verifies it by counting the cameras it contains.
func (s *Service) Backup(ctx context.Context) (*Info, error) {
	if err := os.MkdirAll(s.opts.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	now := s.now().UTC()
	filename := "camwatch-" + now.Format(timeLayout) + ".db"
	dest := filepath.Join(s.opts.Dir, filename)
	if _, err := os.Stat(dest); err == nil {
		return nil, fmt.Errorf("backup %s already exists", filename)
	}

	s.logger.Info("starting backup", slog.String("dest", dest))
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return nil, fmt.Errorf("VACUUM INTO: %w", err)
	}

	st, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("stat backup file: %w", err)
	}
	cameras, err := countCameras(ctx, dest)
	if err != nil {
		os.Remove(dest) //nolint:errcheck,gosec // dest is built from a validated name
		return nil, fmt.Errorf("verifying backup: %w", err)
	}

	s.logger.Info("backup complete",
		slog.String("filename", filename),
		slog.Int64("size", st.Size()),
		slog.Int("cameras", cameras))

	return &Info{Filename: filename, Size: st.Size(), CreatedAt: now, Cameras: cameras}, nil
}

func countCameras(ctx context.Context, path string) (int, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return 0, err
	}
	defer db.Close() //nolint:errcheck

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cameras`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// List returns all snapshots, newest first.
func (s *Service) List() ([]Info, error) {
	entries, err := os.ReadDir(s.opts.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var out []Info
	for _, entry := range entries {
		if entry.IsDir() || !filenamePattern.MatchString(entry.Name()) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}

		stamp := strings.TrimSuffix(strings.TrimPrefix(entry.Name(), "camwatch-"), ".db")
		ts, err := time.Parse(timeLayout, stamp)
		if err != nil {
			ts = fi.ModTime()
		}
		out = append(out, Info{Filename: entry.Name(), Size: fi.Size(), CreatedAt: ts})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Delete removes a single snapshot by filename.
func (s *Service) Delete(filename string) error {
	if !IsValidFilename(filename) {
		return fmt.Errorf("invalid backup filename")
	}
	if err := os.Remove(filepath.Join(s.opts.Dir, filename)); err != nil { //nolint:gosec // filename validated above
		return fmt.Errorf("removing backup: %w", err)
	}
	s.logger.Info("backup deleted", slog.String("filename", filename))
	return nil
}

// Prune deletes snapshots beyond the retention count and, when MaxAge is
// set, snapshots older than it. It returns how many files were removed.
func (s *Service) Prune() (int, error) {
	backups, err := s.List()
	if err != nil {
		return 0, err
	}

	var cutoff time.Time
	if s.opts.MaxAge > 0 {
		cutoff = s.now().UTC().Add(-s.opts.MaxAge)
	}

	removed := 0
	for i, b := range backups {
		expired := !cutoff.IsZero() && b.CreatedAt.Before(cutoff)
		if i < s.opts.Retention && !expired {
			continue
		}
		if err := os.Remove(filepath.Join(s.opts.Dir, b.Filename)); err != nil {
			s.logger.Warn("failed to remove old backup",
				slog.String("filename", b.Filename),
				slog.Any("error", err))
			continue
		}
		removed++
		s.logger.Info("pruned backup", slog.String("filename", b.Filename))
	}
	return removed, nil
}

// StartScheduler takes a snapshot and prunes on a fixed interval until ctx
// is canceled. A non-positive interval disables it.
func (s *Service) StartScheduler(ctx context.Context) {
	if s.opts.Interval <= 0 {
		s.logger.Info("backup scheduler disabled")
		return
	}
	s.logger.Info("backup scheduler started",
		slog.String("interval", s.opts.Interval.String()),
		slog.Int("retention", s.opts.Retention))

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("backup scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.Backup(ctx); err != nil {
				s.logger.Error("scheduled backup failed", slog.Any("error", err))
				continue
			}
			if _, err := s.Prune(); err != nil {
				s.logger.Error("backup prune failed", slog.Any("error", err))
			}
		}
	}
}

// IsValidFilename reports whether filename is a snapshot name without any
// path components.
func IsValidFilename(filename string) bool {
	if strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") {
		return false
	}
	return filenamePattern.MatchString(filename)
}
