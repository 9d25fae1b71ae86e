// Package maintenance keeps the SQLite database compact and its planner
// statistics current.
package maintenance

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"
)

const lastOptimizeKey = "maintenance.last_optimize_at"

// Status holds database maintenance status information.
type Status struct {
	DBFileSize     int64  `json:"dbFileSize"`
	WALFileSize    int64  `json:"walFileSize"`
	PageCount      int64  `json:"pageCount"`
	PageSize       int64  `json:"pageSize"`
	CameraRecords  int64  `json:"cameraRecords"`
	AuditEntries   int64  `json:"auditEntries"`
	LastOptimizeAt string `json:"lastOptimizeAt,omitempty"`
	Interval       string `json:"interval"`
	AuditRetention string `json:"auditRetention,omitempty"`
}

// Service provides database maintenance operations.
type Service struct {
	db             *sql.DB
	dbPath         string
	interval       time.Duration
	auditRetention time.Duration
	logger         *slog.Logger
	now            func() time.Time
}

// NewService creates a maintenance service. A non-positive interval
// disables the scheduler.
func NewService(db *sql.DB, dbPath string, interval time.Duration, logger *slog.Logger) *Service {
	return &Service{
		db:       db,
		dbPath:   dbPath,
		interval: interval,
		logger:   logger.With(slog.String("component", "maintenance")),
		now:      time.Now,
	}
}

// SetAuditRetention makes Optimize delete camera audit entries older than d.
// Zero keeps the full history.
func (s *Service) SetAuditRetention(d time.Duration) {
	s.auditRetention = d
}

// Status returns current database maintenance status.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	st := &Status{Interval: s.interval.String()}
	if s.auditRetention > 0 {
		st.AuditRetention = s.auditRetention.String()
	}

	if info, err := os.Stat(s.dbPath); err == nil {
		st.DBFileSize = info.Size()
	}
	if info, err := os.Stat(s.dbPath + "-wal"); err == nil {
		st.WALFileSize = info.Size()
	}

	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&st.PageCount); err != nil {
		return nil, fmt.Errorf("reading page_count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&st.PageSize); err != nil {
		return nil, fmt.Errorf("reading page_size: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cameras").Scan(&st.CameraRecords); err != nil {
		return nil, fmt.Errorf("counting cameras: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM camera_audit").Scan(&st.AuditEntries); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	var lastOpt string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, lastOptimizeKey).Scan(&lastOpt)
	if err == nil {
		st.LastOptimizeAt = lastOpt
	}

	return st, nil
}

// PruneAudit deletes audit entries changed before cutoff and returns how
// many were removed. The newest entry for each camera is always kept.
func (s *Service) PruneAudit(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM camera_audit
		WHERE changed_at < ?
		AND id NOT IN (SELECT MAX(id) FROM camera_audit GROUP BY code)`,
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("pruning audit entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning audit entries: %w", err)
	}
	return n, nil
}

// Optimize prunes the audit log when a retention is set, then runs
// PRAGMA optimize followed by a WAL checkpoint.
func (s *Service) Optimize(ctx context.Context) error {
	start := time.Now()
	if s.auditRetention > 0 {
		n, err := s.PruneAudit(ctx, s.now().Add(-s.auditRetention))
		if err != nil {
			return err
		}
		if n > 0 {
			s.logger.Info("pruned camera audit entries", slog.Int64("removed", n))
		}
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("PRAGMA optimize: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("WAL checkpoint: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		lastOptimizeKey, now, now)
	if err != nil {
		s.logger.Warn("recording optimize timestamp", "error", err)
	}

	s.logger.Info("optimize complete", slog.Duration("duration", time.Since(start)))
	return nil
}

// StartScheduler runs optimize on the configured interval until the
// context is canceled.
func (s *Service) StartScheduler(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("maintenance scheduler disabled")
		return
	}
	s.logger.Info("maintenance scheduler started",
		slog.String("interval", s.interval.String()))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("maintenance scheduler stopped")
			return
		case <-ticker.C:
			if err := s.Optimize(ctx); err != nil {
				s.logger.Error("scheduled optimize failed", slog.Any("error", err))
			}
		}
	}
}
