package logging

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

const settingsPrefix = "logging."

// SaveSettings persists cfg to the settings table so it survives restarts.
func SaveSettings(ctx context.Context, db *sql.DB, cfg Config) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC().Format(time.RFC3339)
	values := map[string]string{
		"level":             cfg.Level,
		"format":            cfg.Format,
		"file_path":         cfg.FilePath,
		"file_max_size_mb":  strconv.Itoa(cfg.FileMaxSizeMB),
		"file_max_files":    strconv.Itoa(cfg.FileMaxFiles),
		"file_max_age_days": strconv.Itoa(cfg.FileMaxAgeDays),
	}
	for k, v := range values {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			settingsPrefix+k, v, now)
		if err != nil {
			return fmt.Errorf("saving %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// LoadSettings overlays persisted logging settings onto base. It reports
// whether any persisted value was found.
func LoadSettings(ctx context.Context, db *sql.DB, base Config) (Config, bool, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT key, value FROM settings WHERE key LIKE 'logging.%'`)
	if err != nil {
		return base, false, fmt.Errorf("querying logging settings: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	cfg := base
	found := false
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return base, false, fmt.Errorf("scanning logging setting: %w", err)
		}
		found = true
		switch k[len(settingsPrefix):] {
		case "level":
			if ValidLevel(v) {
				cfg.Level = v
			}
		case "format":
			if ValidFormat(v) {
				cfg.Format = v
			}
		case "file_path":
			cfg.FilePath = v
		case "file_max_size_mb":
			cfg.FileMaxSizeMB = atoiOr(v, cfg.FileMaxSizeMB)
		case "file_max_files":
			cfg.FileMaxFiles = atoiOr(v, cfg.FileMaxFiles)
		case "file_max_age_days":
			cfg.FileMaxAgeDays = atoiOr(v, cfg.FileMaxAgeDays)
		}
	}
	if err := rows.Err(); err != nil {
		return base, false, err
	}
	return cfg, found, nil
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
