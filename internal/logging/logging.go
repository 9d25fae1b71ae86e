package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes the desired logging configuration.
type Config struct {
	Level          string `json:"level"`
	Format         string `json:"format"`
	FilePath       string `json:"file_path,omitempty"`
	FileMaxSizeMB  int    `json:"file_max_size_mb,omitempty"`
	FileMaxFiles   int    `json:"file_max_files,omitempty"`
	FileMaxAgeDays int    `json:"file_max_age_days,omitempty"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Level:          "info",
		Format:         "json",
		FileMaxSizeMB:  100,
		FileMaxFiles:   3,
		FileMaxAgeDays: 30,
	}
}

// Merge returns c with every zero field taken from base.
func (c Config) Merge(base Config) Config {
	if c.Level == "" {
		c.Level = base.Level
	}
	if c.Format == "" {
		c.Format = base.Format
	}
	if c.FileMaxSizeMB == 0 {
		c.FileMaxSizeMB = base.FileMaxSizeMB
	}
	if c.FileMaxFiles == 0 {
		c.FileMaxFiles = base.FileMaxFiles
	}
	if c.FileMaxAgeDays == 0 {
		c.FileMaxAgeDays = base.FileMaxAgeDays
	}
	return c
}

// Validate checks level and format names.
func (c Config) Validate() error {
	if c.Level != "" && !ValidLevel(c.Level) {
		return fmt.Errorf("invalid level %q; must be debug, info, warn, or error", c.Level)
	}
	if c.Format != "" && !ValidFormat(c.Format) {
		return fmt.Errorf("invalid format %q; must be text or json", c.Format)
	}
	return nil
}

// String returns a human-readable summary of the config.
func (c Config) String() string {
	s := fmt.Sprintf("level=%s format=%s", c.Level, c.Format)
	if c.FilePath != "" {
		s += fmt.Sprintf(" file=%s max_size=%dMB max_files=%d max_age=%dd",
			c.FilePath, c.FileMaxSizeMB, c.FileMaxFiles, c.FileMaxAgeDays)
	}
	return s
}

// SwappableHandler is a slog.Handler whose delegate can be replaced while
// loggers derived from it stay valid.
type SwappableHandler struct {
	inner atomic.Pointer[slog.Handler]
}

// NewSwappableHandler creates a SwappableHandler wrapping h.
func NewSwappableHandler(h slog.Handler) *SwappableHandler {
	s := &SwappableHandler{}
	s.inner.Store(&h)
	return s
}

// Swap replaces the inner handler.
func (s *SwappableHandler) Swap(h slog.Handler) {
	s.inner.Store(&h)
}

func (s *SwappableHandler) load() slog.Handler {
	return *s.inner.Load()
}

// Enabled delegates to the inner handler.
func (s *SwappableHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return s.load().Enabled(ctx, level)
}

// Handle delegates to the inner handler.
func (s *SwappableHandler) Handle(ctx context.Context, r slog.Record) error {
	return s.load().Handle(ctx, r)
}

// WithAttrs returns a derived handler that keeps following later swaps.
func (s *SwappableHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &derivedHandler{root: s, attrs: attrs}
}

// WithGroup returns a derived handler that keeps following later swaps.
func (s *SwappableHandler) WithGroup(name string) slog.Handler {
	return &derivedHandler{root: s, group: name}
}

// derivedHandler re-applies its attrs or group to whatever handler the root
// currently holds, so component loggers built at startup pick up a format
// change made through the admin API.
type derivedHandler struct {
	root   *SwappableHandler
	parent *derivedHandler
	attrs  []slog.Attr
	group  string
}

func (d *derivedHandler) resolve() slog.Handler {
	var h slog.Handler
	if d.parent != nil {
		h = d.parent.resolve()
	} else {
		h = d.root.load()
	}
	if d.group != "" {
		return h.WithGroup(d.group)
	}
	return h.WithAttrs(d.attrs)
}

func (d *derivedHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return d.root.load().Enabled(ctx, level)
}

func (d *derivedHandler) Handle(ctx context.Context, r slog.Record) error {
	return d.resolve().Handle(ctx, r)
}

func (d *derivedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &derivedHandler{root: d.root, parent: d, attrs: attrs}
}

func (d *derivedHandler) WithGroup(name string) slog.Handler {
	return &derivedHandler{root: d.root, parent: d, group: name}
}

// Manager owns the logger lifecycle and supports runtime reconfiguration.
type Manager struct {
	mu       sync.Mutex
	levelVar *slog.LevelVar
	handler  *SwappableHandler
	config   Config
	closer   io.Closer
	stdout   io.Writer
}

// NewManager creates a Manager and returns it along with a ready-to-use logger.
func NewManager(cfg Config) (*Manager, *slog.Logger) {
	return newManager(cfg, os.Stdout)
}

func newManager(cfg Config, stdout io.Writer) (*Manager, *slog.Logger) {
	cfg = cfg.Merge(DefaultConfig())
	m := &Manager{
		levelVar: &slog.LevelVar{},
		stdout:   stdout,
	}
	m.levelVar.Set(parseLevel(cfg.Level))

	writer, closer := buildWriter(cfg, stdout)
	m.handler = NewSwappableHandler(buildHandler(writer, m.levelVar, cfg.Format))
	m.closer = closer
	m.config = cfg

	return m, slog.New(m.handler)
}

// Reconfigure applies a new configuration at runtime. A level change takes
// effect through the shared LevelVar; output changes rebuild the handler.
func (m *Manager) Reconfigure(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg = cfg.Merge(m.config)
	m.levelVar.Set(parseLevel(cfg.Level))

	old := m.config
	rebuild := cfg.Format != old.Format ||
		cfg.FilePath != old.FilePath ||
		cfg.FileMaxSizeMB != old.FileMaxSizeMB ||
		cfg.FileMaxFiles != old.FileMaxFiles ||
		cfg.FileMaxAgeDays != old.FileMaxAgeDays

	if rebuild {
		if m.closer != nil {
			m.closer.Close() //nolint:errcheck
			m.closer = nil
		}
		writer, closer := buildWriter(cfg, m.stdout)
		m.handler.Swap(buildHandler(writer, m.levelVar, cfg.Format))
		m.closer = closer
	}

	m.config = cfg
}

// Config returns the current configuration snapshot.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Close releases the log file writer, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closer == nil {
		return nil
	}
	err := m.closer.Close()
	m.closer = nil
	return err
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildWriter returns stdout alone, or stdout teed into a rotating file.
func buildWriter(cfg Config, stdout io.Writer) (io.Writer, io.Closer) {
	if cfg.FilePath == "" {
		return stdout, nil
	}

	lj := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    positiveOr(cfg.FileMaxSizeMB, 100),
		MaxBackups: positiveOr(cfg.FileMaxFiles, 3),
		MaxAge:     positiveOr(cfg.FileMaxAgeDays, 30),
	}
	return io.MultiWriter(stdout, lj), lj
}

func buildHandler(w io.Writer, leveler slog.Leveler, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: leveler}
	if format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// ValidLevel returns true if s is a recognized log level.
func ValidLevel(s string) bool {
	switch s {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

// ValidFormat returns true if s is a recognized log format.
func ValidFormat(s string) bool {
	return s == "text" || s == "json"
}
