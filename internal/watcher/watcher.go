// Package watcher reloads camera metadata when the seed file changes.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc imports the seed file and refreshes in-memory metadata.
type ReloadFunc func(ctx context.Context, path string) error

// Service watches a single seed file. fsnotify events on the parent
// directory are filtered to the file and debounced; a modification-time
// poll runs alongside as a fallback for filesystems without notifications.
type Service struct {
	path         string
	reload       ReloadFunc
	logger       *slog.Logger
	debounce     time.Duration
	pollInterval time.Duration
	probeTimeout time.Duration

	lastMod  time.Time
	lastSize int64
}

// NewService creates a seed watcher for path.
func NewService(path string, reload ReloadFunc, logger *slog.Logger) *Service {
	return &Service{
		path:         filepath.Clean(path),
		reload:       reload,
		logger:       logger.With("component", "seed-watcher"),
		debounce:     1 * time.Second,
		pollInterval: 30 * time.Second,
		probeTimeout: 2 * time.Second,
	}
}

// SetDebounce overrides the default debounce interval (for testing).
func (s *Service) SetDebounce(d time.Duration) {
	s.debounce = d
}

// SetPollInterval overrides the default poll interval (for testing).
func (s *Service) SetPollInterval(d time.Duration) {
	s.pollInterval = d
}

// Start blocks until ctx is canceled. If fsnotify is unavailable or does
// not deliver events for the seed directory, the service runs poll-only.
func (s *Service) Start(ctx context.Context) {
	dir := filepath.Dir(s.path)
	s.lastMod, s.lastSize = s.stat()

	var eventCh <-chan fsnotify.Event
	var errCh <-chan error
	if ProbeFSNotify(dir, s.probeTimeout) {
		w, err := fsnotify.NewWatcher()
		if err == nil {
			err = w.Add(dir)
		}
		if err != nil {
			s.logger.Warn("fsnotify unavailable, running poll-only", "dir", dir, "error", err)
			if w != nil {
				w.Close() //nolint:errcheck
			}
		} else {
			defer w.Close() //nolint:errcheck
			eventCh = w.Events
			errCh = w.Errors
		}
	} else {
		s.logger.Warn("fsnotify probe failed, running poll-only", "dir", dir)
	}

	s.logger.Info("seed watcher starting", "path", s.path, "notify", eventCh != nil)

	pollTicker := time.NewTicker(s.pollInterval)
	defer pollTicker.Stop()

	// Debounce timer for coalescing bursts of writes into a single reload.
	debounceTimer := time.NewTimer(0)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	pending := false
	arm := func() {
		if !debounceTimer.Stop() {
			select {
			case <-debounceTimer.C:
			default:
			}
		}
		debounceTimer.Reset(s.debounce)
		pending = true
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("seed watcher stopping")
			return

		case ev, ok := <-eventCh:
			if !ok {
				eventCh = nil
				continue
			}
			if s.relevant(ev) {
				arm()
			}

		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			s.logger.Error("fsnotify error", "error", err)

		case <-pollTicker.C:
			if s.changed() && !pending {
				arm()
			}

		case <-debounceTimer.C:
			if !pending {
				continue
			}
			pending = false
			// Sync the poll baseline so the same write is not reloaded twice.
			s.lastMod, s.lastSize = s.stat()
			if _, err := os.Stat(s.path); err != nil {
				s.logger.Warn("seed file missing, keeping current metadata", "path", s.path)
				continue
			}
			s.logger.Info("seed file changed, reloading metadata", "path", s.path)
			if err := s.reload(ctx, s.path); err != nil {
				s.logger.Error("reloading seed file failed", "error", err)
			}
		}
	}
}

func (s *Service) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != s.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func (s *Service) stat() (time.Time, int64) {
	info, err := os.Stat(s.path)
	if err != nil {
		return time.Time{}, -1
	}
	return info.ModTime(), info.Size()
}

func (s *Service) changed() bool {
	mod, size := s.stat()
	return !mod.Equal(s.lastMod) || size != s.lastSize
}
