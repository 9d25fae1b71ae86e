package scanner

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Scheduler drives periodic sweeps. After a sweep that hit its deadline
// the next one waits RetryDelay instead of Interval.
type Scheduler struct {
	service    *Service
	interval   time.Duration
	retryDelay time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewScheduler creates a scan scheduler.
func NewScheduler(service *Service, interval, retryDelay time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		service:    service,
		interval:   interval,
		retryDelay: retryDelay,
		logger:     logger.With(slog.String("component", "scan-scheduler")),
		now:        time.Now,
	}
}

// Start blocks until ctx is canceled. The first sweep runs immediately.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 || s.retryDelay <= 0 {
		s.logger.Error("scan scheduler not started: non-positive interval",
			"interval", s.interval.String(), "retry_delay", s.retryDelay.String())
		return
	}
	s.logger.Info("scan scheduler started",
		"interval", s.interval.String(), "retry_delay", s.retryDelay.String())

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scan scheduler stopped")
			return
		case <-timer.C:
		}

		delay := s.runOnce(ctx)
		if ctx.Err() != nil {
			s.logger.Info("scan scheduler stopped")
			return
		}
		s.service.SetNextScanAt(s.now().Add(delay))
		timer.Reset(delay)
	}
}

// runOnce performs a sweep and returns the delay before the next one.
func (s *Scheduler) runOnce(ctx context.Context) time.Duration {
	result, err := s.service.Scan(ctx)
	switch {
	case errors.Is(err, ErrScanInProgress):
		s.logger.Debug("skipping scheduled scan: manual scan running")
		return s.interval
	case err != nil:
		return s.interval
	case result.TimedOut:
		s.logger.Warn("scan timed out, using retry delay", "retry_delay", s.retryDelay.String())
		return s.retryDelay
	default:
		return s.interval
	}
}
