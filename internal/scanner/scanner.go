package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sydlexius/camwatch/internal/camera"
	"github.com/sydlexius/camwatch/internal/event"
)

// ErrScanInProgress is returned when a scan is requested while one is running.
var ErrScanInProgress = errors.New("scan already in progress")

// Prober classifies a single camera. Implementations must honor ctx and
// never block past its cancellation.
type Prober interface {
	Probe(ctx context.Context, code camera.Code) camera.ProbeResult
}

// MetadataSource loads camera metadata keyed by code.
type MetadataSource interface {
	Index(ctx context.Context) (map[camera.Code]camera.Metadata, error)
}

// Options controls a sweep.
type Options struct {
	Codes       []camera.Code
	Concurrency int
	ScanTimeout time.Duration
}

// Service sweeps the camera range and owns the published snapshot.
type Service struct {
	prober   Prober
	metadata MetadataSource
	opts     Options
	logger   *slog.Logger
	eventBus *event.Bus

	scanning   atomic.Bool
	timedOut   atomic.Bool
	nextScanAt atomic.Int64 // unix millis
	inFlight   atomic.Int64
	probes     atomic.Uint64
	scans      atomic.Uint64
	timeouts   atomic.Uint64

	snapshot atomic.Pointer[Snapshot]
	meta     atomic.Pointer[map[camera.Code]camera.Metadata]
	last     atomic.Pointer[ScanResult]

	// writeMu serializes snapshot writers (scan publish and re-merge).
	// Readers never take it.
	writeMu sync.Mutex
}

// NewService creates a scanner. Concurrency below one is treated as one.
func NewService(prober Prober, metadata MetadataSource, opts Options, logger *slog.Logger) *Service {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	s := &Service{
		prober:   prober,
		metadata: metadata,
		opts:     opts,
		logger:   logger.With(slog.String("component", "scanner")),
	}
	s.snapshot.Store(emptySnapshot)
	empty := map[camera.Code]camera.Metadata{}
	s.meta.Store(&empty)
	return s
}

// SetEventBus sets the event bus for publishing scan events.
func (s *Service) SetEventBus(bus *event.Bus) {
	s.eventBus = bus
}

// Scan runs one full sweep and blocks until it finishes or the scan
// deadline elapses. On deadline the probes settled so far are published as
// a partial snapshot. If ctx itself is canceled nothing is published and
// the context error is returned.
func (s *Service) Scan(ctx context.Context) (*ScanResult, error) {
	result, ok := s.begin()
	if !ok {
		return nil, ErrScanInProgress
	}
	return s.run(ctx, result)
}

// Start begins a sweep in the background and returns its initial result.
// ctx must outlive the request that triggered it.
func (s *Service) Start(ctx context.Context) (*ScanResult, error) {
	result, ok := s.begin()
	if !ok {
		return nil, ErrScanInProgress
	}
	snapshot := *result
	go func() {
		if _, err := s.run(ctx, result); err != nil {
			s.logger.Warn("background scan ended early", slog.Any("error", err))
		}
	}()
	return &snapshot, nil
}

func (s *Service) begin() (*ScanResult, bool) {
	if !s.scanning.CompareAndSwap(false, true) {
		return nil, false
	}
	result := &ScanResult{
		ID:        uuid.NewString(),
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
		Planned:   len(s.opts.Codes),
	}
	s.last.Store(result)
	return result, true
}

func (s *Service) run(ctx context.Context, started *ScanResult) (*ScanResult, error) {
	defer s.scanning.Store(false)

	result := *started
	log := s.logger.With(slog.String("scan_id", result.ID))
	log.Info("scan started",
		slog.Int("cameras", len(s.opts.Codes)),
		slog.Int("concurrency", s.opts.Concurrency))

	scanCtx, cancel := context.WithTimeout(ctx, s.opts.ScanTimeout)
	defer cancel()

	collected, timedOut := s.sweep(scanCtx)

	now := time.Now().UTC()
	result.CompletedAt = &now
	result.Probed = len(collected)

	if err := ctx.Err(); err != nil {
		result.Status = StatusCanceled
		s.last.Store(&result)
		log.Info("scan canceled", slog.Int("probed", result.Probed))
		return &result, fmt.Errorf("scan canceled: %w", err)
	}

	snap := s.publish(collected, timedOut, now)
	result.Online = snap.Online
	result.TimedOut = timedOut
	result.Status = StatusCompleted
	if timedOut {
		result.Status = StatusTimedOut
		s.timeouts.Add(1)
	}
	s.scans.Add(1)
	s.last.Store(&result)

	evType := event.ScanCompleted
	if timedOut {
		evType = event.ScanTimedOut
		log.Warn("scan deadline reached, published partial snapshot",
			slog.Int("probed", result.Probed),
			slog.Int("planned", result.Planned),
			slog.Duration("timeout", s.opts.ScanTimeout))
	} else {
		log.Info("scan completed",
			slog.Int("probed", result.Probed),
			slog.Int("online", result.Online),
			slog.Duration("duration", now.Sub(result.StartedAt)))
	}
	if s.eventBus != nil {
		s.eventBus.Publish(event.Event{
			Type: evType,
			Data: map[string]any{
				"scan_id": result.ID,
				"planned": result.Planned,
				"probed":  result.Probed,
				"online":  result.Online,
			},
		})
	}

	return &result, nil
}

// sweep probes the code range in sequential windows. Probes within a
// window run concurrently and the next window starts only after every
// probe of the current one has settled. It returns the results that
// settled before ctx ended and whether the deadline cut the sweep short.
func (s *Service) sweep(ctx context.Context) ([]camera.ProbeResult, bool) {
	codes := s.opts.Codes
	size := s.opts.Concurrency
	collected := make([]camera.ProbeResult, 0, len(codes))

	for start := 0; start < len(codes); start += size {
		if ctx.Err() != nil {
			return collected, true
		}
		window := codes[start:min(start+size, len(codes))]

		var (
			mu      sync.Mutex
			closed  bool
			settled = make([]camera.ProbeResult, 0, len(window))
			wg      sync.WaitGroup
		)
		for _, code := range window {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.inFlight.Add(1)
				r := s.prober.Probe(ctx, code)
				s.inFlight.Add(-1)
				s.probes.Add(1)

				mu.Lock()
				defer mu.Unlock()
				// Probes that return after the cutoff were aborted and
				// carry no information.
				if closed || ctx.Err() != nil {
					return
				}
				settled = append(settled, r)
			}()
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			collected = append(collected, settled...)
		case <-ctx.Done():
			select {
			case <-done:
				// The window settled as the deadline fired.
				collected = append(collected, settled...)
				if start+size >= len(codes) && len(settled) == len(window) {
					return collected, false
				}
				return collected, true
			default:
			}
			mu.Lock()
			closed = true
			collected = append(collected, settled...)
			mu.Unlock()
			// Aborted probes return promptly; waiting keeps the in-flight
			// bound intact for the next scan.
			<-done
			return collected, true
		}
	}
	return collected, false
}

func (s *Service) publish(results []camera.ProbeResult, partial bool, at time.Time) *Snapshot {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snap := s.buildSnapshot(results, partial, at)
	s.snapshot.Store(snap)
	s.timedOut.Store(partial)
	return snap
}

func (s *Service) buildSnapshot(results []camera.ProbeResult, partial bool, at time.Time) *Snapshot {
	records := Merge(results, *s.meta.Load())
	online := 0
	for _, r := range records {
		if r.Online() {
			online++
		}
	}
	return &Snapshot{
		Records:   records,
		Results:   results,
		ScannedAt: at,
		Partial:   partial,
		Online:    online,
	}
}

// ReloadMetadata fetches metadata from the store and re-merges it into the
// current snapshot without rescanning. When the store fails, metadata is
// reset to empty so records fall back to defaults, and the error is returned.
// A cancelled or expired ctx leaves the current metadata in place.
func (s *Service) ReloadMetadata(ctx context.Context) error {
	idx, err := s.metadata.Index(ctx)
	if err != nil && ctx.Err() != nil {
		s.logger.Warn("camera metadata reload abandoned", slog.Any("error", err))
		return fmt.Errorf("loading metadata: %w", err)
	}
	if err != nil {
		idx = map[camera.Code]camera.Metadata{}
		s.logger.Error("loading camera metadata", slog.Any("error", err))
	}
	s.meta.Store(&idx)
	s.Remerge()
	if s.eventBus != nil {
		s.eventBus.Publish(event.Event{
			Type: event.MetadataReloaded,
			Data: map[string]any{"count": len(idx)},
		})
	}
	if err != nil {
		return fmt.Errorf("loading metadata: %w", err)
	}
	s.logger.Info("camera metadata loaded", slog.Int("count", len(idx)))
	return nil
}

// Remerge rebuilds the snapshot from the latest probe results and the
// current metadata.
func (s *Service) Remerge() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.snapshot.Load()
	if cur == emptySnapshot {
		return
	}
	s.snapshot.Store(s.buildSnapshot(cur.Results, cur.Partial, cur.ScannedAt))
}

// Snapshot returns the current snapshot. It is never nil.
func (s *Service) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// Records returns the current status records in published order.
func (s *Service) Records() []camera.StatusRecord {
	return s.snapshot.Load().Records
}

// MetadataCount returns the number of metadata records in memory.
func (s *Service) MetadataCount() int {
	return len(*s.meta.Load())
}

// Metadata returns the in-memory metadata for code.
func (s *Service) Metadata(code camera.Code) (camera.Metadata, bool) {
	m, ok := (*s.meta.Load())[code]
	return m, ok
}

// SetNextScanAt records when the scheduler will run next.
func (s *Service) SetNextScanAt(t time.Time) {
	s.nextScanAt.Store(t.UnixMilli())
}

// State returns the scanner loop state.
func (s *Service) State() State {
	st := State{
		IsScanning:       s.scanning.Load(),
		LastScanTimedOut: s.timedOut.Load(),
	}
	if ms := s.nextScanAt.Load(); ms != 0 {
		st.NextScanAt = time.UnixMilli(ms).UTC()
	}
	return st
}

// Status returns a copy of the current or most recent scan result, or nil
// before the first scan.
func (s *Service) Status() *ScanResult {
	r := s.last.Load()
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// Stats holds cumulative scanner counters.
type Stats struct {
	Scans    uint64
	Timeouts uint64
	Probes   uint64
	InFlight int64
}

// Stats returns cumulative counters.
func (s *Service) Stats() Stats {
	return Stats{
		Scans:    s.scans.Load(),
		Timeouts: s.timeouts.Load(),
		Probes:   s.probes.Load(),
		InFlight: s.inFlight.Load(),
	}
}

// Codes returns the configured code range.
func (s *Service) Codes() []camera.Code {
	return s.opts.Codes
}
