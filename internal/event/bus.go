package event

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Type identifies a category of event.
type Type string

// Known event types.
const (
	ScanCompleted    Type = "scan.completed"
	ScanTimedOut     Type = "scan.timed_out"
	CameraUpdated    Type = "camera.updated"
	MetadataReloaded Type = "metadata.reloaded"
)

// AllTypes lists every event type the service emits.
var AllTypes = []Type{ScanCompleted, ScanTimedOut, CameraUpdated, MetadataReloaded}

// Event represents something that happened in the system.
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Handler is a function that processes an event.
type Handler func(Event)

// Bus is an in-process event bus backed by a buffered channel.
type Bus struct {
	ch      chan Event
	mu      sync.RWMutex
	subs    map[Type][]Handler
	all     []Handler
	logger  *slog.Logger
	done    chan struct{}
	drained chan struct{}
	stopped bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewBus creates a new event bus with the given buffer size.
func NewBus(logger *slog.Logger, bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Bus{
		ch:      make(chan Event, bufSize),
		subs:    make(map[Type][]Handler),
		logger:  logger.With(slog.String("component", "event-bus")),
		done:    make(chan struct{}),
		drained: make(chan struct{}),
	}
}

// Subscribe registers a handler for the given event type.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], h)
}

// SubscribeAll registers a handler that receives every event.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish enqueues an event without blocking. The event is dropped with a
// warning when the buffer is full, and silently once Stop has been called.
func (b *Bus) Publish(e Event) {
	select {
	case <-b.done:
		b.dropped.Add(1)
		return
	default:
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	select {
	case b.ch <- e:
		b.published.Add(1)
	default:
		b.dropped.Add(1)
		b.logger.Warn("event bus full, dropping event", slog.String("type", string(e.Type)))
	}
}

// Stats returns the number of accepted and dropped events.
func (b *Bus) Stats() (published, dropped uint64) {
	return b.published.Load(), b.dropped.Load()
}

// Start drains the channel and dispatches events until Stop is called.
// Call it in a goroutine.
func (b *Bus) Start() {
	defer close(b.drained)
	for {
		select {
		case e := <-b.ch:
			b.dispatch(e)
		case <-b.done:
			for {
				select {
				case e := <-b.ch:
					b.dispatch(e)
				default:
					return
				}
			}
		}
	}
}

// Stop signals the bus to stop after draining the buffer.
func (b *Bus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.stopped {
		b.stopped = true
		close(b.done)
	}
}

// Wait blocks until Start has drained the buffer and returned.
func (b *Bus) Wait() {
	<-b.drained
}

func (b *Bus) dispatch(e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[e.Type])+len(b.all))
	handlers = append(handlers, b.subs[e.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked", slog.String("type", string(e.Type)), slog.Any("panic", r))
				}
			}()
			h(e)
		}()
	}
}
