package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sydlexius/camwatch/internal/event"
)

const (
	maxAttempts    = 3
	requestTimeout = 10 * time.Second
)

// Dispatcher sends events to matching webhooks.
type Dispatcher struct {
	registry *Registry
	client   *resty.Client
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewDispatcher creates a webhook dispatcher. Failed deliveries are retried
// with exponential backoff starting at one second.
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	return newDispatcher(registry, resty.New(), time.Second, logger)
}

// NewDispatcherWithHTTPClient creates a dispatcher with a custom HTTP client
// and initial backoff (for testing).
func NewDispatcherWithHTTPClient(registry *Registry, httpClient *http.Client, backoff time.Duration, logger *slog.Logger) *Dispatcher {
	return newDispatcher(registry, resty.NewWithClient(httpClient), backoff, logger)
}

func newDispatcher(registry *Registry, client *resty.Client, backoff time.Duration, logger *slog.Logger) *Dispatcher {
	client.
		SetTimeout(requestTimeout).
		SetHeader("User-Agent", "Camwatch-Webhook/1.0").
		SetRetryCount(maxAttempts-1).
		SetRetryWaitTime(backoff).
		SetRetryMaxWaitTime(backoff * (1 << (maxAttempts - 1))).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError || r.StatusCode() == http.StatusTooManyRequests
		})
	return &Dispatcher{
		registry: registry,
		client:   client,
		logger:   logger.With(slog.String("component", "webhook-dispatcher")),
	}
}

// HandleEvent is an event.Handler that dispatches the event to all matching webhooks.
func (d *Dispatcher) HandleEvent(e event.Event) {
	for _, w := range d.registry.ListByEvent(string(e.Type)) {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.deliver(w, e)
		}()
	}
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(w Webhook, e event.Event) {
	body, contentType := formatPayload(&w, e)

	ctx, cancel := context.WithTimeout(context.Background(), maxAttempts*requestTimeout+30*time.Second)
	defer cancel()

	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetBody(body).
		Post(w.URL)
	attempts := 1
	if resp != nil && resp.Request != nil {
		attempts = resp.Request.Attempt
	}
	if err == nil && resp.IsError() {
		err = fmt.Errorf("unexpected status %d", resp.StatusCode())
	}
	if err != nil {
		d.logger.Error("webhook delivery failed",
			"webhook", w.Name,
			"event", string(e.Type),
			"attempts", attempts,
			"error", err,
		)
		return
	}

	d.logger.Debug("webhook delivered",
		"webhook", w.Name,
		"event", string(e.Type),
		"attempts", attempts,
	)
}
