// Package upstream talks to the camera image provider.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/sydlexius/camwatch/internal/camera"
)

// ErrBadStatus is returned by Fetch when the provider answers with a non-2xx status.
var ErrBadStatus = errors.New("upstream returned non-success status")

// Options configures a Client.
type Options struct {
	BaseURL   string
	ImagePath string
	UserAgent string
	// Timeout bounds each probe end to end, including the body read.
	Timeout time.Duration
	// FetchTimeout bounds each proxied image fetch. It defaults to Timeout.
	FetchTimeout time.Duration
	// MinImageBytes is the payload size a probe must exceed to count as online.
	MinImageBytes int64
	// MaxProbeBytes caps how much of a probe body is read.
	MaxProbeBytes int64
	// MaxRPS throttles probes; zero disables throttling.
	MaxRPS float64
}

// Client fetches camera images from the provider.
type Client struct {
	http    *resty.Client
	opts    Options
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a provider client.
func New(opts Options, logger *slog.Logger) *Client {
	if opts.ImagePath == "" {
		opts.ImagePath = "/api/camera"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = opts.Timeout
	}
	if opts.MaxProbeBytes <= 0 {
		opts.MaxProbeBytes = 4 << 20
	}
	logger = logger.With(slog.String("component", "upstream"))

	r := resty.New()
	r.SetBaseURL(opts.BaseURL)
	r.SetLogger(restyLogger{logger})
	if opts.UserAgent != "" {
		r.SetHeader("User-Agent", opts.UserAgent)
	}
	r.SetHeader("Accept", "image/*")

	c := &Client{
		http:   r,
		opts:   opts,
		logger: logger,
	}
	if opts.MaxRPS > 0 {
		burst := int(opts.MaxRPS)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.MaxRPS), burst)
	}
	return c
}

// Image is a streaming upstream response. The caller must Close it.
type Image struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	cancel        context.CancelFunc
}

// Close releases the body and the request context.
func (i *Image) Close() error {
	err := i.Body.Close()
	i.cancel()
	return err
}

func (c *Client) get(ctx context.Context, code camera.Code) (*resty.Response, error) {
	return c.http.R().
		SetContext(ctx).
		SetQueryParam("code", string(code)).
		SetDoNotParseResponse(true).
		Get(c.opts.ImagePath)
}

// Probe performs one bounded fetch and classifies the camera. A camera is
// reachable when a 2xx body is read to the end (or to the probe cap) and is
// larger than MinImageBytes. Every failure, including cancellation of ctx,
// classifies as unreachable.
func (c *Client) Probe(ctx context.Context, code camera.Code) camera.ProbeResult {
	res := camera.ProbeResult{Code: code}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return res
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	resp, err := c.get(ctx, code)
	if err != nil {
		c.logger.Debug("probe failed", slog.String("code", string(code)), slog.Any("error", err))
		return res
	}
	body := resp.RawBody()
	defer body.Close() //nolint:errcheck

	if !isSuccess(resp.StatusCode()) {
		io.Copy(io.Discard, io.LimitReader(body, 64<<10)) //nolint:errcheck
		c.logger.Debug("probe non-success status", slog.String("code", string(code)), slog.Int("status", resp.StatusCode()))
		return res
	}

	n, err := io.Copy(io.Discard, io.LimitReader(body, c.opts.MaxProbeBytes))
	if err != nil {
		c.logger.Debug("probe read failed", slog.String("code", string(code)), slog.Any("error", err))
		return res
	}
	res.Reachable = n > c.opts.MinImageBytes
	return res
}

// Fetch opens a streaming request for the current image of code. The
// request, including reading the body, is bounded by FetchTimeout.
func (c *Client) Fetch(ctx context.Context, code camera.Code) (*Image, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)

	resp, err := c.get(ctx, code)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("fetching camera %s: %w", code, err)
	}
	body := resp.RawBody()
	if !isSuccess(resp.StatusCode()) {
		body.Close() //nolint:errcheck
		cancel()
		return nil, fmt.Errorf("%w: camera %s: %d", ErrBadStatus, code, resp.StatusCode())
	}

	return &Image{
		Body:          body,
		ContentType:   resp.Header().Get("Content-Type"),
		ContentLength: resp.RawResponse.ContentLength,
		cancel:        cancel,
	}, nil
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

// restyLogger routes resty's internal messages through slog.
type restyLogger struct {
	l *slog.Logger
}

func (r restyLogger) Errorf(format string, v ...any) { r.l.Error(fmt.Sprintf(format, v...)) }
func (r restyLogger) Warnf(format string, v ...any)  { r.l.Warn(fmt.Sprintf(format, v...)) }
func (r restyLogger) Debugf(format string, v ...any) { r.l.Debug(fmt.Sprintf(format, v...)) }
