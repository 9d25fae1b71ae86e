// Package metrics keeps request and proxy counters and exports fleet
// state to Prometheus.
package metrics

import (
	"sync/atomic"
	"time"
)

// Recorder accumulates HTTP and proxy counters. The zero value is ready to use.
type Recorder struct {
	requests        atomic.Uint64
	errors          atomic.Uint64
	proxySuccesses  atomic.Uint64
	proxyFailures   atomic.Uint64
	totalDurationNs atomic.Int64
	lastRequest     atomic.Int64 // unix millis
	lastProxyOK     atomic.Int64
	lastProxyFail   atomic.Int64
}

// NewRecorder creates a Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// ObserveRequest records one completed HTTP request. Responses with a
// status of 500 or above count as errors.
func (r *Recorder) ObserveRequest(status int, d time.Duration) {
	r.requests.Add(1)
	r.totalDurationNs.Add(int64(d))
	r.lastRequest.Store(time.Now().UnixMilli())
	if status >= 500 {
		r.errors.Add(1)
	}
}

// ProxySucceeded records an image relayed from upstream.
func (r *Recorder) ProxySucceeded() {
	r.proxySuccesses.Add(1)
	r.lastProxyOK.Store(time.Now().UnixMilli())
}

// ProxyFailed records a request answered with the placeholder.
func (r *Recorder) ProxyFailed() {
	r.proxyFailures.Add(1)
	r.lastProxyFail.Store(time.Now().UnixMilli())
}

// Summary is the JSON view of the counters. Timestamps are Unix
// milliseconds, or nil when the event never happened.
type Summary struct {
	RequestCount       uint64  `json:"requestCount"`
	ErrorsCount        uint64  `json:"errorsCount"`
	ProxySuccesses     uint64  `json:"proxySuccesses"`
	ProxyFailures      uint64  `json:"proxyFailures"`
	AvgRequestMs       float64 `json:"avgRequestMs"`
	LastRequestAt      *int64  `json:"lastRequestAt"`
	LastProxySuccessAt *int64  `json:"lastProxySuccessAt"`
	LastProxyFailureAt *int64  `json:"lastProxyFailureAt"`
}

// Summary returns a point-in-time copy of the counters.
func (r *Recorder) Summary() Summary {
	s := Summary{
		RequestCount:       r.requests.Load(),
		ErrorsCount:        r.errors.Load(),
		ProxySuccesses:     r.proxySuccesses.Load(),
		ProxyFailures:      r.proxyFailures.Load(),
		LastRequestAt:      optional(r.lastRequest.Load()),
		LastProxySuccessAt: optional(r.lastProxyOK.Load()),
		LastProxyFailureAt: optional(r.lastProxyFail.Load()),
	}
	if s.RequestCount > 0 {
		avg := float64(r.totalDurationNs.Load()) / float64(s.RequestCount) / float64(time.Millisecond)
		s.AvgRequestMs = float64(int64(avg*100)) / 100
	}
	return s
}

func optional(ms int64) *int64 {
	if ms == 0 {
		return nil
	}
	return &ms
}
