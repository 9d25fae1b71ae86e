package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sydlexius/camwatch/internal/api/middleware"
	"github.com/sydlexius/camwatch/internal/metrics"
	"github.com/sydlexius/camwatch/internal/scanner"
	"github.com/sydlexius/camwatch/internal/version"
)

// handleStatusCameras returns the snapshot, redacted for non-admin callers.
// GET /status-cameras
func (r *Router) handleStatusCameras(w http.ResponseWriter, req *http.Request) {
	records := scanner.Visible(r.scanner.Records(), middleware.IsAdmin(req.Context()))
	writeJSON(w, http.StatusOK, records)
}

type syncInfo struct {
	UpdateInterval      int64  `json:"updateInterval"`
	NextScanTimestamp   *int64 `json:"nextScanTimestamp"`
	ScanTimeoutOccurred bool   `json:"scanTimeoutOccurred"`
}

// handleSyncInfo tells clients when fresh data is expected.
// GET /api/sync-info
func (r *Router) handleSyncInfo(w http.ResponseWriter, _ *http.Request) {
	st := r.scanner.State()
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, syncInfo{
		UpdateInterval:      r.updateInterval.Milliseconds(),
		NextScanTimestamp:   unixMillis(st.NextScanAt),
		ScanTimeoutOccurred: st.LastScanTimedOut,
	})
}

type healthResponse struct {
	Status              string          `json:"status"`
	IsScanning          bool            `json:"isScanning"`
	NextScanTimestamp   *int64          `json:"nextScanTimestamp"`
	ScanTimeoutOccurred bool            `json:"scanTimeoutOccurred"`
	CachedCount         int             `json:"cachedCount"`
	CameraInfoCount     int             `json:"cameraInfoCount"`
	OnlineCount         int             `json:"onlineCount"`
	UptimeMs            int64           `json:"uptimeMs"`
	Version             string          `json:"version"`
	Commit              string          `json:"commit,omitempty"`
	Metrics             metrics.Summary `json:"metrics"`
}

// handleHealth reports liveness plus a summary of scanner and request state.
// GET /health
func (r *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := r.scanner.State()
	snap := r.scanner.Snapshot()
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, healthResponse{
		Status:              "ok",
		IsScanning:          st.IsScanning,
		NextScanTimestamp:   unixMillis(st.NextScanAt),
		ScanTimeoutOccurred: st.LastScanTimedOut,
		CachedCount:         len(snap.Records),
		CameraInfoCount:     r.scanner.MetadataCount(),
		OnlineCount:         snap.Online,
		UptimeMs:            time.Since(r.startedAt).Milliseconds(),
		Version:             version.Version,
		Commit:              version.Commit,
		Metrics:             r.recorder.Summary(),
	})
}

// handleMetrics returns the request and proxy counters.
// GET /metrics
func (r *Router) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, r.recorder.Summary())
}

// prometheusHandler exposes the registry in the Prometheus text format.
// GET /metrics/prometheus
func (r *Router) prometheusHandler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{
		ErrorLog:      promErrorLogger{r.logger},
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// handleClientConfig exposes the settings the browser UI needs.
// GET /api/config
func (r *Router) handleClientConfig(w http.ResponseWriter, _ *http.Request) {
	adminEmail := ""
	if len(r.adminEmails) > 0 {
		adminEmail = r.adminEmails[0]
	}
	writeJSON(w, http.StatusOK, map[string]string{"adminEmail": adminEmail})
}

func unixMillis(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

// writeError sends a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
	}
}
