package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/sydlexius/camwatch/internal/scanner"
)

// handleScanRun starts an out-of-band sweep.
// POST /api/scan
func (r *Router) handleScanRun(w http.ResponseWriter, req *http.Request) {
	if r.scanner == nil {
		writeError(w, http.StatusServiceUnavailable, "scanner not configured")
		return
	}

	// The sweep outlives this request.
	result, err := r.scanner.Start(context.WithoutCancel(req.Context()))
	if errors.Is(err, scanner.ErrScanInProgress) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, result)
}

// handleScanStatus returns the current or most recent scan status.
// GET /api/scan
func (r *Router) handleScanStatus(w http.ResponseWriter, _ *http.Request) {
	if r.scanner == nil {
		writeError(w, http.StatusServiceUnavailable, "scanner not configured")
		return
	}

	status := r.scanner.Status()
	if status == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "idle"})
		return
	}

	writeJSON(w, http.StatusOK, status)
}
