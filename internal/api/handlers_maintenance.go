package api

import (
	"context"
	"net/http"
	"time"
)

func (r *Router) handleMaintenanceStatus(w http.ResponseWriter, req *http.Request) {
	if r.maintenance == nil {
		writeError(w, http.StatusServiceUnavailable, "maintenance service not available")
		return
	}

	status, err := r.maintenance.Status(req.Context())
	if err != nil {
		r.logger.Error("getting maintenance status", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (r *Router) handleMaintenanceOptimize(w http.ResponseWriter, req *http.Request) {
	if r.maintenance == nil {
		writeError(w, http.StatusServiceUnavailable, "maintenance service not available")
		return
	}

	ctx, cancel := context.WithTimeout(req.Context(), 60*time.Second)
	defer cancel()

	if err := r.maintenance.Optimize(ctx); err != nil {
		r.logger.Error("optimize failed", "error", err)
		writeError(w, http.StatusInternalServerError, "optimize failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "optimized"})
}
