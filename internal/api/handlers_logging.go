package api

import (
	"encoding/json"
	"net/http"

	"github.com/sydlexius/camwatch/internal/logging"
)

func (r *Router) handleGetLogging(w http.ResponseWriter, _ *http.Request) {
	if r.logManager == nil {
		writeError(w, http.StatusServiceUnavailable, "logging manager not available")
		return
	}
	writeJSON(w, http.StatusOK, r.logManager.Config())
}

func (r *Router) handleUpdateLogging(w http.ResponseWriter, req *http.Request) {
	if r.logManager == nil {
		writeError(w, http.StatusServiceUnavailable, "logging manager not available")
		return
	}

	var cfg logging.Config
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, 16<<10)).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Only overwrite fields that are provided.
	cfg = cfg.Merge(r.logManager.Config())

	if r.db != nil {
		if err := logging.SaveSettings(req.Context(), r.db, cfg); err != nil {
			r.logger.Error("persisting logging settings", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to persist setting")
			return
		}
	}

	r.logManager.Reconfigure(cfg)
	r.logger.Info("logging reconfigured", "config", cfg.String())

	writeJSON(w, http.StatusOK, cfg)
}
