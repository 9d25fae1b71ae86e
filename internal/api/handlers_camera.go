package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sydlexius/camwatch/internal/api/middleware"
	"github.com/sydlexius/camwatch/internal/camera"
	"github.com/sydlexius/camwatch/internal/event"
)

const maxUpdateBody = 64 << 10

// handleUpdateCameraInfo stores metadata for one camera and refreshes the
// merged snapshot.
// POST /api/update-camera-info
func (r *Router) handleUpdateCameraInfo(w http.ResponseWriter, req *http.Request) {
	if r.store == nil {
		writeError(w, http.StatusServiceUnavailable, "metadata store not available")
		return
	}

	m, err := camera.DecodeUpdate(http.MaxBytesReader(w, req.Body, maxUpdateBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, updateErrorMessage(err))
		return
	}

	by := ""
	if p := middleware.PrincipalFromContext(req.Context()); p != nil {
		by = p.Email
	}
	log := r.logger.With(slog.String("code", string(m.Code)), slog.String("updated_by", by))
	log.Info("camera metadata update requested")

	if err := r.store.Upsert(req.Context(), &m, by); err != nil {
		log.Error("saving camera metadata", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to save camera metadata")
		return
	}
	log.Info("camera metadata updated")

	if r.scanner != nil {
		if err := r.scanner.ReloadMetadata(context.WithoutCancel(req.Context())); err != nil {
			log.Warn("reloading metadata after update", slog.Any("error", err))
		}
	}
	if r.eventBus != nil {
		r.eventBus.Publish(event.Event{
			Type: event.CameraUpdated,
			Data: map[string]any{"code": string(m.Code), "updated_by": by},
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "camera metadata updated",
		"camera":  m,
	})
}

func updateErrorMessage(err error) string {
	switch {
	case errors.Is(err, camera.ErrInvalidCode):
		return "code must be exactly six digits"
	case errors.Is(err, camera.ErrNameRequired):
		return "code and name are required"
	case errors.Is(err, camera.ErrInvalidCoordinates):
		return "invalid coordinates; expected [lat, lng]"
	case errors.Is(err, camera.ErrInvalidAccessLevel):
		return "invalid access level (1-3)"
	default:
		return "invalid request body"
	}
}

// handleCameraHistory lists the audit trail for one camera.
// GET /api/cameras/{code}/history?limit=N
func (r *Router) handleCameraHistory(w http.ResponseWriter, req *http.Request) {
	code, err := camera.ParseCode(req.PathValue("code"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid camera code")
		return
	}
	if r.store == nil {
		writeError(w, http.StatusServiceUnavailable, "metadata store not available")
		return
	}

	limit := 50
	if v := req.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	entries, err := r.store.History(req.Context(), code, limit)
	if err != nil {
		r.logger.Error("listing camera history", slog.String("code", string(code)), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if entries == nil {
		entries = []camera.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
