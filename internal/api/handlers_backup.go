package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/sydlexius/camwatch/internal/backup"
)

// handleBackupCreate snapshots the database now and prunes old snapshots.
// POST /api/backups
func (r *Router) handleBackupCreate(w http.ResponseWriter, req *http.Request) {
	if r.backup == nil {
		writeError(w, http.StatusServiceUnavailable, "backup service not available")
		return
	}

	info, err := r.backup.Backup(req.Context())
	if err != nil {
		r.logger.Error("backup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "backup failed")
		return
	}
	if _, err := r.backup.Prune(); err != nil {
		r.logger.Warn("backup prune failed", "error", err)
	}

	writeJSON(w, http.StatusCreated, info)
}

// handleBackupList lists snapshots, newest first.
// GET /api/backups
func (r *Router) handleBackupList(w http.ResponseWriter, _ *http.Request) {
	if r.backup == nil {
		writeError(w, http.StatusServiceUnavailable, "backup service not available")
		return
	}

	backups, err := r.backup.List()
	if err != nil {
		r.logger.Error("listing backups failed", "error", err)
		writeError(w, http.StatusInternalServerError, "listing backups failed")
		return
	}
	if backups == nil {
		backups = []backup.Info{}
	}
	writeJSON(w, http.StatusOK, backups)
}

// handleBackupDelete removes one snapshot.
// DELETE /api/backups/{filename}
func (r *Router) handleBackupDelete(w http.ResponseWriter, req *http.Request) {
	if r.backup == nil {
		writeError(w, http.StatusServiceUnavailable, "backup service not available")
		return
	}

	filename := req.PathValue("filename")
	if !backup.IsValidFilename(filename) {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}

	if err := r.backup.Delete(filename); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "backup not found")
			return
		}
		r.logger.Error("deleting backup", "filename", filename, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete backup")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
