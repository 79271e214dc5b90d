package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/workspace-mirror/internal/providers"
	"github.com/pysugar/workspace-mirror/internal/sync"
)

// FileSyncHandler runs a file sync for a user on a provider to completion.
// ?recent=false lists everything; ?cursor= resumes a failed sync.
func FileSyncHandler(engine *sync.Engine, registry *providers.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := registry.Get(chi.URLParam(r, "provider"))
		if !ok {
			writeError(w, http.StatusNotFound, "not_found", "unknown provider")
			return
		}

		recent := true
		if v := r.URL.Query().Get("recent"); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", "recent must be true or false")
				return
			}
			recent = parsed
		}

		result, err := engine.SyncFiles(taskContext(r), sync.FileSyncRequest{
			UserID:     chi.URLParam(r, "id"),
			Provider:   p.ID,
			RecentOnly: recent,
			Cursor:     r.URL.Query().Get("cursor"),
		})
		if err != nil {
			writeSyncError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// CommentSyncHandler ingests the comment threads of one resource.
func CommentSyncHandler(engine *sync.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := engine.IngestThread(taskContext(r), chi.URLParam(r, "id"))
		if err != nil {
			writeSyncError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
