package handlers

import (
	"net/http"
	"strconv"

	"github.com/pysugar/workspace-mirror/internal/monitor"
)

// ListRunsHandler pages through sync run history.
// Query: page (1-based), page_size, q (matches user, provider, resource or error).
func ListRunsHandler(mon *monitor.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, _ := strconv.Atoi(q.Get("page"))
		pageSize, _ := strconv.Atoi(q.Get("page_size"))
		if page < 1 {
			page = 1
		}
		if pageSize <= 0 || pageSize > 500 {
			pageSize = 50
		}

		runs, total, err := mon.Page(page, pageSize, q.Get("q"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"runs":      runs,
			"total":     total,
			"page":      page,
			"page_size": pageSize,
		})
	}
}

// RunStatsHandler returns run totals.
func RunStatsHandler(mon *monitor.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, mon.Stats())
	}
}

// ClearRunsHandler deletes the run history.
func ClearRunsHandler(mon *monitor.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := mon.Clear(); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
