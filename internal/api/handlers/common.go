// Package handlers implements the /api surface.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/pysugar/workspace-mirror/internal/auth/token"
	mirrordb "github.com/pysugar/workspace-mirror/internal/db"
	"github.com/pysugar/workspace-mirror/internal/logging"
	"github.com/pysugar/workspace-mirror/internal/sync"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	// Resume points for failed syncs.
	Page       int    `json:"page,omitempty"`
	Cursor     string `json:"cursor,omitempty"`
	Index      *int   `json:"index,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
	Operation  string `json:"operation,omitempty"`
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Message: message, Type: errType}})
}

// writeSyncError maps engine and store errors onto HTTP statuses.
func writeSyncError(w http.ResponseWriter, err error) {
	var reconcileErr *sync.ReconciliationFailedError
	var remoteErr *sync.RemoteFailureError

	switch {
	case errors.Is(err, token.ErrCredentialsExpired), errors.Is(err, token.ErrNoCredential):
		writeError(w, http.StatusUnauthorized, "credentials_expired", err.Error())
	case errors.Is(err, sync.ErrNoAccessGrant):
		writeError(w, http.StatusConflict, "no_access_grant", err.Error())
	case errors.Is(err, mirrordb.ErrUserNotFound), errors.Is(err, mirrordb.ErrResourceNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &reconcileErr):
		index := reconcileErr.Index
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{
			Message:    err.Error(),
			Type:       "reconciliation_failed",
			Page:       reconcileErr.Page,
			Cursor:     reconcileErr.Cursor,
			Index:      &index,
			ExternalID: reconcileErr.ExternalID,
		}})
	case errors.As(err, &remoteErr):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: errorDetail{
			Message:   err.Error(),
			Type:      "remote_failure",
			Cursor:    remoteErr.Cursor,
			Operation: remoteErr.Operation,
		}})
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "cancelled", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// taskContext tags the request context with the chi request ID as task ID.
func taskContext(r *http.Request) context.Context {
	if id := chimw.GetReqID(r.Context()); id != "" {
		return logging.WithTaskID(r.Context(), id)
	}
	return logging.EnsureTaskID(r.Context())
}
