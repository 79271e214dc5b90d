package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	mirrordb "github.com/pysugar/workspace-mirror/internal/db"
	"gorm.io/gorm"
)

type createUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// CreateUserHandler registers a local user. Credentials issued for its email
// are stored against it.
func CreateUserHandler(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Email) == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "email is required")
			return
		}
		if _, err := mirrordb.FindUserByEmail(db, req.Email); err == nil {
			writeError(w, http.StatusConflict, "conflict", "user already exists")
			return
		} else if !errors.Is(err, mirrordb.ErrUserNotFound) {
			writeSyncError(w, err)
			return
		}

		user, err := mirrordb.CreateUser(db, req.Email, req.Name)
		if err != nil {
			writeSyncError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, user)
	}
}

// ListUsersHandler returns all users with their linked providers.
func ListUsersHandler(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := mirrordb.ListUsers(db)
		if err != nil {
			writeSyncError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	}
}

// ListUserResourcesHandler returns the resources granted to a user.
func ListUserResourcesHandler(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := mirrordb.FindUser(db, chi.URLParam(r, "id"))
		if err != nil {
			writeSyncError(w, err)
			return
		}
		resources, err := mirrordb.ListUserResources(db, user.ID)
		if err != nil {
			writeSyncError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"resources": resources})
	}
}

// ListThreadsHandler returns a resource's top-level comments with replies.
func ListThreadsHandler(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := mirrordb.ListThreads(db, chi.URLParam(r, "id"))
		if err != nil {
			writeSyncError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"threads": items})
	}
}
