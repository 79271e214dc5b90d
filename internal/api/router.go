// Package api assembles the HTTP surface.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/pysugar/workspace-mirror/internal/api/handlers"
	"github.com/pysugar/workspace-mirror/internal/api/middleware"
	"github.com/pysugar/workspace-mirror/internal/auth"
	"github.com/pysugar/workspace-mirror/internal/monitor"
	"github.com/pysugar/workspace-mirror/internal/providers"
	"github.com/pysugar/workspace-mirror/internal/sync"
	"gorm.io/gorm"
)

// Deps are the components the routes call into.
type Deps struct {
	DB            *gorm.DB
	Registry      *providers.Registry
	Engine        *sync.Engine
	Monitor       *monitor.Monitor
	RemoteTimeout time.Duration
}

// NewRouter builds the chi router: OAuth routes are public, /api requires the
// API key.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/auth/{provider}/login", auth.HandleLogin(d.Registry))
	r.Get("/auth/{provider}/callback", auth.HandleCallback(d.DB, d.Registry, d.RemoteTimeout))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(d.DB))

		r.Post("/users", handlers.CreateUserHandler(d.DB))
		r.Get("/users", handlers.ListUsersHandler(d.DB))
		r.Get("/users/{id}/resources", handlers.ListUserResourcesHandler(d.DB))
		r.Post("/users/{id}/sync/{provider}", handlers.FileSyncHandler(d.Engine, d.Registry))

		r.Get("/resources/{id}/threads", handlers.ListThreadsHandler(d.DB))
		r.Post("/resources/{id}/sync/comments", handlers.CommentSyncHandler(d.Engine))

		r.Get("/sync/runs", handlers.ListRunsHandler(d.Monitor))
		r.Delete("/sync/runs", handlers.ClearRunsHandler(d.Monitor))
		r.Get("/sync/stats", handlers.RunStatsHandler(d.Monitor))

		r.Get("/config/apikey", handlers.GetAPIKeyHandler(d.DB))
		r.Post("/config/apikey/regenerate", handlers.RegenerateAPIKeyHandler(d.DB))
	})
	return r
}
