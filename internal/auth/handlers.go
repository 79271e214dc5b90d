package auth

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/pysugar/workspace-mirror/internal/providers"
	"gorm.io/gorm"
)

// HandleLogin redirects to the provider's consent page. ?scope=full requests
// the complete scope set on top of previously granted scopes.
func HandleLogin(registry *providers.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := registry.Get(chi.URLParam(r, "provider"))
		if !ok {
			http.Error(w, "Unknown provider", http.StatusNotFound)
			return
		}

		redirectURL := p.OAuth.RedirectURL
		if redirectURL == "" {
			redirectURL = callbackURL(r, p.ID)
		}
		cfg := p.AuthConfig(redirectURL, r.URL.Query().Get("scope") == "full")

		state := newState()
		setStateCookie(w, r, p.ID, state)
		http.Redirect(w, r, cfg.AuthCodeURL(state, p.AuthOptions...), http.StatusTemporaryRedirect)
	}
}

// HandleCallback completes the flow started by HandleLogin.
func HandleCallback(db *gorm.DB, registry *providers.Registry, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := registry.Get(chi.URLParam(r, "provider"))
		if !ok {
			http.Error(w, "Unknown provider", http.StatusNotFound)
			return
		}
		if msg := r.URL.Query().Get("error"); msg != "" {
			http.Error(w, "Authorization denied: "+msg, http.StatusBadRequest)
			return
		}
		if !checkState(r, p.ID) {
			http.Error(w, "Invalid state token", http.StatusBadRequest)
			return
		}
		clearStateCookie(w, p.ID)

		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "Missing authorization code", http.StatusBadRequest)
			return
		}

		redirectURL := p.OAuth.RedirectURL
		if redirectURL == "" {
			redirectURL = callbackURL(r, p.ID)
		}
		res, err := Complete(r.Context(), db, p, p.AuthConfig(redirectURL, true), code, timeout)
		if err != nil {
			log.Error("❌ Authorization failed", "provider", p.ID, "err", err)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		resultPage(w, res)
	}
}
