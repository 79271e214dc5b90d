package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	gosync "sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pysugar/workspace-mirror/internal/providers"
	"gorm.io/gorm"
)

// CallbackTimeout is how long the CLI waits for the browser to return.
const CallbackTimeout = 5 * time.Minute

// LocalFlow is an authorization flow whose callback lands on a temporary
// loopback server, used by the CLI.
type LocalFlow struct {
	AuthURL string
	Results <-chan Result
	cleanup func()
}

// Close stops the callback server.
func (f *LocalFlow) Close() { f.cleanup() }

// StartCallbackServer listens on a random loopback port and completes the
// flow for provider when the browser is redirected back.
func StartCallbackServer(db *gorm.DB, p *providers.Provider, full bool, timeout time.Duration) (*LocalFlow, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to start callback server: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	redirectURL := fmt.Sprintf("http://127.0.0.1:%d/oauth-callback", port)
	cfg := p.AuthConfig(redirectURL, full)
	state := newState()

	results := make(chan Result, 1)
	var once gosync.Once
	deliver := func(res Result) {
		once.Do(func() { results <- res })
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth-callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "Invalid state token", http.StatusBadRequest)
			deliver(Result{Provider: p.ID, Err: errors.New("invalid state token")})
			return
		}
		res, err := Complete(r.Context(), db, p, cfg, r.URL.Query().Get("code"), timeout)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			deliver(Result{Provider: p.ID, Err: err})
			return
		}
		resultPage(w, res)
		deliver(*res)
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("⚠️ Callback server error", "err", err)
		}
	}()
	log.Info("🔐 Callback server listening", "port", port, "provider", p.ID)

	timer := time.AfterFunc(CallbackTimeout, func() {
		deliver(Result{Provider: p.ID, Err: fmt.Errorf("authorization callback timeout after %v", CallbackTimeout)})
	})

	var stop gosync.Once
	cleanup := func() {
		stop.Do(func() {
			timer.Stop()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Warn("⚠️ Error shutting down callback server", "err", err)
			}
		})
	}

	return &LocalFlow{
		AuthURL: cfg.AuthCodeURL(state, p.AuthOptions...),
		Results: results,
		cleanup: cleanup,
	}, nil
}
