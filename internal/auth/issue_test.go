package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/pysugar/workspace-mirror/internal/config"
	mirrordb "github.com/pysugar/workspace-mirror/internal/db"
	"github.com/pysugar/workspace-mirror/internal/providers"
)

func TestComplete_TokenExchangeIsBoundedByTimeout(t *testing.T) {
	db, err := mirrordb.InitDB(filepath.Join(t.TempDir(), "issue.db"), "info")
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(tokenSrv.Close)

	registry := providers.NewRegistry(&config.Config{Providers: []config.ProviderConfig{{
		ID:       "google",
		ClientID: "client-id",
		TokenURL: tokenSrv.URL,
	}}})
	p, _ := registry.Get("google")

	start := time.Now()
	_, err = Complete(context.Background(), db, p, p.AuthConfig("http://mirror.test/auth/google/callback", false), "good-code", 100*time.Millisecond)
	if err == nil {
		t.Fatal("expected the exchange to time out")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("exchange was not bounded by the timeout, took %v", elapsed)
	}
}
