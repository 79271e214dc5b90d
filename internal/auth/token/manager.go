// Package token owns stored OAuth credentials: it opens authenticated remote
// sessions and is the only writer of refreshed tokens.
package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pysugar/workspace-mirror/internal/db/models"
	"github.com/pysugar/workspace-mirror/internal/providers"
	"github.com/pysugar/workspace-mirror/internal/remote"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

var (
	// ErrCredentialsExpired means the token could not be refreshed; the user
	// must authorize the provider again.
	ErrCredentialsExpired = errors.New("credentials expired")
	// ErrNoCredential means the user never authorized the provider.
	ErrNoCredential = errors.New("no credential for provider")
)

const (
	// expirySkew treats a token expiring this soon as already expired.
	expirySkew = time.Minute
	// refreshAhead is the proactive refresh window of the background loop.
	refreshAhead = 20 * time.Minute
	// defaultTimeout applies when NewManager is given no timeout.
	defaultTimeout = 30 * time.Second
)

// Manager opens sessions over stored credentials and coordinates refreshes.
type Manager struct {
	db        *gorm.DB
	providers *providers.Registry
	timeout   time.Duration

	// base is the transport under the OAuth transport; nil uses the default.
	base http.RoundTripper
	// flights collapses concurrent refreshes of one credential.
	flights singleflight.Group
	now     func() time.Time
}

// NewManager creates a token manager. timeout bounds each remote call.
func NewManager(db *gorm.DB, registry *providers.Registry, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Manager{
		db:        db,
		providers: registry,
		timeout:   timeout,
		now:       time.Now,
	}
}

// SetTransport replaces the base transport used for remote API and token
// endpoint calls.
func (m *Manager) SetTransport(rt http.RoundTripper) {
	m.base = rt
}

// EndpointContext returns ctx carrying the HTTP client oauth2 uses for token
// endpoint calls, bounded by timeout. A nil base uses the default transport.
func EndpointContext(ctx context.Context, timeout time.Duration, base http.RoundTripper) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: timeout, Transport: base})
}

// Open returns a session for the user's credential on provider. An expired
// token is refreshed before the session is handed out.
func (m *Manager) Open(ctx context.Context, userID, provider string) (remote.Session, error) {
	p, ok := m.providers.Get(provider)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}

	var cred models.Credential
	err := m.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, p.ID).
		First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %s, provider %s", ErrNoCredential, userID, p.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}

	s := &session{manager: m, provider: p}
	s.bind(&cred)
	if m.expired(&cred) {
		if err := s.refresh(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (m *Manager) expired(cred *models.Credential) bool {
	return !cred.Expiry.IsZero() && cred.Expiry.Before(m.now().Add(expirySkew))
}

// refresh exchanges the stored refresh token for a new access token and
// persists the result. staleAccess is the access token the caller saw fail;
// when the stored token already differs and is still valid, another caller
// refreshed first and that token is reused.
func (m *Manager) refresh(ctx context.Context, p *providers.Provider, credID, staleAccess string) (*models.Credential, error) {
	v, err, shared := m.flights.Do(credID, func() (any, error) {
		var cred models.Credential
		if err := m.db.WithContext(ctx).First(&cred, "id = ?", credID).Error; err != nil {
			return nil, fmt.Errorf("reload credential: %w", err)
		}
		if cred.AccessToken != staleAccess && !m.expired(&cred) {
			return &cred, nil
		}
		if cred.RefreshToken == "" {
			log.Warn("🔒 No refresh token stored, re-authorization required", "provider", p.ID, "user", cred.UserID)
			return nil, fmt.Errorf("%w: %s credential has no refresh token", ErrCredentialsExpired, p.ID)
		}

		endpointCtx := EndpointContext(ctx, m.timeout, m.base)
		tok, err := p.OAuth.TokenSource(endpointCtx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
		if err != nil {
			if isPermanentRefreshError(err) {
				log.Error("🔒 Refresh token rejected, re-authorization required", "provider", p.ID, "user", cred.UserID, "err", err)
			} else {
				log.Warn("⏳ Transient refresh failure", "provider", p.ID, "user", cred.UserID, "err", err)
			}
			return nil, fmt.Errorf("%w: refresh %s token: %v", ErrCredentialsExpired, p.ID, err)
		}

		applyToken(&cred, tok)
		cred.RefreshedAt = m.now()
		if err := m.db.WithContext(ctx).Save(&cred).Error; err != nil {
			return nil, fmt.Errorf("save refreshed credential: %w", err)
		}
		log.Info("✅ Refreshed token", "provider", p.ID, "user", cred.UserID, "expires", cred.Expiry.Format(time.RFC3339))
		return &cred, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug("🔁 Joined in-flight refresh", "provider", p.ID, "credential", credID)
	}
	return v.(*models.Credential), nil
}

// applyToken copies a token response onto a credential. A refresh response
// that omits the refresh token keeps the stored one.
func applyToken(cred *models.Credential, tok *oauth2.Token) {
	cred.AccessToken = tok.AccessToken
	cred.Expiry = tok.Expiry
	if tok.TokenType != "" {
		cred.TokenType = tok.TokenType
	}
	if tok.RefreshToken != "" && tok.RefreshToken != cred.RefreshToken {
		if cred.RefreshToken != "" {
			log.Info("🔄 Rotating refresh token", "provider", cred.Provider, "user", cred.UserID)
		}
		cred.RefreshToken = tok.RefreshToken
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		cred.Scope = scope
	}
}

// StartRefreshLoop refreshes credentials nearing expiry every interval until
// ctx is cancelled.
func (m *Manager) StartRefreshLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.RefreshExpiring(ctx)
			}
		}
	}()
	log.Info("🔄 Token refresh loop started", "interval", interval)
}

// RefreshExpiring refreshes every credential expiring within the refresh
// window and returns how many were refreshed.
func (m *Manager) RefreshExpiring(ctx context.Context) int {
	var creds []models.Credential
	threshold := m.now().Add(refreshAhead)
	if err := m.db.WithContext(ctx).
		Where("expiry < ? AND refresh_token <> ''", threshold).
		Find(&creds).Error; err != nil {
		log.Error("⚠️ Failed to list expiring credentials", "err", err)
		return 0
	}

	refreshed := 0
	for _, cred := range creds {
		p, ok := m.providers.Get(cred.Provider)
		if !ok {
			continue
		}
		if _, err := m.refresh(ctx, p, cred.ID, cred.AccessToken); err == nil {
			refreshed++
		}
	}
	return refreshed
}

func isPermanentRefreshError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	permanentMarkers := []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"token has been expired or revoked",
		"revoked",
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
