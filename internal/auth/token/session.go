package token

import (
	"context"
	"fmt"
	"net/http"
	gosync "sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/pysugar/workspace-mirror/internal/db/models"
	"github.com/pysugar/workspace-mirror/internal/logging"
	"github.com/pysugar/workspace-mirror/internal/providers"
	"github.com/pysugar/workspace-mirror/internal/remote"
	"golang.org/x/oauth2"
)

// session is an authenticated handle on one credential.
type session struct {
	manager  *Manager
	provider *providers.Provider

	mu     gosync.Mutex
	credID string
	userID string
	token  *oauth2.Token
	client remote.Client
}

func (s *session) UserID() string   { return s.userID }
func (s *session) Provider() string { return s.provider.ID }

// bind installs the credential's token and rebuilds the remote client.
func (s *session) bind(cred *models.Credential) {
	tok := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		TokenType:    cred.TokenType,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.Expiry,
	}
	httpClient := &http.Client{
		Timeout: s.manager.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(tok),
			Base:   s.manager.base,
		},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.credID = cred.ID
	s.userID = cred.UserID
	s.token = tok
	s.client = s.provider.NewClient(httpClient)
}

func (s *session) current() (remote.Client, *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client, s.token
}

func (s *session) refresh(ctx context.Context) error {
	_, tok := s.current()
	cred, err := s.manager.refresh(ctx, s.provider, s.credID, tok.AccessToken)
	if err != nil {
		return err
	}
	s.bind(cred)
	return nil
}

// Do runs fn with the session's client. An expired token is refreshed first.
// An auth-shaped or timed-out call triggers one refresh and exactly one retry;
// if the retry is still rejected the credentials are reported expired.
func (s *session) Do(ctx context.Context, operation string, fn func(ctx context.Context, c remote.Client) error) error {
	logger := logging.FromContext(ctx)
	retried := false

	attempt := func() error {
		client, tok := s.current()
		if !tok.Expiry.IsZero() && tok.Expiry.Before(s.manager.now().Add(expirySkew)) {
			if err := s.refresh(ctx); err != nil {
				return backoff.Permanent(err)
			}
			client, _ = s.current()
		}

		err := fn(ctx, client)
		if err == nil {
			return nil
		}
		if retried || !(remote.IsAuthFailure(err) || remote.IsTimeout(err)) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}

		retried = true
		logger.Warn("🔁 Remote call rejected, refreshing credential", "provider", s.provider.ID, "operation", operation, "err", err)
		if rerr := s.refresh(ctx); rerr != nil {
			return backoff.Permanent(rerr)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 1), ctx)
	err := backoff.Retry(attempt, policy)
	if err != nil && remote.IsAuthFailure(err) {
		return fmt.Errorf("%w: %s %s: %v", ErrCredentialsExpired, s.provider.ID, operation, err)
	}
	return err
}
