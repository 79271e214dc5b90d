package auth

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/pysugar/workspace-mirror/internal/auth/token"
	"github.com/pysugar/workspace-mirror/internal/db/models"
	"github.com/pysugar/workspace-mirror/internal/providers"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// Result is the outcome of a completed authorization.
type Result struct {
	Provider   string
	Email      string
	Credential *models.Credential
	// Discarded is set when no local user matches the remote email.
	Discarded bool
	Err       error
}

// Complete exchanges an authorization code, looks up the remote identity and
// stores the credential. timeout bounds the token exchange and the identity
// lookup.
func Complete(ctx context.Context, db *gorm.DB, p *providers.Provider, cfg *oauth2.Config, code string, timeout time.Duration) (*Result, error) {
	ctx = token.EndpointContext(ctx, timeout, nil)
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
	httpClient.Timeout = timeout
	identity, err := p.NewClient(httpClient).WhoAmI(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}

	cred, err := token.Persist(db, p.ID, token.Issued{
		Token:       tok,
		RemoteID:    identity.ID,
		RemoteEmail: identity.Email,
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		Provider:   p.ID,
		Email:      identity.Email,
		Credential: cred,
		Discarded:  cred == nil,
	}, nil
}

// resultPage renders the page shown in the browser after the callback.
func resultPage(w http.ResponseWriter, res *Result) {
	title, body := "✅ Authorization Successful", fmt.Sprintf("Credential for <strong>%s</strong> stored for provider <code>%s</code>.", html.EscapeString(res.Email), html.EscapeString(res.Provider))
	if res.Discarded {
		title, body = "⚠️ No Matching User", fmt.Sprintf("No local user has the email <strong>%s</strong>; the credential was discarded.", html.EscapeString(res.Email))
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<title>Workspace Mirror</title>
	<style>
		body { font-family: -apple-system, BlinkMacSystemFont, sans-serif; max-width: 600px; margin: 50px auto; padding: 20px; background: #1a1a2e; color: #eee; text-align: center; }
		code { background: #374151; padding: 2px 6px; border-radius: 4px; color: #fbbf24; }
	</style>
</head>
<body>
	<h1>%s</h1>
	<p>%s</p>
	<p>You can close this window.</p>
</body>
</html>`, title, body)
}
