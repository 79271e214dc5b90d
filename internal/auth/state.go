// Package auth runs the OAuth authorization-code flow for each provider and
// hands the issued credential to the token store.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
)

const stateTTL = 10 * time.Minute

func stateCookieName(provider string) string {
	return "mirror_oauth_state_" + provider
}

// newState returns a random CSRF state token.
func newState() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func setStateCookie(w http.ResponseWriter, r *http.Request, provider, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName(provider),
		Value:    state,
		Path:     "/auth/" + provider,
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   isHTTPS(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func clearStateCookie(w http.ResponseWriter, provider string) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName(provider),
		Value:    "",
		Path:     "/auth/" + provider,
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// checkState compares the callback state against the login cookie.
func checkState(r *http.Request, provider string) bool {
	got := r.URL.Query().Get("state")
	c, err := r.Cookie(stateCookieName(provider))
	if err != nil || got == "" || c.Value == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(c.Value)) == 1
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}

// callbackURL derives the redirect URL from the incoming request.
func callbackURL(r *http.Request, provider string) string {
	scheme := "http"
	if isHTTPS(r) {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/auth/%s/callback", scheme, r.Host, provider)
}
