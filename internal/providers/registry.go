// Package providers binds each configured OAuth provider to its oauth2.Config
// and remote client constructor.
package providers

import (
	"net/http"
	"sort"
	"strings"

	"github.com/pysugar/workspace-mirror/internal/config"
	"github.com/pysugar/workspace-mirror/internal/remote"
	"golang.org/x/oauth2"
)

// Provider is a configured remote platform.
type Provider struct {
	ID string
	// OAuth requests the full scope set. BaseScopes is the narrower
	// identity-only set used for the first login.
	OAuth       *oauth2.Config
	BaseScopes  []string
	AuthOptions []oauth2.AuthCodeOption

	newClient func(httpClient *http.Client) remote.Client
}

// NewClient binds a remote client to an authenticated http client.
func (p *Provider) NewClient(httpClient *http.Client) remote.Client {
	return p.newClient(httpClient)
}

// AuthConfig returns a copy of the OAuth config for a redirect URL. full selects
// the complete scope set; otherwise only BaseScopes are requested.
func (p *Provider) AuthConfig(redirectURL string, full bool) *oauth2.Config {
	cfg := *p.OAuth
	if redirectURL != "" {
		cfg.RedirectURL = redirectURL
	}
	if !full && len(p.BaseScopes) > 0 {
		cfg.Scopes = append([]string(nil), p.BaseScopes...)
	} else {
		cfg.Scopes = append([]string(nil), p.OAuth.Scopes...)
	}
	return &cfg
}

// Registry holds enabled providers by ID.
type Registry struct {
	byID map[string]*Provider
}

// NewRegistry builds providers from configuration. Unknown IDs and disabled
// entries are skipped.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{byID: make(map[string]*Provider)}
	for _, pc := range cfg.Providers {
		if !pc.IsEnabled() {
			continue
		}
		var p *Provider
		switch pc.ID {
		case remote.ProviderGoogle:
			p = newGoogle(pc)
		case remote.ProviderAsana:
			p = newAsana(pc)
		default:
			continue
		}
		r.byID[p.ID] = p
	}
	return r
}

// Register adds or replaces a provider. Used by tests to plug fakes in.
func (r *Registry) Register(p *Provider, newClient func(*http.Client) remote.Client) {
	if newClient != nil {
		p.newClient = newClient
	}
	r.byID[p.ID] = p
}

// Get returns a provider by ID.
func (r *Registry) Get(id string) (*Provider, bool) {
	p, ok := r.byID[strings.ToLower(strings.TrimSpace(id))]
	return p, ok
}

// IDs returns enabled provider IDs in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func endpoint(base oauth2.Endpoint, pc config.ProviderConfig) oauth2.Endpoint {
	if pc.AuthURL != "" {
		base.AuthURL = pc.AuthURL
	}
	if pc.TokenURL != "" {
		base.TokenURL = pc.TokenURL
	}
	return base
}

func scopesOr(configured, defaults []string) []string {
	if len(configured) > 0 {
		return append([]string(nil), configured...)
	}
	return append([]string(nil), defaults...)
}
