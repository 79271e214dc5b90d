package providers

import (
	"net/http"

	"github.com/pysugar/workspace-mirror/internal/config"
	"github.com/pysugar/workspace-mirror/internal/remote"
	"github.com/pysugar/workspace-mirror/internal/remote/asana"
	"golang.org/x/oauth2"
)

// AsanaEndpoint is Asana's OAuth endpoint.
var AsanaEndpoint = oauth2.Endpoint{
	AuthURL:   "https://app.asana.com/-/oauth_authorize",
	TokenURL:  "https://app.asana.com/-/oauth_token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// AsanaScopes is the legacy full-permission scope.
var AsanaScopes = []string{"default"}

func newAsana(pc config.ProviderConfig) *Provider {
	baseURL, workspace := pc.BaseURL, pc.Workspace
	return &Provider{
		ID: remote.ProviderAsana,
		OAuth: &oauth2.Config{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			RedirectURL:  pc.RedirectURL,
			Scopes:       scopesOr(pc.Scopes, AsanaScopes),
			Endpoint:     endpoint(AsanaEndpoint, pc),
		},
		BaseScopes: scopesOr(pc.BaseScopes, nil),
		newClient: func(httpClient *http.Client) remote.Client {
			return asana.NewClient(httpClient, baseURL, workspace)
		},
	}
}
