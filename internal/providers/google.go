package providers

import (
	"net/http"

	"github.com/pysugar/workspace-mirror/internal/config"
	"github.com/pysugar/workspace-mirror/internal/remote"
	"github.com/pysugar/workspace-mirror/internal/remote/drive"
	"golang.org/x/oauth2"
	googleOAuth "golang.org/x/oauth2/google"
)

// GoogleBaseScopes identify the user; GoogleScopes add Drive.
var (
	GoogleBaseScopes = []string{
		"https://www.googleapis.com/auth/userinfo.profile",
		"https://www.googleapis.com/auth/userinfo.email",
	}
	GoogleScopes = []string{
		"https://www.googleapis.com/auth/drive",
		"https://www.googleapis.com/auth/userinfo.profile",
		"https://www.googleapis.com/auth/userinfo.email",
	}
)

func newGoogle(pc config.ProviderConfig) *Provider {
	baseURL := pc.BaseURL
	return &Provider{
		ID: remote.ProviderGoogle,
		OAuth: &oauth2.Config{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			RedirectURL:  pc.RedirectURL,
			Scopes:       scopesOr(pc.Scopes, GoogleScopes),
			Endpoint:     endpoint(googleOAuth.Endpoint, pc),
		},
		BaseScopes: scopesOr(pc.BaseScopes, GoogleBaseScopes),
		AuthOptions: []oauth2.AuthCodeOption{
			oauth2.AccessTypeOffline,
			oauth2.SetAuthURLParam("include_granted_scopes", "true"),
		},
		newClient: func(httpClient *http.Client) remote.Client {
			return drive.NewClient(httpClient, baseURL)
		},
	}
}
