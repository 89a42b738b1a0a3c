// Package federated covers third-party login: building the provider
// authorization URL handed to the user agent, and decoding the completion
// payload the backend posts back. The code exchange itself happens
// server-side; the client never holds provider secrets.
package federated

import (
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// Provider is a federated login provider the backend supports.
type Provider struct {
	name   string
	config *oauth2.Config
}

// NewProvider creates a provider from an oauth2 endpoint.
func NewProvider(name, clientID, redirectURL string, endpoint oauth2.Endpoint, scopes []string) (*Provider, error) {
	if name == "" {
		return nil, errors.New("[NewProvider] name is required")
	}
	if clientID == "" {
		return nil, errors.New("[NewProvider] clientID is required")
	}
	return &Provider{
		name: name,
		config: &oauth2.Config{
			ClientID:    clientID,
			RedirectURL: redirectURL,
			Endpoint:    endpoint,
			Scopes:      scopes,
		},
	}, nil
}

// Google creates the Google login provider.
func Google(clientID, redirectURL string) (*Provider, error) {
	return NewProvider("google", clientID, redirectURL, endpoints.Google, []string{"openid", "email", "profile"})
}

// GitHub creates the GitHub login provider.
func GitHub(clientID, redirectURL string) (*Provider, error) {
	return NewProvider("github", clientID, redirectURL, endpoints.GitHub, []string{"read:user", "user:email"})
}

func (p *Provider) Name() string {
	return p.name
}

// AuthURL builds the provider authorization URL for the given CSRF state.
func (p *Provider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}
