package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-bank-dashboard/internal/config"
	"golang.org/x/oauth2"
)

// Provider talks to the banking provider's authorize and token endpoints
type Provider struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewProvider builds the OAuth2 client configuration. When an OIDC issuer is configured the
// endpoints come from its discovery document, otherwise from the static AUTH_URL / TOKEN_URL.
func NewProvider(ctx context.Context, cfg config.OAuthConfig, httpClient *http.Client) (*Provider, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	endpoint := oauth2.Endpoint{
		AuthURL:  cfg.GetAuthURL(),
		TokenURL: cfg.GetTokenURL(),
	}
	if issuer := cfg.GetOIDCIssuer(); issuer != "" {
		provider, err := oidc.NewProvider(oidc.ClientContext(ctx, httpClient), issuer)
		if err != nil {
			return nil, fmt.Errorf("[auth NewProvider] failed to discover OIDC provider: %w", err)
		}
		endpoint = provider.Endpoint()
	}
	// The token endpoint expects client_id and client_secret in the POST body
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	return &Provider{
		config: &oauth2.Config{
			ClientID:     cfg.GetClientID(),
			ClientSecret: cfg.GetClientSecret(),
			Endpoint:     endpoint,
			RedirectURL:  cfg.GetRedirectURL(),
			Scopes:       cfg.GetScopes(),
		},
		httpClient: httpClient,
	}, nil
}

// AuthCodeURL returns the authorize endpoint URL for the given state nonce
func (p *Provider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for tokens (grant_type=authorization_code)
func (p *Provider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.config.Exchange(p.clientContext(ctx), code)
}

// Refresh obtains a new access token (grant_type=refresh_token)
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	return p.config.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}
