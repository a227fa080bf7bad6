package config

import (
	"strings"
	"time"
)

const (
	defaultAuthURL  = "https://auth.monzo.com/"
	defaultTokenURL = "https://api.monzo.com/oauth2/token"

	// CallbackPath is appended to CLIENT_HOST to build the redirect URI
	CallbackPath = "/callback"
)

type OAuthConfig interface {
	GetClientID() string
	GetClientSecret() string
	GetClientHost() string
	GetRedirectURL() string
	GetAuthURL() string
	GetTokenURL() string
	GetOIDCIssuer() string
	GetScopes() []string
	GetRefreshMargin() time.Duration
	GetStateTTL() time.Duration
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetClientID() string {
	return GetEnv("CLIENT_ID", "")
}

func (OAuth) GetClientSecret() string {
	return GetEnv("CLIENT_SECRET", "")
}

// GetClientHost returns the public base URL of this dashboard, e.g. "https://dash.example.com"
func (OAuth) GetClientHost() string {
	return strings.TrimRight(GetEnv("CLIENT_HOST", "http://localhost:8080"), "/")
}

func (o OAuth) GetRedirectURL() string {
	return o.GetClientHost() + CallbackPath
}

func (OAuth) GetAuthURL() string {
	return GetEnv("AUTH_URL", defaultAuthURL)
}

func (OAuth) GetTokenURL() string {
	return GetEnv("TOKEN_URL", defaultTokenURL)
}

// GetOIDCIssuer enables endpoint discovery when set. Monzo does not publish a discovery document.
func (OAuth) GetOIDCIssuer() string {
	return GetEnv("OIDC_ISSUER", "")
}

func (OAuth) GetScopes() []string {
	return strings.Fields(strings.ReplaceAll(GetEnv("OAUTH_SCOPES", ""), ",", " "))
}

func (OAuth) GetRefreshMargin() time.Duration {
	return GetEnvDuration("REFRESH_MARGIN", 60*time.Second)
}

func (OAuth) GetStateTTL() time.Duration {
	return GetEnvDuration("STATE_TTL", 15*time.Minute)
}
