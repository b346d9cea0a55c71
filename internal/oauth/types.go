package oauth

import (
	"fmt"
	"net/url"
	"slices"
	"time"

	pkgoauth "integrate/pkg/oauth"
)

// ProviderConfig describes one upstream OAuth provider. It is loaded once at
// startup and never mutated; the Manager keeps its own copy.
type ProviderConfig struct {
	// ID is the provider key used in requests, e.g. "github".
	ID string `json:"id"`

	AuthorizationEndpoint string `json:"authorizationEndpoint,omitempty"`
	TokenEndpoint         string `json:"tokenEndpoint,omitempty"`

	// RevocationEndpoint enables best-effort upstream revocation on disconnect.
	RevocationEndpoint string `json:"revocationEndpoint,omitempty"`

	// Issuer is used to discover endpoints that are not configured explicitly.
	Issuer string `json:"issuer,omitempty"`

	ClientID string `json:"clientId"`

	// ClientSecret never leaves the server.
	ClientSecret Secret `json:"-"`

	// Scopes are the scopes requested from the provider, in order.
	Scopes []string `json:"scopes,omitempty"`

	RedirectURI string `json:"redirectUri"`

	// AuthParams are extra static query parameters for the authorization URL.
	AuthParams map[string]string `json:"authParams,omitempty"`
}

// Validate checks that the configuration is usable.
func (p ProviderConfig) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("provider id is required")
	}
	if p.ClientID == "" {
		return fmt.Errorf("provider %s: clientId is required", p.ID)
	}
	if p.RedirectURI == "" {
		return fmt.Errorf("provider %s: redirectUri is required", p.ID)
	}
	if p.Issuer == "" && (p.AuthorizationEndpoint == "" || p.TokenEndpoint == "") {
		return fmt.Errorf("provider %s: authorizationEndpoint and tokenEndpoint are required when no issuer is set", p.ID)
	}
	for name, raw := range map[string]string{
		"authorizationEndpoint": p.AuthorizationEndpoint,
		"tokenEndpoint":         p.TokenEndpoint,
		"revocationEndpoint":    p.RevocationEndpoint,
		"issuer":                p.Issuer,
		"redirectUri":           p.RedirectURI,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("provider %s: %s %q is not an absolute URL", p.ID, name, raw)
		}
	}
	return nil
}

// Public returns a copy without the client secret, safe to hand to callers.
func (p ProviderConfig) Public() ProviderConfig {
	c := p.clone()
	c.ClientSecret = Secret{}
	return c
}

func (p ProviderConfig) clone() ProviderConfig {
	c := p
	c.Scopes = slices.Clone(p.Scopes)
	if p.AuthParams != nil {
		c.AuthParams = make(map[string]string, len(p.AuthParams))
		for k, v := range p.AuthParams {
			c.AuthParams[k] = v
		}
	}
	return c
}

func (p ProviderConfig) endpoint() pkgoauth.Endpoint {
	return pkgoauth.Endpoint{
		AuthorizationURL: p.AuthorizationEndpoint,
		TokenURL:         p.TokenEndpoint,
		RevocationURL:    p.RevocationEndpoint,
		ClientID:         p.ClientID,
		ClientSecret:     p.ClientSecret.Value(),
		RedirectURI:      p.RedirectURI,
		Scopes:           p.Scopes,
	}
}

// PendingAuthorization is created by HandleAuthorize and consumed exactly
// once by HandleCallback with the same state.
type PendingAuthorization struct {
	Provider string `json:"provider"`
	State    string `json:"state"`

	// CodeVerifier stays server-side.
	CodeVerifier  string `json:"codeVerifier"`
	CodeChallenge string `json:"codeChallenge"`

	Scopes      []string  `json:"scopes,omitempty"`
	RedirectURI string    `json:"redirectUri"`
	ReturnURL   string    `json:"returnUrl,omitempty"`
	InitiatedAt time.Time `json:"initiatedAt"`
}

// Session is the record behind an opaque session token.
type Session struct {
	Token        string    `json:"token"`
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	TokenType    string    `json:"tokenType,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Expired reports whether the access token is expired, or will be within
// margin, at the given time. Sessions without an expiry never expire.
func (s *Session) Expired(now time.Time, margin time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return now.Add(margin).After(s.ExpiresAt)
}

// Refreshable reports whether the session carries a refresh token.
func (s *Session) Refreshable() bool {
	return s.RefreshToken != ""
}

func (s *Session) clone() *Session {
	c := *s
	c.Scopes = slices.Clone(s.Scopes)
	return &c
}

// AuthorizeRequest is the input of HandleAuthorize.
//
// Scopes, CodeChallenge, CodeChallengeMethod and State are accepted for
// compatibility with existing callers but never override server-side values.
type AuthorizeRequest struct {
	Provider            string   `json:"provider"`
	Scopes              []string `json:"scopes,omitempty"`
	RedirectURI         string   `json:"redirectUri,omitempty"`
	ReturnURL           string   `json:"returnUrl,omitempty"`
	CodeChallenge       string   `json:"codeChallenge,omitempty"`
	CodeChallengeMethod string   `json:"codeChallengeMethod,omitempty"`
	State               string   `json:"state,omitempty"`
}

// AuthorizeResponse carries the URL the user must visit.
type AuthorizeResponse struct {
	AuthorizationURL string `json:"authorizationUrl"`
	State            string `json:"state"`
}

// CallbackRequest is the input of HandleCallback.
type CallbackRequest struct {
	Provider string `json:"provider"`
	Code     string `json:"code"`
	State    string `json:"state"`
}

// CallbackResponse is returned once a session has been issued.
type CallbackResponse struct {
	SessionToken string     `json:"sessionToken"`
	Provider     string     `json:"provider"`
	Scopes       []string   `json:"scopes,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	ReturnURL    string     `json:"returnUrl,omitempty"`
}

// StatusResponse reports whether a session authorizes a provider.
type StatusResponse struct {
	Authorized bool       `json:"authorized"`
	Provider   string     `json:"provider"`
	Scopes     []string   `json:"scopes,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

// DisconnectRequest is the input of HandleDisconnect.
type DisconnectRequest struct {
	Provider string `json:"provider"`
}

// DisconnectResponse is always {success: true} for a valid request.
type DisconnectResponse struct {
	Success bool `json:"success"`
}

func expiryPtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
