package mock

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"
)

// OAuthProviderConfig configures the mock OAuth provider.
type OAuthProviderConfig struct {
	// ClientID is the expected client_id (default "test-client").
	ClientID string

	// ClientSecret, when set, must accompany every token request.
	ClientSecret string

	// Scope is echoed back in token responses.
	Scope string

	// TokenLifetime sets expires_in. Zero omits it.
	TokenLifetime time.Duration

	// IssueRefreshTokens adds a refresh_token to code exchanges.
	IssueRefreshTokens bool

	// AccessToken, when set, is returned instead of a random access token
	// for code exchanges.
	AccessToken string

	// RequirePKCE rejects authorization codes issued without a challenge.
	RequirePKCE bool
}

type authCodeEntry struct {
	clientID      string
	redirectURI   string
	codeChallenge string
	method        string
}

type issuedToken struct {
	accessToken  string
	refreshToken string
}

// OAuthProvider is an in-process OAuth 2.1 authorization server with
// authorize, token, revoke and RFC 8414 metadata endpoints.
type OAuthProvider struct {
	config OAuthProviderConfig
	server *httptest.Server

	mu            sync.Mutex
	codes         map[string]*authCodeEntry
	refreshTokens map[string]*issuedToken
	revoked       []string
	tokenRequests int
	tokenFailure  *providerFailure
	revokeFailure bool
}

type providerFailure struct {
	status int
	code   string
}

// NewOAuthProvider starts a provider that is closed when the test ends.
func NewOAuthProvider(t testing.TB, config OAuthProviderConfig) *OAuthProvider {
	t.Helper()
	if config.ClientID == "" {
		config.ClientID = "test-client"
	}

	p := &OAuthProvider{
		config:        config,
		codes:         make(map[string]*authCodeEntry),
		refreshTokens: make(map[string]*issuedToken),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", p.handleMetadata)
	mux.HandleFunc("/authorize", p.handleAuthorize)
	mux.HandleFunc("/token", p.handleToken)
	mux.HandleFunc("/revoke", p.handleRevoke)
	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)

	return p
}

// URL is the issuer URL.
func (p *OAuthProvider) URL() string { return p.server.URL }

// AuthorizeURL is the authorization endpoint.
func (p *OAuthProvider) AuthorizeURL() string { return p.server.URL + "/authorize" }

// TokenURL is the token endpoint.
func (p *OAuthProvider) TokenURL() string { return p.server.URL + "/token" }

// RevokeURL is the revocation endpoint.
func (p *OAuthProvider) RevokeURL() string { return p.server.URL + "/revoke" }

// HTTPClient returns a client that trusts the provider.
func (p *OAuthProvider) HTTPClient() *http.Client { return p.server.Client() }

// Approve simulates the user consenting on the page behind authURL and
// returns the authorization code the provider would redirect back with.
func (p *OAuthProvider) Approve(authURL string) (string, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", err
	}
	code, _, err := p.approve(u.Query())
	return code, err
}

// RegisterCode makes code redeemable as if it had been issued for the given
// challenge and redirect URI.
func (p *OAuthProvider) RegisterCode(code, codeChallenge, redirectURI string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.codes[code] = &authCodeEntry{
		clientID:      p.config.ClientID,
		redirectURI:   redirectURI,
		codeChallenge: codeChallenge,
		method:        "S256",
	}
}

// FailTokenRequests makes every following token request fail with status
// and the RFC 6749 error code. A zero status restores normal behaviour.
func (p *OAuthProvider) FailTokenRequests(status int, code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if status == 0 {
		p.tokenFailure = nil
		return
	}
	p.tokenFailure = &providerFailure{status: status, code: code}
}

// FailRevocation makes the revocation endpoint answer 503.
func (p *OAuthProvider) FailRevocation(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revokeFailure = fail
}

// Revoked returns the tokens revoked so far.
func (p *OAuthProvider) Revoked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.revoked...)
}

// TokenRequests returns how many token requests were received.
func (p *OAuthProvider) TokenRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenRequests
}

func (p *OAuthProvider) approve(q url.Values) (code, redirectURI string, err error) {
	if q.Get("response_type") != "code" {
		return "", "", fmt.Errorf("unsupported response_type %q", q.Get("response_type"))
	}
	if q.Get("client_id") != p.config.ClientID {
		return "", "", fmt.Errorf("unknown client_id %q", q.Get("client_id"))
	}
	challenge := q.Get("code_challenge")
	method := q.Get("code_challenge_method")
	if p.config.RequirePKCE && challenge == "" {
		return "", "", fmt.Errorf("code_challenge required")
	}
	if challenge != "" && method != "S256" {
		return "", "", fmt.Errorf("unsupported code_challenge_method %q", method)
	}

	code = generateOpaqueToken()
	p.mu.Lock()
	p.codes[code] = &authCodeEntry{
		clientID:      q.Get("client_id"),
		redirectURI:   q.Get("redirect_uri"),
		codeChallenge: challenge,
		method:        method,
	}
	p.mu.Unlock()
	return code, q.Get("redirect_uri"), nil
}

func (p *OAuthProvider) handleMetadata(w http.ResponseWriter, _ *http.Request) {
	writeProviderJSON(w, http.StatusOK, map[string]any{
		"issuer":                           p.server.URL,
		"authorization_endpoint":           p.AuthorizeURL(),
		"token_endpoint":                   p.TokenURL(),
		"revocation_endpoint":              p.RevokeURL(),
		"code_challenge_methods_supported": []string{"S256"},
	})
}

func (p *OAuthProvider) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code, redirectURI, err := p.approve(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	target, err := url.Parse(redirectURI)
	if err != nil {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}
	tq := target.Query()
	tq.Set("code", code)
	tq.Set("state", q.Get("state"))
	target.RawQuery = tq.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (p *OAuthProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		tokenError(w, http.StatusBadRequest, "invalid_request", "malformed form")
		return
	}

	p.mu.Lock()
	p.tokenRequests++
	failure := p.tokenFailure
	p.mu.Unlock()

	if failure != nil {
		tokenError(w, failure.status, failure.code, "simulated failure")
		return
	}
	if r.PostForm.Get("client_id") != p.config.ClientID ||
		(p.config.ClientSecret != "" && r.PostForm.Get("client_secret") != p.config.ClientSecret) {
		tokenError(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		p.handleAuthCodeExchange(w, r)
	case "refresh_token":
		p.handleRefreshToken(w, r)
	default:
		tokenError(w, http.StatusBadRequest, "unsupported_grant_type", r.PostForm.Get("grant_type"))
	}
}

func (p *OAuthProvider) handleAuthCodeExchange(w http.ResponseWriter, r *http.Request) {
	code := r.PostForm.Get("code")

	p.mu.Lock()
	entry, exists := p.codes[code]
	delete(p.codes, code)
	p.mu.Unlock()

	if !exists {
		tokenError(w, http.StatusBadRequest, "invalid_grant", "authorization code not found or already used")
		return
	}
	if entry.redirectURI != "" && entry.redirectURI != r.PostForm.Get("redirect_uri") {
		tokenError(w, http.StatusBadRequest, "invalid_grant", "redirect_uri mismatch")
		return
	}
	if entry.codeChallenge != "" && !verifyPKCE(entry.codeChallenge, r.PostForm.Get("code_verifier")) {
		tokenError(w, http.StatusBadRequest, "invalid_grant", "code_verifier verification failed")
		return
	}

	access := p.config.AccessToken
	if access == "" {
		access = generateOpaqueToken()
	}
	resp := map[string]any{
		"access_token": access,
		"token_type":   "Bearer",
	}
	if p.config.IssueRefreshTokens {
		refresh := generateOpaqueToken()
		p.mu.Lock()
		p.refreshTokens[refresh] = &issuedToken{accessToken: access, refreshToken: refresh}
		p.mu.Unlock()
		resp["refresh_token"] = refresh
	}
	p.decorate(resp)
	writeProviderJSON(w, http.StatusOK, resp)
}

func (p *OAuthProvider) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	refresh := r.PostForm.Get("refresh_token")

	p.mu.Lock()
	_, ok := p.refreshTokens[refresh]
	if ok {
		delete(p.refreshTokens, refresh)
	}
	newAccess := generateOpaqueToken()
	newRefresh := generateOpaqueToken()
	if ok {
		p.refreshTokens[newRefresh] = &issuedToken{accessToken: newAccess, refreshToken: newRefresh}
	}
	p.mu.Unlock()

	if !ok {
		tokenError(w, http.StatusBadRequest, "invalid_grant", "refresh token not found")
		return
	}

	resp := map[string]any{
		"access_token":  newAccess,
		"refresh_token": newRefresh,
		"token_type":    "Bearer",
	}
	p.decorate(resp)
	writeProviderJSON(w, http.StatusOK, resp)
}

func (p *OAuthProvider) decorate(resp map[string]any) {
	if p.config.TokenLifetime > 0 {
		resp["expires_in"] = int(p.config.TokenLifetime.Seconds())
	}
	if p.config.Scope != "" {
		resp["scope"] = p.config.Scope
	}
}

func (p *OAuthProvider) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.revokeFailure {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	token := r.PostForm.Get("token")
	p.revoked = append(p.revoked, token)
	delete(p.refreshTokens, token)
	w.WriteHeader(http.StatusOK)
}

func verifyPKCE(challenge, verifier string) bool {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:]) == challenge
}

func tokenError(w http.ResponseWriter, status int, code, description string) {
	writeProviderJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func writeProviderJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// generateOpaqueToken panics if the random source fails; this is test code.
func generateOpaqueToken() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("mock: failed to generate token: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
