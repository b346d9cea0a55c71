package oauth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"integrate/pkg/logging"
	pkgoauth "integrate/pkg/oauth"
)

// ErrSessionExpired is returned when a session's access token has expired
// and it carries no refresh token.
var ErrSessionExpired = errors.New("session expired")

// Action names, used for metrics and the HTTP adapter routes.
const (
	ActionAuthorize  = "authorize"
	ActionCallback   = "callback"
	ActionStatus     = "status"
	ActionDisconnect = "disconnect"
)

// Config holds everything a Manager needs. Only Providers is required.
type Config struct {
	Providers []ProviderConfig

	// Pending and Sessions default to in-memory stores owned by the Manager.
	Pending  PendingStore
	Sessions SessionStore

	// StateTTL bounds the time between authorize and callback.
	StateTTL time.Duration

	// ExpiryMargin treats tokens expiring within the margin as expired.
	ExpiryMargin time.Duration

	Client  *pkgoauth.Client
	Clock   Clock
	Metrics *Metrics
}

// Manager is the OAuth flow engine. It runs authorize, callback, status and
// disconnect against a fixed set of providers and never sees HTTP requests.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]ProviderConfig
	order     []string

	pending  PendingStore
	sessions SessionStore
	owned    []interface{ Stop() }

	client       *pkgoauth.Client
	clock        Clock
	metrics      *Metrics
	stateTTL     time.Duration
	expiryMargin time.Duration

	refreshGroup singleflight.Group
}

// NewManager validates the provider configuration and creates a Manager.
func NewManager(cfg Config) (*Manager, error) {
	m := &Manager{
		providers:    make(map[string]ProviderConfig, len(cfg.Providers)),
		pending:      cfg.Pending,
		sessions:     cfg.Sessions,
		client:       cfg.Client,
		clock:        cfg.Clock,
		metrics:      cfg.Metrics,
		stateTTL:     cfg.StateTTL,
		expiryMargin: cfg.ExpiryMargin,
	}
	if m.clock == nil {
		m.clock = realClock{}
	}
	if m.client == nil {
		m.client = pkgoauth.NewClient()
	}
	if m.stateTTL <= 0 {
		m.stateTTL = DefaultStateTTL
	}
	if m.expiryMargin < 0 {
		m.expiryMargin = 0
	}

	for _, p := range cfg.Providers {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := m.providers[p.ID]; dup {
			return nil, fmt.Errorf("duplicate provider %q", p.ID)
		}
		m.providers[p.ID] = p.clone()
		m.order = append(m.order, p.ID)
	}

	if m.pending == nil {
		ss := NewStateStore(m.clock)
		m.pending = ss
		m.owned = append(m.owned, ss)
	}
	if m.sessions == nil {
		ts := NewTokenStore(m.clock)
		m.sessions = ts
		m.owned = append(m.owned, ts)
	}

	logging.Info("OAuth", "OAuth manager initialized with %d provider(s)", len(m.order))
	return m, nil
}

// Stop releases the stores created by NewManager.
func (m *Manager) Stop() {
	if m == nil {
		return
	}
	for _, s := range m.owned {
		s.Stop()
	}
}

// Providers returns the configured providers in configuration order, without
// client secrets.
func (m *Manager) Providers() []ProviderConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ProviderConfig, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.providers[id].Public())
	}
	return out
}

// Provider returns the public configuration of one provider.
func (m *Manager) Provider(id string) (ProviderConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[id]
	if !ok {
		return ProviderConfig{}, false
	}
	return p.Public(), true
}

// provider returns the full provider configuration, discovering missing
// endpoints from the issuer on first use.
func (m *Manager) provider(ctx context.Context, id string) (ProviderConfig, error) {
	m.mu.RLock()
	p, ok := m.providers[id]
	m.mu.RUnlock()
	if !ok {
		return ProviderConfig{}, unknownProvider(id)
	}
	if p.AuthorizationEndpoint != "" && p.TokenEndpoint != "" {
		return p, nil
	}

	md, err := m.client.DiscoverMetadata(ctx, p.Issuer)
	if err != nil {
		return ProviderConfig{}, fmt.Errorf("provider %s: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p = m.providers[id]
	if p.AuthorizationEndpoint == "" {
		p.AuthorizationEndpoint = md.AuthorizationEndpoint
	}
	if p.TokenEndpoint == "" {
		p.TokenEndpoint = md.TokenEndpoint
	}
	if p.RevocationEndpoint == "" {
		p.RevocationEndpoint = md.RevocationEndpoint
	}
	if !md.SupportsPKCE() {
		logging.Warn("OAuth", "Provider %s does not advertise S256 PKCE support", id)
	}
	m.providers[id] = p
	logging.Info("OAuth", "Discovered endpoints for provider %s from %s", id, p.Issuer)
	return p, nil
}

// HandleAuthorize starts an authorization attempt and returns the provider
// URL the user must visit.
func (m *Manager) HandleAuthorize(ctx context.Context, req AuthorizeRequest) (resp *AuthorizeResponse, err error) {
	defer func() { m.metrics.recordAction(req.Provider, ActionAuthorize, err) }()

	if req.Provider == "" {
		return nil, invalidRequest("provider is required")
	}
	p, err := m.provider(ctx, req.Provider)
	if err != nil {
		return nil, err
	}
	if req.RedirectURI != "" && req.RedirectURI != p.RedirectURI {
		return nil, invalidRequest("redirectUri does not match the configured redirect URI")
	}
	if len(req.Scopes) > 0 {
		logging.Debug("OAuth", "Ignoring caller scopes %v for provider %s, using configured scopes", req.Scopes, p.ID)
	}
	if req.CodeChallenge != "" || req.State != "" {
		logging.Debug("OAuth", "Ignoring caller-supplied PKCE challenge/state for provider %s", p.ID)
	}

	state, err := pkgoauth.GenerateStateWithReturnURL(req.ReturnURL)
	if err != nil {
		return nil, err
	}
	pkce := pkgoauth.GeneratePKCE()

	pending := &PendingAuthorization{
		Provider:      p.ID,
		State:         state,
		CodeVerifier:  pkce.CodeVerifier,
		CodeChallenge: pkce.CodeChallenge,
		Scopes:        p.Scopes,
		RedirectURI:   p.RedirectURI,
		ReturnURL:     req.ReturnURL,
		InitiatedAt:   m.clock.Now(),
	}
	if err := m.pending.PutPending(ctx, pending, m.stateTTL); err != nil {
		return nil, err
	}

	authURL, err := m.client.BuildAuthorizationURL(p.endpoint(), state, pkce, p.AuthParams)
	if err != nil {
		return nil, err
	}

	logging.Info("OAuth", "Started authorization for provider %s state=%s", p.ID, logging.TruncateSecret(state))
	return &AuthorizeResponse{AuthorizationURL: authURL, State: state}, nil
}

// HandleCallback consumes the pending authorization for req.State, exchanges
// the code at the provider and issues a session token.
func (m *Manager) HandleCallback(ctx context.Context, req CallbackRequest) (resp *CallbackResponse, err error) {
	defer func() { m.metrics.recordAction(req.Provider, ActionCallback, err) }()

	if req.Provider == "" {
		return nil, invalidRequest("provider is required")
	}
	if req.Code == "" {
		return nil, invalidRequest("code is required")
	}
	p, err := m.provider(ctx, req.Provider)
	if err != nil {
		return nil, err
	}
	if req.State == "" {
		return nil, ErrInvalidState
	}

	pending, err := m.pending.TakePending(ctx, req.State)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending authorization: %w", err)
	}
	if pending == nil {
		logging.Warn("OAuth", "Callback for provider %s with invalid or expired state", p.ID)
		return nil, ErrInvalidState
	}
	if pending.Provider != p.ID {
		logging.Warn("OAuth", "Callback for provider %s used state issued for %s", p.ID, pending.Provider)
		return nil, ErrInvalidState
	}
	return m.issueSession(ctx, p, pending, req.Code)
}

// HandleRedirect completes a provider redirect that carries only code and
// state. The provider is the one the pending authorization was issued for.
func (m *Manager) HandleRedirect(ctx context.Context, code, state string) (resp *CallbackResponse, err error) {
	provider := "unknown"
	defer func() { m.metrics.recordAction(provider, ActionCallback, err) }()

	if code == "" {
		return nil, invalidRequest("code is required")
	}
	if state == "" {
		return nil, ErrInvalidState
	}
	pending, err := m.pending.TakePending(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending authorization: %w", err)
	}
	if pending == nil {
		logging.Warn("OAuth", "Redirect with invalid or expired state")
		return nil, ErrInvalidState
	}
	provider = pending.Provider

	p, err := m.provider(ctx, provider)
	if err != nil {
		return nil, err
	}
	return m.issueSession(ctx, p, pending, code)
}

func (m *Manager) issueSession(ctx context.Context, p ProviderConfig, pending *PendingAuthorization, code string) (*CallbackResponse, error) {
	ep := p.endpoint()
	ep.RedirectURI = pending.RedirectURI
	tok, err := m.client.ExchangeCode(ctx, ep, code, pending.CodeVerifier)
	if err != nil {
		logging.Error("OAuth", err, "Failed to exchange authorization code for provider %s", p.ID)
		return nil, newTokenExchangeError(p.ID, err)
	}

	scopes := tok.Scopes()
	if len(scopes) == 0 {
		scopes = pending.Scopes
	}
	now := m.clock.Now()
	sess := &Session{
		Token:        uuid.NewString(),
		Provider:     p.ID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Scopes:       scopes,
		ExpiresAt:    tok.ExpiryFrom(now),
		CreatedAt:    now,
	}
	if err := m.sessions.PutSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	logging.Info("OAuth", "Issued session=%s for provider %s", logging.TruncateSecret(sess.Token), p.ID)
	return &CallbackResponse{
		SessionToken: sess.Token,
		Provider:     p.ID,
		Scopes:       sess.Scopes,
		ExpiresAt:    expiryPtr(sess.ExpiresAt),
		ReturnURL:    pending.ReturnURL,
	}, nil
}

// HandleStatus reports whether sessionToken authorizes provider. Not being
// authorized is a normal result, so this never returns an error.
func (m *Manager) HandleStatus(ctx context.Context, provider, sessionToken string) *StatusResponse {
	resp := &StatusResponse{Authorized: false, Provider: provider}
	if sessionToken == "" {
		m.metrics.recordAction(provider, ActionStatus, nil)
		return resp
	}

	sess, err := m.AccessToken(ctx, sessionToken)
	switch {
	case err != nil:
		if !errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrSessionExpired) {
			logging.Warn("OAuth", "Status check for provider %s failed: %v", provider, err)
		}
	case sess.Provider != provider:
		logging.Debug("OAuth", "Session=%s belongs to %s, not %s", logging.TruncateSecret(sessionToken), sess.Provider, provider)
	default:
		resp.Authorized = true
		resp.Scopes = sess.Scopes
		resp.ExpiresAt = expiryPtr(sess.ExpiresAt)
	}

	m.metrics.recordAction(provider, ActionStatus, nil)
	return resp
}

// HandleDisconnect removes the session and, when the provider supports it,
// revokes the upstream tokens. Revocation is best effort: failures are logged
// and the local removal stands.
func (m *Manager) HandleDisconnect(ctx context.Context, req DisconnectRequest, sessionToken string) (resp *DisconnectResponse, err error) {
	defer func() { m.metrics.recordAction(req.Provider, ActionDisconnect, err) }()

	if req.Provider == "" {
		return nil, invalidRequest("provider is required")
	}
	p, err := m.provider(ctx, req.Provider)
	if err != nil {
		return nil, err
	}
	if sessionToken == "" {
		return nil, ErrMissingSessionToken
	}

	existing, err := m.sessions.GetSession(ctx, sessionToken)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if existing == nil || existing.Provider != p.ID {
		logging.Debug("OAuth", "Disconnect for provider %s: no matching session", p.ID)
		return &DisconnectResponse{Success: true}, nil
	}

	removed, err := m.sessions.DeleteSession(ctx, sessionToken)
	if err != nil {
		return nil, fmt.Errorf("failed to remove session: %w", err)
	}
	logging.Info("OAuth", "Disconnected session=%s from provider %s", logging.TruncateSecret(sessionToken), p.ID)

	if removed != nil && p.RevocationEndpoint != "" {
		m.revoke(ctx, p, removed)
	}
	return &DisconnectResponse{Success: true}, nil
}

func (m *Manager) revoke(ctx context.Context, p ProviderConfig, sess *Session) {
	ep := p.endpoint()
	err := m.client.RevokeToken(ctx, ep, sess.AccessToken, "access_token")
	if err == nil && sess.RefreshToken != "" {
		err = m.client.RevokeToken(ctx, ep, sess.RefreshToken, "refresh_token")
	}
	m.metrics.recordRevocation(p.ID, err)
	if err != nil {
		logging.Warn("OAuth", "Upstream revocation for provider %s failed, local session already removed: %v", p.ID, err)
	}
}

// AccessToken resolves a session token to its session, refreshing the
// provider access token when it has expired and a refresh token is present.
// Concurrent refreshes of the same session share one token request.
func (m *Manager) AccessToken(ctx context.Context, sessionToken string) (*Session, error) {
	sess, err := m.sessions.GetSession(ctx, sessionToken)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if !sess.Expired(m.clock.Now(), m.expiryMargin) {
		return sess, nil
	}
	if !sess.Refreshable() {
		return nil, ErrSessionExpired
	}

	v, err, _ := m.refreshGroup.Do(sessionToken, func() (interface{}, error) {
		return m.refresh(ctx, sess)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session).clone(), nil
}

func (m *Manager) refresh(ctx context.Context, sess *Session) (*Session, error) {
	// Another caller may have refreshed since sess was read.
	if current, err := m.sessions.GetSession(ctx, sess.Token); err == nil && current != nil {
		if !current.Expired(m.clock.Now(), m.expiryMargin) {
			return current, nil
		}
		sess = current
	}

	p, err := m.provider(ctx, sess.Provider)
	if err != nil {
		return nil, err
	}

	tok, err := m.client.RefreshToken(ctx, p.endpoint(), sess.RefreshToken)
	m.metrics.recordRefresh(p.ID, err)
	if err != nil {
		te := newTokenExchangeError(p.ID, err)
		if te.Code == "invalid_grant" {
			// The grant is gone upstream; the session can never recover.
			_, _ = m.sessions.DeleteSession(ctx, sess.Token)
			logging.Info("OAuth", "Removed session=%s after refresh token was rejected", logging.TruncateSecret(sess.Token))
		}
		return nil, te
	}

	updated := sess.clone()
	updated.AccessToken = tok.AccessToken
	updated.ExpiresAt = tok.ExpiryFrom(m.clock.Now())
	if tok.RefreshToken != "" {
		updated.RefreshToken = tok.RefreshToken
	}
	if tok.TokenType != "" {
		updated.TokenType = tok.TokenType
	}
	if scopes := tok.Scopes(); len(scopes) > 0 {
		updated.Scopes = scopes
	}
	if err := m.sessions.PutSession(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to store refreshed session: %w", err)
	}

	logging.Debug("OAuth", "Refreshed session=%s for provider %s", logging.TruncateSecret(sess.Token), p.ID)
	return updated, nil
}

// IntegrateTokens resolves session tokens to a provider to access token map,
// the payload of the x-integrate-tokens header. Sessions that do not resolve
// are skipped.
func (m *Manager) IntegrateTokens(ctx context.Context, sessionTokens ...string) map[string]string {
	out := make(map[string]string, len(sessionTokens))
	for _, t := range sessionTokens {
		sess, err := m.AccessToken(ctx, t)
		if err != nil {
			logging.Debug("OAuth", "Skipping session=%s: %v", logging.TruncateSecret(t), err)
			continue
		}
		out[sess.Provider] = sess.AccessToken
	}
	return out
}

func newTokenExchangeError(provider string, err error) *TokenExchangeError {
	te := &TokenExchangeError{Provider: provider, Err: err}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		te.Code = re.ErrorCode
		te.Description = re.ErrorDescription
		if re.Response != nil {
			te.StatusCode = re.Response.StatusCode
		}
	}
	return te
}
