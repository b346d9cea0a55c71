package client

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"integrate/internal/oauth"
	"integrate/internal/transport"
	"integrate/pkg/logging"
)

var (
	// ErrDuplicatePlugin is returned by New when two plugins share an id.
	ErrDuplicatePlugin = errors.New("duplicate plugin id")

	// ErrSecretExposed is returned by New when a client-side configuration
	// carries an OAuth client secret.
	ErrSecretExposed = errors.New("oauth client secret in client-side configuration")

	// ErrToolNotEnabled is returned by CallTool for tools outside the
	// registered plugin namespaces or not offered by the server.
	ErrToolNotEnabled = errors.New("tool not enabled")

	// ErrNotInitialized is returned by CallTool before Connect succeeded.
	ErrNotInitialized = transport.ErrNotInitialized
)

const methodToolsListChanged = "notifications/tools/list_changed"

// Config configures a Client.
type Config struct {
	// ServerURL is the MCP endpoint of the tool server.
	ServerURL string

	// APIKey is sent as X-API-KEY for server-to-server calls.
	APIKey string

	// Headers are extra static headers.
	Headers map[string]string

	Timeout    time.Duration
	HTTPClient *http.Client

	// ClientSide marks configurations that may reach a browser or another
	// untrusted surface. Plugins of such a client must not carry secrets.
	ClientSide bool

	ClientName    string
	ClientVersion string

	Metrics *transport.Metrics

	// TransportFactory overrides the streamable HTTP transport.
	TransportFactory transport.Factory
}

// TokenResolver turns session tokens into provider access tokens.
// *oauth.Manager implements it.
type TokenResolver interface {
	IntegrateTokens(ctx context.Context, sessionTokens ...string) map[string]string
}

// Client composes plugins into one client of the tool server. Only tools in
// a registered plugin's namespace are callable.
type Client struct {
	plugins    []Plugin
	byID       map[string]int
	byProvider map[string]string

	session *transport.Session

	// hookMu serializes lifecycle transitions.
	hookMu sync.Mutex

	mu             sync.RWMutex
	tools          map[string]mcp.Tool
	providerTokens map[string]string
}

// New validates the plugins, runs their OnInit hooks in registration order
// and returns a disconnected client.
func New(cfg Config, plugins ...Plugin) (*Client, error) {
	c := &Client{
		byID:           make(map[string]int, len(plugins)),
		byProvider:     make(map[string]string),
		tools:          make(map[string]mcp.Tool),
		providerTokens: make(map[string]string),
	}

	for _, p := range plugins {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicatePlugin, p.ID)
		}
		if p.OAuth != nil {
			if cfg.ClientSide && !p.OAuth.ClientSecret.IsEmpty() {
				return nil, fmt.Errorf("%w: plugin %q", ErrSecretExposed, p.ID)
			}
			cp := *p.OAuth
			cp.Scopes = slices.Clone(p.OAuth.Scopes)
			p.OAuth = &cp
			provider := cp.ID
			if provider == "" {
				provider = p.ID
			}
			c.byProvider[provider] = p.ID
		}
		p.Tools = slices.Clone(p.Tools)
		c.byID[p.ID] = len(c.plugins)
		c.plugins = append(c.plugins, p)
	}

	headers := make(map[string]string, len(cfg.Headers)+1)
	maps.Copy(headers, cfg.Headers)
	if cfg.APIKey != "" {
		headers[HeaderAPIKey] = cfg.APIKey
	}

	c.session = transport.NewSession(transport.Options{
		URL:            cfg.ServerURL,
		Headers:        headers,
		Timeout:        cfg.Timeout,
		HTTPClient:     cfg.HTTPClient,
		ClientName:     cfg.ClientName,
		ClientVersion:  cfg.ClientVersion,
		Factory:        cfg.TransportFactory,
		Metrics:        cfg.Metrics,
		OnNotification: c.handleNotification,
	})

	for _, p := range c.plugins {
		if p.OnInit == nil {
			continue
		}
		if err := p.OnInit(c); err != nil {
			return nil, fmt.Errorf("plugin %s: init hook: %w", p.ID, err)
		}
	}

	logging.Debug("Client", "Client created with %d plugin(s) for %s", len(c.plugins), cfg.ServerURL)
	return c, nil
}

// Session returns the underlying transport session.
func (c *Client) Session() *transport.Session {
	return c.session
}

// Plugins returns the registered plugin ids in registration order.
func (c *Client) Plugins() []string {
	ids := make([]string, len(c.plugins))
	for i, p := range c.plugins {
		ids[i] = p.ID
	}
	return ids
}

// PluginForProvider returns the id of the plugin that owns an OAuth provider.
func (c *Client) PluginForProvider(provider string) (string, bool) {
	id, ok := c.byProvider[provider]
	return id, ok
}

// OAuthConfig returns the OAuth configuration of a plugin, without its client
// secret. It returns false for unknown plugins and plugins without OAuth.
func (c *Client) OAuthConfig(pluginID string) (oauth.ProviderConfig, bool) {
	i, ok := c.byID[pluginID]
	if !ok || c.plugins[i].OAuth == nil {
		return oauth.ProviderConfig{}, false
	}
	return c.plugins[i].OAuth.Public(), true
}

// OAuthConfigs returns the OAuth configurations of all plugins that have one,
// keyed by plugin id.
func (c *Client) OAuthConfigs() map[string]oauth.ProviderConfig {
	out := make(map[string]oauth.ProviderConfig)
	for _, p := range c.plugins {
		if p.OAuth != nil {
			out[p.ID] = p.OAuth.Public()
		}
	}
	return out
}

// Connect runs every plugin's OnBeforeConnect hook, performs the handshake,
// loads the enabled tools and runs every OnAfterConnect hook. Hooks run
// sequentially in registration order; the first failure aborts.
func (c *Client) Connect(ctx context.Context) error {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()

	if c.session.Initialized() {
		return nil
	}
	if err := c.runHooks(ctx, "before-connect", func(p Plugin) Hook { return p.OnBeforeConnect }); err != nil {
		return err
	}
	if _, err := c.session.Connect(ctx); err != nil {
		return err
	}
	if err := c.RefreshTools(ctx); err != nil {
		_ = c.session.Disconnect()
		return err
	}
	return c.runHooks(ctx, "after-connect", func(p Plugin) Hook { return p.OnAfterConnect })
}

// Disconnect runs every plugin's OnDisconnect hook and closes the session.
// The session is closed even when a hook fails.
func (c *Client) Disconnect(ctx context.Context) error {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()

	hookErr := c.runHooks(ctx, "disconnect", func(p Plugin) Hook { return p.OnDisconnect })

	c.mu.Lock()
	c.tools = make(map[string]mcp.Tool)
	c.providerTokens = make(map[string]string)
	c.mu.Unlock()

	return errors.Join(hookErr, c.session.Disconnect())
}

func (c *Client) runHooks(ctx context.Context, stage string, pick func(Plugin) Hook) error {
	for _, p := range c.plugins {
		hook := pick(p)
		if hook == nil {
			continue
		}
		if err := hook(ctx, c); err != nil {
			logging.Warn("Client", "Plugin %s %s hook failed: %v", p.ID, stage, err)
			return fmt.Errorf("plugin %s: %s hook: %w", p.ID, stage, err)
		}
	}
	return nil
}

// RefreshTools reloads the tool list from the server and keeps the tools in
// registered plugin namespaces.
func (c *Client) RefreshTools(ctx context.Context) error {
	all, err := c.session.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tools: %w", err)
	}

	enabled := make(map[string]mcp.Tool, len(all))
	for _, tool := range all {
		if c.pluginFor(tool.Name) == "" {
			logging.Debug("Client", "Skipping tool %s outside registered plugins", tool.Name)
			continue
		}
		enabled[tool.Name] = tool
	}

	c.mu.Lock()
	c.tools = enabled
	c.mu.Unlock()

	logging.Debug("Client", "Enabled %d of %d server tool(s)", len(enabled), len(all))
	return nil
}

func (c *Client) pluginFor(toolName string) string {
	for _, p := range c.plugins {
		if p.owns(toolName) {
			return p.ID
		}
	}
	return ""
}

func (c *Client) handleNotification(n mcp.JSONRPCNotification) {
	if n.Method != methodToolsListChanged {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), transport.DefaultTimeout)
		defer cancel()
		if err := c.RefreshTools(ctx); err != nil {
			logging.Warn("Client", "Failed to refresh tools after list change: %v", err)
		}
	}()
}

// EnabledTools returns the sorted names of the callable tools. It is empty
// until Connect succeeds.
func (c *Client) EnabledTools() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tools))
	for name := range c.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tools returns the definitions of the callable tools, sorted by name.
func (c *Client) Tools() []mcp.Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tools := make([]mcp.Tool, 0, len(c.tools))
	for _, t := range c.tools {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// CallTool calls an enabled tool.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if !c.session.Initialized() {
		return nil, fmt.Errorf("call %s: %w", name, ErrNotInitialized)
	}
	c.mu.RLock()
	_, ok := c.tools[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotEnabled, name)
	}
	return c.session.CallTool(ctx, name, args)
}

// Call invokes a tool by its method form, e.g. "github.listRepos".
func (c *Client) Call(ctx context.Context, method string, args map[string]any) (*mcp.CallToolResult, error) {
	return c.CallTool(ctx, MethodToToolName(method, ""), args)
}

// SetSessionToken sets the X-Session-Token header. An empty token removes it.
func (c *Client) SetSessionToken(token string) {
	if token == "" {
		c.session.RemoveHeader(HeaderSessionToken)
		return
	}
	c.session.SetHeader(HeaderSessionToken, token)
}

// SetProviderToken records the access token for provider in the
// x-integrate-tokens header. An empty token removes the provider.
func (c *Client) SetProviderToken(provider, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token == "" {
		delete(c.providerTokens, provider)
	} else {
		c.providerTokens[provider] = token
	}
	return c.applyProviderTokens()
}

// UseSessions resolves session tokens through r and sends the resulting
// provider tokens with every request.
func (c *Client) UseSessions(ctx context.Context, r TokenResolver, sessionTokens ...string) error {
	tokens := r.IntegrateTokens(ctx, sessionTokens...)

	c.mu.Lock()
	defer c.mu.Unlock()
	maps.Copy(c.providerTokens, tokens)
	logging.Debug("Client", "Resolved %d of %d session(s) to provider tokens", len(tokens), len(sessionTokens))
	return c.applyProviderTokens()
}

// applyProviderTokens must be called with c.mu held.
func (c *Client) applyProviderTokens() error {
	if len(c.providerTokens) == 0 {
		c.session.RemoveHeader(HeaderIntegrateTokens)
		return nil
	}
	value, err := EncodeIntegrateTokens(c.providerTokens)
	if err != nil {
		return err
	}
	c.session.SetHeader(HeaderIntegrateTokens, value)
	return nil
}
