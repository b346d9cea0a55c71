package config

import (
	"slices"
	"time"

	"integrate/internal/client"
	"integrate/internal/oauth"
)

// Config is the top-level configuration structure for integrate.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Providers []ProviderConfig `yaml:"providers,omitempty"`
	Client    ClientConfig     `yaml:"client,omitempty"`
	Valkey    ValkeyConfig     `yaml:"valkey,omitempty"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the OAuth HTTP server started by "integrate serve".
type ServerConfig struct {
	Host        string `yaml:"host,omitempty"`
	Port        int    `yaml:"port,omitempty"`
	OAuthPrefix string `yaml:"oauthPrefix,omitempty"`
	MetricsPath string `yaml:"metricsPath,omitempty"`

	// StateTTL bounds the time between authorize and callback.
	StateTTL time.Duration `yaml:"stateTTL,omitempty"`

	// ExpiryMargin refreshes tokens that expire within the margin.
	ExpiryMargin time.Duration `yaml:"expiryMargin,omitempty"`
}

// ProviderConfig is the YAML form of oauth.ProviderConfig.
type ProviderConfig struct {
	ID                    string            `yaml:"id"`
	AuthorizationEndpoint string            `yaml:"authorizationEndpoint,omitempty"`
	TokenEndpoint         string            `yaml:"tokenEndpoint,omitempty"`
	RevocationEndpoint    string            `yaml:"revocationEndpoint,omitempty"`
	Issuer                string            `yaml:"issuer,omitempty"`
	ClientID              string            `yaml:"clientId"`
	ClientSecret          string            `yaml:"clientSecret,omitempty"`
	Scopes                []string          `yaml:"scopes,omitempty"`
	RedirectURI           string            `yaml:"redirectUri"`
	AuthParams            map[string]string `yaml:"authParams,omitempty"`
}

// OAuth converts p into the engine's provider configuration.
func (p ProviderConfig) OAuth() oauth.ProviderConfig {
	return oauth.ProviderConfig{
		ID:                    p.ID,
		AuthorizationEndpoint: p.AuthorizationEndpoint,
		TokenEndpoint:         p.TokenEndpoint,
		RevocationEndpoint:    p.RevocationEndpoint,
		Issuer:                p.Issuer,
		ClientID:              p.ClientID,
		ClientSecret:          oauth.NewSecret(p.ClientSecret),
		Scopes:                slices.Clone(p.Scopes),
		RedirectURI:           p.RedirectURI,
		AuthParams:            p.AuthParams,
	}
}

// ClientConfig configures the tool-server client used by "integrate tools".
type ClientConfig struct {
	ServerURL string            `yaml:"serverUrl,omitempty"`
	APIKey    string            `yaml:"apiKey,omitempty"`
	Timeout   time.Duration     `yaml:"timeout,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	Plugins   []PluginConfig    `yaml:"plugins,omitempty"`
}

// PluginConfig declares one plugin of the client.
type PluginConfig struct {
	ID    string          `yaml:"id"`
	Tools []string        `yaml:"tools,omitempty"`
	OAuth *ProviderConfig `yaml:"oauth,omitempty"`
}

// ClientPlugins builds the client plugins declared in the configuration.
func (c ClientConfig) ClientPlugins() []client.Plugin {
	plugins := make([]client.Plugin, 0, len(c.Plugins))
	for _, pc := range c.Plugins {
		p := client.Plugin{ID: pc.ID, Tools: slices.Clone(pc.Tools)}
		if pc.OAuth != nil {
			oc := pc.OAuth.OAuth()
			if oc.ID == "" {
				oc.ID = pc.ID
			}
			p.OAuth = &oc
		}
		plugins = append(plugins, p)
	}
	return plugins
}

// ValkeyConfig enables the shared Valkey store. With no addresses the
// server keeps flows and sessions in memory.
type ValkeyConfig struct {
	Addrs      []string `yaml:"addrs,omitempty"`
	Username   string   `yaml:"username,omitempty"`
	Password   string   `yaml:"password,omitempty"`
	DB         int      `yaml:"db,omitempty"`
	Prefix     string   `yaml:"prefix,omitempty"`
	Standalone bool     `yaml:"standalone,omitempty"`
}

// Enabled reports whether a Valkey store is configured.
func (v ValkeyConfig) Enabled() bool {
	return len(v.Addrs) > 0
}

// Options converts v into the options used by oauth.DialValkey.
func (v ValkeyConfig) Options() oauth.ValkeyOptions {
	return oauth.ValkeyOptions{
		Addrs:      v.Addrs,
		Username:   v.Username,
		Password:   v.Password,
		DB:         v.DB,
		Standalone: v.Standalone,
	}
}

// LoggingConfig selects the log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}
