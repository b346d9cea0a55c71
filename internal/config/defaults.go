package config

import (
	"time"

	"integrate/internal/oauth"
)

const (
	// DefaultOAuthPrefix is where the OAuth actions are mounted.
	DefaultOAuthPrefix = "/api/integrate/oauth"

	DefaultMetricsPath = "/metrics"
)

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:         "localhost",
			Port:         8090,
			OAuthPrefix:  DefaultOAuthPrefix,
			MetricsPath:  DefaultMetricsPath,
			StateTTL:     oauth.DefaultStateTTL,
			ExpiryMargin: 30 * time.Second,
		},
		Client: ClientConfig{
			Timeout: 30 * time.Second,
		},
		Valkey: ValkeyConfig{
			Prefix: oauth.DefaultValkeyPrefix,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
