package config

import (
	"fmt"
	"net/url"
	"strings"

	"integrate/internal/client"
	"integrate/pkg/logging"
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "warning", "error"}
	validLogFormats = []string{string(logging.FormatText), string(logging.FormatJSON)}
)

// Validate checks the whole configuration and returns a
// ConfigurationErrorCollection listing every problem, or nil.
func (c Config) Validate() error {
	return c.validate("")
}

func (c Config) validate(filePath string) error {
	v := &validator{filePath: filePath}

	v.server(c.Server)

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		section := fmt.Sprintf("providers[%d]", i)
		if p.ID != "" {
			section = fmt.Sprintf("providers[%s]", p.ID)
			if seen[p.ID] {
				v.add(section, "id", ErrorTypeDuplicate, "provider id is used more than once")
			}
			seen[p.ID] = true
		}
		v.provider(section, p, false)
	}

	v.client(c.Client)

	if c.Valkey.Enabled() {
		for i, addr := range c.Valkey.Addrs {
			if strings.TrimSpace(addr) == "" {
				v.add("valkey", fmt.Sprintf("addrs[%d]", i), ErrorTypeInvalid, "address must not be empty")
			}
		}
		if c.Valkey.DB < 0 {
			v.add("valkey", "db", ErrorTypeInvalid, "must not be negative")
		}
	}

	v.oneOf("logging", "level", strings.ToLower(c.Logging.Level), validLogLevels)
	v.oneOf("logging", "format", strings.ToLower(c.Logging.Format), validLogFormats)

	if !v.errs.HasErrors() {
		return nil
	}
	return v.errs
}

type validator struct {
	filePath string
	errs     ConfigurationErrorCollection
}

func (v *validator) add(section, field, errorType, message string, suggestions ...string) {
	err := NewConfigurationError(v.filePath, section, field, errorType, message)
	err.Suggestions = suggestions
	v.errs.Add(err)
}

func (v *validator) required(section, field, value string) bool {
	if strings.TrimSpace(value) == "" {
		v.add(section, field, ErrorTypeMissing, "is required")
		return false
	}
	return true
}

func (v *validator) absoluteURL(section, field, value string) {
	if value == "" {
		return
	}
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		v.add(section, field, ErrorTypeInvalid, fmt.Sprintf("%q is not an absolute URL", value))
	}
}

func (v *validator) path(section, field, value string) {
	if value != "" && !strings.HasPrefix(value, "/") {
		v.add(section, field, ErrorTypeInvalid, "must start with '/'")
	}
}

func (v *validator) oneOf(section, field, value string, allowed []string) {
	if value == "" {
		return
	}
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.add(section, field, ErrorTypeInvalid, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
}

func (v *validator) server(s ServerConfig) {
	if s.Port < 0 || s.Port > 65535 {
		v.add("server", "port", ErrorTypeInvalid, fmt.Sprintf("%d is not a valid port", s.Port))
	}
	v.path("server", "oauthPrefix", s.OAuthPrefix)
	v.path("server", "metricsPath", s.MetricsPath)
	if s.StateTTL < 0 {
		v.add("server", "stateTTL", ErrorTypeInvalid, "must not be negative")
	}
}

// provider checks one provider block. Client-side blocks must not carry a
// secret but may omit the redirect URI, which the server supplies.
func (v *validator) provider(section string, p ProviderConfig, clientSide bool) {
	if !clientSide {
		v.required(section, "id", p.ID)
		v.required(section, "redirectUri", p.RedirectURI)
	}
	v.required(section, "clientId", p.ClientID)

	if p.Issuer == "" {
		if p.AuthorizationEndpoint == "" {
			v.add(section, "authorizationEndpoint", ErrorTypeMissing, "is required when no issuer is set")
		}
		if p.TokenEndpoint == "" && !clientSide {
			v.add(section, "tokenEndpoint", ErrorTypeMissing, "is required when no issuer is set")
		}
	}
	v.absoluteURL(section, "authorizationEndpoint", p.AuthorizationEndpoint)
	v.absoluteURL(section, "tokenEndpoint", p.TokenEndpoint)
	v.absoluteURL(section, "revocationEndpoint", p.RevocationEndpoint)
	v.absoluteURL(section, "issuer", p.Issuer)
	v.absoluteURL(section, "redirectUri", p.RedirectURI)

	if clientSide && p.ClientSecret != "" {
		v.add(section, "clientSecret", ErrorTypeSecretExposed,
			"client secrets must not appear in client configuration",
			"move the secret to the matching entry under providers")
	}
}

func (v *validator) client(c ClientConfig) {
	v.absoluteURL("client", "serverUrl", c.ServerURL)
	if c.Timeout < 0 {
		v.add("client", "timeout", ErrorTypeInvalid, "must not be negative")
	}
	if len(c.Plugins) > 0 && c.ServerURL == "" {
		v.add("client", "serverUrl", ErrorTypeMissing, "is required when plugins are configured")
	}

	seen := make(map[string]bool, len(c.Plugins))
	for i, p := range c.Plugins {
		section := fmt.Sprintf("client.plugins[%d]", i)
		if p.ID != "" {
			section = fmt.Sprintf("client.plugins[%s]", p.ID)
		}
		switch {
		case !client.ValidPluginID(p.ID):
			v.add(section, "id", ErrorTypeInvalid, fmt.Sprintf("%q is not a valid plugin id", p.ID),
				"use lowercase letters, digits and '-', starting with a letter")
		case seen[p.ID]:
			v.add(section, "id", ErrorTypeDuplicate, "plugin id is used more than once")
		}
		seen[p.ID] = true

		if p.OAuth != nil {
			v.provider(section+".oauth", *p.OAuth, true)
		}
	}
}
