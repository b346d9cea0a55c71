package client

import (
	"context"
	"fmt"
	"regexp"

	"integrate/internal/oauth"
)

// Hook is a plugin lifecycle callback.
type Hook func(ctx context.Context, c *Client) error

// Plugin contributes a tool namespace and, optionally, an OAuth provider.
//
// Tools lists the tool names the plugin is expected to expose. It documents
// the plugin only; the server's tools/list is authoritative for what can be
// called.
type Plugin struct {
	ID    string
	Tools []string
	OAuth *oauth.ProviderConfig

	// OnInit runs once while the client is constructed.
	OnInit func(c *Client) error

	OnBeforeConnect Hook
	OnAfterConnect  Hook
	OnDisconnect    Hook
}

// Plugin ids double as tool-name prefixes, so they may not contain '_'.
var pluginIDPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// ValidPluginID reports whether id can be used as a plugin id.
func ValidPluginID(id string) bool {
	return pluginIDPattern.MatchString(id)
}

func (p Plugin) validate() error {
	if !ValidPluginID(p.ID) {
		return fmt.Errorf("invalid plugin id %q: must match %s", p.ID, pluginIDPattern)
	}
	return nil
}

func (p Plugin) owns(toolName string) bool {
	return len(toolName) > len(p.ID) && toolName[:len(p.ID)] == p.ID && toolName[len(p.ID)] == '_'
}
