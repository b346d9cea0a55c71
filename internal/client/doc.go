// Package client composes plugins into a single client of an MCP tool
// server.
//
// Each plugin contributes a tool namespace (its id followed by '_') and,
// optionally, the OAuth provider configuration its tools need. The client
// only calls tools that the server lists after the handshake and that fall
// inside a registered namespace; the tool names a plugin declares are
// documentation only.
//
//	c, err := client.New(client.Config{ServerURL: url, APIKey: key},
//		client.Plugin{ID: "github", OAuth: &githubProvider},
//		client.Plugin{ID: "gmail"},
//	)
//	if err != nil {
//		return err
//	}
//	if err := c.Connect(ctx); err != nil {
//		return err
//	}
//	defer c.Disconnect(ctx)
//
//	res, err := c.Call(ctx, "github.listRepos", map[string]any{"owner": "acme"})
//
// Provider access tokens travel in the x-integrate-tokens header as a JSON
// object keyed by provider id. UseSessions fills it from OAuth session
// tokens.
package client
