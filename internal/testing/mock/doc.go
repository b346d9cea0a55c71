// Package mock provides in-process fakes for tests: an OAuth 2.1 provider
// that issues codes and verifies PKCE, a streamable-HTTP MCP tool server that
// records request headers, and a controllable clock.
//
//	provider := mock.NewOAuthProvider(t, mock.OAuthProviderConfig{ClientID: "abc"})
//	tools := mock.NewToolServer(t, mock.Tool{Name: "github_list_repos"})
//	clock := mock.NewMockClock(time.Time{})
//
// Everything is torn down through t.Cleanup.
package mock
