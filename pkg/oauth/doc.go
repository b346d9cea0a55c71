// Package oauth provides the provider-facing OAuth 2.1 building blocks used by
// the integrate flow engine and by applications embedding it.
//
// # Core Components
//
//   - PKCE: code verifier and S256 challenge generation (RFC 7636)
//   - State: CSRF nonce generation and the {csrf, returnUrl} state token
//   - Token: provider token representation with expiry checking
//   - Metadata: authorization server metadata (RFC 8414)
//   - Client: metadata discovery, authorization URLs, code exchange,
//     refresh and revocation (RFC 7009)
//
// # Usage
//
//	pkce := oauth.GeneratePKCE()
//	state, err := oauth.GenerateStateWithReturnURL("/settings")
//
//	c := oauth.NewClient()
//	authURL, err := c.BuildAuthorizationURL(endpoint, state, pkce, nil)
//	...
//	token, err := c.ExchangeCode(ctx, endpoint, code, pkce.CodeVerifier)
//
// ParseState never fails. A state that cannot be decoded is returned as its
// own CSRF value, so legacy bare nonces keep working; the security check is
// the exact lookup of the state in the pending authorization store.
package oauth
