// Package oauth implements the server-side OAuth 2.0 Authorization Code flow
// with PKCE that lets integrate plugins act on behalf of a user.
//
// # Flow
//
//  1. HandleAuthorize creates a PendingAuthorization keyed by a fresh state
//     and returns the provider's authorization URL.
//  2. The user consents at the provider, which redirects back with a code.
//  3. HandleCallback atomically takes the pending record for the state,
//     exchanges the code and PKCE verifier at the token endpoint and issues
//     an opaque session token.
//  4. HandleStatus and HandleDisconnect resolve that session token.
//
// Each attempt moves from AUTHORIZING to either ISSUED or FAILED. A state is
// consumed at most once; a replayed or expired state yields ErrInvalidState.
//
// # Components
//
//   - Manager: the flow engine
//   - StateStore, TokenStore: in-memory PendingStore and SessionStore
//   - ValkeyStore: both stores on Valkey, for replicated deployments
//   - Handler: JSON net/http adapter with structured error bodies
//   - Metrics: Prometheus counters for actions, refreshes and revocations
//
// # Security
//
// Client secrets are held in Secret values and never serialized. Code
// verifiers never leave the pending store. Caller-supplied scopes, PKCE
// challenges and states are ignored in favour of server-side values, and
// provider access tokens are only returned through AccessToken and
// IntegrateTokens, which are meant for server-side tool execution.
package oauth
