// Package server hosts the OAuth actions of an integrate deployment.
//
// A Server mounts the oauth.Handler under its prefix and adds the
// operational endpoints around it:
//
//	POST <prefix>/authorize     start a flow
//	POST <prefix>/callback      complete a flow, issue a session token
//	GET  <prefix>/status        report whether a session is authorized
//	POST <prefix>/disconnect    revoke and forget a session
//	GET  /whoami                the user detected from app session cookies
//	GET  /healthz               liveness
//	GET  /metrics               Prometheus metrics
//
// Every request runs through the session detector chain. The detected user,
// if any, is stored in the request context and can be read with
// UserFromContext. It is informational only and never authorizes anything.
package server
