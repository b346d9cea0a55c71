// Package config loads the integrate configuration.
//
// Configuration is read from config.yaml in a single directory. The default
// directory is ~/.config/integrate; commands accept --config-path to point
// elsewhere. A missing file is not an error: the built-in defaults are used.
//
// # Loading order
//
//  1. Defaults from DefaultConfig
//  2. config.yaml, after ${VAR} references have been replaced with the
//     values of environment variables
//  3. Validate, which reports every problem at once as a
//     ConfigurationErrorCollection
//
// # Example
//
//	server:
//	  port: 8090
//	  oauthPrefix: /api/integrate/oauth
//	providers:
//	  - id: github
//	    authorizationEndpoint: https://github.com/login/oauth/authorize
//	    tokenEndpoint: https://github.com/login/oauth/access_token
//	    clientId: abc
//	    clientSecret: ${GITHUB_CLIENT_SECRET}
//	    scopes: [repo, user]
//	    redirectUri: http://localhost:8090/oauth/callback
//	client:
//	  serverUrl: http://localhost:3000/api/integrate/mcp
//	  apiKey: ${INTEGRATE_API_KEY}
//	  plugins:
//	    - id: github
//	valkey:
//	  addrs: [localhost:6379]
//	logging:
//	  level: info
//	  format: text
//
// Client secrets belong in the providers section only. A secret inside a
// client plugin is rejected, since client configuration may be shipped to
// untrusted surfaces.
package config
