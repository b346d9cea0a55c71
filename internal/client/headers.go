package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"integrate/internal/oauth"
)

// Header names sent to the tool server.
const (
	HeaderAPIKey          = "X-API-KEY"
	HeaderSessionToken    = oauth.HeaderSessionToken
	HeaderIntegrateTokens = "x-integrate-tokens"
)

// EncodeIntegrateTokens renders a provider to access token map as the
// x-integrate-tokens header value.
func EncodeIntegrateTokens(tokens map[string]string) (string, error) {
	raw, err := json.Marshal(tokens)
	if err != nil {
		return "", fmt.Errorf("failed to encode integrate tokens: %w", err)
	}
	return string(raw), nil
}

// ParseIntegrateTokens decodes an x-integrate-tokens header value. An empty
// value yields an empty map.
func ParseIntegrateTokens(value string) (map[string]string, error) {
	tokens := make(map[string]string)
	if strings.TrimSpace(value) == "" {
		return tokens, nil
	}
	if err := json.Unmarshal([]byte(value), &tokens); err != nil {
		return nil, fmt.Errorf("malformed %s header: %w", HeaderIntegrateTokens, err)
	}
	return tokens, nil
}
