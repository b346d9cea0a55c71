package oauth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// StateData is the decoded content of an OAuth state parameter.
type StateData struct {
	// CSRF is the random nonce protecting the callback.
	CSRF string `json:"csrf"`

	// ReturnURL is where the user is sent after the flow completes.
	ReturnURL string `json:"returnUrl,omitempty"`
}

// GenerateStateWithReturnURL creates a state parameter that carries a fresh
// CSRF nonce and, when non-empty, a post-authorization return URL.
func GenerateStateWithReturnURL(returnURL string) (string, error) {
	csrf, err := GenerateState()
	if err != nil {
		return "", err
	}

	return EncodeState(StateData{CSRF: csrf, ReturnURL: returnURL})
}

// EncodeState serializes state data as base64url(JSON).
func EncodeState(data StateData) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// ParseState decodes a state parameter produced by GenerateStateWithReturnURL.
//
// It also accepts the legacy form, a JSON-encoded bare CSRF string. Any
// input that cannot be decoded is returned as the CSRF value itself, so this
// function never fails. Callers must still match the full state against the
// pending authorization store.
func ParseState(state string) StateData {
	raw, err := decodeBase64URL(state)
	if err != nil {
		return StateData{CSRF: state}
	}

	var legacy string
	if err := json.Unmarshal(raw, &legacy); err == nil && legacy != "" {
		return StateData{CSRF: legacy}
	}

	var data StateData
	if err := json.Unmarshal(raw, &data); err != nil || data.CSRF == "" {
		return StateData{CSRF: state}
	}
	return data
}

func decodeBase64URL(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.URLEncoding.DecodeString(s)
	}
	return base64.RawURLEncoding.DecodeString(s)
}
