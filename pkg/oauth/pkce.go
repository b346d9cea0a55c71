package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

const (
	// stateBytes is the number of random bytes for the CSRF nonce.
	stateBytes = 16

	// MethodS256 is the only PKCE challenge method issued by this package.
	MethodS256 = "S256"
)

// GenerateCodeVerifier returns a new PKCE code verifier: 32 random bytes,
// base64url-encoded without padding (43 characters).
//
// It panics if the system's secure random source fails. There is no
// fallback to weaker randomness.
func GenerateCodeVerifier() string {
	return oauth2.GenerateVerifier()
}

// GenerateCodeChallenge derives the S256 challenge for a verifier.
// The result is deterministic and always 43 base64url characters.
func GenerateCodeChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// GeneratePKCE generates a new PKCE code verifier and its S256 challenge.
func GeneratePKCE() *PKCEChallenge {
	verifier := GenerateCodeVerifier()
	return &PKCEChallenge{
		CodeVerifier:        verifier,
		CodeChallenge:       GenerateCodeChallenge(verifier),
		CodeChallengeMethod: MethodS256,
	}
}

// GenerateState generates a random CSRF nonce for the OAuth state parameter.
func GenerateState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
