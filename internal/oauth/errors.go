package oauth

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownProvider is returned when a request names a provider that is
	// not configured.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrInvalidState is returned by HandleCallback when the state was never
	// issued, has expired or was already consumed.
	ErrInvalidState = errors.New("invalid or expired state")

	// ErrMissingSessionToken is returned when an action that needs the
	// caller's session token did not receive one.
	ErrMissingSessionToken = errors.New("missing session token")

	// ErrInvalidRequest is returned for malformed action input.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrSessionNotFound is returned when a session token does not resolve.
	ErrSessionNotFound = errors.New("session not found")
)

func unknownProvider(id string) error {
	return fmt.Errorf("%w: %q", ErrUnknownProvider, id)
}

func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// TokenExchangeError indicates that the provider's token endpoint rejected
// an authorization code or refresh token. No session is created.
type TokenExchangeError struct {
	Provider string

	// StatusCode is the HTTP status returned by the token endpoint, zero if
	// the endpoint could not be reached.
	StatusCode int

	// Code and Description carry the RFC 6749 error fields when present.
	Code        string
	Description string

	Err error
}

func (e *TokenExchangeError) Error() string {
	msg := fmt.Sprintf("token exchange with provider %s failed", e.Provider)
	if e.Code != "" {
		msg += ": " + e.Code
		if e.Description != "" {
			msg += " (" + e.Description + ")"
		}
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TokenExchangeError) Unwrap() error {
	return e.Err
}

// IsTokenExchangeError checks if an error is a TokenExchangeError.
func IsTokenExchangeError(err error) bool {
	var te *TokenExchangeError
	return errors.As(err, &te)
}
