package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned for requests issued before the
	// initialize handshake completed.
	ErrNotInitialized = errors.New("transport session not initialized")

	// ErrTimeout is returned when a request does not complete within the
	// session timeout or the caller's deadline.
	ErrTimeout = errors.New("request timed out")

	// ErrCancelled is returned to in-flight requests dropped by Disconnect.
	ErrCancelled = errors.New("request cancelled by disconnect")
)

// ConnectionError is returned by Connect when the server cannot be reached or
// the handshake fails. The session stays disconnected.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// RPCError carries a JSON-RPC error object, or a synthesized parse error when
// the response could not be decoded.
type RPCError struct {
	Method  string
	Code    int
	Message string
	Data    any

	// Err is the decode failure behind a synthesized parse error.
	Err error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: rpc error %d: %s", e.Method, e.Code, e.Message)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}

// IsRPCError checks if an error is an RPCError and returns it.
func IsRPCError(err error) (*RPCError, bool) {
	var re *RPCError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
