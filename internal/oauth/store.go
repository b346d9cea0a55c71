package oauth

import (
	"context"
	"time"
)

// PendingStore holds authorizations between HandleAuthorize and HandleCallback.
type PendingStore interface {
	// PutPending stores p under p.State for at most ttl.
	PutPending(ctx context.Context, p *PendingAuthorization, ttl time.Duration) error

	// TakePending atomically removes and returns the record for state.
	// It returns nil and no error when the state is unknown, already
	// consumed or expired.
	TakePending(ctx context.Context, state string) (*PendingAuthorization, error)
}

// SessionStore maps opaque session tokens to provider token bundles.
type SessionStore interface {
	PutSession(ctx context.Context, s *Session) error

	// GetSession returns nil and no error for unknown tokens.
	GetSession(ctx context.Context, token string) (*Session, error)

	// DeleteSession removes the session and returns what was removed, or nil.
	DeleteSession(ctx context.Context, token string) (*Session, error)
}

// Clock provides the current time. Tests inject a controllable clock.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// sessionTTL is how long a store must keep a session: until its access token
// expires when it cannot be refreshed, forever (zero) otherwise.
func sessionTTL(s *Session, now time.Time) time.Duration {
	if s.Refreshable() || s.ExpiresAt.IsZero() {
		return 0
	}
	ttl := s.ExpiresAt.Sub(now)
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}
