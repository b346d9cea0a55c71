package oauth

import (
	"context"
	"sync"
	"time"

	"integrate/pkg/logging"
)

// TokenStore is the in-memory SessionStore.
type TokenStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	clock           Clock
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewTokenStore creates a new in-memory session store.
// It starts a background goroutine that evicts sessions whose access token
// expired and which cannot be refreshed.
func NewTokenStore(clock Clock) *TokenStore {
	if clock == nil {
		clock = realClock{}
	}
	ts := &TokenStore{
		sessions:        make(map[string]*Session),
		clock:           clock,
		cleanupInterval: 5 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	go ts.cleanupLoop()

	return ts
}

// PutSession implements SessionStore. Existing sessions are replaced.
func (ts *TokenStore) PutSession(_ context.Context, s *Session) error {
	ts.mu.Lock()
	ts.sessions[s.Token] = s.clone()
	ts.mu.Unlock()

	logging.Debug("OAuth", "Stored session=%s provider=%s (expires: %v)",
		logging.TruncateSecret(s.Token), s.Provider, s.ExpiresAt)
	return nil
}

// GetSession implements SessionStore. Expired sessions are still returned so
// the caller can decide whether to refresh them.
func (ts *TokenStore) GetSession(_ context.Context, token string) (*Session, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	s, ok := ts.sessions[token]
	if !ok {
		return nil, nil
	}
	return s.clone(), nil
}

// DeleteSession implements SessionStore.
func (ts *TokenStore) DeleteSession(_ context.Context, token string) (*Session, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	s, ok := ts.sessions[token]
	if !ok {
		return nil, nil
	}
	delete(ts.sessions, token)
	return s, nil
}

// Count returns the number of stored sessions.
func (ts *TokenStore) Count() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.sessions)
}

// Stop stops the background cleanup goroutine. It is safe to call twice.
func (ts *TokenStore) Stop() {
	ts.stopOnce.Do(func() { close(ts.stopCleanup) })
}

func (ts *TokenStore) cleanupLoop() {
	ticker := time.NewTicker(ts.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ts.Cleanup()
		case <-ts.stopCleanup:
			return
		}
	}
}

// Cleanup removes sessions that are expired and cannot be refreshed.
func (ts *TokenStore) Cleanup() int {
	now := ts.clock.Now()

	ts.mu.Lock()
	defer ts.mu.Unlock()

	count := 0
	for token, s := range ts.sessions {
		if !s.Refreshable() && s.Expired(now, 0) {
			delete(ts.sessions, token)
			count++
		}
	}

	if count > 0 {
		logging.Debug("OAuth", "Cleaned up %d expired sessions", count)
	}
	return count
}
