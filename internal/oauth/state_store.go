package oauth

import (
	"context"
	"sync"
	"time"

	"integrate/pkg/logging"
)

// DefaultStateTTL is how long a pending authorization stays valid.
const DefaultStateTTL = 10 * time.Minute

type pendingEntry struct {
	auth      *PendingAuthorization
	expiresAt time.Time
}

// StateStore is the in-memory PendingStore. Records are keyed by the full
// state value and removed on first lookup, whether valid or expired.
type StateStore struct {
	mu     sync.Mutex
	states map[string]pendingEntry

	clock       Clock
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewStateStore creates a new state store and starts its cleanup loop.
// A nil clock uses the system time.
func NewStateStore(clock Clock) *StateStore {
	if clock == nil {
		clock = realClock{}
	}
	ss := &StateStore{
		states:      make(map[string]pendingEntry),
		clock:       clock,
		stopCleanup: make(chan struct{}),
	}

	go ss.cleanupLoop()

	return ss
}

// PutPending implements PendingStore.
func (ss *StateStore) PutPending(_ context.Context, p *PendingAuthorization, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	cp := *p
	ss.mu.Lock()
	ss.states[p.State] = pendingEntry{auth: &cp, expiresAt: ss.clock.Now().Add(ttl)}
	ss.mu.Unlock()

	logging.Debug("OAuth", "Stored pending authorization provider=%s state=%s", p.Provider, logging.TruncateSecret(p.State))
	return nil
}

// TakePending implements PendingStore.
func (ss *StateStore) TakePending(_ context.Context, state string) (*PendingAuthorization, error) {
	ss.mu.Lock()
	entry, exists := ss.states[state]
	if exists {
		delete(ss.states, state)
	}
	ss.mu.Unlock()

	if !exists {
		logging.Debug("OAuth", "State not found in store: state=%s", logging.TruncateSecret(state))
		return nil, nil
	}

	if !ss.clock.Now().Before(entry.expiresAt) {
		logging.Warn("OAuth", "State expired: state=%s age=%v",
			logging.TruncateSecret(state), ss.clock.Now().Sub(entry.auth.InitiatedAt))
		return nil, nil
	}

	return entry.auth, nil
}

// Count returns the number of pending authorizations, expired or not.
func (ss *StateStore) Count() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.states)
}

// Stop stops the background cleanup goroutine. It is safe to call twice.
func (ss *StateStore) Stop() {
	ss.stopOnce.Do(func() { close(ss.stopCleanup) })
}

func (ss *StateStore) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ss.Cleanup()
		case <-ss.stopCleanup:
			return
		}
	}
}

// Cleanup removes all expired states from the store.
func (ss *StateStore) Cleanup() int {
	now := ss.clock.Now()

	ss.mu.Lock()
	defer ss.mu.Unlock()

	count := 0
	for state, entry := range ss.states {
		if !now.Before(entry.expiresAt) {
			delete(ss.states, state)
			count++
		}
	}

	if count > 0 {
		logging.Debug("OAuth", "Cleaned up %d expired states", count)
	}
	return count
}
