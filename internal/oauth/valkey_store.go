package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"integrate/pkg/logging"
)

// DefaultValkeyPrefix namespaces all keys written by ValkeyStore.
const DefaultValkeyPrefix = "integrate:oauth:"

// ValkeyStore implements PendingStore and SessionStore on Valkey (or any
// Redis-compatible server), so several server replicas can share flows.
// Pending records use SET PX for expiry and GETDEL for single-use consumption.
type ValkeyStore struct {
	client valkey.Client
	prefix string
	clock  Clock
}

// ValkeyOptions configures the connection used by DialValkey.
type ValkeyOptions struct {
	Addrs    []string
	Username string
	Password string
	DB       int

	// Standalone skips cluster topology detection.
	Standalone bool
}

// DialValkey opens a Valkey client with client-side caching disabled.
func DialValkey(opts ValkeyOptions) (valkey.Client, error) {
	if len(opts.Addrs) == 0 {
		return nil, fmt.Errorf("valkey: at least one address is required")
	}
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:       opts.Addrs,
		Username:          opts.Username,
		Password:          opts.Password,
		SelectDB:          opts.DB,
		DisableCache:      true,
		ForceSingleClient: opts.Standalone,
	})
	if err != nil {
		return nil, fmt.Errorf("valkey: failed to connect to %v: %w", opts.Addrs, err)
	}
	return client, nil
}

// NewValkeyStore wraps an existing client. An empty prefix uses
// DefaultValkeyPrefix; a nil clock uses the system time.
func NewValkeyStore(client valkey.Client, prefix string, clock Clock) *ValkeyStore {
	if prefix == "" {
		prefix = DefaultValkeyPrefix
	}
	if clock == nil {
		clock = realClock{}
	}
	return &ValkeyStore{client: client, prefix: prefix, clock: clock}
}

func (s *ValkeyStore) pendingKey(state string) string { return s.prefix + "pending:" + state }
func (s *ValkeyStore) sessionKey(token string) string { return s.prefix + "session:" + token }

// PutPending implements PendingStore.
func (s *ValkeyStore) PutPending(ctx context.Context, p *PendingAuthorization, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode pending authorization: %w", err)
	}
	cmd := s.client.B().Set().Key(s.pendingKey(p.State)).Value(string(raw)).Px(ttl).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to store pending authorization: %w", err)
	}
	return nil
}

// TakePending implements PendingStore.
func (s *ValkeyStore) TakePending(ctx context.Context, state string) (*PendingAuthorization, error) {
	raw, err := s.client.Do(ctx, s.client.B().Getdel().Key(s.pendingKey(state)).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pending authorization: %w", err)
	}

	var p PendingAuthorization
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		logging.Warn("OAuth", "Discarding undecodable pending authorization state=%s: %v", logging.TruncateSecret(state), err)
		return nil, nil
	}
	return &p, nil
}

// PutSession implements SessionStore.
func (s *ValkeyStore) PutSession(ctx context.Context, sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	key := s.sessionKey(sess.Token)

	var cmd valkey.Completed
	if ttl := sessionTTL(sess, s.clock.Now()); ttl > 0 {
		cmd = s.client.B().Set().Key(key).Value(string(raw)).Px(ttl).Build()
	} else {
		cmd = s.client.B().Set().Key(key).Value(string(raw)).Build()
	}
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// GetSession implements SessionStore.
func (s *ValkeyStore) GetSession(ctx context.Context, token string) (*Session, error) {
	raw, err := s.client.Do(ctx, s.client.B().Get().Key(s.sessionKey(token)).Build()).ToString()
	return s.decodeSession(raw, err)
}

// DeleteSession implements SessionStore.
func (s *ValkeyStore) DeleteSession(ctx context.Context, token string) (*Session, error) {
	raw, err := s.client.Do(ctx, s.client.B().Getdel().Key(s.sessionKey(token)).Build()).ToString()
	return s.decodeSession(raw, err)
}

func (s *ValkeyStore) decodeSession(raw string, err error) (*Session, error) {
	if valkey.IsValkeyNil(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &sess, nil
}

// Stop closes the underlying client.
func (s *ValkeyStore) Stop() {
	s.client.Close()
}
