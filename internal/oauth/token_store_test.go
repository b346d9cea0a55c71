package oauth

import (
	"context"
	"testing"
	"time"

	"integrate/internal/testing/mock"
)

func TestTokenStore_PutGetDelete(t *testing.T) {
	ts := NewTokenStore(nil)
	defer ts.Stop()
	ctx := context.Background()

	sess := &Session{Token: "t1", Provider: "github", AccessToken: "tok123", Scopes: []string{"repo"}}
	if err := ts.PutSession(ctx, sess); err != nil {
		t.Fatalf("PutSession() error = %v", err)
	}

	got, err := ts.GetSession(ctx, "t1")
	if err != nil || got == nil {
		t.Fatalf("GetSession() = %v, %v", got, err)
	}
	if got.AccessToken != "tok123" {
		t.Errorf("AccessToken = %q", got.AccessToken)
	}

	// Returned sessions are copies.
	got.Scopes[0] = "mutated"
	again, _ := ts.GetSession(ctx, "t1")
	if again.Scopes[0] != "repo" {
		t.Error("expected store to be isolated from caller mutation")
	}

	removed, err := ts.DeleteSession(ctx, "t1")
	if err != nil || removed == nil || removed.Token != "t1" {
		t.Fatalf("DeleteSession() = %v, %v", removed, err)
	}
	if got, _ := ts.GetSession(ctx, "t1"); got != nil {
		t.Error("expected session to be gone")
	}
	if removed, _ := ts.DeleteSession(ctx, "t1"); removed != nil {
		t.Error("expected second delete to return nil")
	}
}

func TestTokenStore_Cleanup(t *testing.T) {
	clock := mock.NewMockClock(time.Time{})
	ts := NewTokenStore(clock)
	defer ts.Stop()
	ctx := context.Background()

	now := clock.Now()
	_ = ts.PutSession(ctx, &Session{Token: "expired", ExpiresAt: now.Add(time.Minute)})
	_ = ts.PutSession(ctx, &Session{Token: "refreshable", RefreshToken: "r", ExpiresAt: now.Add(time.Minute)})
	_ = ts.PutSession(ctx, &Session{Token: "forever"})
	clock.Advance(time.Hour)

	if n := ts.Cleanup(); n != 1 {
		t.Errorf("Cleanup() removed %d, want 1", n)
	}
	if ts.Count() != 2 {
		t.Errorf("Count() = %d, want 2", ts.Count())
	}
	if got, _ := ts.GetSession(ctx, "refreshable"); got == nil {
		t.Error("expected refreshable session to survive cleanup")
	}
}

func TestSession_Expired(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		expires time.Time
		margin  time.Duration
		want    bool
	}{
		{"no expiry", time.Time{}, time.Minute, false},
		{"future", now.Add(time.Hour), 30 * time.Second, false},
		{"within margin", now.Add(10 * time.Second), 30 * time.Second, true},
		{"past", now.Add(-time.Second), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{ExpiresAt: tt.expires}
			if got := s.Expired(now, tt.margin); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}
