package oauth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"integrate/internal/testing/mock"
)

func newPending(state string) *PendingAuthorization {
	return &PendingAuthorization{
		Provider:     "github",
		State:        state,
		CodeVerifier: "verifier-" + state,
		RedirectURI:  "https://app.example.com/callback",
		InitiatedAt:  time.Now(),
	}
}

func TestStateStore_TakeIsSingleUse(t *testing.T) {
	ss := NewStateStore(nil)
	defer ss.Stop()
	ctx := context.Background()

	if err := ss.PutPending(ctx, newPending("s1"), time.Minute); err != nil {
		t.Fatalf("PutPending() error = %v", err)
	}

	got, err := ss.TakePending(ctx, "s1")
	if err != nil || got == nil {
		t.Fatalf("expected pending authorization, got %v, %v", got, err)
	}
	if got.CodeVerifier != "verifier-s1" {
		t.Errorf("CodeVerifier = %q", got.CodeVerifier)
	}

	again, err := ss.TakePending(ctx, "s1")
	if err != nil || again != nil {
		t.Errorf("expected second take to return nil, got %v, %v", again, err)
	}
}

func TestStateStore_UnknownState(t *testing.T) {
	ss := NewStateStore(nil)
	defer ss.Stop()

	got, err := ss.TakePending(context.Background(), "never-issued")
	if err != nil || got != nil {
		t.Errorf("expected nil, got %v, %v", got, err)
	}
}

func TestStateStore_Expiry(t *testing.T) {
	clock := mock.NewMockClock(time.Time{})
	ss := NewStateStore(clock)
	defer ss.Stop()
	ctx := context.Background()

	_ = ss.PutPending(ctx, newPending("s1"), time.Minute)
	clock.Advance(time.Minute)

	got, _ := ss.TakePending(ctx, "s1")
	if got != nil {
		t.Error("expected expired state to be rejected")
	}
	if ss.Count() != 0 {
		t.Errorf("expected expired state to be removed, %d left", ss.Count())
	}
}

func TestStateStore_DefaultTTL(t *testing.T) {
	clock := mock.NewMockClock(time.Time{})
	ss := NewStateStore(clock)
	defer ss.Stop()
	ctx := context.Background()

	_ = ss.PutPending(ctx, newPending("s1"), 0)
	clock.Advance(DefaultStateTTL - time.Second)
	if got, _ := ss.TakePending(ctx, "s1"); got == nil {
		t.Error("expected state to be valid just before the default TTL")
	}
}

func TestStateStore_Cleanup(t *testing.T) {
	clock := mock.NewMockClock(time.Time{})
	ss := NewStateStore(clock)
	defer ss.Stop()
	ctx := context.Background()

	_ = ss.PutPending(ctx, newPending("old"), time.Minute)
	_ = ss.PutPending(ctx, newPending("fresh"), time.Hour)
	clock.Advance(2 * time.Minute)

	if n := ss.Cleanup(); n != 1 {
		t.Errorf("Cleanup() removed %d, want 1", n)
	}
	if ss.Count() != 1 {
		t.Errorf("Count() = %d, want 1", ss.Count())
	}
}

func TestStateStore_ConcurrentTake(t *testing.T) {
	ss := NewStateStore(nil)
	defer ss.Stop()
	ctx := context.Background()
	_ = ss.PutPending(ctx, newPending("contended"), time.Minute)

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p, _ := ss.TakePending(ctx, "contended"); p != nil {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("expected exactly one consumer, got %d", winners)
	}
}

func TestStateStore_StopTwice(t *testing.T) {
	ss := NewStateStore(nil)
	ss.Stop()
	ss.Stop()
}
