package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreCountsWithinWindow(t *testing.T) {
	store := NewMemoryStore()

	for i := 1; i <= 3; i++ {
		count, _, err := store.Incr(context.Background(), "k", time.Minute)
		if err != nil {
			t.Fatalf("Incr failed: %v", err)
		}
		if count != int64(i) {
			t.Errorf("count = %d, want %d", count, i)
		}
	}
}

func TestMemoryStoreResetsAfterWindow(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(1000, 0)
	store.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		store.Incr(context.Background(), "k", time.Minute)
	}

	// Advance past the window boundary.
	now = now.Add(2 * time.Minute)

	count, _, err := store.Incr(context.Background(), "k", time.Minute)
	if err != nil {
		t.Fatalf("Incr failed: %v", err)
	}
	if count != 1 {
		t.Errorf("count after rollover = %d, want 1", count)
	}
}

func TestMemoryStoreCleanup(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(1000, 0)
	store.now = func() time.Time { return now }

	store.Incr(context.Background(), "a", time.Minute)
	store.Incr(context.Background(), "b", time.Minute)

	now = now.Add(2 * time.Minute)
	store.Cleanup()

	store.mu.Lock()
	remaining := len(store.buckets)
	store.mu.Unlock()

	if remaining != 0 {
		t.Errorf("buckets after cleanup = %d, want 0", remaining)
	}
}

func TestLimiterAllowsUpToLimit(t *testing.T) {
	limiter := New(NewMemoryStore())
	limits := Limits{PerMinute: 5, PerHour: 100}

	for i := 0; i < 5; i++ {
		decision := limiter.Check(context.Background(), "client", limits)
		if !decision.Allowed {
			t.Fatalf("request %d rejected, want allowed", i+1)
		}
	}

	decision := limiter.Check(context.Background(), "client", limits)
	if decision.Allowed {
		t.Fatal("6th request allowed, want rejected")
	}
	if decision.Window != WindowMinute {
		t.Errorf("window = %q, want %q", decision.Window, WindowMinute)
	}
	if decision.RetryAfter <= 0 || decision.RetryAfter > time.Minute {
		t.Errorf("retry_after = %v, want within (0, 60s]", decision.RetryAfter)
	}
}

func TestLimiterRecoversAfterWindowRollover(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(1000, 0)
	store.now = func() time.Time { return now }

	limiter := New(store)
	limiter.now = store.now
	limits := Limits{PerMinute: 2, PerHour: 100}

	limiter.Check(context.Background(), "k", limits)
	limiter.Check(context.Background(), "k", limits)
	if limiter.Check(context.Background(), "k", limits).Allowed {
		t.Fatal("3rd request in window allowed, want rejected")
	}

	now = now.Add(2 * time.Minute)

	if !limiter.Check(context.Background(), "k", limits).Allowed {
		t.Fatal("request after window rollover rejected, want allowed")
	}
}

func TestLimiterHourWindow(t *testing.T) {
	limiter := New(NewMemoryStore())
	limits := Limits{PerMinute: 100, PerHour: 3}

	for i := 0; i < 3; i++ {
		if !limiter.Check(context.Background(), "k", limits).Allowed {
			t.Fatalf("request %d rejected, want allowed", i+1)
		}
	}

	decision := limiter.Check(context.Background(), "k", limits)
	if decision.Allowed {
		t.Fatal("4th request allowed, want rejected by hour window")
	}
	if decision.Window != WindowHour {
		t.Errorf("window = %q, want %q", decision.Window, WindowHour)
	}
}

// Firing 50 simultaneous requests against a limit of 10 must allow exactly
// 10 through. Increment-and-compare has to be indivisible per key.
func TestLimiterConcurrentRequestsNeverOvercount(t *testing.T) {
	limiter := New(NewMemoryStore())
	limits := Limits{PerMinute: 10, PerHour: 1000}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Check(context.Background(), "shared", limits).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 10 {
		t.Errorf("allowed = %d, want exactly 10", allowed)
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	limiter := New(NewMemoryStore())
	limits := Limits{PerMinute: 1, PerHour: 100}

	if !limiter.Check(context.Background(), "a", limits).Allowed {
		t.Fatal("first request for a rejected")
	}
	if !limiter.Check(context.Background(), "b", limits).Allowed {
		t.Fatal("request for b rejected, keys must not share counters")
	}
}

type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Duration) (int64, time.Time, error) {
	return 0, time.Time{}, errors.New("store unreachable")
}

func TestLimiterFailsOpenOnStoreError(t *testing.T) {
	limiter := New(failingStore{})

	decision := limiter.Check(context.Background(), "k", Limits{PerMinute: 1, PerHour: 1})
	if !decision.Allowed {
		t.Error("limiter must fail open when the counter store is unreachable")
	}
}
