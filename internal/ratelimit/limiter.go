// Package ratelimit implements fixed-window request counting per client
// key. Two windows apply at once: a short per-minute ceiling and a longer
// per-hour ceiling. Counters live behind the CounterStore interface so a
// single-instance deployment can use the in-memory store while a
// multi-instance deployment shares counters through redis.
package ratelimit

import (
	"context"
	"log"
	"time"
)

// Window names one of the two fixed windows a counter belongs to.
type Window string

const (
	WindowMinute Window = "per_minute"
	WindowHour   Window = "per_hour"
)

func (w Window) Duration() time.Duration {
	if w == WindowHour {
		return time.Hour
	}
	return time.Minute
}

// CounterStore atomically increments the counter for (key, window) and
// reports the post-increment count plus the moment the window rolls over.
// The increment must be indivisible: two concurrent calls for the same key
// must never observe the same count.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// Limits carries the ceilings for both windows.
type Limits struct {
	PerMinute int
	PerHour   int
}

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed    bool
	Window     Window
	RetryAfter time.Duration
	Limit      int
	Remaining  int
	ResetAt    time.Time
}

type Limiter struct {
	store CounterStore
	now   func() time.Time
}

func New(store CounterStore) *Limiter {
	return &Limiter{
		store: store,
		now:   time.Now,
	}
}

// Check increments both window counters for key and compares them against
// limits. Both must pass for Allowed. If the store is unreachable the
// limiter fails open: the request is allowed and the failure is logged.
func (l *Limiter) Check(ctx context.Context, key string, limits Limits) Decision {
	decision := Decision{
		Allowed:   true,
		Limit:     limits.PerMinute,
		Remaining: limits.PerMinute,
	}

	for _, check := range []struct {
		window Window
		limit  int
	}{
		{WindowMinute, limits.PerMinute},
		{WindowHour, limits.PerHour},
	} {
		count, resetAt, err := l.store.Incr(ctx, string(check.window)+":"+key, check.window.Duration())
		if err != nil {
			// Fail open: a counter store outage must not block all traffic.
			log.Printf("rate limit store unavailable, allowing request for %s: %v", key, err)
			continue
		}

		if count > int64(check.limit) {
			return Decision{
				Allowed:    false,
				Window:     check.window,
				RetryAfter: resetAt.Sub(l.now()),
				Limit:      check.limit,
				Remaining:  0,
				ResetAt:    resetAt,
			}
		}

		if check.window == WindowMinute {
			decision.Remaining = check.limit - int(count)
			decision.ResetAt = resetAt
		}
	}

	return decision
}
