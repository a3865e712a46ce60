package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps counters in-process behind a mutex. Correct for a
// single gateway instance; per-instance counters undercount the global
// rate when the gateway is scaled horizontally, which is what RedisStore
// is for.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	count   int64
	resetAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	now := s.now()
	seconds := int64(window.Seconds())
	resetAt := time.Unix((now.Unix()/seconds+1)*seconds, 0)

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{resetAt: resetAt}
		s.buckets[key] = b
	}

	b.count++
	return b.count, b.resetAt, nil
}

// Cleanup drops expired buckets so idle keys don't accumulate.
func (s *MemoryStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, b := range s.buckets {
		if !now.Before(b.resetAt) {
			delete(s.buckets, key)
		}
	}
}

// StartJanitor runs Cleanup periodically until ctx is done.
func (s *MemoryStore) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	ticker := time.NewTicker(every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup()
			}
		}
	}()
}
