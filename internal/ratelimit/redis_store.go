package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/sistema-pontificia/gateway/internal/storage"
)

// RedisStore shares counters across gateway instances. Redis INCR is
// atomic, so increment-and-compare cannot race between instances.
type RedisStore struct {
	redis *storage.RedisClient
	now   func() time.Time
}

func NewRedisStore(redis *storage.RedisClient) *RedisStore {
	return &RedisStore{
		redis: redis,
		now:   time.Now,
	}
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	seconds := int64(window.Seconds())
	currentWindow := s.now().Unix() / seconds
	redisKey := fmt.Sprintf("ratelimit:%s:%d", key, currentWindow)

	count, err := s.redis.Incr(ctx, redisKey)
	if err != nil {
		return 0, time.Time{}, err
	}

	if count == 1 {
		if err := s.redis.Expire(ctx, redisKey, window); err != nil {
			return 0, time.Time{}, err
		}
	}

	resetAt := time.Unix((currentWindow+1)*seconds, 0)
	return count, resetAt, nil
}
