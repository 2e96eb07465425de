package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "vega:ratelimit:"

// RedisCounter is the subset of the go-redis client used for fixed-window
// counting. *redis.Client satisfies it.
type RedisCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	PExpire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	PTTL(ctx context.Context, key string) *redis.DurationCmd
}

// RedisRateLimitStore implements RateLimitStore with one INCR'd key per
// caller and window, shared by every API instance.
type RedisRateLimitStore struct {
	client RedisCounter
	now    func() time.Time
}

// NewRedisRateLimitStore creates a Redis-backed rate limit store.
func NewRedisRateLimitStore(client RedisCounter) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client, now: time.Now}
}

// IncrementAndCheck implements RateLimitStore.
func (s *RedisRateLimitStore) IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	k := rateLimitKeyPrefix + key

	count, err := s.client.Incr(ctx, k).Result()
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("rate limit incr %s: %w", key, err)
	}
	if count == 1 {
		if err := s.client.PExpire(ctx, k, window).Err(); err != nil {
			return RateLimitResult{}, fmt.Errorf("rate limit expire %s: %w", key, err)
		}
	}

	ttl, err := s.client.PTTL(ctx, k).Result()
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("rate limit ttl %s: %w", key, err)
	}
	// A key without expiry would never reset; repair it.
	if ttl < 0 {
		if err := s.client.PExpire(ctx, k, window).Err(); err != nil {
			return RateLimitResult{}, fmt.Errorf("rate limit expire %s: %w", key, err)
		}
		ttl = window
	}

	return windowResult(int(count), limit, s.now().Add(ttl)), nil
}

// MemoryRateLimitStore is a process-local RateLimitStore for single-node and
// local deployments.
type MemoryRateLimitStore struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	now     func() time.Time
	opened  int
}

// rateSweepEvery is the number of opened windows between sweeps of finished
// ones.
const rateSweepEvery = 256

type rateWindow struct {
	count   int
	resetAt time.Time
}

// NewMemoryRateLimitStore creates an empty in-memory store.
func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{
		windows: make(map[string]*rateWindow),
		now:     time.Now,
	}
}

// IncrementAndCheck implements RateLimitStore.
func (s *MemoryRateLimitStore) IncrementAndCheck(_ context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &rateWindow{resetAt: now.Add(window)}
		s.windows[key] = w
		s.opened++
		if s.opened%rateSweepEvery == 0 {
			s.evictExpired(now)
		}
	}
	w.count++

	return windowResult(w.count, limit, w.resetAt), nil
}

// evictExpired drops finished windows. mu must be held.
func (s *MemoryRateLimitStore) evictExpired(now time.Time) {
	for k, w := range s.windows {
		if !now.Before(w.resetAt) {
			delete(s.windows, k)
		}
	}
}

func windowResult(count, limit int, resetAt time.Time) RateLimitResult {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitResult{
		Allowed:   count <= limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
