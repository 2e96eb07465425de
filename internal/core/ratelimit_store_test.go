package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedisCounter scripts the replies of the Redis commands used by the
// fixed-window counter.
type fakeRedisCounter struct {
	incr      int64
	incrErr   error
	ttl       time.Duration
	expireSet []time.Duration
	keys      []string
}

func (f *fakeRedisCounter) Incr(_ context.Context, key string) *redis.IntCmd {
	f.keys = append(f.keys, key)
	return redis.NewIntResult(f.incr, f.incrErr)
}

func (f *fakeRedisCounter) PExpire(_ context.Context, _ string, expiration time.Duration) *redis.BoolCmd {
	f.expireSet = append(f.expireSet, expiration)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedisCounter) PTTL(_ context.Context, _ string) *redis.DurationCmd {
	return redis.NewDurationResult(f.ttl, nil)
}

func TestRedisRateLimitStore_FirstHitSetsExpiry(t *testing.T) {
	fake := &fakeRedisCounter{incr: 1, ttl: time.Minute}
	store := NewRedisRateLimitStore(fake)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	res, err := store.IncrementAndCheck(context.Background(), "user:u1", 3, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed || res.Remaining != 2 || !res.ResetAt.Equal(now.Add(time.Minute)) {
		t.Errorf("result = %+v", res)
	}
	if len(fake.expireSet) != 1 || fake.expireSet[0] != time.Minute {
		t.Errorf("expire calls = %v", fake.expireSet)
	}
	if fake.keys[0] != "vega:ratelimit:user:u1" {
		t.Errorf("key = %q", fake.keys[0])
	}
}

func TestRedisRateLimitStore_OverLimit(t *testing.T) {
	fake := &fakeRedisCounter{incr: 4, ttl: 20 * time.Second}
	store := NewRedisRateLimitStore(fake)

	res, err := store.IncrementAndCheck(context.Background(), "user:u1", 3, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed || res.Remaining != 0 {
		t.Errorf("result = %+v", res)
	}
	if len(fake.expireSet) != 0 {
		t.Errorf("expiry should only be set on the first hit, got %v", fake.expireSet)
	}
}

func TestRedisRateLimitStore_RepairsMissingTTL(t *testing.T) {
	fake := &fakeRedisCounter{incr: 2, ttl: -1}
	store := NewRedisRateLimitStore(fake)

	if _, err := store.IncrementAndCheck(context.Background(), "k", 3, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.expireSet) != 1 {
		t.Errorf("missing TTL should be repaired, expire calls = %v", fake.expireSet)
	}
}

func TestRedisRateLimitStore_IncrError(t *testing.T) {
	fake := &fakeRedisCounter{incrErr: errors.New("connection refused")}
	store := NewRedisRateLimitStore(fake)

	if _, err := store.IncrementAndCheck(context.Background(), "k", 3, time.Minute); err == nil {
		t.Fatal("expected error")
	}
}

func TestMemoryRateLimitStore_WindowRollsOver(t *testing.T) {
	store := NewMemoryRateLimitStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		res, _ := store.IncrementAndCheck(ctx, "ip:1.2.3.4", 2, time.Minute)
		if !res.Allowed || res.Remaining != 2-i {
			t.Fatalf("hit %d: %+v", i, res)
		}
	}
	res, _ := store.IncrementAndCheck(ctx, "ip:1.2.3.4", 2, time.Minute)
	if res.Allowed {
		t.Fatal("third hit should be denied")
	}

	other, _ := store.IncrementAndCheck(ctx, "ip:5.6.7.8", 2, time.Minute)
	if !other.Allowed {
		t.Error("keys must be counted independently")
	}

	now = now.Add(time.Minute)
	res, _ = store.IncrementAndCheck(ctx, "ip:1.2.3.4", 2, time.Minute)
	if !res.Allowed || res.Remaining != 1 {
		t.Errorf("new window result = %+v", res)
	}
}

func TestMemoryRateLimitStore_SweepsEveryNWindows(t *testing.T) {
	store := NewMemoryRateLimitStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	store.IncrementAndCheck(ctx, "ip:stale", 10, time.Minute)
	now = now.Add(2 * time.Minute)

	for i := 2; i < rateSweepEvery; i++ {
		store.IncrementAndCheck(ctx, fmt.Sprintf("ip:%d", i), 10, time.Minute)
	}
	if _, ok := store.windows["ip:stale"]; !ok {
		t.Fatal("finished windows should wait for the next sweep")
	}

	store.IncrementAndCheck(ctx, "ip:last", 10, time.Minute)
	if _, ok := store.windows["ip:stale"]; ok {
		t.Error("finished window should be evicted by the sweep")
	}
	if len(store.windows) != rateSweepEvery-1 {
		t.Errorf("expected %d live windows, got %d", rateSweepEvery-1, len(store.windows))
	}
}
