package core

import (
	"context"
	"sync"
	"time"

	"vega/internal/types"
)

// MockAuthenticator implements Authenticator for tests. ResolveTokenFunc
// takes precedence over Err, which takes precedence over Actor.
type MockAuthenticator struct {
	Actor            *types.Actor
	Err              error
	ResolveTokenFunc func(ctx context.Context, token string) (*types.Actor, error)

	mu    sync.Mutex
	Calls []string
}

// ResolveToken implements Authenticator.
func (m *MockAuthenticator) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, token)
	m.mu.Unlock()

	if m.ResolveTokenFunc != nil {
		return m.ResolveTokenFunc(ctx, token)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Actor, nil
}

// MockRateLimitStore implements RateLimitStore for tests.
type MockRateLimitStore struct {
	Result RateLimitResult
	Err    error

	mu    sync.Mutex
	Calls []RateLimitCall
}

// RateLimitCall records the arguments of one IncrementAndCheck invocation.
type RateLimitCall struct {
	Key    string
	Limit  int
	Window time.Duration
}

// IncrementAndCheck implements RateLimitStore.
func (m *MockRateLimitStore) IncrementAndCheck(_ context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, RateLimitCall{Key: key, Limit: limit, Window: window})
	m.mu.Unlock()
	return m.Result, m.Err
}

var (
	_ Authenticator  = (*MockAuthenticator)(nil)
	_ RateLimitStore = (*MockRateLimitStore)(nil)
	_ RateLimitStore = (*MemoryRateLimitStore)(nil)
	_ RateLimitStore = (*RedisRateLimitStore)(nil)
)
