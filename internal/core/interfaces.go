package core

import (
	"context"
	"time"

	"vega/internal/types"
)

// Authenticator decouples the HTTP layer from the session store, allowing
// for easy mocking in tests.
type Authenticator interface {
	// ResolveToken returns the Actor owning the session token. Unknown tokens
	// yield auth_token_invalid; expired sessions yield auth_session_expired.
	ResolveToken(ctx context.Context, token string) (*types.Actor, error)
}

// RateLimitStore abstracts the backing store for request rate limiting.
// Production uses Redis so every instance shares one counter; single-node
// and test setups use the in-memory store.
type RateLimitStore interface {
	// IncrementAndCheck atomically increments the counter for key and reports
	// whether the limit has been exceeded within the window.
	IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error)
}

// RateLimitResult contains the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}
