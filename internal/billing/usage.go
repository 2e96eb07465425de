package billing

import (
	"context"
	"log/slog"
	"time"

	"vega/internal/models"
	"vega/internal/types"
)

// DailyMessageLimit is the number of messages a free user may send per
// UTC day.
const DailyMessageLimit = 10

// RateLimitBypass decides whether a model is exempt from the daily count.
// *models.Registry satisfies it.
type RateLimitBypass interface {
	ShouldBypassRateLimits(modelID string, caller types.Caller) bool
}

type defaultBypass struct{}

func (defaultBypass) ShouldBypassRateLimits(modelID string, caller types.Caller) bool {
	return models.ShouldBypassRateLimits(modelID, caller)
}

// UsageSnapshot is the caller's standing against the daily limit. Limit
// and Remaining are zero when Unlimited is set.
type UsageSnapshot struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Unlimited bool      `json:"unlimited"`
	ResetAt   time.Time `json:"resetAt"`
}

// UsageGate enforces the free tier's daily message limit. Paid users and
// bypass models are never counted against it.
type UsageGate struct {
	store  UsageStore
	bypass RateLimitBypass
	limit  int
	clock  types.Clock
	logger *slog.Logger
}

// UsageGateConfig wires a UsageGate. Limit defaults to DailyMessageLimit.
type UsageGateConfig struct {
	Store  UsageStore
	Bypass RateLimitBypass
	Limit  int
	Clock  types.Clock
	Logger *slog.Logger
}

func NewUsageGate(cfg UsageGateConfig) *UsageGate {
	g := &UsageGate{
		store:  cfg.Store,
		bypass: cfg.Bypass,
		limit:  cfg.Limit,
		clock:  cfg.Clock,
		logger: cfg.Logger,
	}
	if g.bypass == nil {
		g.bypass = defaultBypass{}
	}
	if g.limit <= 0 {
		g.limit = DailyMessageLimit
	}
	if g.clock == nil {
		g.clock = types.RealClock{}
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

func nextUTCMidnight(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

// Snapshot reports today's usage for caller.
func (g *UsageGate) Snapshot(ctx context.Context, caller types.Caller) (*UsageSnapshot, error) {
	if !caller.IsAuthenticated() {
		return nil, types.NewScopedError(types.ErrorTypeUnauthorized, types.SurfaceChat, "")
	}
	now := g.clock.Now()
	used, err := g.store.GetDailyMessageCount(ctx, caller.UserID(), now)
	if err != nil {
		return nil, err
	}
	return g.snapshot(caller, used, now), nil
}

func (g *UsageGate) snapshot(caller types.Caller, used int, now time.Time) *UsageSnapshot {
	s := &UsageSnapshot{Used: used, ResetAt: nextUTCMidnight(now)}
	if caller.IsPro() {
		s.Unlimited = true
		return s
	}
	s.Limit = g.limit
	s.Remaining = max(g.limit-used, 0)
	return s
}

// Check reports whether caller may send one more message to modelID
// without recording it.
func (g *UsageGate) Check(ctx context.Context, caller types.Caller, modelID string) (*UsageSnapshot, error) {
	s, err := g.Snapshot(ctx, caller)
	if err != nil {
		return nil, err
	}
	if s.Unlimited || g.bypass.ShouldBypassRateLimits(modelID, caller) {
		return s, nil
	}
	if s.Remaining == 0 {
		return s, types.NewScopedError(types.ErrorTypeRateLimit, types.SurfaceChat, "daily message limit reached")
	}
	return s, nil
}

// Record checks the limit and counts one message to modelID. Messages
// from paid users are counted but never denied; bypass models are not
// counted. Two concurrent requests at the boundary may both pass.
func (g *UsageGate) Record(ctx context.Context, caller types.Caller, modelID string) (*UsageSnapshot, error) {
	s, err := g.Check(ctx, caller, modelID)
	if err != nil {
		if s != nil {
			g.logger.InfoContext(ctx, "daily message limit reached",
				"user_id", caller.UserID(),
				"model", modelID,
				"used", s.Used,
			)
		}
		return s, err
	}
	if g.bypass.ShouldBypassRateLimits(modelID, caller) {
		return s, nil
	}

	now := g.clock.Now()
	used, err := g.store.IncrementDailyMessageCount(ctx, caller.UserID(), now)
	if err != nil {
		return nil, err
	}
	return g.snapshot(caller, used, now), nil
}
