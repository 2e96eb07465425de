package billing

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"vega/internal/types"
)

// countsAsActive reports whether s grants paid access at now. A canceled
// subscription keeps access until its paid period ends.
func countsAsActive(s *types.Subscription, now time.Time) bool {
	if s.PaymentProvider != "" && s.PaymentProvider != types.ProviderCloudPayments {
		return false
	}
	if s.Status != types.SubscriptionActive && s.Status != types.SubscriptionCanceled {
		return false
	}
	return s.CurrentPeriodEnd.After(now)
}

// DeriveEntitlement computes the entitlement snapshot of userID from their
// subscription rows. The order of subs does not matter.
func DeriveEntitlement(userID string, subs []*types.Subscription, now time.Time) types.Entitlement {
	e := types.Entitlement{
		UserID:             userID,
		ProSource:          types.ProSourceNone,
		SubscriptionStatus: types.StateNone,
		ComputedAt:         now,
	}

	var best *types.Subscription
	anyStatusActive := false
	for _, s := range subs {
		if s == nil || !countsAsActive(s, now) {
			continue
		}
		if s.Status == types.SubscriptionActive {
			anyStatusActive = true
		}
		if best == nil || preferForEntitlement(s, best) {
			best = s
		}
	}

	if best != nil {
		e.IsProUser = true
		e.IsUltraUser = best.IsUltra()
		e.ProSource = types.ProSourceCloudPayments
		e.ProductID = best.ProductID
		end := best.CurrentPeriodEnd
		e.CurrentPeriodEnd = &end
		if anyStatusActive {
			e.SubscriptionStatus = types.StateActive
		} else {
			e.SubscriptionStatus = types.StateCanceled
		}
		return e
	}

	if latest := mostRecent(subs); latest != nil {
		e.SubscriptionStatus = lapsedState(latest)
	}
	return e
}

// preferForEntitlement orders candidate subscriptions: Ultra over Pro, then
// the later period end.
func preferForEntitlement(a, b *types.Subscription) bool {
	if a.IsUltra() != b.IsUltra() {
		return a.IsUltra()
	}
	return a.CurrentPeriodEnd.After(b.CurrentPeriodEnd)
}

func mostRecent(subs []*types.Subscription) *types.Subscription {
	var latest *types.Subscription
	for _, s := range subs {
		if s == nil {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	return latest
}

// lapsedState maps a subscription that grants no access to the state shown
// to the client.
func lapsedState(s *types.Subscription) types.SubscriptionState {
	switch s.Status {
	case types.SubscriptionCanceled:
		return types.StateCanceled
	case types.SubscriptionPaused:
		return types.StatePaused
	default:
		// Expired rows and active rows whose period already ended.
		return types.StateExpired
	}
}

// SubscriptionDetailsFor answers the subscription-details query for subs.
func SubscriptionDetailsFor(subs []*types.Subscription, now time.Time) types.SubscriptionDetails {
	var active *types.Subscription
	for _, s := range subs {
		if s != nil && s.Status == types.SubscriptionActive && countsAsActive(s, now) {
			if active == nil || preferForEntitlement(s, active) {
				active = s
			}
		}
	}
	if active != nil {
		return types.SubscriptionDetails{HasSubscription: true, Subscription: types.SummarizeSubscription(active)}
	}

	latest := mostRecent(subs)
	if latest == nil {
		return types.SubscriptionDetails{HasSubscription: false}
	}

	details := types.SubscriptionDetails{
		HasSubscription: false,
		Subscription:    types.SummarizeSubscription(latest),
	}
	switch {
	case latest.Status == types.SubscriptionCanceled:
		details.ErrorType = types.SubscriptionErrCanceled
		details.Error = "Subscription has been canceled"
	case latest.Status == types.SubscriptionExpired || !latest.CurrentPeriodEnd.After(now):
		details.ErrorType = types.SubscriptionErrExpired
		details.Error = "Subscription has expired"
	default:
		details.ErrorType = types.SubscriptionErrGeneral
		details.Error = "Subscription is not active"
	}
	return details
}

// EntitlementService serves entitlement snapshots through the cache. The
// cache is never authoritative: any cache failure falls back to the
// subscription table.
type EntitlementService struct {
	subs    SubscriptionReader
	users   UserReader
	cache   EntitlementCache
	clock   types.Clock
	metrics Recorder
	logger  *slog.Logger
}

// EntitlementServiceConfig wires an EntitlementService.
type EntitlementServiceConfig struct {
	Subscriptions SubscriptionReader
	Users         UserReader
	Cache         EntitlementCache
	Clock         types.Clock
	Metrics       Recorder
	Logger        *slog.Logger
}

// NewEntitlementService creates the service.
func NewEntitlementService(cfg EntitlementServiceConfig) *EntitlementService {
	s := &EntitlementService{
		subs:    cfg.Subscriptions,
		users:   cfg.Users,
		cache:   cfg.Cache,
		clock:   cfg.Clock,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
	if s.clock == nil {
		s.clock = types.RealClock{}
	}
	if s.metrics == nil {
		s.metrics = noopRecorder{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Get returns the user's entitlement, recomputing and caching it on a miss.
//
// The cache generation is read before the subscription table, so a snapshot
// loaded before an Invalidate is never stored after it.
func (s *EntitlementService) Get(ctx context.Context, userID string) (*types.Entitlement, error) {
	var gen string
	cacheable := false
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, userID)
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "entitlement cache read failed", "user_id", userID, "error", err)
		case ok:
			s.metrics.RecordCacheLookup(true)
			return cached, nil
		default:
			s.metrics.RecordCacheLookup(false)
		}

		if gen, err = s.cache.Generation(ctx, userID); err != nil {
			s.logger.WarnContext(ctx, "entitlement cache generation read failed", "user_id", userID, "error", err)
		} else {
			cacheable = true
		}
	}

	subs, err := s.subs.ListSubscriptionsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	e := DeriveEntitlement(userID, subs, s.clock.Now())

	if cacheable {
		stored, err := s.cache.Set(ctx, &e, gen)
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "entitlement cache write failed", "user_id", userID, "error", err)
		case !stored:
			s.logger.DebugContext(ctx, "entitlement invalidated during recompute, not cached", "user_id", userID)
		}
	}
	return &e, nil
}

// Caller resolves the access-decision subject for an optional user id.
func (s *EntitlementService) Caller(ctx context.Context, userID string) (types.Caller, error) {
	if userID == "" {
		return types.Anonymous(), nil
	}
	e, err := s.Get(ctx, userID)
	if err != nil {
		return types.Anonymous(), err
	}
	return types.CallerFromEntitlement(e), nil
}

// Invalidate drops the user's cached entitlement.
func (s *EntitlementService) Invalidate(ctx context.Context, userID string) error {
	if s.cache == nil || userID == "" {
		return nil
	}
	return s.cache.Delete(ctx, userID)
}

// InvalidateAll drops every cached entitlement.
func (s *EntitlementService) InvalidateAll(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Clear(ctx)
}

// Details loads the user and their subscriptions concurrently and builds
// the subscription-details answer. An unknown user is not_found_user.
func (s *EntitlementService) Details(ctx context.Context, userID string) (*types.SubscriptionDetails, error) {
	var subs []*types.Subscription

	g, gctx := errgroup.WithContext(ctx)
	if s.users != nil {
		g.Go(func() error {
			_, err := s.users.GetUserByID(gctx, userID)
			return err
		})
	}
	g.Go(func() error {
		var err error
		subs, err = s.subs.ListSubscriptionsByUser(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	details := SubscriptionDetailsFor(subs, s.clock.Now())
	return &details, nil
}

var _ Invalidator = (*EntitlementService)(nil)
