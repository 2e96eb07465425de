package billing

import (
	"context"
	"log/slog"

	"vega/internal/types"
)

// Maintenance task names, as sent in the scheduler payload.
const (
	TaskExpireSubscriptions = "expire_subscriptions"
	TaskSyncProvider        = "sync_provider"
)

// Expirer marks subscriptions whose paid period has ended as expired.
type Expirer struct {
	store        MaintenanceStore
	entitlements Invalidator
	publisher    EventPublisher
	metrics      Recorder
	clock        types.Clock
	logger       *slog.Logger
}

// MaintenanceConfig wires the maintenance jobs.
type MaintenanceConfig struct {
	Store        MaintenanceStore
	Provider     SubscriptionStateSource
	Entitlements Invalidator
	Publisher    EventPublisher
	Metrics      Recorder
	Clock        types.Clock
	Logger       *slog.Logger

	// SyncBatchSize caps the rows one sync run fetches. SyncConcurrency caps
	// the provider calls in flight.
	SyncBatchSize   int
	SyncConcurrency int
}

func (cfg *MaintenanceConfig) withDefaults() {
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopRecorder{}
	}
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SyncBatchSize <= 0 {
		cfg.SyncBatchSize = 200
	}
	if cfg.SyncConcurrency <= 0 {
		cfg.SyncConcurrency = 8
	}
}

func NewExpirer(cfg MaintenanceConfig) *Expirer {
	cfg.withDefaults()
	return &Expirer{
		store:        cfg.Store,
		entitlements: cfg.Entitlements,
		publisher:    cfg.Publisher,
		metrics:      cfg.Metrics,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
	}
}

// Run expires every lapsed subscription and invalidates the owners'
// entitlements. It returns the number of affected users.
func (e *Expirer) Run(ctx context.Context) (int, error) {
	now := e.clock.Now()
	users, err := e.store.ExpireLapsedSubscriptions(ctx, now)
	if err != nil {
		return 0, err
	}

	for _, userID := range users {
		if e.entitlements != nil {
			if err := e.entitlements.Invalidate(ctx, userID); err != nil {
				e.logger.WarnContext(ctx, "entitlement invalidation failed", "user_id", userID, "error", err)
			}
		}
		event := types.LifecycleEvent{
			Type:       types.EventSubscriptionExpired,
			UserID:     userID,
			Status:     string(types.SubscriptionExpired),
			OccurredAt: now,
		}
		if err := e.publisher.Publish(ctx, event); err != nil {
			e.logger.WarnContext(ctx, "lifecycle event publish failed", "type", string(event.Type), "error", err)
		}
	}

	e.metrics.RecordMaintenance(TaskExpireSubscriptions, len(users))
	e.logger.InfoContext(ctx, "expired lapsed subscriptions", "users", len(users))
	return len(users), nil
}
