package billing

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"vega/internal/external"
	"vega/internal/types"
)

// SubscriptionStateSource reads the provider-side subscription state.
type SubscriptionStateSource interface {
	GetSubscription(ctx context.Context, id string) (*external.SubscriptionModel, error)
}

// ProviderSync copies transaction counters and dates from the provider for
// subscriptions whose next charge date has passed.
type ProviderSync struct {
	store        MaintenanceStore
	provider     SubscriptionStateSource
	entitlements Invalidator
	metrics      Recorder
	clock        types.Clock
	logger       *slog.Logger
	batchSize    int
	concurrency  int
}

func NewProviderSync(cfg MaintenanceConfig) *ProviderSync {
	cfg.withDefaults()
	return &ProviderSync{
		store:        cfg.Store,
		provider:     cfg.Provider,
		entitlements: cfg.Entitlements,
		metrics:      cfg.Metrics,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		batchSize:    cfg.SyncBatchSize,
		concurrency:  cfg.SyncConcurrency,
	}
}

// Run syncs one batch and returns the number of rows updated. A failure on
// one subscription is logged and does not stop the others; Run only fails
// when the batch cannot be listed or every row failed.
func (s *ProviderSync) Run(ctx context.Context) (int, error) {
	subs, err := s.store.ListSubscriptionsDueForSync(ctx, s.clock.Now(), s.batchSize)
	if err != nil {
		return 0, err
	}
	if len(subs) == 0 {
		s.metrics.RecordMaintenance(TaskSyncProvider, 0)
		return 0, nil
	}

	var synced, failed atomic.Int64
	var firstErr error
	var once atomic.Bool

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, sub := range subs {
		g.Go(func() error {
			if err := s.syncOne(gctx, sub); err != nil {
				failed.Add(1)
				if once.CompareAndSwap(false, true) {
					firstErr = err
				}
				s.logger.WarnContext(gctx, "provider sync failed",
					"subscription_id", sub.ID,
					"user_id", sub.UserID,
					"error", err,
				)
				return nil
			}
			synced.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	n := int(synced.Load())
	s.metrics.RecordMaintenance(TaskSyncProvider, n)
	s.logger.InfoContext(ctx, "provider sync finished", "synced", n, "failed", failed.Load())

	if n == 0 && firstErr != nil {
		return 0, errors.Join(errors.New("provider sync: every subscription failed"), firstErr)
	}
	return n, nil
}

func (s *ProviderSync) syncOne(ctx context.Context, sub *types.Subscription) error {
	providerID := sub.CloudPaymentsSubscriptionID
	if providerID == "" {
		providerID = sub.ID
	}
	model, err := s.provider.GetSubscription(ctx, providerID)
	if err != nil {
		return err
	}
	if err := s.store.ApplyProviderState(ctx, sub.ID, model.State()); err != nil {
		return err
	}
	if s.entitlements != nil {
		if err := s.entitlements.Invalidate(ctx, sub.UserID); err != nil {
			s.logger.WarnContext(ctx, "entitlement invalidation failed", "user_id", sub.UserID, "error", err)
		}
	}
	return nil
}
