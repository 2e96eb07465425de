package billing

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"vega/internal/telemetry"
	"vega/internal/types"
)

// Action is a subscription management action.
type Action string

const (
	ActionCancel Action = "cancel"
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
)

// MaxPauseMonths is the longest pause a subscriber may request.
const MaxPauseMonths = 2

// ManageRequest is the body of POST /v1/subscriptions/manage.
type ManageRequest struct {
	Action         Action `json:"action" validate:"required"`
	SubscriptionID string `json:"subscriptionId" validate:"required"`
	PauseDuration  int    `json:"pauseDuration,omitempty"`
}

// ManageResult reports the local state after an action.
type ManageResult struct {
	Action           Action                   `json:"action"`
	SubscriptionID   string                   `json:"subscriptionId"`
	Status           types.SubscriptionStatus `json:"status"`
	CurrentPeriodEnd time.Time                `json:"currentPeriodEnd"`
	PausedUntil      *time.Time               `json:"pausedUntil,omitempty"`
}

// SubscriptionManager runs cancel, pause and resume. The provider is
// always called first; a failed provider call leaves local state alone.
type SubscriptionManager struct {
	store        ManagedSubscriptionStore
	provider     SubscriptionProvider
	entitlements Invalidator
	publisher    EventPublisher
	metrics      Recorder
	clock        types.Clock
	logger       *slog.Logger
}

// SubscriptionManagerConfig wires a SubscriptionManager.
type SubscriptionManagerConfig struct {
	Store        ManagedSubscriptionStore
	Provider     SubscriptionProvider
	Entitlements Invalidator
	Publisher    EventPublisher
	Metrics      Recorder
	Clock        types.Clock
	Logger       *slog.Logger
}

func NewSubscriptionManager(cfg SubscriptionManagerConfig) *SubscriptionManager {
	m := &SubscriptionManager{
		store:        cfg.Store,
		provider:     cfg.Provider,
		entitlements: cfg.Entitlements,
		publisher:    cfg.Publisher,
		metrics:      cfg.Metrics,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	if m.metrics == nil {
		m.metrics = noopRecorder{}
	}
	if m.clock == nil {
		m.clock = types.RealClock{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// List returns the user's subscriptions, most recent first.
func (m *SubscriptionManager) List(ctx context.Context, userID string) ([]*types.Subscription, error) {
	subs, err := m.store.ListSubscriptionsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if subs == nil {
		subs = []*types.Subscription{}
	}
	return subs, nil
}

// Manage applies req on behalf of userID.
func (m *SubscriptionManager) Manage(ctx context.Context, userID string, req ManageRequest) (*ManageResult, error) {
	action := Action(strings.ToLower(strings.TrimSpace(string(req.Action))))
	switch action {
	case ActionCancel, ActionResume:
	case ActionPause:
		if req.PauseDuration < 1 || req.PauseDuration > MaxPauseMonths {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationPauseDuration,
				"Invalid pause duration. Maximum 2 months allowed.", nil,
				map[string]any{"max_months": MaxPauseMonths})
		}
	default:
		return nil, types.NewAppError(types.ErrCodeValidationInvalidAction, "Invalid action", nil)
	}

	sub, err := m.store.GetSubscriptionForUser(ctx, userID, req.SubscriptionID)
	if err != nil {
		return nil, err
	}

	res, err := m.apply(ctx, action, sub, req.PauseDuration)
	if err != nil {
		m.metrics.RecordSubscriptionAction(string(action), telemetry.ResultFailure)
		m.logger.WarnContext(ctx, "subscription action failed",
			"action", string(action),
			"user_id", userID,
			"subscription_id", req.SubscriptionID,
			"error", err,
		)
		return nil, err
	}
	m.metrics.RecordSubscriptionAction(string(action), telemetry.ResultSuccess)

	if m.entitlements != nil {
		if err := m.entitlements.Invalidate(ctx, userID); err != nil {
			m.logger.WarnContext(ctx, "entitlement invalidation failed", "user_id", userID, "error", err)
		}
	}
	m.publish(ctx, userID, sub, res)

	m.logger.InfoContext(ctx, "subscription action applied",
		"action", string(action),
		"user_id", userID,
		"subscription_id", req.SubscriptionID,
		"status", string(res.Status),
	)
	return res, nil
}

func (m *SubscriptionManager) apply(ctx context.Context, action Action, sub *types.Subscription, months int) (*ManageResult, error) {
	now := m.clock.Now()
	providerID := sub.CloudPaymentsSubscriptionID
	if providerID == "" {
		providerID = sub.ID
	}
	res := &ManageResult{Action: action, SubscriptionID: providerID}

	switch action {
	case ActionCancel:
		if sub.Status == types.SubscriptionCanceled || sub.Status == types.SubscriptionExpired {
			return nil, types.NewAppError(types.ErrCodeConflictAlreadyCanceled, "Subscription is already canceled", nil)
		}
		if err := m.provider.CancelSubscription(ctx, providerID); err != nil {
			return nil, err
		}
		cancelAtPeriodEnd := true
		if err := m.store.UpdateSubscriptionPeriod(ctx, sub.ID, types.SubscriptionPeriodUpdate{
			Status:            types.SubscriptionCanceled,
			CancelAtPeriodEnd: &cancelAtPeriodEnd,
			CanceledAt:        &now,
		}); err != nil {
			return nil, err
		}
		res.Status = types.SubscriptionCanceled
		res.CurrentPeriodEnd = sub.CurrentPeriodEnd

	case ActionPause:
		until := now.AddDate(0, months, 0)
		if err := m.provider.UpdateSubscriptionStartDate(ctx, providerID, until); err != nil {
			return nil, err
		}
		if err := m.store.UpdateSubscriptionPeriod(ctx, sub.ID, types.SubscriptionPeriodUpdate{
			Status:           types.SubscriptionPaused,
			CurrentPeriodEnd: &until,
			PausedUntil:      &until,
		}); err != nil {
			return nil, err
		}
		res.Status = types.SubscriptionPaused
		res.CurrentPeriodEnd = until
		res.PausedUntil = &until

	case ActionResume:
		next := now.AddDate(0, 1, 0)
		if err := m.provider.UpdateSubscriptionStartDate(ctx, providerID, next); err != nil {
			return nil, err
		}
		if err := m.store.UpdateSubscriptionPeriod(ctx, sub.ID, types.SubscriptionPeriodUpdate{
			Status:           types.SubscriptionActive,
			CurrentPeriodEnd: &next,
			ClearPausedUntil: true,
		}); err != nil {
			return nil, err
		}
		res.Status = types.SubscriptionActive
		res.CurrentPeriodEnd = next
	}
	return res, nil
}

var actionEvents = map[Action]types.LifecycleEventType{
	ActionCancel: types.EventSubscriptionCanceled,
	ActionPause:  types.EventSubscriptionPaused,
	ActionResume: types.EventSubscriptionResumed,
}

func (m *SubscriptionManager) publish(ctx context.Context, userID string, sub *types.Subscription, res *ManageResult) {
	end := res.CurrentPeriodEnd
	event := types.LifecycleEvent{
		Type:           actionEvents[res.Action],
		UserID:         userID,
		SubscriptionID: res.SubscriptionID,
		ProductID:      sub.ProductID,
		Status:         string(res.Status),
		PeriodEnd:      &end,
		OccurredAt:     m.clock.Now(),
	}
	if err := m.publisher.Publish(ctx, event); err != nil {
		m.logger.WarnContext(ctx, "lifecycle event publish failed", "type", string(event.Type), "error", err)
	}
}
