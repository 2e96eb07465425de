package billing

import (
	"context"
	"time"

	"vega/internal/external"
	"vega/internal/types"
)

// SubscriptionReader lists a user's subscriptions, newest first.
type SubscriptionReader interface {
	ListSubscriptionsByUser(ctx context.Context, userID string) ([]*types.Subscription, error)
}

// UserReader loads users.
type UserReader interface {
	GetUserByID(ctx context.Context, id string) (*types.User, error)
}

// EntitlementCache stores derived entitlements. Implementations live in
// internal/cache (in-memory and Redis).
type EntitlementCache interface {
	Get(ctx context.Context, userID string) (*types.Entitlement, bool, error)
	// Generation returns a token that changes on every Delete of the user
	// and on every Clear.
	Generation(ctx context.Context, userID string) (string, error)
	// Set stores e only while the user's generation still equals gen, and
	// reports whether it did.
	Set(ctx context.Context, e *types.Entitlement, gen string) (bool, error)
	Delete(ctx context.Context, userID string) error
	Clear(ctx context.Context) error
}

// Invalidator drops a user's cached entitlement after their subscription
// state changed.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// EventPublisher emits lifecycle events. Publishing is best-effort: a
// failure is logged and never undoes the state change.
type EventPublisher interface {
	Publish(ctx context.Context, event types.LifecycleEvent) error
}

// Recorder is the subset of the telemetry backends billing reports to.
type Recorder interface {
	RecordWebhook(status, outcome string)
	RecordSubscriptionAction(action, result string)
	RecordCacheLookup(hit bool)
	RecordMaintenance(task string, rows int)
}

// ReconcileStore is the transaction-scoped data access the webhook
// reconciler needs.
type ReconcileStore interface {
	FindUserIDByEmail(ctx context.Context, email string) (string, error)
	UpsertPayment(ctx context.Context, p *types.Payment) error
	UpsertSubscription(ctx context.Context, u types.SubscriptionUpsert) error
	ClaimEvent(ctx context.Context, key, transactionID, status string, at time.Time) (bool, error)
}

// TxRunner runs fn inside one database transaction with a ReconcileStore
// bound to it. A non-nil error from fn rolls everything back.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store ReconcileStore) error) error
}

// ManagedSubscriptionStore is the data access of the management actions.
type ManagedSubscriptionStore interface {
	SubscriptionReader
	GetSubscriptionForUser(ctx context.Context, userID, providerSubscriptionID string) (*types.Subscription, error)
	UpdateSubscriptionPeriod(ctx context.Context, id string, u types.SubscriptionPeriodUpdate) error
}

// UsageStore reads and increments the daily message counter.
type UsageStore interface {
	GetDailyMessageCount(ctx context.Context, userID string, day time.Time) (int, error)
	IncrementDailyMessageCount(ctx context.Context, userID string, day time.Time) (int, error)
}

// MaintenanceStore is the data access of the expiry and sync jobs.
type MaintenanceStore interface {
	ExpireLapsedSubscriptions(ctx context.Context, now time.Time) ([]string, error)
	ListSubscriptionsDueForSync(ctx context.Context, now time.Time, limit int) ([]*types.Subscription, error)
	ApplyProviderState(ctx context.Context, id string, st types.ProviderSubscriptionState) error
}

// SubscriptionProvider is the slice of the payment provider the
// management actions call.
type SubscriptionProvider interface {
	CancelSubscription(ctx context.Context, id string) error
	UpdateSubscriptionStartDate(ctx context.Context, id string, startDate time.Time) error
}

// Compile-time checks against the concrete provider.
var (
	_ SubscriptionProvider = (external.PaymentProvider)(nil)
)

// noopRecorder is used when no metrics backend is wired.
type noopRecorder struct{}

func (noopRecorder) RecordWebhook(string, string)            {}
func (noopRecorder) RecordSubscriptionAction(string, string) {}
func (noopRecorder) RecordCacheLookup(bool)                  {}
func (noopRecorder) RecordMaintenance(string, int)           {}

// noopPublisher drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, types.LifecycleEvent) error { return nil }
