package billing

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"vega/internal/external"
	"vega/internal/types"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// --- Stores ---

type mockSubscriptionStore struct {
	mock.Mock
}

func (m *mockSubscriptionStore) ListSubscriptionsByUser(ctx context.Context, userID string) ([]*types.Subscription, error) {
	args := m.Called(ctx, userID)
	if s := args.Get(0); s != nil {
		return s.([]*types.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSubscriptionStore) GetSubscriptionForUser(ctx context.Context, userID, providerSubscriptionID string) (*types.Subscription, error) {
	args := m.Called(ctx, userID, providerSubscriptionID)
	if s := args.Get(0); s != nil {
		return s.(*types.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSubscriptionStore) UpdateSubscriptionPeriod(ctx context.Context, id string, u types.SubscriptionPeriodUpdate) error {
	args := m.Called(ctx, id, u)
	return args.Error(0)
}

type mockUserReader struct {
	mock.Mock
}

func (m *mockUserReader) GetUserByID(ctx context.Context, id string) (*types.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*types.User), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockReconcileStore struct {
	mock.Mock
}

func (m *mockReconcileStore) FindUserIDByEmail(ctx context.Context, email string) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}

func (m *mockReconcileStore) UpsertPayment(ctx context.Context, p *types.Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *mockReconcileStore) UpsertSubscription(ctx context.Context, u types.SubscriptionUpsert) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *mockReconcileStore) ClaimEvent(ctx context.Context, key, transactionID, status string, at time.Time) (bool, error) {
	args := m.Called(ctx, key, transactionID, status, at)
	return args.Bool(0), args.Error(1)
}

// fakeTx runs fn against store and remembers whether the transaction
// would have committed.
type fakeTx struct {
	store     ReconcileStore
	calls     int
	committed bool
}

func (f *fakeTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store ReconcileStore) error) error {
	f.calls++
	if err := fn(ctx, f.store); err != nil {
		return err
	}
	f.committed = true
	return nil
}

type mockUsageStore struct {
	mock.Mock
}

func (m *mockUsageStore) GetDailyMessageCount(ctx context.Context, userID string, day time.Time) (int, error) {
	args := m.Called(ctx, userID, day)
	return args.Int(0), args.Error(1)
}

func (m *mockUsageStore) IncrementDailyMessageCount(ctx context.Context, userID string, day time.Time) (int, error) {
	args := m.Called(ctx, userID, day)
	return args.Int(0), args.Error(1)
}

type mockMaintenanceStore struct {
	mock.Mock
}

func (m *mockMaintenanceStore) ExpireLapsedSubscriptions(ctx context.Context, now time.Time) ([]string, error) {
	args := m.Called(ctx, now)
	if s := args.Get(0); s != nil {
		return s.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMaintenanceStore) ListSubscriptionsDueForSync(ctx context.Context, now time.Time, limit int) ([]*types.Subscription, error) {
	args := m.Called(ctx, now, limit)
	if s := args.Get(0); s != nil {
		return s.([]*types.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMaintenanceStore) ApplyProviderState(ctx context.Context, id string, st types.ProviderSubscriptionState) error {
	args := m.Called(ctx, id, st)
	return args.Error(0)
}

// --- Provider ---

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) PublicID() string {
	return m.Called().String(0)
}

func (m *mockProvider) CreateSubscription(ctx context.Context, req external.CreateSubscriptionRequest) (*external.SubscriptionModel, error) {
	args := m.Called(ctx, req)
	if s := args.Get(0); s != nil {
		return s.(*external.SubscriptionModel), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProvider) CancelSubscription(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockProvider) UpdateSubscriptionStartDate(ctx context.Context, id string, startDate time.Time) error {
	return m.Called(ctx, id, startDate).Error(0)
}

func (m *mockProvider) GetSubscription(ctx context.Context, id string) (*external.SubscriptionModel, error) {
	args := m.Called(ctx, id)
	if s := args.Get(0); s != nil {
		return s.(*external.SubscriptionModel), args.Error(1)
	}
	return nil, args.Error(1)
}

// --- Cache, invalidation, events, metrics ---

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Get(ctx context.Context, userID string) (*types.Entitlement, bool, error) {
	args := m.Called(ctx, userID)
	if e := args.Get(0); e != nil {
		return e.(*types.Entitlement), args.Bool(1), args.Error(2)
	}
	return nil, args.Bool(1), args.Error(2)
}

func (m *mockCache) Generation(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *mockCache) Set(ctx context.Context, e *types.Entitlement, gen string) (bool, error) {
	args := m.Called(ctx, e, gen)
	return args.Bool(0), args.Error(1)
}

func (m *mockCache) Delete(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockCache) Clear(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type recordingInvalidator struct {
	mu    sync.Mutex
	users []string
	err   error
}

func (r *recordingInvalidator) Invalidate(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
	return r.err
}

func (r *recordingInvalidator) Users() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.users...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []types.LifecycleEvent
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, e types.LifecycleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingPublisher) Events() []types.LifecycleEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.LifecycleEvent(nil), r.events...)
}

type recordingMetrics struct {
	mu          sync.Mutex
	webhooks    []string
	actions     []string
	cacheHits   int
	cacheMisses int
	maintenance map[string]int
}

func (r *recordingMetrics) RecordWebhook(status, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.webhooks = append(r.webhooks, status+"/"+outcome)
}

func (r *recordingMetrics) RecordSubscriptionAction(action, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action+"/"+result)
}

func (r *recordingMetrics) RecordCacheLookup(hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.cacheHits++
	} else {
		r.cacheMisses++
	}
}

func (r *recordingMetrics) RecordMaintenance(task string, rows int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.maintenance == nil {
		r.maintenance = make(map[string]int)
	}
	r.maintenance[task] += rows
}

var (
	_ ManagedSubscriptionStore = (*mockSubscriptionStore)(nil)
	_ ReconcileStore           = (*mockReconcileStore)(nil)
	_ TxRunner                 = (*fakeTx)(nil)
	_ UsageStore               = (*mockUsageStore)(nil)
	_ MaintenanceStore         = (*mockMaintenanceStore)(nil)
	_ external.PaymentProvider = (*mockProvider)(nil)
	_ EntitlementCache         = (*mockCache)(nil)
	_ Recorder                 = (*recordingMetrics)(nil)
)
