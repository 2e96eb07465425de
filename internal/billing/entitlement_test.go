package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"vega/internal/cache"
	"vega/internal/types"
)

func sub(id string, status types.SubscriptionStatus, product string, periodEnd time.Time, created time.Time) *types.Subscription {
	return &types.Subscription{
		ID:               id,
		UserID:           "user-1",
		Status:           status,
		ProductID:        product,
		CurrentPeriodEnd: periodEnd,
		CreatedAt:        created,
		PaymentProvider:  types.ProviderCloudPayments,
	}
}

func TestDeriveEntitlement(t *testing.T) {
	future := testNow.Add(72 * time.Hour)
	past := testNow.Add(-time.Hour)
	older := testNow.Add(-60 * 24 * time.Hour)
	newer := testNow.Add(-30 * 24 * time.Hour)

	tests := []struct {
		name       string
		subs       []*types.Subscription
		wantPro    bool
		wantUltra  bool
		wantStatus types.SubscriptionState
		wantProd   string
	}{
		{
			name:       "no subscriptions",
			wantStatus: types.StateNone,
		},
		{
			name:       "active pro",
			subs:       []*types.Subscription{sub("a", types.SubscriptionActive, types.ProductPro, future, older)},
			wantPro:    true,
			wantStatus: types.StateActive,
			wantProd:   types.ProductPro,
		},
		{
			name: "ultra beats pro",
			subs: []*types.Subscription{
				sub("a", types.SubscriptionActive, types.ProductPro, future.Add(time.Hour), older),
				sub("b", types.SubscriptionActive, types.ProductUltra, future, newer),
			},
			wantPro:    true,
			wantUltra:  true,
			wantStatus: types.StateActive,
			wantProd:   types.ProductUltra,
		},
		{
			name:       "active row with ended period",
			subs:       []*types.Subscription{sub("a", types.SubscriptionActive, types.ProductPro, past, older)},
			wantStatus: types.StateExpired,
		},
		{
			name:       "canceled inside paid period keeps access",
			subs:       []*types.Subscription{sub("a", types.SubscriptionCanceled, types.ProductPro, future, older)},
			wantPro:    true,
			wantStatus: types.StateCanceled,
			wantProd:   types.ProductPro,
		},
		{
			name:       "canceled after period",
			subs:       []*types.Subscription{sub("a", types.SubscriptionCanceled, types.ProductPro, past, older)},
			wantStatus: types.StateCanceled,
		},
		{
			name:       "paused grants nothing",
			subs:       []*types.Subscription{sub("a", types.SubscriptionPaused, types.ProductPro, future, older)},
			wantStatus: types.StatePaused,
		},
		{
			name: "most recent lapsed row decides",
			subs: []*types.Subscription{
				sub("a", types.SubscriptionCanceled, types.ProductPro, past, older),
				sub("b", types.SubscriptionExpired, types.ProductPro, past, newer),
			},
			wantStatus: types.StateExpired,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := DeriveEntitlement("user-1", tt.subs, testNow)
			assert.Equal(t, "user-1", e.UserID)
			assert.Equal(t, tt.wantPro, e.IsProUser)
			assert.Equal(t, tt.wantUltra, e.IsUltraUser)
			assert.Equal(t, tt.wantStatus, e.SubscriptionStatus)
			assert.Equal(t, tt.wantProd, e.ProductID)
			if tt.wantPro {
				assert.Equal(t, types.ProSourceCloudPayments, e.ProSource)
				require.NotNil(t, e.CurrentPeriodEnd)
			} else {
				assert.Equal(t, types.ProSourceNone, e.ProSource)
				assert.Nil(t, e.CurrentPeriodEnd)
			}
		})
	}
}

func TestDeriveEntitlement_IgnoresOtherProviders(t *testing.T) {
	s := sub("a", types.SubscriptionActive, types.ProductUltra, testNow.Add(time.Hour), testNow)
	s.PaymentProvider = "polar"
	e := DeriveEntitlement("user-1", []*types.Subscription{s}, testNow)
	assert.False(t, e.IsProUser)
}

func TestDeriveEntitlement_OrderIndependent(t *testing.T) {
	a := sub("a", types.SubscriptionActive, types.ProductPro, testNow.Add(48*time.Hour), testNow.Add(-time.Hour))
	b := sub("b", types.SubscriptionActive, types.ProductUltra, testNow.Add(24*time.Hour), testNow.Add(-2*time.Hour))
	assert.Equal(t,
		DeriveEntitlement("u", []*types.Subscription{a, b}, testNow),
		DeriveEntitlement("u", []*types.Subscription{b, a}, testNow),
	)
}

func TestSubscriptionDetailsFor(t *testing.T) {
	future := testNow.Add(time.Hour)
	past := testNow.Add(-time.Hour)

	d := SubscriptionDetailsFor(nil, testNow)
	assert.False(t, d.HasSubscription)
	assert.Nil(t, d.Subscription)
	assert.Empty(t, d.ErrorType)

	d = SubscriptionDetailsFor([]*types.Subscription{sub("a", types.SubscriptionActive, types.ProductPro, future, testNow)}, testNow)
	assert.True(t, d.HasSubscription)
	require.NotNil(t, d.Subscription)
	assert.Equal(t, "a", d.Subscription.ID)

	d = SubscriptionDetailsFor([]*types.Subscription{sub("a", types.SubscriptionCanceled, types.ProductPro, future, testNow)}, testNow)
	assert.False(t, d.HasSubscription)
	assert.Equal(t, types.SubscriptionErrCanceled, d.ErrorType)
	assert.Equal(t, "Subscription has been canceled", d.Error)

	d = SubscriptionDetailsFor([]*types.Subscription{sub("a", types.SubscriptionActive, types.ProductPro, past, testNow)}, testNow)
	assert.Equal(t, types.SubscriptionErrExpired, d.ErrorType)

	d = SubscriptionDetailsFor([]*types.Subscription{sub("a", types.SubscriptionPaused, types.ProductPro, future, testNow)}, testNow)
	assert.Equal(t, types.SubscriptionErrGeneral, d.ErrorType)
}

func newTestEntitlementService(subs *mockSubscriptionStore, users *mockUserReader, cache *mockCache, metrics *recordingMetrics) *EntitlementService {
	cfg := EntitlementServiceConfig{
		Subscriptions: subs,
		Clock:         types.FixedClock(testNow),
		Metrics:       metrics,
	}
	if users != nil {
		cfg.Users = users
	}
	if cache != nil {
		cfg.Cache = cache
	}
	return NewEntitlementService(cfg)
}

func TestEntitlementService_Get_CacheHit(t *testing.T) {
	subs := new(mockSubscriptionStore)
	cache := new(mockCache)
	metrics := &recordingMetrics{}
	cached := &types.Entitlement{UserID: "user-1", IsProUser: true}
	cache.On("Get", mock.Anything, "user-1").Return(cached, true, nil)

	svc := newTestEntitlementService(subs, nil, cache, metrics)
	got, err := svc.Get(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Same(t, cached, got)
	assert.Equal(t, 1, metrics.cacheHits)
	subs.AssertNotCalled(t, "ListSubscriptionsByUser", mock.Anything, mock.Anything)
}

func TestEntitlementService_Get_MissRecomputesAndCaches(t *testing.T) {
	subs := new(mockSubscriptionStore)
	cache := new(mockCache)
	metrics := &recordingMetrics{}
	cache.On("Get", mock.Anything, "user-1").Return(nil, false, nil)
	subs.On("ListSubscriptionsByUser", mock.Anything, "user-1").Return([]*types.Subscription{
		sub("a", types.SubscriptionActive, types.ProductUltra, testNow.Add(time.Hour), testNow),
	}, nil)
	cache.On("Generation", mock.Anything, "user-1").Return("0:3", nil)
	cache.On("Set", mock.Anything, mock.MatchedBy(func(e *types.Entitlement) bool {
		return e.UserID == "user-1" && e.IsUltraUser
	}), "0:3").Return(true, nil)

	svc := newTestEntitlementService(subs, nil, cache, metrics)
	got, err := svc.Get(context.Background(), "user-1")

	require.NoError(t, err)
	assert.True(t, got.IsProUser)
	assert.True(t, got.IsUltraUser)
	assert.Equal(t, 1, metrics.cacheMisses)
	cache.AssertExpectations(t)
}

func TestEntitlementService_Get_CacheFailureFallsBack(t *testing.T) {
	subs := new(mockSubscriptionStore)
	cache := new(mockCache)
	cache.On("Get", mock.Anything, "user-1").Return(nil, false, errors.New("redis down"))
	cache.On("Generation", mock.Anything, "user-1").Return("", errors.New("redis down"))
	subs.On("ListSubscriptionsByUser", mock.Anything, "user-1").Return([]*types.Subscription{}, nil)

	svc := newTestEntitlementService(subs, nil, cache, &recordingMetrics{})
	got, err := svc.Get(context.Background(), "user-1")

	require.NoError(t, err)
	assert.False(t, got.IsProUser)
	assert.Equal(t, types.StateNone, got.SubscriptionStatus)
	cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
}

func TestEntitlementService_Get_InvalidatedDuringRecomputeNotCached(t *testing.T) {
	subs := new(mockSubscriptionStore)
	cache := new(mockCache)
	cache.On("Get", mock.Anything, "user-1").Return(nil, false, nil)
	cache.On("Generation", mock.Anything, "user-1").Return("0:1", nil)
	subs.On("ListSubscriptionsByUser", mock.Anything, "user-1").Return([]*types.Subscription{}, nil)
	cache.On("Set", mock.Anything, mock.Anything, "0:1").Return(false, nil)

	svc := newTestEntitlementService(subs, nil, cache, &recordingMetrics{})
	got, err := svc.Get(context.Background(), "user-1")

	require.NoError(t, err)
	assert.False(t, got.IsProUser)
	cache.AssertExpectations(t)
}

func TestEntitlementService_Get_StoreError(t *testing.T) {
	subs := new(mockSubscriptionStore)
	dbErr := types.NewAppError(types.ErrCodeInternalDB, "failed", nil)
	subs.On("ListSubscriptionsByUser", mock.Anything, "user-1").Return(nil, dbErr)

	svc := newTestEntitlementService(subs, nil, nil, &recordingMetrics{})
	_, err := svc.Get(context.Background(), "user-1")
	assert.ErrorIs(t, err, dbErr)
}

// pausingSubscriptions hands out a snapshot of the table and, when paused,
// blocks after reading it until released.
type pausingSubscriptions struct {
	mu      sync.Mutex
	subs    []*types.Subscription
	pause   bool
	loaded  chan struct{}
	release chan struct{}
}

func (p *pausingSubscriptions) ListSubscriptionsByUser(_ context.Context, _ string) ([]*types.Subscription, error) {
	p.mu.Lock()
	snapshot := append([]*types.Subscription(nil), p.subs...)
	pause := p.pause
	p.pause = false
	p.mu.Unlock()

	if pause {
		close(p.loaded)
		<-p.release
	}
	return snapshot, nil
}

func (p *pausingSubscriptions) commit(s *types.Subscription) {
	p.mu.Lock()
	p.subs = append(p.subs, s)
	p.mu.Unlock()
}

func TestEntitlementService_InvalidateDuringRecompute(t *testing.T) {
	subs := &pausingSubscriptions{pause: true, loaded: make(chan struct{}), release: make(chan struct{})}
	svc := NewEntitlementService(EntitlementServiceConfig{
		Subscriptions: subs,
		Cache:         cache.NewMemoryEntitlementCache(5 * time.Minute),
		Clock:         types.FixedClock(testNow),
	})
	ctx := context.Background()

	stale := make(chan *types.Entitlement, 1)
	go func() {
		e, _ := svc.Get(ctx, "user-1")
		stale <- e
	}()

	<-subs.loaded
	subs.commit(sub("a", types.SubscriptionActive, types.ProductPro, testNow.Add(30*24*time.Hour), testNow))
	require.NoError(t, svc.Invalidate(ctx, "user-1"))
	close(subs.release)

	first := <-stale
	assert.False(t, first.IsProUser, "the in-flight read returns its own snapshot")

	next, err := svc.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, next.IsProUser)
	assert.Equal(t, types.StateActive, next.SubscriptionStatus)
}

func TestEntitlementService_Caller(t *testing.T) {
	subs := new(mockSubscriptionStore)
	subs.On("ListSubscriptionsByUser", mock.Anything, "user-1").Return([]*types.Subscription{
		sub("a", types.SubscriptionActive, types.ProductPro, testNow.Add(time.Hour), testNow),
	}, nil)
	svc := newTestEntitlementService(subs, nil, nil, &recordingMetrics{})

	anon, err := svc.Caller(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, anon.IsAuthenticated())

	c, err := svc.Caller(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, c.IsAuthenticated())
	assert.True(t, c.IsPro())
	assert.False(t, c.IsUltra())
}

func TestEntitlementService_Invalidate(t *testing.T) {
	cache := new(mockCache)
	cache.On("Delete", mock.Anything, "user-1").Return(nil)
	cache.On("Clear", mock.Anything).Return(nil)
	svc := newTestEntitlementService(new(mockSubscriptionStore), nil, cache, &recordingMetrics{})

	require.NoError(t, svc.Invalidate(context.Background(), "user-1"))
	require.NoError(t, svc.Invalidate(context.Background(), ""))
	require.NoError(t, svc.InvalidateAll(context.Background()))
	cache.AssertNumberOfCalls(t, "Delete", 1)
	cache.AssertExpectations(t)
}

func TestEntitlementService_Details(t *testing.T) {
	subs := new(mockSubscriptionStore)
	users := new(mockUserReader)
	users.On("GetUserByID", mock.Anything, "user-1").Return(&types.User{ID: "user-1"}, nil)
	subs.On("ListSubscriptionsByUser", mock.Anything, "user-1").Return([]*types.Subscription{
		sub("a", types.SubscriptionCanceled, types.ProductPro, testNow.Add(-time.Hour), testNow.Add(-48*time.Hour)),
	}, nil)

	svc := newTestEntitlementService(subs, users, nil, &recordingMetrics{})
	d, err := svc.Details(context.Background(), "user-1")

	require.NoError(t, err)
	assert.False(t, d.HasSubscription)
	assert.Equal(t, types.SubscriptionErrCanceled, d.ErrorType)
}

func TestEntitlementService_Details_UnknownUser(t *testing.T) {
	subs := new(mockSubscriptionStore)
	users := new(mockUserReader)
	users.On("GetUserByID", mock.Anything, "ghost").
		Return(nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil))
	subs.On("ListSubscriptionsByUser", mock.Anything, "ghost").Return([]*types.Subscription{}, nil).Maybe()

	svc := newTestEntitlementService(subs, users, nil, &recordingMetrics{})
	_, err := svc.Details(context.Background(), "ghost")

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundUser, appErr.Code)
}
