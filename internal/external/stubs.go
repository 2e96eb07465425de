package external

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Stub Implementations
//
// The stub lets the API boot locally without CloudPayments credentials. It
// logs every call and keeps created subscriptions in memory so later
// cancel/update/get calls behave consistently.
// ---------------------------------------------------------------------------

// StubPaymentProvider implements PaymentProvider in memory.
type StubPaymentProvider struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]*SubscriptionModel
}

// NewStubPaymentProvider creates an empty stub.
func NewStubPaymentProvider(logger *slog.Logger) *StubPaymentProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubPaymentProvider{
		logger: logger,
		subs:   make(map[string]*SubscriptionModel),
	}
}

func (s *StubPaymentProvider) PublicID() string { return "pk_stub" }

func (s *StubPaymentProvider) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*SubscriptionModel, error) {
	s.logger.InfoContext(ctx, "stub: CreateSubscription called",
		"account_id", req.AccountID,
		"amount", req.Amount,
		"description", req.Description,
	)

	maxPeriods := req.MaxPeriods
	model := &SubscriptionModel{
		ID:                  "sc_stub_" + uuid.NewString(),
		AccountID:           req.AccountID,
		Description:         req.Description,
		Email:               req.Email,
		Amount:              req.Amount,
		Currency:            req.Currency,
		RequireConfirmation: req.RequireConfirmation,
		StartDate:           req.StartDate.UTC().Format(time.RFC3339),
		Interval:            req.Interval,
		Period:              req.Period,
		MaxPeriods:          &maxPeriods,
		Status:              "Active",
		NextTransactionDate: req.StartDate.UTC().Format(time.RFC3339),
	}

	s.mu.Lock()
	s.subs[model.ID] = model
	s.mu.Unlock()

	cp := *model
	return &cp, nil
}

func (s *StubPaymentProvider) CancelSubscription(ctx context.Context, id string) error {
	s.logger.InfoContext(ctx, "stub: CancelSubscription called", "subscription_id", id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.subs[id]; ok {
		m.Status = "Cancelled"
		m.NextTransactionDate = ""
	}
	return nil
}

func (s *StubPaymentProvider) UpdateSubscriptionStartDate(ctx context.Context, id string, startDate time.Time) error {
	s.logger.InfoContext(ctx, "stub: UpdateSubscriptionStartDate called",
		"subscription_id", id,
		"start_date", startDate.UTC().Format(providerDateLayout),
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.subs[id]; ok {
		m.NextTransactionDate = startDate.UTC().Format(time.RFC3339)
	}
	return nil
}

// GetSubscription returns the stored model, or an active placeholder for
// ids this stub never created.
func (s *StubPaymentProvider) GetSubscription(ctx context.Context, id string) (*SubscriptionModel, error) {
	s.logger.InfoContext(ctx, "stub: GetSubscription called", "subscription_id", id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.subs[id]; ok {
		cp := *m
		return &cp, nil
	}
	return &SubscriptionModel{ID: id, Status: "Active"}, nil
}

var _ PaymentProvider = (*StubPaymentProvider)(nil)
