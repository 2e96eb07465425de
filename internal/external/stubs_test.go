package external

import (
	"context"
	"testing"
	"time"
)

func TestStubPaymentProvider_Lifecycle(t *testing.T) {
	ctx := context.Background()
	stub := NewStubPaymentProvider(nil)

	model, err := stub.CreateSubscription(ctx, CreateSubscriptionRequest{
		AccountID:  "user_1",
		Amount:     990,
		Currency:   "RUB",
		Interval:   IntervalMonth,
		Period:     1,
		MaxPeriods: 1,
		StartDate:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	next := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := stub.UpdateSubscriptionStartDate(ctx, model.ID, next); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := stub.GetSubscription(ctx, model.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if st := got.State(); st.NextTransactionDate == nil || !st.NextTransactionDate.Equal(next) {
		t.Errorf("expected next transaction %v, got %v", next, st.NextTransactionDate)
	}

	if err := stub.CancelSubscription(ctx, model.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, _ = stub.GetSubscription(ctx, model.ID)
	if got.Status != "Cancelled" {
		t.Errorf("expected Cancelled, got %s", got.Status)
	}
}

func TestStubPaymentProvider_UnknownID(t *testing.T) {
	got, err := NewStubPaymentProvider(nil).GetSubscription(context.Background(), "sc_unknown")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "sc_unknown" || got.Status != "Active" {
		t.Errorf("unexpected placeholder %+v", got)
	}
}
