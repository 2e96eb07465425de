package external

import (
	"context"
	"time"
)

// ---------------------------------------------------------------------------
// Payment Provider (CloudPayments)
// ---------------------------------------------------------------------------

// PaymentProvider abstracts the CloudPayments subscription API. Every method
// returns validation_provider_rejected when the provider answers
// Success=false and upstream_* codes when it cannot be reached.
type PaymentProvider interface {
	// PublicID is the public id the checkout widget is initialised with.
	PublicID() string

	// CreateSubscription registers a recurring charge for an account.
	CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*SubscriptionModel, error)

	// CancelSubscription stops all future charges.
	CancelSubscription(ctx context.Context, id string) error

	// UpdateSubscriptionStartDate moves the next charge to startDate.
	UpdateSubscriptionStartDate(ctx context.Context, id string, startDate time.Time) error

	// GetSubscription returns the provider-side state, including the
	// transaction counters and dates.
	GetSubscription(ctx context.Context, id string) (*SubscriptionModel, error)
}

// WebhookVerifier abstracts webhook signature checking.
type WebhookVerifier interface {
	// Verify reports whether signature authenticates payload. An error means
	// the check could not be performed at all.
	Verify(payload []byte, signature string) (bool, error)
}

// CloudPayments notification statuses.
const (
	WebhookStatusCompleted  = "Completed"
	WebhookStatusDeclined   = "Declined"
	WebhookStatusCancelled  = "Cancelled"
	WebhookStatusAuthorized = "Authorized"
)

var _ PaymentProvider = (*CloudPaymentsClient)(nil)
