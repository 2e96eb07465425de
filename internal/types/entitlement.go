package types

import "time"

// ProSource names where a user's paid entitlement comes from.
type ProSource string

const (
	ProSourceCloudPayments ProSource = "cloudpayments"
	ProSourceNone          ProSource = "none"
)

// SubscriptionState is the summarized subscription status exposed to clients.
type SubscriptionState string

const (
	StateActive   SubscriptionState = "active"
	StateCanceled SubscriptionState = "canceled"
	StatePaused   SubscriptionState = "paused"
	StateExpired  SubscriptionState = "expired"
	StateNone     SubscriptionState = "none"
)

// Entitlement is the derived snapshot used for access decisions. It is never
// persisted; it is recomputed from subscription rows and cached.
type Entitlement struct {
	UserID             string            `json:"userId"`
	IsProUser          bool              `json:"isProUser"`
	IsUltraUser        bool              `json:"isUltraUser"`
	ProSource          ProSource         `json:"proSource"`
	SubscriptionStatus SubscriptionState `json:"subscriptionStatus"`
	ProductID          string            `json:"productId,omitempty"`
	CurrentPeriodEnd   *time.Time        `json:"currentPeriodEnd,omitempty"`
	ComputedAt         time.Time         `json:"computedAt"`
}

// SubscriptionErrorType classifies why a user with subscription history has
// no active subscription.
type SubscriptionErrorType string

const (
	SubscriptionErrCanceled SubscriptionErrorType = "CANCELED"
	SubscriptionErrExpired  SubscriptionErrorType = "EXPIRED"
	SubscriptionErrGeneral  SubscriptionErrorType = "GENERAL"
)

// SubscriptionSummary is the client-facing projection of a subscription row.
type SubscriptionSummary struct {
	ID                 string             `json:"id"`
	ProductID          string             `json:"productId"`
	Status             SubscriptionStatus `json:"status"`
	Amount             int64              `json:"amount"`
	Currency           string             `json:"currency"`
	RecurringInterval  string             `json:"recurringInterval"`
	CurrentPeriodStart time.Time          `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time          `json:"currentPeriodEnd"`
	CancelAtPeriodEnd  bool               `json:"cancelAtPeriodEnd"`
	CanceledAt         *time.Time         `json:"canceledAt,omitempty"`
	PausedUntil        *time.Time         `json:"pausedUntil,omitempty"`
}

// SubscriptionDetails answers "does this user have a subscription, and if it
// is not active, why".
type SubscriptionDetails struct {
	HasSubscription bool                  `json:"hasSubscription"`
	Subscription    *SubscriptionSummary  `json:"subscription,omitempty"`
	Error           string                `json:"error,omitempty"`
	ErrorType       SubscriptionErrorType `json:"errorType,omitempty"`
}

// SummarizeSubscription projects a stored subscription for API responses.
func SummarizeSubscription(s *Subscription) *SubscriptionSummary {
	if s == nil {
		return nil
	}
	return &SubscriptionSummary{
		ID:                 s.ID,
		ProductID:          s.ProductID,
		Status:             s.Status,
		Amount:             s.Amount,
		Currency:           s.Currency,
		RecurringInterval:  s.RecurringInterval,
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		CanceledAt:         s.CanceledAt,
		PausedUntil:        s.PausedUntil,
	}
}
