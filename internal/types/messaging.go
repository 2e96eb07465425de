package types

import "time"

// LifecycleEventType names a subscription state change published to the
// lifecycle queue.
type LifecycleEventType string

const (
	EventSubscriptionActivated LifecycleEventType = "subscription.activated"
	EventSubscriptionCanceled  LifecycleEventType = "subscription.canceled"
	EventSubscriptionPaused    LifecycleEventType = "subscription.paused"
	EventSubscriptionResumed   LifecycleEventType = "subscription.resumed"
	EventSubscriptionExpired   LifecycleEventType = "subscription.expired"
	EventPaymentFailed         LifecycleEventType = "payment.failed"
)

// LifecycleEvent is the SQS payload consumers (mailers, analytics) receive
// when a subscription changes state. JSON tags use snake_case.
type LifecycleEvent struct {
	EventID        string             `json:"event_id"`
	Type           LifecycleEventType `json:"type"`
	UserID         string             `json:"user_id"`
	SubscriptionID string             `json:"subscription_id,omitempty"`
	ProductID      string             `json:"product_id,omitempty"`
	Status         string             `json:"status,omitempty"`
	PeriodEnd      *time.Time         `json:"period_end,omitempty"`
	OccurredAt     time.Time          `json:"occurred_at"`

	// Observability
	TraceID string `json:"trace_id,omitempty"`
}
