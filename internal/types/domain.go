package types

import "time"

// PaymentProvider identifies the billing backend that owns a record.
type PaymentProvider string

const ProviderCloudPayments PaymentProvider = "cloudpayments"

// SubscriptionStatus is the lifecycle state of a subscription row.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionPaused   SubscriptionStatus = "paused"
	SubscriptionExpired  SubscriptionStatus = "expired"
)

// PaymentStatus is the outcome of a single provider transaction.
type PaymentStatus string

const (
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// Product identifiers stored in subscription.productId.
const (
	ProductPro   = "cloudpayments_pro"
	ProductUltra = "cloudpayments_ultra"
)

// RecurringMonth is the only billing interval the provider is configured with.
const RecurringMonth = "month"

// User is the identity record owned by the auth provider.
type User struct {
	ID            string
	Name          string
	Email         string
	EmailVerified bool
	Image         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Session is an auth-provider session resolved from a bearer token.
type Session struct {
	ID        string
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// Subscription is a billing-cycle record keyed by the provider subscription id.
// Amount is stored in minor units (kopecks).
type Subscription struct {
	ID                          string
	UserID                      string
	CreatedAt                   time.Time
	ModifiedAt                  *time.Time
	UpdatedAt                   *time.Time
	Amount                      int64
	Currency                    string
	RecurringInterval           string
	Status                      SubscriptionStatus
	CurrentPeriodStart          time.Time
	CurrentPeriodEnd            time.Time
	CancelAtPeriodEnd           bool
	CanceledAt                  *time.Time
	StartedAt                   time.Time
	EndedAt                     *time.Time
	CustomerID                  string
	ProductID                   string
	CheckoutID                  string
	Metadata                    Metadata
	CloudPaymentsSubscriptionID string
	CloudPaymentsAccountID      string
	PaymentProvider             PaymentProvider
	MaxPeriods                  *int
	SuccessfulTransactions      int
	FailedTransactions          int
	LastTransactionDate         *time.Time
	NextTransactionDate         *time.Time
	PausedUntil                 *time.Time
}

// IsUltra reports whether the subscription is for the Ultra product.
func (s *Subscription) IsUltra() bool {
	return s.ProductID == ProductUltra
}

// Payment is a transaction record keyed by the provider transaction id.
// TotalAmount is stored in minor units.
type Payment struct {
	ID                string
	UserID            string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Currency          string
	Status            PaymentStatus
	TotalAmount       int64
	PaymentMethod     string
	PaymentMethodType string
	CardLastFour      string
	CardType          string
	CardFirstSix      string
	CardExpDate       string
	ErrorCode         string
	ErrorMessage      string
	SubscriptionID    string
	InvoiceID         string
	TestMode          bool
	Description       string
	Metadata          Metadata
}

// SubscriptionPeriodUpdate carries the columns a management action rewrites.
// Nil pointers leave the column unchanged.
type SubscriptionPeriodUpdate struct {
	Status            SubscriptionStatus
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd *bool
	CanceledAt        *time.Time
	PausedUntil       *time.Time
	ClearPausedUntil  bool
}

// ProviderSubscriptionState is the provider-side view of a recurring
// subscription, used to refresh local counters.
type ProviderSubscriptionState struct {
	ID                     string
	Status                 string
	SuccessfulTransactions int
	FailedTransactions     int
	LastTransactionDate    *time.Time
	NextTransactionDate    *time.Time
}

// SubscriptionUpsert carries the fields a successful payment writes to its
// subscription row. An existing row keeps its creation data and only has its
// period and counters advanced.
type SubscriptionUpsert struct {
	ID            string
	UserID        string
	Amount        int64
	Currency      string
	ProductID     string
	AccountID     string
	PeriodStart   time.Time
	PeriodEnd     time.Time
	TransactionAt time.Time
	Metadata      Metadata
}

// MessageUsage is the per-user daily message counter.
type MessageUsage struct {
	ID           string
	UserID       string
	MessageCount int
	Date         time.Time
	ResetAt      time.Time
}
