package billing

import (
	"context"
	"log/slog"
	"strconv"

	"vega/internal/external"
	"vega/internal/telemetry"
	"vega/internal/types"
)

// CheckoutProvider is the slice of the payment provider checkout uses.
type CheckoutProvider interface {
	PublicID() string
	CreateSubscription(ctx context.Context, req external.CreateSubscriptionRequest) (*external.SubscriptionModel, error)
}

// CreateSubscriptionInput is the body of POST /v1/subscriptions.
type CreateSubscriptionInput struct {
	PlanType string `json:"planType,omitempty"`
	Duration int    `json:"duration,omitempty" validate:"omitempty,min=1,max=36"`
}

// Widget is what the browser needs to open the provider's payment form.
type Widget struct {
	PublicID       string `json:"publicId"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	AccountID      string `json:"accountId"`
	Email          string `json:"email"`
	Description    string `json:"description"`
	SubscriptionID string `json:"subscriptionId"`
	Signature      string `json:"signature"`
}

// CheckoutResult is the response of a created subscription.
type CheckoutResult struct {
	Success      bool                        `json:"success"`
	Subscription *external.SubscriptionModel `json:"subscription"`
	Widget       Widget                      `json:"widget"`
}

// Checkout creates provider subscriptions. The local row is written later
// by the webhook of the first successful charge.
type Checkout struct {
	provider  CheckoutProvider
	apiSecret types.SecretString
	plans     PlanRegistry
	metrics   Recorder
	logger    *slog.Logger
}

// CheckoutConfig wires a Checkout.
type CheckoutConfig struct {
	Provider  CheckoutProvider
	APISecret types.SecretString
	Plans     PlanRegistry
	Metrics   Recorder
	Logger    *slog.Logger
}

func NewCheckout(cfg CheckoutConfig) *Checkout {
	c := &Checkout{
		provider:  cfg.Provider,
		apiSecret: cfg.APISecret,
		plans:     cfg.Plans,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
	if c.plans == nil {
		c.plans = NewStaticPlanRegistry()
	}
	if c.metrics == nil {
		c.metrics = noopRecorder{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Plans lists the public plans.
func (c *Checkout) Plans() []PublicPlan {
	return c.plans.PublicPlans()
}

// Create registers a recurring monthly charge of the chosen plan for user
// and returns the signed widget parameters. Duration defaults to 12 months
// and becomes the subscription's MaxPeriods.
func (c *Checkout) Create(ctx context.Context, user *types.User, in CreateSubscriptionInput) (*CheckoutResult, error) {
	plan, err := ParsePlan(in.PlanType)
	if err != nil {
		return nil, err
	}
	duration := in.Duration
	if duration <= 0 {
		duration = DefaultDuration
	}
	price, err := c.plans.Price(plan, duration)
	if err != nil {
		return nil, err
	}

	model, err := c.provider.CreateSubscription(ctx, external.CreateSubscriptionRequest{
		AccountID:           user.ID,
		Email:               user.Email,
		Amount:              float64(price.Amount),
		Currency:            Currency,
		Description:         price.Description,
		Interval:            external.IntervalMonth,
		Period:              1,
		MaxPeriods:          duration,
		RequireConfirmation: true,
	})
	if err != nil {
		c.metrics.RecordSubscriptionAction("create", telemetry.ResultFailure)
		c.logger.WarnContext(ctx, "subscription create failed",
			"user_id", user.ID,
			"plan", string(plan),
			"error", err,
		)
		return nil, err
	}
	c.metrics.RecordSubscriptionAction("create", telemetry.ResultSuccess)

	publicID := c.provider.PublicID()
	amount := strconv.FormatInt(price.Amount, 10)
	c.logger.InfoContext(ctx, "subscription created",
		"user_id", user.ID,
		"plan", string(plan),
		"duration", duration,
		"subscription_id", model.ID,
	)

	return &CheckoutResult{
		Success:      true,
		Subscription: model,
		Widget: Widget{
			PublicID:       publicID,
			Amount:         price.Amount,
			Currency:       Currency,
			AccountID:      user.ID,
			Email:          user.Email,
			Description:    price.Description,
			SubscriptionID: model.ID,
			Signature:      external.WidgetSignature(c.apiSecret, publicID, amount, Currency, user.ID, price.Description),
		},
	}, nil
}
