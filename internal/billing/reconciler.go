package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"vega/internal/external"
	"vega/internal/telemetry"
	"vega/internal/types"
)

// providerFlag decodes the 0/1 integers the provider uses for booleans,
// and tolerates real booleans and quoted digits.
type providerFlag bool

func (f *providerFlag) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	switch strings.ToLower(s) {
	case "1", "true":
		*f = true
	case "0", "false", "", "null":
		*f = false
	default:
		return errors.New("invalid flag value " + s)
	}
	return nil
}

// WebhookPayload is a CloudPayments pay/fail notification.
type WebhookPayload struct {
	TransactionID  int64           `json:"TransactionId"`
	Amount         float64         `json:"Amount"`
	Currency       string          `json:"Currency"`
	DateTime       string          `json:"DateTime"`
	CardFirstSix   string          `json:"CardFirstSix"`
	CardLastFour   string          `json:"CardLastFour"`
	CardType       string          `json:"CardType"`
	CardExpDate    string          `json:"CardExpDate"`
	TestMode       providerFlag    `json:"TestMode"`
	Status         string          `json:"Status"`
	OperationType  string          `json:"OperationType"`
	InvoiceID      string          `json:"InvoiceId"`
	AccountID      string          `json:"AccountId"`
	SubscriptionID string          `json:"SubscriptionId"`
	Name           string          `json:"Name"`
	Email          string          `json:"Email"`
	Data           json.RawMessage `json:"Data"`
	Token          string          `json:"Token"`
	TotalFee       float64         `json:"TotalFee"`
	Reason         string          `json:"Reason"`
	ReasonCode     *int            `json:"ReasonCode"`
}

// ParseWebhookPayload decodes a notification body.
func ParseWebhookPayload(body []byte) (*WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidPayload, "invalid webhook payload", err)
	}
	return &p, nil
}

// EventKey identifies one delivery outcome in the ledger.
func (p *WebhookPayload) EventKey() string {
	return p.transactionRef() + ":" + p.Status
}

func (p *WebhookPayload) transactionRef() string {
	return strconv.FormatInt(p.TransactionID, 10)
}

// minorUnits converts a major-unit amount to kopecks.
func minorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// transactionTime parses DateTime, which the provider sends with or
// without a zone. Unzoned values are UTC.
func (p *WebhookPayload) transactionTime(fallback time.Time) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, p.DateTime); err == nil {
			return t.UTC()
		}
	}
	return fallback
}

// Outcome describes what a reconciliation did.
type Outcome string

const (
	OutcomeApplied   Outcome = telemetry.OutcomeApplied
	OutcomeDuplicate Outcome = telemetry.OutcomeDuplicate
	OutcomeIgnored   Outcome = telemetry.OutcomeIgnored
)

// ReconcileResult is returned for every handled notification.
type ReconcileResult struct {
	Outcome Outcome
	UserID  string
	EventID string
}

// Reconciler applies verified notifications to the store inside one
// transaction, guarded by the processed-event ledger.
type Reconciler struct {
	tx           TxRunner
	plans        PlanRegistry
	entitlements Invalidator
	publisher    EventPublisher
	metrics      Recorder
	clock        types.Clock
	logger       *slog.Logger
}

// ReconcilerConfig wires a Reconciler.
type ReconcilerConfig struct {
	Tx           TxRunner
	Plans        PlanRegistry
	Entitlements Invalidator
	Publisher    EventPublisher
	Metrics      Recorder
	Clock        types.Clock
	Logger       *slog.Logger
}

// NewReconciler creates a Reconciler. Optional dependencies default to
// no-ops.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	r := &Reconciler{
		tx:           cfg.Tx,
		plans:        cfg.Plans,
		entitlements: cfg.Entitlements,
		publisher:    cfg.Publisher,
		metrics:      cfg.Metrics,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
	}
	if r.plans == nil {
		r.plans = NewStaticPlanRegistry()
	}
	if r.publisher == nil {
		r.publisher = noopPublisher{}
	}
	if r.metrics == nil {
		r.metrics = noopRecorder{}
	}
	if r.clock == nil {
		r.clock = types.RealClock{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Reconcile applies p. Completed payments record the payment and activate
// the subscription; Declined and Cancelled record a failed payment; every
// other status is ignored. A redelivered event is acknowledged without
// being applied twice.
func (r *Reconciler) Reconcile(ctx context.Context, p *WebhookPayload) (ReconcileResult, error) {
	logger := r.logger.With(
		"transaction_id", p.TransactionID,
		"status", p.Status,
		"operation_type", p.OperationType,
	)

	var apply func(ctx context.Context, store ReconcileStore, userID string, now time.Time) error
	switch p.Status {
	case external.WebhookStatusCompleted:
		apply = r.applyCompleted(p)
	case external.WebhookStatusDeclined, external.WebhookStatusCancelled:
		apply = r.applyFailed(p)
	default:
		logger.InfoContext(ctx, "unhandled payment status")
		r.metrics.RecordWebhook(p.Status, string(OutcomeIgnored))
		return ReconcileResult{Outcome: OutcomeIgnored}, nil
	}

	now := r.clock.Now()
	result := ReconcileResult{Outcome: OutcomeApplied}

	err := r.tx.RunInTx(ctx, func(ctx context.Context, store ReconcileStore) error {
		userID, err := r.resolveUser(ctx, store, p)
		if err != nil {
			return err
		}
		if userID == "" {
			result.Outcome = OutcomeIgnored
			return nil
		}
		result.UserID = userID

		claimed, err := store.ClaimEvent(ctx, p.EventKey(), p.transactionRef(), p.Status, now)
		if err != nil {
			return err
		}
		if !claimed {
			result.Outcome = OutcomeDuplicate
			return nil
		}
		return apply(ctx, store, userID, now)
	})
	if err != nil {
		logger.ErrorContext(ctx, "webhook reconciliation failed", "error", err)
		r.metrics.RecordWebhook(p.Status, telemetry.OutcomeError)
		return ReconcileResult{}, err
	}

	r.metrics.RecordWebhook(p.Status, string(result.Outcome))

	switch result.Outcome {
	case OutcomeIgnored:
		logger.ErrorContext(ctx, "no user for payment", "account_id", p.AccountID)
		return result, nil
	case OutcomeDuplicate:
		logger.InfoContext(ctx, "webhook event already processed", "user_id", result.UserID)
		return result, nil
	}

	if r.entitlements != nil {
		if err := r.entitlements.Invalidate(ctx, result.UserID); err != nil {
			logger.WarnContext(ctx, "entitlement invalidation failed", "user_id", result.UserID, "error", err)
		}
	}
	r.publish(ctx, logger, p, result.UserID, now)

	logger.InfoContext(ctx, "webhook event applied", "user_id", result.UserID)
	return result, nil
}

// resolveUser returns AccountId unless the payer's email belongs to a known
// user, in which case that user wins.
func (r *Reconciler) resolveUser(ctx context.Context, store ReconcileStore, p *WebhookPayload) (string, error) {
	userID := strings.TrimSpace(p.AccountID)
	if email := strings.TrimSpace(p.Email); email != "" {
		byEmail, err := store.FindUserIDByEmail(ctx, email)
		if err != nil {
			return "", err
		}
		if byEmail != "" {
			userID = byEmail
		}
	}
	return userID, nil
}

func (r *Reconciler) applyCompleted(p *WebhookPayload) func(context.Context, ReconcileStore, string, time.Time) error {
	return func(ctx context.Context, store ReconcileStore, userID string, now time.Time) error {
		payment := &types.Payment{
			ID:                p.transactionRef(),
			UserID:            userID,
			CreatedAt:         p.transactionTime(now),
			UpdatedAt:         now,
			Currency:          p.Currency,
			Status:            types.PaymentSucceeded,
			TotalAmount:       minorUnits(p.Amount),
			PaymentMethod:     "card",
			PaymentMethodType: p.CardType,
			CardLastFour:      p.CardLastFour,
			CardType:          p.CardType,
			CardFirstSix:      p.CardFirstSix,
			CardExpDate:       p.CardExpDate,
			SubscriptionID:    p.SubscriptionID,
			InvoiceID:         p.InvoiceID,
			TestMode:          bool(p.TestMode),
			Metadata: types.Metadata{
				"transactionId": p.TransactionID,
				"cardFirstSix":  p.CardFirstSix,
				"cardExpDate":   p.CardExpDate,
				"testMode":      bool(p.TestMode),
				"token":         p.Token,
				"totalFee":      p.TotalFee,
			},
		}
		if err := store.UpsertPayment(ctx, payment); err != nil {
			return err
		}

		if p.SubscriptionID == "" {
			return nil
		}
		return store.UpsertSubscription(ctx, types.SubscriptionUpsert{
			ID:            p.SubscriptionID,
			UserID:        userID,
			Amount:        minorUnits(p.Amount),
			Currency:      p.Currency,
			ProductID:     r.plans.ResolveProductID(planHintFromData(p.Data), p.Amount),
			AccountID:     p.AccountID,
			PeriodStart:   now,
			PeriodEnd:     now.AddDate(0, 1, 0),
			TransactionAt: now,
			Metadata: types.Metadata{
				"token":                 p.Token,
				"originalTransactionId": p.TransactionID,
			},
		})
	}
}

func (r *Reconciler) applyFailed(p *WebhookPayload) func(context.Context, ReconcileStore, string, time.Time) error {
	return func(ctx context.Context, store ReconcileStore, userID string, now time.Time) error {
		var errorCode string
		if p.ReasonCode != nil {
			errorCode = strconv.Itoa(*p.ReasonCode)
		}
		return store.UpsertPayment(ctx, &types.Payment{
			ID:             p.transactionRef(),
			UserID:         userID,
			CreatedAt:      p.transactionTime(now),
			UpdatedAt:      now,
			Currency:       p.Currency,
			Status:         types.PaymentFailed,
			TotalAmount:    minorUnits(p.Amount),
			PaymentMethod:  "card",
			CardLastFour:   p.CardLastFour,
			CardType:       p.CardType,
			ErrorCode:      errorCode,
			ErrorMessage:   p.Reason,
			SubscriptionID: p.SubscriptionID,
			InvoiceID:      p.InvoiceID,
			TestMode:       bool(p.TestMode),
			Metadata: types.Metadata{
				"transactionId": p.TransactionID,
				"testMode":      bool(p.TestMode),
				"reasonCode":    p.ReasonCode,
				"reason":        p.Reason,
			},
		})
	}
}

func (r *Reconciler) publish(ctx context.Context, logger *slog.Logger, p *WebhookPayload, userID string, now time.Time) {
	event := types.LifecycleEvent{
		UserID:         userID,
		SubscriptionID: p.SubscriptionID,
		Status:         p.Status,
		OccurredAt:     now,
	}
	switch {
	case p.Status == external.WebhookStatusCompleted && p.SubscriptionID != "":
		event.Type = types.EventSubscriptionActivated
		event.ProductID = r.plans.ResolveProductID(planHintFromData(p.Data), p.Amount)
		end := now.AddDate(0, 1, 0)
		event.PeriodEnd = &end
	case p.Status != external.WebhookStatusCompleted:
		event.Type = types.EventPaymentFailed
	default:
		return
	}

	if err := r.publisher.Publish(ctx, event); err != nil {
		logger.WarnContext(ctx, "lifecycle event publish failed", "type", string(event.Type), "error", err)
	}
}
