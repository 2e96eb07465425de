package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"vega/internal/types"
)

const (
	// DefaultCloudPaymentsURL is the production API host.
	DefaultCloudPaymentsURL = "https://api.cloudpayments.ru"

	cloudPaymentsUserAgent = "Vega/1.0"
	providerDateLayout     = "2006-01-02"

	// maxProviderResponse bounds how much of a response body is decoded.
	maxProviderResponse = 1 << 20
)

// Recurrent intervals accepted by /subscriptions/create.
const (
	IntervalDay   = "Day"
	IntervalWeek  = "Week"
	IntervalMonth = "Month"
)

// CreateSubscriptionRequest is the body of /subscriptions/create.
type CreateSubscriptionRequest struct {
	AccountID           string    `json:"AccountId"`
	Email               string    `json:"Email"`
	Amount              float64   `json:"Amount"`
	Currency            string    `json:"Currency"`
	Description         string    `json:"Description"`
	Interval            string    `json:"Interval"`
	Period              int       `json:"Period"`
	MaxPeriods          int       `json:"MaxPeriods,omitempty"`
	StartDate           time.Time `json:"StartDate"`
	RequireConfirmation bool      `json:"RequireConfirmation"`
}

// SubscriptionModel is the provider's representation of a recurring
// subscription, returned by create and get.
type SubscriptionModel struct {
	ID                           string  `json:"Id"`
	AccountID                    string  `json:"AccountId"`
	Description                  string  `json:"Description"`
	Email                        string  `json:"Email"`
	Amount                       float64 `json:"Amount"`
	Currency                     string  `json:"Currency"`
	RequireConfirmation          bool    `json:"RequireConfirmation"`
	StartDate                    string  `json:"StartDateIso"`
	Interval                     string  `json:"Interval"`
	Period                       int     `json:"Period"`
	MaxPeriods                   *int    `json:"MaxPeriods"`
	Status                       string  `json:"Status"`
	StatusCode                   int     `json:"StatusCode"`
	SuccessfulTransactionsNumber int     `json:"SuccessfulTransactionsNumber"`
	FailedTransactionsNumber     int     `json:"FailedTransactionsNumber"`
	LastTransactionDate          string  `json:"LastTransactionDateIso"`
	NextTransactionDate          string  `json:"NextTransactionDateIso"`
}

// State converts the model into the fields the local row tracks.
func (m *SubscriptionModel) State() types.ProviderSubscriptionState {
	return types.ProviderSubscriptionState{
		ID:                     m.ID,
		Status:                 m.Status,
		SuccessfulTransactions: m.SuccessfulTransactionsNumber,
		FailedTransactions:     m.FailedTransactionsNumber,
		LastTransactionDate:    parseProviderTime(m.LastTransactionDate),
		NextTransactionDate:    parseProviderTime(m.NextTransactionDate),
	}
}

// apiResponse is the envelope every CloudPayments endpoint answers with.
type apiResponse struct {
	Success bool            `json:"Success"`
	Message *string         `json:"Message"`
	Model   json.RawMessage `json:"Model"`
}

// CloudPaymentsClient calls the CloudPayments subscription API with HTTP
// Basic credentials (public id, API secret).
type CloudPaymentsClient struct {
	base      *BaseClient
	baseURL   string
	publicID  string
	apiSecret types.SecretString
	logger    *slog.Logger
}

// CloudPaymentsConfig configures a CloudPaymentsClient.
type CloudPaymentsConfig struct {
	PublicID  string
	APISecret types.SecretString
	BaseURL   string
	Logger    *slog.Logger
}

// NewCloudPaymentsClient creates a client around base. An empty BaseURL
// selects the production host.
func NewCloudPaymentsClient(base *BaseClient, cfg CloudPaymentsConfig) *CloudPaymentsClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultCloudPaymentsURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudPaymentsClient{
		base:      base,
		baseURL:   baseURL,
		publicID:  cfg.PublicID,
		apiSecret: cfg.APISecret,
		logger:    logger,
	}
}

// NewDefaultCloudPaymentsClient builds the client with its own BaseClient
// using DefaultRetryPolicy.
func NewDefaultCloudPaymentsClient(cfg CloudPaymentsConfig) *CloudPaymentsClient {
	opts := []BaseClientOption{}
	if cfg.Logger != nil {
		opts = append(opts, WithLogger(cfg.Logger))
	}
	base := NewBaseClient(
		&http.Client{Timeout: 15 * time.Second},
		"cloudpayments",
		DefaultRetryPolicy(),
		cloudPaymentsUserAgent,
		opts...,
	)
	return NewCloudPaymentsClient(base, cfg)
}

// PublicID returns the widget public id.
func (c *CloudPaymentsClient) PublicID() string { return c.publicID }

// CreateSubscription creates a recurring subscription. It is sent once: a
// retried create after a lost response would open a second subscription.
func (c *CloudPaymentsClient) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*SubscriptionModel, error) {
	var model SubscriptionModel
	if err := c.call(ctx, "/subscriptions/create", req, &model, WithoutRetry()); err != nil {
		return nil, err
	}
	return &model, nil
}

// CancelSubscription stops future charges of the subscription.
func (c *CloudPaymentsClient) CancelSubscription(ctx context.Context, id string) error {
	return c.call(ctx, "/subscriptions/cancel", map[string]string{"Id": id}, nil)
}

// UpdateSubscriptionStartDate moves the next charge of the subscription to
// startDate. Pause and resume are both expressed through it.
func (c *CloudPaymentsClient) UpdateSubscriptionStartDate(ctx context.Context, id string, startDate time.Time) error {
	body := map[string]string{
		"Id":        id,
		"StartDate": startDate.UTC().Format(providerDateLayout),
	}
	return c.call(ctx, "/subscriptions/update", body, nil)
}

// GetSubscription fetches the provider state of a subscription.
func (c *CloudPaymentsClient) GetSubscription(ctx context.Context, id string) (*SubscriptionModel, error) {
	var model SubscriptionModel
	if err := c.call(ctx, "/subscriptions/get", map[string]string{"Id": id}, &model); err != nil {
		return nil, err
	}
	return &model, nil
}

// call posts body to endpoint and decodes the Model of a successful reply
// into out (when non-nil). Success=false maps to
// validation_provider_rejected carrying the provider's message.
func (c *CloudPaymentsClient) call(ctx context.Context, endpoint string, body, out any, opts ...RequestOption) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode provider request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build provider request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.publicID, c.apiSecret.Unmask())

	resp, err := c.base.Do(req, opts...)
	if err != nil {
		c.logger.ErrorContext(ctx, "cloudpayments request failed",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return asPaymentProviderError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderResponse))
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamPaymentProvider, "failed to read provider response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.ErrorContext(ctx, "cloudpayments returned non-success status",
			slog.String("endpoint", endpoint),
			slog.Int("status", resp.StatusCode),
		)
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamPaymentProvider,
			fmt.Sprintf("payment provider returned HTTP %d", resp.StatusCode), nil,
			map[string]any{"status": resp.StatusCode})
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamPaymentProvider, "malformed provider response", err)
	}

	if !envelope.Success {
		msg := "payment provider rejected the request"
		if envelope.Message != nil && *envelope.Message != "" {
			msg = *envelope.Message
		}
		c.logger.WarnContext(ctx, "cloudpayments rejected request",
			slog.String("endpoint", endpoint),
			slog.String("message", msg),
		)
		return types.NewAppError(types.ErrCodeValidationProviderRejected, msg, nil)
	}

	if out != nil && len(envelope.Model) > 0 && string(envelope.Model) != "null" {
		if err := json.Unmarshal(envelope.Model, out); err != nil {
			return types.NewAppError(types.ErrCodeUpstreamPaymentProvider, "malformed provider model", err)
		}
	}
	return nil
}

// asPaymentProviderError narrows generic upstream failures from BaseClient
// to the payment-provider code. Rate limiting keeps its own code.
func asPaymentProviderError(err error) error {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return types.NewAppError(types.ErrCodeUpstreamPaymentProvider, "payment provider unavailable", err)
	}
	if appErr.Code == types.ErrCodeUpstreamUnavailable {
		return types.NewAppError(types.ErrCodeUpstreamPaymentProvider, appErr.Message, appErr.Err)
	}
	return appErr
}

// parseProviderTime accepts the ISO layouts CloudPayments emits, with or
// without a zone. Unzoned values are UTC. Anything else yields nil.
func parseProviderTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", providerDateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
