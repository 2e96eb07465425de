// Package handlers contains the HTTP handlers of the Vega billing and
// access API.
//
// The CloudPayments webhook is not behind session auth; it is called by the
// provider and authenticated by the X-CP-Signature HMAC of the raw body.
package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"vega/internal/billing"
	"vega/internal/core"
	"vega/internal/external"
	"vega/internal/telemetry"
	"vega/internal/types"
)

// maxWebhookBodySize caps a notification body (64 KB).
const maxWebhookBodySize = 64 * 1024

// signatureHeader carries base64(HMAC-SHA256(apiSecret, body)).
const signatureHeader = "X-CP-Signature"

// WebhookReconciler applies a verified notification.
type WebhookReconciler interface {
	Reconcile(ctx context.Context, p *billing.WebhookPayload) (billing.ReconcileResult, error)
}

// WebhookRecorder counts notifications rejected before reconciliation.
type WebhookRecorder interface {
	RecordWebhook(status, outcome string)
}

// CloudPaymentsWebhookHandler receives pay and fail notifications.
type CloudPaymentsWebhookHandler struct {
	verifier   external.WebhookVerifier
	reconciler WebhookReconciler
	metrics    WebhookRecorder
	logger     *slog.Logger
}

func NewCloudPaymentsWebhookHandler(
	verifier external.WebhookVerifier,
	reconciler WebhookReconciler,
	metrics WebhookRecorder,
	logger *slog.Logger,
) *CloudPaymentsWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = telemetry.Nop{}
	}
	return &CloudPaymentsWebhookHandler{
		verifier:   verifier,
		reconciler: reconciler,
		metrics:    metrics,
		logger:     logger,
	}
}

// RegisterRoutes mounts the webhook endpoint. The path is public in the
// auth middleware.
func (h *CloudPaymentsWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Get("/cloudpayments/webhook", h.Info)
	r.Post("/cloudpayments/webhook", h.Handle)
}

// Info handles GET /v1/cloudpayments/webhook.
func (h *CloudPaymentsWebhookHandler) Info(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, map[string]string{"message": "CloudPayments webhook endpoint"})
}

// Handle processes a notification:
//  1. Reads the raw body (64 KB cap) and the signature header.
//  2. Verifies the signature; any failure answers 401 before parsing.
//  3. Parses the payload and hands it to the reconciler.
//  4. Answers {success:true}, including for duplicates and ignored statuses.
func (h *CloudPaymentsWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidPayload, "failed to read request body", err))
		return
	}

	ok, err := h.verifier.Verify(body, r.Header.Get(signatureHeader))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "webhook signature could not be checked", "error", err)
	}
	if !ok {
		h.logger.WarnContext(r.Context(), "webhook signature rejected")
		h.metrics.RecordWebhook("unknown", telemetry.OutcomeRejected)
		core.JSON(w, r, types.ErrCodeAuthSignature.HTTPStatus(), map[string]string{
			"error": "Invalid signature",
			"code":  string(types.ErrCodeAuthSignature),
		})
		return
	}

	payload, err := billing.ParseWebhookPayload(body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "invalid webhook payload", "error", err)
		h.metrics.RecordWebhook("unknown", telemetry.OutcomeRejected)
		core.Error(w, r, err)
		return
	}

	if _, err := h.reconciler.Reconcile(r.Context(), payload); err != nil {
		// The provider redelivers on non-2xx; the upserts and the event
		// ledger make the retry safe.
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, map[string]bool{"success": true})
}
