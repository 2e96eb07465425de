package external

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"vega/internal/types"
)

// ---------------------------------------------------------------------------
// CloudPayments Webhook Verification (HMAC-SHA256)
// ---------------------------------------------------------------------------

// ErrWebhookSecretMissing is returned when no webhook secret is configured.
// Deliveries are never accepted in that state.
var ErrWebhookSecretMissing = types.NewAppError(types.ErrCodeInternalMisconfigured, "webhook secret is not configured", nil)

// HMACWebhookVerifier implements WebhookVerifier for CloudPayments
// notifications. The X-CP-Signature header carries
// base64(HMAC-SHA256(secret, raw body)).
type HMACWebhookVerifier struct {
	secret types.SecretString
}

// NewHMACWebhookVerifier creates a verifier keyed by secret.
func NewHMACWebhookVerifier(secret types.SecretString) *HMACWebhookVerifier {
	return &HMACWebhookVerifier{secret: secret}
}

// Verify reports whether signature matches payload. The comparison runs in
// constant time. Returns (false, ErrWebhookSecretMissing) when the verifier
// has no secret and (false, nil) for an empty or mismatched signature.
func (v *HMACWebhookVerifier) Verify(payload []byte, signature string) (bool, error) {
	if v.secret.IsEmpty() {
		return false, ErrWebhookSecretMissing
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false, nil
	}
	expected := SignWebhookPayload(payload, v.secret)
	return hmac.Equal([]byte(expected), []byte(signature)), nil
}

// SignWebhookPayload computes the X-CP-Signature value for payload.
func SignWebhookPayload(payload []byte, secret types.SecretString) string {
	mac := hmac.New(sha256.New, []byte(secret.Unmask()))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ---------------------------------------------------------------------------
// Checkout Widget Signature
// ---------------------------------------------------------------------------

// WidgetSignature signs the checkout widget parameters so the client cannot
// alter the amount or plan: hex(HMAC-SHA256(apiSecret,
// publicId+amount+currency+accountId+description)).
func WidgetSignature(apiSecret types.SecretString, publicID, amount, currency, accountID, description string) string {
	mac := hmac.New(sha256.New, []byte(apiSecret.Unmask()))
	mac.Write([]byte(publicID + amount + currency + accountID + description))
	return hex.EncodeToString(mac.Sum(nil))
}

var _ WebhookVerifier = (*HMACWebhookVerifier)(nil)
