package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing operational errors raised by
// the HTTP layer, repositories and outbound clients.
type ErrorCode string

// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField     ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidField     ErrorCode = "validation_invalid_field"
	ErrCodeValidationInvalidAction    ErrorCode = "validation_invalid_action"
	ErrCodeValidationInvalidPlan      ErrorCode = "validation_invalid_plan"
	ErrCodeValidationPauseDuration    ErrorCode = "validation_pause_duration_exceeded"
	ErrCodeValidationInvalidPayload   ErrorCode = "validation_invalid_payload"
	ErrCodeValidationProviderRejected ErrorCode = "validation_provider_rejected"
	ErrCodeValidationInvalidJSON      ErrorCode = "validation_invalid_json"

	// Auth (401)
	ErrCodeAuthTokenMissing   ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid   ErrorCode = "auth_token_invalid"
	ErrCodeAuthSessionExpired ErrorCode = "auth_session_expired"
	ErrCodeAuthSignature      ErrorCode = "auth_invalid_signature"

	// Limits (429)
	ErrCodeRateLimit ErrorCode = "rate_limit_exceeded"

	// Not Found (404)
	ErrCodeNotFoundUser         ErrorCode = "not_found_user"
	ErrCodeNotFoundSubscription ErrorCode = "not_found_subscription"
	ErrCodeNotFoundPayment      ErrorCode = "not_found_payment"

	// Conflict (409)
	ErrCodeConflictAlreadyCanceled ErrorCode = "conflict_already_canceled"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB               ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected       ErrorCode = "internal_unexpected_error"
	ErrCodeInternalMisconfigured    ErrorCode = "internal_misconfigured"
	ErrCodeUpstreamPaymentProvider  ErrorCode = "upstream_payment_provider_unavailable"
	ErrCodeUpstreamUnavailable      ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited      ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamCacheUnavailable ErrorCode = "upstream_cache_unavailable"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized
	case s == string(ErrCodeRateLimit):
		return http.StatusTooManyRequests
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case s == string(ErrCodeUpstreamRateLimited):
		return http.StatusServiceUnavailable
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard operational error type. Handlers render it through
// core.Error, which picks the HTTP status from Code.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
