package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorType is the category half of a scoped error code.
type ErrorType string

const (
	ErrorTypeBadRequest      ErrorType = "bad_request"
	ErrorTypeUnauthorized    ErrorType = "unauthorized"
	ErrorTypeForbidden       ErrorType = "forbidden"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeRateLimit       ErrorType = "rate_limit"
	ErrorTypeUpgradeRequired ErrorType = "upgrade_required"
	ErrorTypeModelRestricted ErrorType = "model_restricted"
	ErrorTypeOffline         ErrorType = "offline"
)

// Surface identifies the part of the product an error was raised from. It
// selects the user-facing message and whether details may be returned.
type Surface string

const (
	SurfaceChat     Surface = "chat"
	SurfaceAuth     Surface = "auth"
	SurfaceAPI      Surface = "api"
	SurfaceStream   Surface = "stream"
	SurfaceDatabase Surface = "database"
	SurfaceHistory  Surface = "history"
	SurfaceModel    Surface = "model"
)

// Visibility controls how a ScopedError reaches the client.
type Visibility string

const (
	// VisibilityResponse returns code, message and cause to the client.
	VisibilityResponse Visibility = "response"
	// VisibilityLog logs the error and returns only a generic message.
	VisibilityLog Visibility = "log"
)

// SuggestedAction is the follow-up a client should offer for an error.
type SuggestedAction string

const (
	ActionSignIn  SuggestedAction = "signin"
	ActionUpgrade SuggestedAction = "upgrade"
	ActionRetry   SuggestedAction = "retry"
)

// GenericErrorMessage is shown for log-only errors and unknown codes.
const GenericErrorMessage = "Something went wrong. Please try again later."

const databaseErrorMessage = "An error occurred while executing a database query."

// scopedMessages holds per-code user-facing messages. Codes without an entry
// fall back to GenericErrorMessage.
var scopedMessages = map[string]string{
	"bad_request:api":        "The request couldn't be processed. Please check your input and try again.",
	"rate_limit:api":         "You have reached the daily limit for this feature. Upgrade to Pro for unlimited access.",
	"forbidden:api":          "Access denied.",
	"unauthorized:auth":      "You need to sign in before continuing.",
	"forbidden:auth":         "Your account does not have access to this feature.",
	"upgrade_required:auth":  "This feature requires a Pro subscription. Sign in and upgrade to continue.",
	"rate_limit:chat":        "You have exceeded your maximum number of messages for the day. Please try again later.",
	"upgrade_required:chat":  "You have reached the daily search limit. Upgrade to Pro for unlimited searches.",
	"not_found:chat":         "The requested chat was not found. Please check the chat ID and try again.",
	"forbidden:chat":         "This chat belongs to another user. Please check the chat ID and try again.",
	"unauthorized:chat":      "You need to sign in to view this chat. Please sign in and try again.",
	"offline:chat":           "We're having trouble sending your message. Please check your internet connection and try again.",
	"unauthorized:model":     "You need to sign in to access this AI model.",
	"forbidden:model":        "This AI model requires a Pro subscription.",
	"model_restricted:model": "Access to this AI model is restricted. Please upgrade to Pro or contact support.",
	"upgrade_required:model": "This premium AI model is only available with a Pro subscription.",
	"rate_limit:model":       "You have reached the usage limit for this AI model. Upgrade to Pro for unlimited access.",
	"not_found:model":        "The requested AI model does not exist.",
	"not_found:api":          "The requested resource was not found.",
	"unauthorized:api":       "You need to sign in before continuing.",
	"upgrade_required:api":   "This feature requires an Ultra subscription.",
}

// ScopedError is a product-facing error identified by a "type:surface" code.
// It complements AppError: AppError describes operational failures, while
// ScopedError describes what the user is allowed to do next.
type ScopedError struct {
	Type    ErrorType
	Surface Surface
	Cause   string
}

// NewScopedError builds a ScopedError from its parts.
func NewScopedError(t ErrorType, s Surface, cause string) *ScopedError {
	return &ScopedError{Type: t, Surface: s, Cause: cause}
}

// ParseScopedCode builds a ScopedError from a "type:surface" code string.
func ParseScopedCode(code string, cause string) (*ScopedError, error) {
	t, s, ok := strings.Cut(code, ":")
	if !ok || t == "" || s == "" {
		return nil, fmt.Errorf("malformed scoped error code %q", code)
	}
	return &ScopedError{Type: ErrorType(t), Surface: Surface(s), Cause: cause}, nil
}

// Code returns the "type:surface" identifier.
func (e *ScopedError) Code() string {
	return string(e.Type) + ":" + string(e.Surface)
}

// Error implements the error interface.
func (e *ScopedError) Error() string {
	if e.Cause != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code(), e.Message(), e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code(), e.Message())
}

// Message returns the user-facing message for the error code. Every database
// surface error shares one message.
func (e *ScopedError) Message() string {
	if e.Surface == SurfaceDatabase {
		return databaseErrorMessage
	}
	if msg, ok := scopedMessages[e.Code()]; ok {
		return msg
	}
	return GenericErrorMessage
}

// HTTPStatus maps the error type to its HTTP status code.
func (e *ScopedError) HTTPStatus() int {
	switch e.Type {
	case ErrorTypeBadRequest:
		return http.StatusBadRequest
	case ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case ErrorTypeForbidden, ErrorTypeModelRestricted:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeUpgradeRequired:
		return http.StatusPaymentRequired
	case ErrorTypeOffline:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Visibility reports whether the error may be returned verbatim.
func (e *ScopedError) Visibility() Visibility {
	if e.Surface == SurfaceDatabase {
		return VisibilityLog
	}
	return VisibilityResponse
}

// IsSignInRequired reports whether the client should prompt for sign-in.
func (e *ScopedError) IsSignInRequired() bool {
	return e.Type == ErrorTypeUnauthorized &&
		(e.Surface == SurfaceAuth || e.Surface == SurfaceChat || e.Surface == SurfaceModel)
}

// IsProRequired reports whether the error is resolved by upgrading.
func (e *ScopedError) IsProRequired() bool {
	return e.Type == ErrorTypeUpgradeRequired ||
		e.Type == ErrorTypeForbidden ||
		e.Type == ErrorTypeModelRestricted
}

// IsRateLimited reports whether the error is a quota denial.
func (e *ScopedError) IsRateLimited() bool {
	return e.Type == ErrorTypeRateLimit
}

// Actions returns the primary and secondary follow-ups for the client.
func (e *ScopedError) Actions() (primary, secondary SuggestedAction) {
	switch {
	case e.IsSignInRequired():
		return ActionSignIn, ActionRetry
	case e.IsProRequired(), e.IsRateLimited():
		return ActionUpgrade, ActionRetry
	default:
		return ActionRetry, ""
	}
}
