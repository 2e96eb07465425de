package core

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"vega/internal/types"
)

// maxRequestBodySize is the maximum allowed size of a request body (1 MB).
const maxRequestBodySize = 1 << 20

// APIResponse is the standard envelope for successful API responses.
type APIResponse struct {
	Data any           `json:"data,omitempty"`
	Meta *ResponseMeta `json:"meta,omitempty"`
}

// ResponseMeta carries non-blocking information alongside the payload.
type ResponseMeta struct {
	Warnings []string `json:"warnings,omitempty"`
}

// APIErrorResponse is the standard envelope for error responses.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the structured error information returned to clients.
// Cause and Actions are only set for scoped (type:surface) errors.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Cause     string         `json:"cause,omitempty"`
	Actions   []string       `json:"actions,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// JSON writes data as a JSON response with the given status code. If
// marshalling fails it falls back to a 500 error body.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fallback := APIErrorResponse{
			Error: ErrorDetail{
				Code:      string(types.ErrCodeInternalUnexpected),
				Message:   "failed to marshal response",
				RequestID: types.GetRequestID(r.Context()),
			},
		}
		_ = json.NewEncoder(w).Encode(fallback)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error writes an error response. It inspects the error chain:
//   - *types.ScopedError renders its type:surface code, message and suggested
//     actions. Log-only surfaces are logged and return just the shared message.
//   - *types.AppError renders its code, message and details.
//   - Anything else is a 500 "internal_unexpected_error" with no detail.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	requestID := types.GetRequestID(r.Context())

	var scoped *types.ScopedError
	if errors.As(err, &scoped) {
		detail := ErrorDetail{
			Code:      scoped.Code(),
			Message:   scoped.Message(),
			RequestID: requestID,
		}
		if scoped.Visibility() == types.VisibilityLog {
			slog.Default().ErrorContext(r.Context(), "scoped error",
				"code", scoped.Code(),
				"cause", scoped.Cause,
				"request_id", requestID,
			)
		} else {
			detail.Cause = scoped.Cause
			primary, secondary := scoped.Actions()
			detail.Actions = []string{string(primary)}
			if secondary != "" {
				detail.Actions = append(detail.Actions, string(secondary))
			}
		}
		JSON(w, r, scoped.HTTPStatus(), APIErrorResponse{Error: detail})
		return
	}

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		resp := APIErrorResponse{
			Error: ErrorDetail{
				Code:      string(appErr.Code),
				Message:   appErr.Message,
				Details:   appErr.Details,
				RequestID: requestID,
			},
		}
		JSON(w, r, appErr.HTTPStatus(), resp)
		return
	}

	resp := APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(types.ErrCodeInternalUnexpected),
			Message:   "an unexpected error occurred",
			RequestID: requestID,
		},
	}
	JSON(w, r, http.StatusInternalServerError, resp)
}

// DecodeJSON reads the request body into dst. Bodies are capped at 1 MB,
// unknown fields are rejected and only a single JSON value is accepted.
// Failures are returned as "validation_invalid_json" AppErrors.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return mapDecodeError(err)
	}

	if dec.More() {
		return types.NewAppError(
			types.ErrCodeValidationInvalidJSON,
			"request body must contain a single JSON object",
			nil,
		)
	}

	return nil
}

func mapDecodeError(err error) *types.AppError {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON, "request body must not exceed 1MB", err)
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON, "malformed JSON in request body", err)
	}

	var unmarshalTypeErr *json.UnmarshalTypeError
	if errors.As(err, &unmarshalTypeErr) {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidJSON,
			"invalid value for field",
			err,
			map[string]any{
				"field":    unmarshalTypeErr.Field,
				"expected": unmarshalTypeErr.Type.String(),
			},
		)
	}

	if strings.HasPrefix(err.Error(), "json: unknown field") {
		return types.NewAppError(
			types.ErrCodeValidationInvalidJSON,
			"unknown field in request body: "+strings.TrimPrefix(err.Error(), "json: unknown field "),
			err,
		)
	}

	if errors.Is(err, io.EOF) {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON, "request body must not be empty", err)
	}

	return types.NewAppError(types.ErrCodeValidationInvalidJSON, "invalid JSON in request body", err)
}
