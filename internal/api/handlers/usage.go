package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"vega/internal/billing"
	"vega/internal/core"
	"vega/internal/types"
)

// UsageGate enforces the daily message limit.
type UsageGate interface {
	Snapshot(ctx context.Context, caller types.Caller) (*billing.UsageSnapshot, error)
	Record(ctx context.Context, caller types.Caller, modelID string) (*billing.UsageSnapshot, error)
}

// RecordMessageRequest is the body of POST /v1/usage/messages.
type RecordMessageRequest struct {
	Model string `json:"model" validate:"required"`
}

// UsageHandler serves the daily usage counter.
type UsageHandler struct {
	gate      UsageGate
	callers   CallerResolver
	validator *core.Validator
	logger    *slog.Logger
}

func NewUsageHandler(gate UsageGate, callers CallerResolver, v *core.Validator, l *slog.Logger) *UsageHandler {
	if l == nil {
		l = slog.Default()
	}
	if v == nil {
		v = core.NewValidator(l)
	}
	return &UsageHandler{gate: gate, callers: callers, validator: v, logger: l}
}

func (h *UsageHandler) RegisterRoutes(r chi.Router) {
	r.Get("/usage", h.GetCurrent)
	r.Post("/usage/messages", h.RecordMessage)
}

func (h *UsageHandler) caller(w http.ResponseWriter, r *http.Request) (types.Caller, bool) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return types.Caller{}, false
	}
	c, err := h.callers.Caller(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return types.Caller{}, false
	}
	return c, true
}

// GetCurrent handles GET /v1/usage.
func (h *UsageHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	s, err := h.gate.Snapshot(r.Context(), c)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, s)
}

// RecordMessage handles POST /v1/usage/messages. It answers 429
// rate_limit:chat once a free user has used up the day.
func (h *UsageHandler) RecordMessage(w http.ResponseWriter, r *http.Request) {
	var req RecordMessageRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	s, err := h.gate.Record(r.Context(), c, req.Model)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, s)
}
