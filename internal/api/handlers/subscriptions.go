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

// CheckoutService creates provider subscriptions.
type CheckoutService interface {
	Plans() []billing.PublicPlan
	Create(ctx context.Context, user *types.User, in billing.CreateSubscriptionInput) (*billing.CheckoutResult, error)
}

// ManagementService lists subscriptions and runs management actions.
type ManagementService interface {
	List(ctx context.Context, userID string) ([]*types.Subscription, error)
	Manage(ctx context.Context, userID string, req billing.ManageRequest) (*billing.ManageResult, error)
}

// UserLookup loads the signed-in user's profile.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*types.User, error)
}

// EntitlementReader serves entitlement snapshots and subscription details.
type EntitlementReader interface {
	Get(ctx context.Context, userID string) (*types.Entitlement, error)
	Caller(ctx context.Context, userID string) (types.Caller, error)
	Details(ctx context.Context, userID string) (*types.SubscriptionDetails, error)
}

// PlansResponse is the response of GET /v1/subscriptions/plans.
type PlansResponse struct {
	Plans []billing.PublicPlan `json:"plans"`
}

// SubscriptionListResponse is the response of GET /v1/subscriptions.
type SubscriptionListResponse struct {
	Subscriptions []*types.SubscriptionSummary `json:"subscriptions"`
}

// ManageResponse is the response of POST /v1/subscriptions/manage.
type ManageResponse struct {
	Success bool                  `json:"success"`
	Result  *billing.ManageResult `json:"result"`
}

// SubscriptionHandler serves checkout, listing, management and the
// caller's entitlement.
type SubscriptionHandler struct {
	checkout     CheckoutService
	manager      ManagementService
	users        UserLookup
	entitlements EntitlementReader
	validator    *core.Validator
	logger       *slog.Logger
}

func NewSubscriptionHandler(
	checkout CheckoutService,
	manager ManagementService,
	users UserLookup,
	entitlements EntitlementReader,
	v *core.Validator,
	l *slog.Logger,
) *SubscriptionHandler {
	if l == nil {
		l = slog.Default()
	}
	if v == nil {
		v = core.NewValidator(l)
	}
	return &SubscriptionHandler{
		checkout:     checkout,
		manager:      manager,
		users:        users,
		entitlements: entitlements,
		validator:    v,
		logger:       l,
	}
}

// RegisterRoutes mounts the subscription and /me endpoints. Everything but
// the plan list requires a session, which the auth middleware enforces.
func (h *SubscriptionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/subscriptions/plans", h.ListPlans)
	r.Post("/subscriptions", h.Create)
	r.Get("/subscriptions", h.List)
	r.Post("/subscriptions/manage", h.Manage)
	r.Get("/me/entitlement", h.GetEntitlement)
	r.Get("/me/subscription", h.GetSubscriptionDetails)
}

// requireUserID returns the signed-in user id or writes 401.
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := types.GetUserID(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return "", false
	}
	return userID, true
}

// ListPlans handles GET /v1/subscriptions/plans.
func (h *SubscriptionHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, PlansResponse{Plans: h.checkout.Plans()})
}

// Create handles POST /v1/subscriptions. An empty body buys the yearly Pro
// plan.
func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var in billing.CreateSubscriptionInput
	if r.ContentLength != 0 {
		if err := core.DecodeJSON(w, r, &in); err != nil {
			core.Error(w, r, err)
			return
		}
	}
	if err := h.validator.ValidateStruct(in); err != nil {
		core.Error(w, r, err)
		return
	}

	user, err := h.users.GetUserByID(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	res, err := h.checkout.Create(r.Context(), user, in)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, res)
}

// List handles GET /v1/subscriptions.
func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	subs, err := h.manager.List(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resp := SubscriptionListResponse{Subscriptions: make([]*types.SubscriptionSummary, 0, len(subs))}
	for _, s := range subs {
		resp.Subscriptions = append(resp.Subscriptions, types.SummarizeSubscription(s))
	}
	core.JSON(w, r, http.StatusOK, resp)
}

// Manage handles POST /v1/subscriptions/manage with
// {action, subscriptionId, pauseDuration}.
func (h *SubscriptionHandler) Manage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req billing.ManageRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	res, err := h.manager.Manage(r.Context(), userID, req)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, ManageResponse{Success: true, Result: res})
}

// GetEntitlement handles GET /v1/me/entitlement.
func (h *SubscriptionHandler) GetEntitlement(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	e, err := h.entitlements.Get(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, e)
}

// GetSubscriptionDetails handles GET /v1/me/subscription.
func (h *SubscriptionHandler) GetSubscriptionDetails(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	d, err := h.entitlements.Details(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, d)
}
