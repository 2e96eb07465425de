package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"vega/internal/core"
	"vega/internal/models"
	"vega/internal/types"
)

// ModelCatalog is the model registry. *models.Registry satisfies it.
type ModelCatalog interface {
	List() []models.Descriptor
	Evaluate(modelID string, caller types.Caller) models.Decision
	AcceptedFileTypes(modelID string, isPro bool) string
	MaxOutputTokens(modelID string) int
}

// CallerResolver turns an optional user id into an access subject.
type CallerResolver interface {
	Caller(ctx context.Context, userID string) (types.Caller, error)
}

// ModelView is a catalogue entry annotated with the caller's access.
type ModelView struct {
	models.Descriptor
	Access            models.Decision `json:"access"`
	AcceptedFileTypes string          `json:"acceptedFileTypes"`
}

// ModelListResponse is the response of GET /v1/models.
type ModelListResponse struct {
	Models []ModelView `json:"models"`
}

// ModelAccessResponse is the response of GET /v1/models/{id}/access.
type ModelAccessResponse struct {
	ModelID string `json:"modelId"`
	models.Decision
	AcceptedFileTypes string       `json:"acceptedFileTypes"`
	MaxOutputTokens   int          `json:"maxOutputTokens"`
	Error             *AccessError `json:"error,omitempty"`
}

// AccessError is the client-facing form of a denial.
type AccessError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

// ModelHandler serves the model catalogue. Anonymous callers are allowed;
// a session, when present, raises the caller's tier.
type ModelHandler struct {
	catalog ModelCatalog
	callers CallerResolver
	logger  *slog.Logger
}

func NewModelHandler(catalog ModelCatalog, callers CallerResolver, l *slog.Logger) *ModelHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ModelHandler{catalog: catalog, callers: callers, logger: l}
}

func (h *ModelHandler) RegisterRoutes(r chi.Router) {
	r.Get("/models", h.List)
	r.Get("/models/{id}/access", h.Access)
}

// caller resolves the request's subject. An entitlement failure degrades
// to the signed-in free tier rather than failing the read.
func (h *ModelHandler) caller(r *http.Request) types.Caller {
	userID, ok := types.GetUserID(r.Context())
	if !ok {
		return types.Anonymous()
	}
	c, err := h.callers.Caller(r.Context(), userID)
	if err != nil {
		h.logger.WarnContext(r.Context(), "entitlement lookup failed, using free tier",
			"user_id", userID,
			"error", err,
		)
		return types.Authenticated(userID, false, false)
	}
	return c
}

// List handles GET /v1/models.
func (h *ModelHandler) List(w http.ResponseWriter, r *http.Request) {
	c := h.caller(r)
	descriptors := h.catalog.List()

	resp := ModelListResponse{Models: make([]ModelView, 0, len(descriptors))}
	for _, d := range descriptors {
		resp.Models = append(resp.Models, ModelView{
			Descriptor:        d,
			Access:            h.catalog.Evaluate(d.ID, c),
			AcceptedFileTypes: h.catalog.AcceptedFileTypes(d.ID, c.IsPro()),
		})
	}
	core.JSON(w, r, http.StatusOK, resp)
}

// Access handles GET /v1/models/{id}/access. A denial is a successful
// answer; the scoped error is embedded for the client to render.
func (h *ModelHandler) Access(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "id")
	c := h.caller(r)
	decision := h.catalog.Evaluate(modelID, c)

	resp := ModelAccessResponse{
		ModelID:           modelID,
		Decision:          decision,
		AcceptedFileTypes: h.catalog.AcceptedFileTypes(modelID, c.IsPro()),
		MaxOutputTokens:   h.catalog.MaxOutputTokens(modelID),
	}
	if scoped := decision.Err(); scoped != nil {
		resp.Error = &AccessError{
			Code:    scoped.Code(),
			Message: scoped.Message(),
			Cause:   scoped.Cause,
		}
	}
	core.JSON(w, r, http.StatusOK, resp)
}
