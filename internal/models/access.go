package models

import "vega/internal/types"

// DenialReason explains why a caller may not use a model.
type DenialReason string

const (
	ReasonModelNotFound          DenialReason = "model_not_found"
	ReasonAuthenticationRequired DenialReason = "authentication_required"
	ReasonUltraRequired          DenialReason = "ultra_subscription_required"
	ReasonProRequired            DenialReason = "pro_subscription_required"
)

// Decision is the outcome of an access check. Reason is empty when CanUse.
type Decision struct {
	CanUse bool         `json:"canUse"`
	Reason DenialReason `json:"reason,omitempty"`
}

func allow() Decision              { return Decision{CanUse: true} }
func deny(r DenialReason) Decision { return Decision{Reason: r} }

// Err converts a denial into the client-facing model error. It returns nil
// for an allowed decision.
func (d Decision) Err() *types.ScopedError {
	if d.CanUse {
		return nil
	}
	switch d.Reason {
	case ReasonAuthenticationRequired:
		return types.NewScopedError(types.ErrorTypeUnauthorized, types.SurfaceModel, string(d.Reason))
	case ReasonUltraRequired, ReasonProRequired:
		return types.NewScopedError(types.ErrorTypeUpgradeRequired, types.SurfaceModel, string(d.Reason))
	default:
		return types.NewScopedError(types.ErrorTypeNotFound, types.SurfaceModel, string(d.Reason))
	}
}

// Evaluate decides whether caller may use modelID. Checks run in a fixed
// order and the first failing one wins: existence, sign-in, Ultra, Pro.
func (r *Registry) Evaluate(modelID string, caller types.Caller) Decision {
	m, ok := r.Get(modelID)
	if !ok {
		return deny(ReasonModelNotFound)
	}
	if m.RequiresAuth && !caller.IsAuthenticated() {
		return deny(ReasonAuthenticationRequired)
	}
	if m.RequiresUltra() && !caller.IsUltra() {
		return deny(ReasonUltraRequired)
	}
	if m.RequiresPro() && !caller.IsPro() && !caller.IsUltra() {
		return deny(ReasonProRequired)
	}
	return allow()
}

// ShouldBypassRateLimits reports whether usage of modelID by caller is exempt
// from the daily message limit.
func (r *Registry) ShouldBypassRateLimits(modelID string, caller types.Caller) bool {
	m, ok := r.Get(modelID)
	return ok && caller.IsAuthenticated() && m.FreeUnlimited
}

// AcceptedFileTypes returns the upload accept string for modelID.
func (r *Registry) AcceptedFileTypes(modelID string, isPro bool) string {
	if m, ok := r.Get(modelID); ok && m.PDF && isPro {
		return "image/*,.pdf"
	}
	return "image/*"
}

// MaxOutputTokens returns the output token ceiling for modelID.
func (r *Registry) MaxOutputTokens(modelID string) int {
	if m, ok := r.Get(modelID); ok {
		return m.MaxOutputTokens
	}
	return DefaultMaxOutputTokens
}

// Evaluate checks access against the default catalogue.
func Evaluate(modelID string, caller types.Caller) Decision {
	return defaultRegistry.Evaluate(modelID, caller)
}

// ShouldBypassRateLimits checks the default catalogue.
func ShouldBypassRateLimits(modelID string, caller types.Caller) bool {
	return defaultRegistry.ShouldBypassRateLimits(modelID, caller)
}

// AcceptedFileTypes checks the default catalogue.
func AcceptedFileTypes(modelID string, isPro bool) string {
	return defaultRegistry.AcceptedFileTypes(modelID, isPro)
}

// MaxOutputTokens checks the default catalogue.
func MaxOutputTokens(modelID string) int {
	return defaultRegistry.MaxOutputTokens(modelID)
}
