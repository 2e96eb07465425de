package core

import (
	"errors"
	"testing"

	"vega/internal/types"
)

type manageRequest struct {
	Action         string `json:"action" validate:"required,oneof=cancel pause resume"`
	SubscriptionID string `json:"subscriptionId" validate:"required"`
	PauseDuration  int    `json:"pauseDuration" validate:"omitempty,min=1"`
}

func TestValidateStruct_Valid(t *testing.T) {
	v := NewValidator(nil)
	if err := v.ValidateStruct(manageRequest{Action: "pause", SubscriptionID: "sc_1", PauseDuration: 2}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateStruct_MissingField(t *testing.T) {
	v := NewValidator(nil)
	err := v.ValidateStruct(manageRequest{SubscriptionID: "sc_1"})

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.Code != types.ErrCodeValidationMissingField {
		t.Errorf("code = %q", appErr.Code)
	}
	if appErr.Details["field"] != "action" {
		t.Errorf("field = %v, want json name", appErr.Details["field"])
	}
}

func TestValidateStruct_InvalidField(t *testing.T) {
	v := NewValidator(nil)
	err := v.ValidateStruct(manageRequest{Action: "refund", SubscriptionID: "sc_1"})

	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeValidationInvalidField {
		t.Fatalf("error = %v", err)
	}
	if appErr.Message != "action: must be one of [cancel pause resume]" {
		t.Errorf("message = %q", appErr.Message)
	}
}

func TestValidateStruct_ReportsAllFields(t *testing.T) {
	v := NewValidator(nil)
	err := v.ValidateStruct(manageRequest{PauseDuration: -1})

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	fields, _ := appErr.Details["fields"].(map[string]any)
	for _, f := range []string{"action", "subscriptionId", "pauseDuration"} {
		if _, ok := fields[f]; !ok {
			t.Errorf("fields missing %q: %v", f, fields)
		}
	}
}

func TestValidateStruct_NonStruct(t *testing.T) {
	v := NewValidator(nil)
	var appErr *types.AppError
	if err := v.ValidateStruct("not a struct"); !errors.As(err, &appErr) || appErr.Code != types.ErrCodeInternalUnexpected {
		t.Errorf("error = %v", err)
	}
}
