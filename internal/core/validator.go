package core

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"vega/internal/types"
)

// Validator wraps go-playground/validator and translates its field errors
// into validation AppErrors keyed by JSON field name.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator that reports fields by their json tag.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	return &Validator{validate: v, logger: logger}
}

// ValidateStruct validates s. The first failing field decides the error code:
// a missing value yields validation_missing_required_field, anything else
// validation_invalid_field. Every failure is listed in Details["fields"].
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		v.logger.Error("validator misuse", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describeRule(fe)
	}

	first := verrs[0]
	code := types.ErrCodeValidationInvalidField
	if first.Tag() == "required" {
		code = types.ErrCodeValidationMissingField
	}

	return types.NewAppErrorWithDetails(
		code,
		first.Field()+": "+describeRule(first),
		err,
		map[string]any{"field": first.Field(), "fields": fields},
	)
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of [" + fe.Param() + "]"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "email":
		return "must be a valid email address"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
