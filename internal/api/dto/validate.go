package dto

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/spec-kit/branch-queue/internal/domain"
	apperrors "github.com/spec-kit/branch-queue/pkg/util"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("service_type", func(fl validator.FieldLevel) bool {
		return domain.ServiceType(fl.Field().String()).Valid()
	}); err != nil {
		panic("register service_type validation: " + err.Error())
	}
	if err := v.RegisterValidation("segment", func(fl validator.FieldLevel) bool {
		return domain.CustomerSegment(strings.ToUpper(fl.Field().String())).Valid()
	}); err != nil {
		panic("register segment validation: " + err.Error())
	}
	return v
}

// Validate checks a request struct and reports failures as a validation error
// whose details map each offending field to the rule it broke.
func Validate(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fe.Tag()
	}
	return apperrors.NewValidationError("request validation failed", details)
}
