// Package inputval validates command payloads before they reach the stores.
// Payload structs declare their rules with `validate` tags; failures are
// reported as grouperr Validation errors naming the offending field.
package inputval

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/dalemusser/grouphub/internal/app/system/grouperr"
	"github.com/go-playground/validator/v10"
)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON field names so clients can map errors to their payloads.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("notblank", validateNotBlank)
	_ = v.RegisterValidation("member_role", validateMemberRole)

	return &Validator{validate: v}
}

// Struct validates s and converts failures into a Validation error.
func (v *Validator) Struct(s interface{}) error {
	return convert(v.validate.Struct(s))
}

// Var validates a single value against tag, e.g. "notblank,max=64".
func (v *Validator) Var(field interface{}, tag string) error {
	return convert(v.validate.Var(field, tag))
}

func convert(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Field() == "" {
			return grouperr.New(grouperr.Validation, grouperr.ReasonInvalidInput, "value failed %q", describe(fe))
		}
		return grouperr.New(grouperr.Validation, grouperr.ReasonInvalidInput,
			"field %q failed %q", fe.Field(), describe(fe))
	}
	return grouperr.Wrap(err, grouperr.Validation, grouperr.ReasonInvalidInput, "invalid input")
}

func describe(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fe.Tag() + "=" + fe.Param()
	}
	return fe.Tag()
}

var (
	defaultOnce sync.Once
	defaultV    *Validator
)

func shared() *Validator {
	defaultOnce.Do(func() { defaultV = New() })
	return defaultV
}

// Validate runs s through the shared validator.
func Validate(s interface{}) error {
	return shared().Struct(s)
}

// Var runs a single value through the shared validator.
func Var(field interface{}, tag string) error {
	return shared().Var(field, tag)
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func validateMemberRole(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "OWNER", "MANAGER", "MEMBER":
		return true
	}
	return false
}
