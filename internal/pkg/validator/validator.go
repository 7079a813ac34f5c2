// Package validator wraps go-playground/validator with the error format used
// across the module: a joined error whose first element is
// ErrValidationFailed, followed by one message per violated rule.
//
// Field names in messages come from the `name` struct tag when present, so
// configuration errors can point at the environment variable a user set.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	gvalidator "github.com/go-playground/validator/v10"
)

// ErrValidationFailed is the first error of every chain returned by Validate
// and ValidateVar.
var ErrValidationFailed = errors.New("validation failed")

var validator *gvalidator.Validate

const errStringFormat = "'%s': value '%v' does not meet the requirements for the '%s' validation"

func init() {
	validator = gvalidator.New(gvalidator.WithRequiredStructEnabled())
	validator.RegisterTagNameFunc(fieldName)
}

// fieldName prefers the `name` tag over the Go field name.
func fieldName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("name"), ",")
	if name == "" || name == "-" {
		return field.Name
	}
	return name
}

func formatError(err error, field string) error {
	var validationErrors gvalidator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	errs := []error{ErrValidationFailed}
	for _, validationErr := range validationErrors {
		name := validationErr.Field()
		if name == "" {
			name = field
		}

		errs = append(errs, fmt.Errorf(errStringFormat, name, validationErr.Value(), validationErr.Tag()))
	}

	return errors.Join(errs...)
}

// Validate checks a struct against its `validate` tags.
func Validate(v any) error {
	if err := validator.Struct(v); err != nil {
		return formatError(err, "")
	}
	return nil
}

// ValidateVar checks a single value against a tag expression such as
// "required,url". field names the value in error messages.
func ValidateVar(field string, value any, tag string) error {
	if err := validator.Var(value, tag); err != nil {
		return formatError(err, field)
	}
	return nil
}
