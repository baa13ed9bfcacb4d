// Package validator provides a thin wrapper around the go-playground/validator library,
// enabling declarative struct validation with standardized error formatting.
//
// Besides the built-in tags it registers "checksum_addr", which accepts any hex
// account address (any casing) that go-ethereum can parse.
package validator

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gvalidator "github.com/go-playground/validator/v10"
)

// ErrValidationFailed is returned as the first error in a multi-error chain when validation fails.
var ErrValidationFailed = errors.New("struct validation failed")

// validator is a singleton instance of the go-playground validator,
// initialized automatically on package load.
var validator *gvalidator.Validate

// errStringFormat defines the template used to describe individual validation errors.
//
// Example: "'Address': value '0x' does not meet the requirements for the 'checksum_addr' validation"
const errStringFormat = "'%s': value '%v' does not meet the requirements for the '%s' validation"

func init() {
	validator = gvalidator.New(gvalidator.WithRequiredStructEnabled())
	_ = validator.RegisterValidation("checksum_addr", func(fl gvalidator.FieldLevel) bool {
		return common.IsHexAddress(fl.Field().String())
	})
}

// formatError transforms a raw validator error into a human-readable multi-error chain
// rooted at ErrValidationFailed. Other errors are returned unchanged.
func formatError(err error) error {
	var validationErrors gvalidator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	errs := []error{ErrValidationFailed}
	for _, validationErr := range validationErrors {
		err := fmt.Errorf(errStringFormat,
			validationErr.Field(),
			validationErr.Value(),
			validationErr.Tag(),
		)

		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Validate checks if the given struct satisfies its validation tags.
//
// Example usage:
//
//	type Input struct {
//	    Address string `validate:"required,checksum_addr"`
//	}
//
//	if err := validator.Validate(input); errors.Is(err, validator.ErrValidationFailed) {
//	    // Handle validation failure
//	}
func Validate(v any) error {
	if err := validator.Struct(v); err != nil {
		return formatError(err)
	}

	return nil
}

// ValidateVar checks a single value against a tag expression such as
// "required,checksum_addr".
func ValidateVar(field any, tag string) error {
	if err := validator.Var(field, tag); err != nil {
		return formatError(err)
	}

	return nil
}
