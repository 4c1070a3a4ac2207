package service

import "github.com/go-playground/validator/v10"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a request struct against its validate tags and wraps any
// failure in ErrValidation.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return validationError("%v", err)
	}
	return nil
}
