package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation covers malformed setting keys/values and bad actions.
	ErrValidation = errors.New("validation failed")

	ErrUnknownSetting = fmt.Errorf("%w: unknown setting key", ErrValidation)

	// ErrStoreUnavailable means the alert was published in memory but the
	// durable write failed after its retry.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvariantViolation is only ever logged; the door is forced closed.
	ErrInvariantViolation = errors.New("invariant violation")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
