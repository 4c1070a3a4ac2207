package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an alert id or setting key does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTransient wraps durable write failures that are worth retrying.
	ErrTransient = errors.New("transient store error")
)

// Transient marks err as a retryable store failure.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
}
