package repository

import (
	"errors"
	"fmt"
)

// ErrDisabled is returned by Open when persistence is switched off.
var ErrDisabled = errors.New("persistence disabled")

// RepositoryError wraps a failed database operation.
type RepositoryError struct {
	Operation string
	Table     string
	Cause     error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Table, e.Cause)
}

func (e *RepositoryError) Unwrap() error {
	return e.Cause
}

// EntityNotFoundError is returned when a lookup matches no row.
type EntityNotFoundError struct {
	Table      string
	Identifier string
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("%s with %s not found", e.Table, e.Identifier)
}
