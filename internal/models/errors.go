package models

import (
	"fmt"
	"math"
)

// RangeError is returned when a numeric identifier leaves the uint32 range.
type RangeError struct {
	Field string
	Value int64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s out of range: %d not in [0, %d]", e.Field, e.Value, uint64(math.MaxUint32))
}

// ValidationError describes a message that breaks a protocol invariant.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}
