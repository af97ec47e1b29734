package order

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRoute means the order does not start where the vehicle is or where
	// the current base ends.
	ErrNoRoute = errors.New("no-route")
	// ErrOrderUpdateConflict means the order clashes with the order in progress.
	ErrOrderUpdateConflict = errors.New("order-update-conflict")
	// ErrInvalidMaxDistance is returned for a distance-in-advance limit below 1.
	ErrInvalidMaxDistance = errors.New("max distance in advance must be at least 1")
)

// RejectionError explains why the tracker refused an order.
type RejectionError struct {
	Reason  error
	OrderID string
	Detail  string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("order %q rejected (%v): %s", e.OrderID, e.Reason, e.Detail)
}

func (e *RejectionError) Unwrap() error {
	return e.Reason
}

func reject(reason error, orderID, format string, args ...interface{}) error {
	return &RejectionError{Reason: reason, OrderID: orderID, Detail: fmt.Sprintf(format, args...)}
}
