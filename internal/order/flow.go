package order

import (
	"fmt"

	"vda5050-bridge/internal/fleet"
)

// FlowController bounds how far ahead of the vehicle commands may be queued.
type FlowController struct {
	maxDistance int64
}

// NewFlowController creates a controller for the given limit in millimetres.
func NewFlowController(maxDistance int64) (*FlowController, error) {
	if maxDistance < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMaxDistance, maxDistance)
	}
	return &FlowController{maxDistance: maxDistance}, nil
}

// CanAcceptNextCommand reports whether the queued path length is below the limit.
func (f *FlowController) CanAcceptNextCommand(queued []fleet.MovementCommand) bool {
	var sum int64
	for _, cmd := range queued {
		sum += cmd.Step.Length()
	}
	return sum < f.maxDistance
}
