// internal/fleet/route.go
package fleet

import (
	"fmt"
	"math"
)

// Triple is a position in millimetres.
type Triple struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
	Z int64 `json:"z"`
}

// DistanceTo returns the planar distance to o in millimetres.
func (t Triple) DistanceTo(o Triple) float64 {
	return math.Hypot(float64(o.X-t.X), float64(o.Y-t.Y))
}

// Point is a node of the plant model. Orientation is in degrees.
type Point struct {
	Name        string     `json:"name"`
	Position    *Triple    `json:"position,omitempty"`
	Orientation *float64   `json:"orientation,omitempty"`
	Properties  Properties `json:"properties,omitempty"`
}

// Path connects two points. Length in mm, velocities in mm/s.
type Path struct {
	Name               string     `json:"name"`
	Source             string     `json:"source"`
	Destination        string     `json:"destination"`
	Length             int64      `json:"length"`
	MaxVelocity        int        `json:"maxVelocity"`
	MaxReverseVelocity int        `json:"maxReverseVelocity"`
	Properties         Properties `json:"properties,omitempty"`
}

// Orientation is the direction a vehicle travels a path in.
type Orientation string

const (
	OrientationForward   Orientation = "FORWARD"
	OrientationBackward  Orientation = "BACKWARD"
	OrientationUndefined Orientation = "UNDEFINED"
)

// Step is one hop of a route. Source is nil when the step involves no movement.
type Step struct {
	Path        *Path       `json:"path,omitempty"`
	Source      *Point      `json:"source,omitempty"`
	Destination Point       `json:"destination"`
	Orientation Orientation `json:"orientation"`
	RouteIndex  int         `json:"routeIndex"`
}

// Length returns the path length, 0 when the step has no path.
func (s Step) Length() int64 {
	if s.Path == nil {
		return 0
	}
	return s.Path.Length
}

// Moves reports whether the step actually travels an edge.
func (s Step) Moves() bool {
	return s.Source != nil && s.Path != nil
}

func (s Step) String() string {
	if s.Source == nil {
		return fmt.Sprintf("Step(%d: -> %s)", s.RouteIndex, s.Destination.Name)
	}
	return fmt.Sprintf("Step(%d: %s -> %s)", s.RouteIndex, s.Source.Name, s.Destination.Name)
}

// MovementCommand asks a vehicle to execute one step of a drive order.
// FinalMovement marks the last step of a drive order, FinalDriveOrder the last
// drive order of the transport order.
type MovementCommand struct {
	TransportOrder   string     `json:"transportOrder"`
	Step             Step       `json:"step"`
	Operation        string     `json:"operation,omitempty"`
	FinalDestination Point      `json:"finalDestination"`
	FinalMovement    bool       `json:"finalMovement"`
	FinalDriveOrder  bool       `json:"finalDriveOrder"`
	Properties       Properties `json:"properties,omitempty"`
}

// Vehicle is the vehicle as known to the fleet manager.
type Vehicle struct {
	Name        string     `json:"name"`
	Position    *Triple    `json:"position,omitempty"`
	Orientation *float64   `json:"orientation,omitempty"`
	Properties  Properties `json:"properties,omitempty"`
}
