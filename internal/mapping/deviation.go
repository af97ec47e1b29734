package mapping

import (
	"math"

	"vda5050-bridge/internal/fleet"
)

// DefaultDeviationXYPadding is added to the distance in extended mode, in metres.
const DefaultDeviationXYPadding = 0.01

// Resolve returns the allowed deviation of a node at point.
//
// In regular mode the values come from the point properties, then the vehicle
// properties; nil means unspecified. Theta is configured in degrees.
//
// Extended mode is used for the first node of a new order. The XY deviation
// covers the distance between vehicle and point plus padding, and never drops
// below the regular value. Any heading is accepted.
func Resolve(point fleet.Point, vehicle fleet.Vehicle, extend bool) (xy, theta *float64) {
	xy = lookupFloat(fleet.PropDeviationXY, point, vehicle)
	if th := lookupFloat(fleet.PropDeviationTheta, point, vehicle); th != nil {
		rad := ToRadians(*th)
		theta = &rad
	}
	if !extend {
		return xy, theta
	}

	regular := 0.0
	if xy != nil {
		regular = *xy
	}
	extended := math.Max(extendedDistance(point, vehicle), regular)
	anyHeading := math.Pi
	return &extended, &anyHeading
}

func extendedDistance(point fleet.Point, vehicle fleet.Vehicle) float64 {
	if vehicle.Position == nil || point.Position == nil {
		return 0
	}
	padding, ok := vehicle.Properties.Float(fleet.PropDeviationXYPadding)
	if !ok {
		padding = DefaultDeviationXYPadding
	}
	if padding < 0 {
		padding = 0
	}
	return vehicle.Position.DistanceTo(*point.Position)/1000 + padding
}

func lookupFloat(key string, point fleet.Point, vehicle fleet.Vehicle) *float64 {
	if v, ok := point.Properties.Float(key); ok {
		return &v
	}
	if v, ok := vehicle.Properties.Float(key); ok {
		return &v
	}
	return nil
}
