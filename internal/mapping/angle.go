package mapping

import "math"

// RelativeConvexAngle maps an angle in degrees onto [-180, 180].
func RelativeConvexAngle(deg float64) float64 {
	a := math.Mod(deg, 360)
	switch {
	case a > 180:
		a -= 360
	case a < -180:
		a += 360
	}
	return a
}

// ToRadians converts degrees to radians.
func ToRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// orientationRadians normalizes an orientation in degrees and converts it.
func orientationRadians(deg float64) float64 {
	return ToRadians(RelativeConvexAngle(deg))
}
