package models

import "strings"

// OptionalField names an optional order field a vehicle may not support.
type OptionalField string

const (
	FieldNodeTheta                 OptionalField = "node.nodePosition.theta"
	FieldNodeAllowedDeviationXY    OptionalField = "node.nodePosition.allowedDeviationXY"
	FieldNodeAllowedDeviationTheta OptionalField = "node.nodePosition.allowedDeviationTheta"
	FieldEdgeMaxSpeed              OptionalField = "edge.maxSpeed"
	FieldEdgeOrientation           OptionalField = "edge.orientation"
	FieldEdgeRotationAllowed       OptionalField = "edge.rotationAllowed"
	FieldEdgeLength                OptionalField = "edge.length"
)

// FieldSupport is the capability table consulted while building messages.
// Fields not listed are supported.
type FieldSupport struct {
	unsupported map[OptionalField]bool
}

// NewFieldSupport marks the given fields as unsupported. Names are matched
// case-insensitively; unknown names are ignored.
func NewFieldSupport(unsupported ...string) FieldSupport {
	fs := FieldSupport{unsupported: make(map[OptionalField]bool)}
	for _, name := range unsupported {
		for _, f := range allOptionalFields {
			if strings.EqualFold(string(f), strings.TrimSpace(name)) {
				fs.unsupported[f] = true
			}
		}
	}
	return fs
}

var allOptionalFields = []OptionalField{
	FieldNodeTheta,
	FieldNodeAllowedDeviationXY,
	FieldNodeAllowedDeviationTheta,
	FieldEdgeMaxSpeed,
	FieldEdgeOrientation,
	FieldEdgeRotationAllowed,
	FieldEdgeLength,
}

// Supports reports whether f may be populated.
func (fs FieldSupport) Supports(f OptionalField) bool {
	return !fs.unsupported[f]
}

// Float returns v when f is supported, nil otherwise.
func (fs FieldSupport) Float(f OptionalField, v *float64) *float64 {
	if v == nil || !fs.Supports(f) {
		return nil
	}
	return v
}

// Bool returns v when f is supported, nil otherwise.
func (fs FieldSupport) Bool(f OptionalField, v *bool) *bool {
	if v == nil || !fs.Supports(f) {
		return nil
	}
	return v
}

// Merge returns a table that also marks names as unsupported.
func (fs FieldSupport) Merge(names ...string) FieldSupport {
	merged := NewFieldSupport(names...)
	for f := range fs.unsupported {
		merged.unsupported[f] = true
	}
	return merged
}
