package models

import "strings"

// Support levels of an optional protocol parameter.
const (
	SupportSupported    = "SUPPORTED"
	SupportRequired     = "REQUIRED"
	SupportNotSupported = "NOT_SUPPORTED"
)

// Factsheet describes a vehicle type. It is published on the factsheet topic
// in reply to a factsheetRequest.
type Factsheet struct {
	Header
	TypeSpecification  TypeSpecification  `json:"typeSpecification"`
	PhysicalParameters PhysicalParameters `json:"physicalParameters"`
	ProtocolFeatures   *ProtocolFeatures  `json:"protocolFeatures,omitempty"`
}

type TypeSpecification struct {
	SeriesName        string   `json:"seriesName"`
	SeriesDescription string   `json:"seriesDescription,omitempty"`
	AgvKinematic      string   `json:"agvKinematic"`
	AgvClass          string   `json:"agvClass"`
	MaxLoadMass       float64  `json:"maxLoadMass"`
	LocalizationTypes []string `json:"localizationTypes"`
	NavigationTypes   []string `json:"navigationTypes"`
}

// PhysicalParameters are in m, m/s and m/s².
type PhysicalParameters struct {
	SpeedMin        float64  `json:"speedMin"`
	SpeedMax        float64  `json:"speedMax"`
	AccelerationMax float64  `json:"accelerationMax"`
	DecelerationMax float64  `json:"decelerationMax"`
	HeightMin       *float64 `json:"heightMin,omitempty"`
	HeightMax       float64  `json:"heightMax"`
	Width           float64  `json:"width"`
	Length          float64  `json:"length"`
}

type ProtocolFeatures struct {
	OptionalParameters []OptionalParameter `json:"optionalParameters"`
	AgvActions         []AgvAction         `json:"agvActions"`
}

// OptionalParameter names a parameter like "order.edges.maxSpeed" and how the
// vehicle supports it.
type OptionalParameter struct {
	Parameter   string `json:"parameter"`
	Support     string `json:"support"`
	Description string `json:"description,omitempty"`
}

type AgvAction struct {
	ActionType   string   `json:"actionType"`
	ActionScopes []string `json:"actionScopes"`
}

// UnsupportedFields lists the order fields the vehicle declared NOT_SUPPORTED,
// in the names NewFieldSupport understands.
func (f *Factsheet) UnsupportedFields() []string {
	if f.ProtocolFeatures == nil {
		return nil
	}
	var names []string
	for _, p := range f.ProtocolFeatures.OptionalParameters {
		if p.Support != SupportNotSupported {
			continue
		}
		name := strings.TrimPrefix(p.Parameter, "order.")
		switch {
		case strings.HasPrefix(name, "nodes."):
			name = "node." + strings.TrimPrefix(name, "nodes.")
		case strings.HasPrefix(name, "edges."):
			name = "edge." + strings.TrimPrefix(name, "edges.")
		}
		names = append(names, name)
	}
	return names
}

// SupportsAction reports whether the vehicle declared actionType. A factsheet
// without protocol features is assumed to support everything.
func (f *Factsheet) SupportsAction(actionType string) bool {
	if f.ProtocolFeatures == nil {
		return true
	}
	for _, a := range f.ProtocolFeatures.AgvActions {
		if a.ActionType == actionType {
			return true
		}
	}
	return false
}
