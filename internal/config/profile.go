package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"vda5050-bridge/internal/fleet"
	"vda5050-bridge/internal/models"
)

// Position is a pose in millimetres and degrees.
type Position struct {
	X           int64   `yaml:"x"`
	Y           int64   `yaml:"y"`
	Orientation float64 `yaml:"orientation"`
	NodeID      string  `yaml:"nodeId"`
}

// Series is the part of the factsheet a simulated vehicle reports.
type Series struct {
	Name              string   `yaml:"name"`
	Description       string   `yaml:"description"`
	AgvKinematic      string   `yaml:"agvKinematic"`
	AgvClass          string   `yaml:"agvClass"`
	MaxLoadMass       float64  `yaml:"maxLoadMass"`
	LocalizationTypes []string `yaml:"localizationTypes"`
	NavigationTypes   []string `yaml:"navigationTypes"`
	SpeedMax          float64  `yaml:"speedMax"`
	Width             float64  `yaml:"width"`
	Length            float64  `yaml:"length"`
	HeightMax         float64  `yaml:"heightMax"`
	Actions           []string `yaml:"actions"`
}

// Profile describes the vehicle the bridge talks to.
type Profile struct {
	Name                      string            `yaml:"name"`
	MapID                     string            `yaml:"mapId"`
	Properties                map[string]string `yaml:"properties"`
	UnsupportedOptionalFields []string          `yaml:"unsupportedOptionalFields"`
	InitialPosition           *Position         `yaml:"initialPosition"`
	Series                    *Series           `yaml:"series"`
}

// LoadProfile reads a vehicle profile. An empty path yields an empty profile.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return &Profile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile: read %s: %w", path, err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes a YAML profile.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("profile: decode: %w", err)
	}
	return &p, nil
}

// FieldSupport returns the capability table of the vehicle.
func (p *Profile) FieldSupport() models.FieldSupport {
	return models.NewFieldSupport(p.UnsupportedOptionalFields...)
}

// Vehicle returns the fleet view of the vehicle. The map id, if set, is also
// exposed as a property.
func (p *Profile) Vehicle(fallbackName string) fleet.Vehicle {
	v := fleet.Vehicle{Name: p.Name, Properties: fleet.Properties{}}
	if v.Name == "" {
		v.Name = fallbackName
	}
	for k, val := range p.Properties {
		v.Properties[k] = val
	}
	if p.MapID != "" {
		if _, ok := v.Properties[fleet.PropMapID]; !ok {
			v.Properties[fleet.PropMapID] = p.MapID
		}
	}
	if p.InitialPosition != nil {
		v.Position = &fleet.Triple{X: p.InitialPosition.X, Y: p.InitialPosition.Y}
		orientation := p.InitialPosition.Orientation
		v.Orientation = &orientation
	}
	return v
}

// Factsheet builds the factsheet a vehicle with this profile publishes. The
// unsupported optional fields are declared NOT_SUPPORTED. It returns nil when
// the profile has no series.
func (p *Profile) Factsheet() *models.Factsheet {
	if p.Series == nil {
		return nil
	}
	s := p.Series
	f := &models.Factsheet{
		TypeSpecification: models.TypeSpecification{
			SeriesName:        s.Name,
			SeriesDescription: s.Description,
			AgvKinematic:      s.AgvKinematic,
			AgvClass:          s.AgvClass,
			MaxLoadMass:       s.MaxLoadMass,
			LocalizationTypes: s.LocalizationTypes,
			NavigationTypes:   s.NavigationTypes,
		},
		PhysicalParameters: models.PhysicalParameters{
			SpeedMax:  s.SpeedMax,
			HeightMax: s.HeightMax,
			Width:     s.Width,
			Length:    s.Length,
		},
		ProtocolFeatures: &models.ProtocolFeatures{
			OptionalParameters: []models.OptionalParameter{},
			AgvActions:         []models.AgvAction{},
		},
	}
	for _, name := range p.UnsupportedOptionalFields {
		f.ProtocolFeatures.OptionalParameters = append(f.ProtocolFeatures.OptionalParameters, models.OptionalParameter{
			Parameter: orderParameter(name),
			Support:   models.SupportNotSupported,
		})
	}
	for _, a := range s.Actions {
		f.ProtocolFeatures.AgvActions = append(f.ProtocolFeatures.AgvActions, models.AgvAction{ActionType: a, ActionScopes: []string{"INSTANT", "NODE", "EDGE"}})
	}
	return f
}

// orderParameter turns "edge.maxSpeed" into "order.edges.maxSpeed".
func orderParameter(field string) string {
	switch {
	case strings.HasPrefix(field, "node."):
		return "order.nodes." + strings.TrimPrefix(field, "node.")
	case strings.HasPrefix(field, "edge."):
		return "order.edges." + strings.TrimPrefix(field, "edge.")
	}
	return "order." + field
}
