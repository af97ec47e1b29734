// internal/mapping/mapper.go
package mapping

import (
	"errors"
	"fmt"

	"vda5050-bridge/internal/common/constants"
	"vda5050-bridge/internal/common/idgen"
	"vda5050-bridge/internal/fleet"
	"vda5050-bridge/internal/models"
	"vda5050-bridge/internal/order"
)

// ErrMalformedCommand is returned when a command lacks required route data.
var ErrMalformedCommand = errors.New("malformed movement command")

// VehicleSource returns the current view of the vehicle.
type VehicleSource func() fleet.Vehicle

// Mapper turns movement commands into orders.
type Mapper struct {
	vehicle VehicleSource
	fields  models.FieldSupport
	mapID   string
}

// NewMapper creates a mapper. defaultMapID is used when neither the point nor
// the vehicle define a map id.
func NewMapper(vehicle VehicleSource, fields models.FieldSupport, defaultMapID string) *Mapper {
	if vehicle == nil {
		vehicle = func() fleet.Vehicle { return fleet.Vehicle{} }
	}
	return &Mapper{vehicle: vehicle, fields: fields, mapID: defaultMapID}
}

// SetFieldSupport replaces the capability table used for later orders.
func (m *Mapper) SetFieldSupport(fields models.FieldSupport) {
	m.fields = fields
}

// orderContext carries what every node and edge of one order needs.
type orderContext struct {
	vehicle  fleet.Vehicle
	vehicleF TagFilter
	commandF TagFilter
	offset   uint32
}

// ToOrder maps cmd and the trailing horizon steps to an order. cont is the
// tracker's continuation; when it is nil or belongs to another order id a new
// order is built, otherwise an update that continues its numbering. The header
// is left for the sender to fill in.
func (m *Mapper) ToOrder(cmd fleet.MovementCommand, horizon []fleet.Step, cont *order.Continuation) (*models.Order, error) {
	if cmd.TransportOrder == "" {
		return nil, fmt.Errorf("%w: transport order is empty", ErrMalformedCommand)
	}
	if cmd.Step.Destination.Name == "" {
		return nil, fmt.Errorf("%w: step has no destination", ErrMalformedCommand)
	}
	if cmd.Step.Source != nil && cmd.Step.Path == nil {
		return nil, fmt.Errorf("%w: step %s has a source but no path", ErrMalformedCommand, cmd.Step)
	}

	newOrder := cont == nil || cont.OrderID != cmd.TransportOrder
	o := &models.Order{OrderID: cmd.TransportOrder, Nodes: []models.Node{}, Edges: []models.Edge{}}
	ctx := orderContext{
		vehicle:  m.vehicle(),
		commandF: NewTagFilter(cmd.Properties),
	}
	ctx.vehicleF = NewTagFilter(ctx.vehicle.Properties)
	if !newOrder {
		updateID, err := models.ToUint32("orderUpdateId", int64(cont.OrderUpdateID)+1)
		if err != nil {
			return nil, err
		}
		o.OrderUpdateID = updateID
		ctx.offset = cont.FirstNodeSequenceID
	}

	last := cmd.FinalMovement && cmd.FinalDriveOrder
	step := cmd.Step

	if step.Source == nil {
		node, err := m.node(ctx, 0, step.Destination, true, newOrder, TriggersFor(newOrder, last), nil)
		if err != nil {
			return nil, err
		}
		appendOperation(&node, cmd.Operation)
		o.Nodes = append(o.Nodes, node)
	} else {
		var startTriggers []Trigger
		if newOrder {
			startTriggers = TriggersFor(true, false)
		}
		source, err := m.node(ctx, 0, *step.Source, true, newOrder, startTriggers, step.Path)
		if err != nil {
			return nil, err
		}
		edge, err := m.edge(ctx, 0, step, true)
		if err != nil {
			return nil, err
		}
		dest, err := m.node(ctx, 1, step.Destination, true, false, TriggersFor(false, last), step.Path)
		if err != nil {
			return nil, err
		}
		appendOperation(&dest, cmd.Operation)
		o.Nodes = append(o.Nodes, source, dest)
		o.Edges = append(o.Edges, edge)
	}

	for _, hs := range horizon {
		if hs.Path == nil {
			return nil, fmt.Errorf("%w: horizon step %s has no path", ErrMalformedCommand, hs)
		}
		i := len(o.Nodes)
		edge, err := m.edge(ctx, i-1, hs, false)
		if err != nil {
			return nil, err
		}
		edge.StartNodeID = o.Nodes[i-1].NodeID
		node, err := m.node(ctx, i, hs.Destination, false, false, TriggersFor(false, false), hs.Path)
		if err != nil {
			return nil, err
		}
		o.Edges = append(o.Edges, edge)
		o.Nodes = append(o.Nodes, node)
	}

	if err := models.ValidateOrder(o); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	return o, nil
}

func (m *Mapper) node(ctx orderContext, i int, p fleet.Point, released, extend bool, triggers []Trigger, path *fleet.Path) (models.Node, error) {
	seq, err := models.ToUint32("sequenceId", int64(ctx.offset)+int64(2*i))
	if err != nil {
		return models.Node{}, err
	}
	candidates, err := ExtractActions(p.Properties)
	if err != nil {
		return models.Node{}, fmt.Errorf("%w: point %s: %v", ErrMalformedCommand, p.Name, err)
	}
	edgeF := AcceptAllTags
	if path != nil {
		edgeF = NewTagFilter(path.Properties)
	}

	node := models.Node{
		NodeID:     p.Name,
		SequenceID: seq,
		Released:   released,
		Actions:    PlaceableActions(candidates, triggers, ctx.vehicleF, ctx.commandF, edgeF),
	}
	if p.Position != nil {
		pos := &models.NodePosition{
			X:     float64(p.Position.X) / 1000,
			Y:     float64(p.Position.Y) / 1000,
			MapID: m.resolveMapID(p, ctx.vehicle),
		}
		if p.Orientation != nil {
			theta := orientationRadians(*p.Orientation)
			pos.Theta = m.fields.Float(models.FieldNodeTheta, &theta)
		}
		xy, theta := Resolve(p, ctx.vehicle, extend)
		pos.AllowedDeviationXY = m.fields.Float(models.FieldNodeAllowedDeviationXY, xy)
		pos.AllowedDeviationTheta = m.fields.Float(models.FieldNodeAllowedDeviationTheta, theta)
		node.NodePosition = pos
	}
	return node, nil
}

func (m *Mapper) edge(ctx orderContext, i int, step fleet.Step, released bool) (models.Edge, error) {
	seq, err := models.ToUint32("sequenceId", int64(ctx.offset)+int64(2*i+1))
	if err != nil {
		return models.Edge{}, err
	}
	path := step.Path
	candidates, err := ExtractActions(path.Properties)
	if err != nil {
		return models.Edge{}, fmt.Errorf("%w: path %s: %v", ErrMalformedCommand, path.Name, err)
	}

	edge := models.Edge{
		EdgeID:      path.Name,
		SequenceID:  seq,
		Released:    released,
		StartNodeID: path.Source,
		EndNodeID:   step.Destination.Name,
		Actions: PlaceableActions(candidates, []Trigger{TriggerPassing},
			ctx.vehicleF, ctx.commandF, NewTagFilter(path.Properties)),
	}
	if step.Source != nil {
		edge.StartNodeID = step.Source.Name
	}

	speed, orientationKey := path.MaxVelocity, fleet.PropOrientationForward
	if step.Orientation == fleet.OrientationBackward {
		speed, orientationKey = path.MaxReverseVelocity, fleet.PropOrientationReverse
	}
	if speed > 0 {
		v := float64(speed) / 1000
		edge.MaxSpeed = m.fields.Float(models.FieldEdgeMaxSpeed, &v)
	}
	if deg, ok := path.Properties.Float(orientationKey); ok {
		rad := orientationRadians(deg)
		edge.Orientation = m.fields.Float(models.FieldEdgeOrientation, &rad)
	}
	if allowed, ok := path.Properties.Bool(fleet.PropRotationAllowed); ok {
		edge.RotationAllowed = m.fields.Bool(models.FieldEdgeRotationAllowed, &allowed)
	}
	if path.Length > 0 {
		l := float64(path.Length) / 1000
		edge.Length = m.fields.Float(models.FieldEdgeLength, &l)
	}
	return edge, nil
}

func (m *Mapper) resolveMapID(p fleet.Point, vehicle fleet.Vehicle) string {
	if id, ok := p.Properties.Get(fleet.PropMapID); ok && id != "" {
		return id
	}
	if id, ok := vehicle.Properties.Get(fleet.PropMapID); ok && id != "" {
		return id
	}
	return m.mapID
}

// appendOperation turns the command's operation into a HARD action.
func appendOperation(node *models.Node, operation string) {
	if operation == constants.OperationNone || operation == constants.OperationNop {
		return
	}
	node.Actions = append(node.Actions, models.Action{
		ActionType:   operation,
		ActionID:     idgen.Action.Derived(operation),
		BlockingType: models.BlockingTypeHard,
	})
}
