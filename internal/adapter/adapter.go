// internal/adapter/adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"vda5050-bridge/internal/common/constants"
	"vda5050-bridge/internal/common/idgen"
	"vda5050-bridge/internal/fleet"
	"vda5050-bridge/internal/mapping"
	"vda5050-bridge/internal/messaging"
	"vda5050-bridge/internal/models"
	"vda5050-bridge/internal/order"
	"vda5050-bridge/internal/utils"
)

var (
	ErrNotEnabled = errors.New("adapter is not enabled")
	ErrQueueFull  = errors.New("enough movement commands queued")
)

const storeTimeout = 5 * time.Second

// OrderStore persists sent orders and connection events.
type OrderStore interface {
	SaveOrder(ctx context.Context, serialNumber string, o *models.Order) error
	SaveConnectionEvent(ctx context.Context, c *models.Connection) error
}

// StateStore caches the latest state reports.
type StateStore interface {
	SaveState(ctx context.Context, s *models.State) error
	SaveConnectionState(ctx context.Context, c *models.Connection) error
}

// FactsheetStore keeps the latest factsheet per vehicle.
type FactsheetStore interface {
	SaveFactsheet(ctx context.Context, f *models.Factsheet) error
}

// Config configures an Adapter.
type Config struct {
	Topics               messaging.TopicBuilder
	ProtocolVersion      string
	OrderQoS             byte
	MaxDistanceInAdvance int64
	StateRequestInterval time.Duration
	DefaultMapID         string

	// RequestFactsheet sends a factsheetRequest on every connect until a
	// factsheet arrives.
	RequestFactsheet bool
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithOrderStore persists every published order and received connection event.
func WithOrderStore(s OrderStore) Option {
	return func(a *Adapter) { a.orders = s }
}

// WithStateStore caches every received state.
func WithStateStore(s StateStore) Option {
	return func(a *Adapter) { a.states = s }
}

// WithFactsheetStore persists received factsheets.
func WithFactsheetStore(s FactsheetStore) Option {
	return func(a *Adapter) { a.factsheets = s }
}

type queuedCommand struct {
	cmd      fleet.MovementCommand
	orderID  string
	updateID uint32
	target   order.NodeRef
}

// Adapter is the master side link to one vehicle. It turns movement commands
// into orders and keeps track of the vehicle's reports. All state is owned by
// the connection manager's executor.
type Adapter struct {
	manager    *messaging.ConnectionManager
	exec       *messaging.Executor
	mapper     *mapping.Mapper
	tracker    *order.ContinuityTracker
	flow       *order.FlowController
	headers    *utils.HeaderCounter
	cfg        Config
	fields     models.FieldSupport
	orders     OrderStore
	states     StateStore
	factsheets FactsheetStore
	listener   *messaging.ListenerFuncs
	log        *logrus.Entry

	enabled         bool
	vehicle         fleet.Vehicle
	queue           []queuedCommand
	lastState       *models.State
	connectionState string
	position        *models.AgvPosition
	factsheet       *models.Factsheet
	stopRequests    func()

	snapshot atomic.Pointer[Snapshot]
}

// New creates a disabled adapter for vehicle.
func New(manager *messaging.ConnectionManager, vehicle fleet.Vehicle, fields models.FieldSupport, cfg Config, opts ...Option) (*Adapter, error) {
	flow, err := order.NewFlowController(cfg.MaxDistanceInAdvance)
	if err != nil {
		return nil, err
	}
	if cfg.ProtocolVersion == "" {
		cfg.ProtocolVersion = constants.DefaultProtocolVersion
	}
	if vehicle.Name == "" {
		vehicle.Name = cfg.Topics.SerialNumber
	}

	a := &Adapter{
		manager:         manager,
		exec:            manager.Executor(),
		tracker:         order.NewContinuityTracker(vehicle.Name),
		flow:            flow,
		headers:         utils.NewHeaderCounter(),
		cfg:             cfg,
		fields:          fields,
		vehicle:         vehicle,
		connectionState: constants.ConnectionStateOffline,
		log: utils.Logger.WithFields(logrus.Fields{
			"component": "adapter",
			"vehicle":   vehicle.Name,
		}),
	}
	a.mapper = mapping.NewMapper(a.currentVehicle, fields, cfg.DefaultMapID)
	a.listener = &messaging.ListenerFuncs{
		Connect:         a.onConnect,
		Disconnect:      a.onDisconnect,
		IncomingMessage: a.onMessage,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.publishSnapshot()
	return a, nil
}

// Name returns the vehicle name.
func (a *Adapter) Name() string {
	return a.vehicle.Name
}

// Enable subscribes to the vehicle's topics and connects.
func (a *Adapter) Enable() error {
	return a.exec.Call(func() error {
		if a.enabled {
			return nil
		}
		a.enabled = true
		a.manager.RegisterListener(a.listener)
		for _, t := range a.inboundTopics() {
			a.manager.Subscribe(t, constants.QoSAtLeastOnce, a.listener)
		}
		a.manager.Connect()
		if a.manager.IsConnected() {
			a.startStateRequests()
		}
		a.log.Info("adapter enabled")
		a.publishSnapshot()
		return nil
	})
}

// Disable unsubscribes and drops queued commands. The connection stays up for
// other users of the manager.
func (a *Adapter) Disable() error {
	return a.exec.Call(func() error {
		if !a.enabled {
			return nil
		}
		a.enabled = false
		a.stopStateRequests()
		for _, t := range a.inboundTopics() {
			a.manager.Unsubscribe(t, a.listener)
		}
		a.manager.UnregisterListener(a.listener)
		a.queue = nil
		a.log.Info("adapter disabled")
		a.publishSnapshot()
		return nil
	})
}

// CanAcceptNextCommand reports whether the flow controller allows another
// movement command.
func (a *Adapter) CanAcceptNextCommand() bool {
	var ok bool
	_ = a.exec.Call(func() error {
		ok = a.flow.CanAcceptNextCommand(a.queuedCommands())
		return nil
	})
	return ok
}

// EnqueueCommand maps cmd and the horizon to an order and publishes it. It
// returns ErrQueueFull when the flow controller refuses more commands and an
// *order.RejectionError when the order does not continue the current one.
func (a *Adapter) EnqueueCommand(cmd fleet.MovementCommand, horizon []fleet.Step) (*models.Order, error) {
	var sent *models.Order
	err := a.exec.Call(func() error {
		if !a.enabled {
			return ErrNotEnabled
		}
		if !a.manager.IsConnected() {
			return messaging.ErrNotConnected
		}
		if !a.flow.CanAcceptNextCommand(a.queuedCommands()) {
			return ErrQueueFull
		}

		o, err := a.mapper.ToOrder(cmd, horizon, a.tracker.Continuation())
		if err != nil {
			return err
		}
		// An order that cannot be encoded must not reach the tracker.
		if _, err := json.Marshal(o); err != nil {
			return fmt.Errorf("failed to marshal order %s/%d: %w", o.OrderID, o.OrderUpdateID, err)
		}
		if err := a.tracker.Accept(o); err != nil {
			return err
		}

		topic := a.cfg.Topics.Topic(constants.TopicOrder)
		o.Header = a.header(topic)
		if err := a.publish(topic, a.cfg.OrderQoS, o, false); err != nil {
			return err
		}
		last, _ := o.LastBaseNode()
		a.queue = append(a.queue, queuedCommand{
			cmd:      cmd,
			orderID:  o.OrderID,
			updateID: o.OrderUpdateID,
			target:   order.NodeRef{NodeID: last.NodeID, SequenceID: last.SequenceID},
		})
		a.log.Infof("sent order %s/%d for %s", o.OrderID, o.OrderUpdateID, cmd.Step)
		a.store(func(ctx context.Context) error { return a.orders.SaveOrder(ctx, a.cfg.Topics.SerialNumber, o) }, a.orders != nil)
		a.publishSnapshot()
		sent = o
		return nil
	})
	return sent, err
}

// SendInstantActions publishes actions. Missing action ids are generated. A
// cancelOrder drops the queued commands and the tracked order.
func (a *Adapter) SendInstantActions(actions []models.Action) (*models.InstantActions, error) {
	var sent *models.InstantActions
	err := a.exec.Call(func() error {
		if !a.enabled {
			return ErrNotEnabled
		}
		if !a.manager.IsConnected() {
			return messaging.ErrNotConnected
		}
		msg, err := a.sendInstantActions(actions)
		if err != nil {
			return err
		}
		for _, action := range msg.Actions {
			if action.ActionType == string(models.ActionCancelOrder) {
				a.log.Infof("order %s cancelled", a.tracker.OrderID())
				a.tracker.Reset()
				a.queue = nil
				a.publishSnapshot()
				break
			}
		}
		sent = msg
		return nil
	})
	return sent, err
}

// RequestFactsheet asks the vehicle to publish its factsheet.
func (a *Adapter) RequestFactsheet() error {
	return a.exec.Call(func() error {
		if !a.enabled {
			return ErrNotEnabled
		}
		if !a.manager.IsConnected() {
			return messaging.ErrNotConnected
		}
		_, err := a.sendInstantActions([]models.Action{{ActionType: string(models.ActionFactsheetRequest)}})
		return err
	})
}

// Snapshot returns the latest view of the vehicle. It may be called from any
// goroutine.
func (a *Adapter) Snapshot() *Snapshot {
	return a.snapshot.Load()
}

func (a *Adapter) sendInstantActions(actions []models.Action) (*models.InstantActions, error) {
	if len(actions) == 0 {
		return nil, &models.ValidationError{Field: "actions", Message: "must not be empty"}
	}
	msg := &models.InstantActions{Actions: make([]models.Action, len(actions))}
	for i, action := range actions {
		built, err := instantAction(action)
		if err != nil {
			var ve *models.ValidationError
			if errors.As(err, &ve) {
				ve.Field = fmt.Sprintf("actions[%d].%s", i, ve.Field)
			}
			return nil, err
		}
		msg.Actions[i] = built
	}
	if _, err := json.Marshal(msg.Actions); err != nil {
		return nil, fmt.Errorf("failed to marshal instant actions: %w", err)
	}
	topic := a.cfg.Topics.Topic(constants.TopicInstantActions)
	msg.Header = a.header(topic)
	if err := a.publish(topic, constants.QoSAtLeastOnce, msg, false); err != nil {
		return nil, err
	}
	return msg, nil
}

// instantAction fills in the id and blocking type of action and checks its
// parameters against the schema of its kind.
func instantAction(action models.Action) (models.Action, error) {
	if action.ActionType == "" {
		return models.Action{}, &models.ValidationError{Field: "actionType", Message: "must not be empty"}
	}
	if action.ActionID == "" {
		action.ActionID = idgen.Action.Derived(action.ActionType)
	}
	if action.BlockingType == "" {
		action.BlockingType = models.BlockingTypeNone
	}
	params := make(map[string]interface{}, len(action.ActionParameters))
	for _, p := range action.ActionParameters {
		if _, dup := params[p.Key]; dup {
			return models.Action{}, &models.ValidationError{Field: "actionParameters", Message: fmt.Sprintf("duplicate parameter %q", p.Key)}
		}
		params[p.Key] = p.Value
	}
	built, err := models.NewAction(models.ActionKind(action.ActionType), action.ActionID, action.BlockingType, params)
	if err != nil {
		return models.Action{}, err
	}
	built.ActionDescription = action.ActionDescription
	return built, nil
}

func (a *Adapter) publish(topic string, qos byte, msg interface{}, retained bool) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", topic, err)
	}
	a.manager.Publish(topic, qos, payload, retained)
	return nil
}

func (a *Adapter) header(topic string) models.Header {
	return models.NewHeader(a.headers.Next(topic), a.cfg.ProtocolVersion, a.cfg.Topics.Manufacturer, a.cfg.Topics.SerialNumber)
}

func (a *Adapter) inboundTopics() []string {
	return []string{
		a.cfg.Topics.Topic(constants.TopicState),
		a.cfg.Topics.Topic(constants.TopicConnection),
		a.cfg.Topics.Topic(constants.TopicVisualization),
		a.cfg.Topics.Topic(constants.TopicFactsheet),
	}
}

func (a *Adapter) onConnect() {
	if a.enabled {
		a.startStateRequests()
		if a.cfg.RequestFactsheet && a.factsheet == nil {
			if _, err := a.sendInstantActions([]models.Action{{ActionType: string(models.ActionFactsheetRequest)}}); err != nil {
				a.log.WithError(err).Warn("failed to request factsheet")
			}
		}
	}
	a.publishSnapshot()
}

func (a *Adapter) onDisconnect() {
	a.stopStateRequests()
	a.publishSnapshot()
}

func (a *Adapter) onMessage(topic string, payload []byte) {
	if !a.enabled {
		return
	}
	t, err := messaging.ParseTopic(topic)
	if err != nil {
		a.log.WithError(err).Warnf("ignoring message on %s", topic)
		return
	}
	switch t.MessageType {
	case constants.TopicState:
		var s models.State
		if err := json.Unmarshal(payload, &s); err != nil {
			a.log.WithError(err).Warn("discarding malformed state")
			return
		}
		a.handleState(&s)
	case constants.TopicConnection:
		var c models.Connection
		if err := json.Unmarshal(payload, &c); err != nil {
			a.log.WithError(err).Warn("discarding malformed connection")
			return
		}
		a.handleConnection(&c)
	case constants.TopicVisualization:
		var v models.Visualization
		if err := json.Unmarshal(payload, &v); err != nil {
			a.log.WithError(err).Warn("discarding malformed visualization")
			return
		}
		if v.AgvPosition != nil {
			a.updatePosition(v.AgvPosition)
			a.publishSnapshot()
		}
	case constants.TopicFactsheet:
		var f models.Factsheet
		if err := json.Unmarshal(payload, &f); err != nil {
			a.log.WithError(err).Warn("discarding malformed factsheet")
			return
		}
		a.handleFactsheet(&f)
	default:
		a.log.Debugf("ignoring %s message", t.MessageType)
	}
}

func (a *Adapter) handleState(s *models.State) {
	a.tracker.UpdateFromState(s)
	a.lastState = s
	if s.AgvPosition != nil {
		a.updatePosition(s.AgvPosition)
	}
	a.evictReached(s)
	a.store(func(ctx context.Context) error { return a.states.SaveState(ctx, s) }, a.states != nil)
	a.publishSnapshot()
}

func (a *Adapter) handleConnection(c *models.Connection) {
	if !models.ValidConnectionState(c.ConnectionState) {
		a.log.Warnf("discarding unknown connection state %q", c.ConnectionState)
		return
	}
	if a.connectionState != c.ConnectionState {
		a.log.Infof("vehicle is %s", c.ConnectionState)
	}
	a.connectionState = c.ConnectionState
	a.store(func(ctx context.Context) error { return a.orders.SaveConnectionEvent(ctx, c) }, a.orders != nil)
	a.store(func(ctx context.Context) error { return a.states.SaveConnectionState(ctx, c) }, a.states != nil)
	a.publishSnapshot()
}

// handleFactsheet narrows the mapper's field support to what the vehicle
// declared.
func (a *Adapter) handleFactsheet(f *models.Factsheet) {
	a.factsheet = f
	unsupported := f.UnsupportedFields()
	a.mapper.SetFieldSupport(a.fields.Merge(unsupported...))
	a.log.Infof("factsheet received: %s (%s), %d unsupported fields", f.TypeSpecification.SeriesName, f.TypeSpecification.AgvKinematic, len(unsupported))
	a.store(func(ctx context.Context) error { return a.factsheets.SaveFactsheet(ctx, f) }, a.factsheets != nil)
	a.publishSnapshot()
}

// evictReached removes every command up to the one whose destination the
// vehicle reported as its last node.
func (a *Adapter) evictReached(s *models.State) {
	reached := -1
	for i, q := range a.queue {
		if q.orderID == s.OrderID && q.target.NodeID == s.LastNodeID && q.target.SequenceID == s.LastNodeSequenceID {
			reached = i
		}
	}
	if reached < 0 {
		return
	}
	for _, q := range a.queue[:reached+1] {
		a.log.Debugf("command %s executed", q.cmd.Step)
	}
	a.queue = append([]queuedCommand(nil), a.queue[reached+1:]...)
}

func (a *Adapter) updatePosition(p *models.AgvPosition) {
	pos := *p
	a.position = &pos
	orientation := p.Theta * 180 / math.Pi
	a.vehicle.Position = &fleet.Triple{X: int64(math.Round(p.X * 1000)), Y: int64(math.Round(p.Y * 1000))}
	a.vehicle.Orientation = &orientation
}

func (a *Adapter) currentVehicle() fleet.Vehicle {
	return a.vehicle
}

func (a *Adapter) queuedCommands() []fleet.MovementCommand {
	cmds := make([]fleet.MovementCommand, len(a.queue))
	for i, q := range a.queue {
		cmds[i] = q.cmd
	}
	return cmds
}

func (a *Adapter) startStateRequests() {
	a.stopStateRequests()
	if a.cfg.StateRequestInterval <= 0 {
		return
	}
	a.stopRequests = a.exec.Schedule(a.cfg.StateRequestInterval, func() {
		if !a.enabled || !a.manager.IsConnected() {
			return
		}
		if _, err := a.sendInstantActions([]models.Action{{ActionType: string(models.ActionStateRequest)}}); err != nil {
			a.log.WithError(err).Warn("failed to request state")
		}
		a.startStateRequests()
	})
}

func (a *Adapter) stopStateRequests() {
	if a.stopRequests != nil {
		a.stopRequests()
		a.stopRequests = nil
	}
}

// store runs fn off the executor so slow stores never delay protocol handling.
func (a *Adapter) store(fn func(ctx context.Context) error, enabled bool) {
	if !enabled {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			a.log.WithError(err).Error("failed to store vehicle data")
		}
	}()
}
