// internal/simulator/simulator.go
package simulator

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"vda5050-bridge/internal/common/constants"
	"vda5050-bridge/internal/messaging"
	"vda5050-bridge/internal/models"
	"vda5050-bridge/internal/order"
	"vda5050-bridge/internal/utils"
)

var (
	ErrPaused     = errors.New("vehicle is paused")
	ErrNoNextNode = errors.New("no released node left to drive to")
	ErrNotStarted = errors.New("simulator not started")
)

// Error types reported in the state.
const (
	ErrorTypeNoRoute     = "noRouteError"
	ErrorTypeOrderUpdate = "orderUpdateError"
	ErrorTypeValidation  = "validationError"
	ErrorTypeNoOrder     = "noOrderToCancel"
)

// Config configures a Simulator.
type Config struct {
	Topics               messaging.TopicBuilder
	ProtocolVersion      string
	StatePublishInterval time.Duration

	// Initial pose; LastNodeID is where the first order has to start.
	Position   *models.AgvPosition
	LastNodeID string

	// Factsheet is published on factsheetRequest. Without one the request fails.
	Factsheet *models.Factsheet
}

// Simulator is a headless vehicle. It accepts orders the way a vehicle does,
// drives one node per Step and reports its state.
type Simulator struct {
	manager  *messaging.ConnectionManager
	exec     *messaging.Executor
	tracker  *order.ContinuityTracker
	headers  *utils.HeaderCounter
	cfg      Config
	listener *messaging.ListenerFuncs
	log      *logrus.Entry

	started      bool
	nodeStates   []models.NodeState
	edgeStates   []models.EdgeState
	actionStates []models.ActionState
	pending      map[uint32][]string
	lastNodeID   string
	lastNodeSeq  uint32
	position     *models.AgvPosition
	paused       bool
	errors       []models.Error
	stopPeriodic func()
}

// New creates a simulator that talks through manager.
func New(manager *messaging.ConnectionManager, cfg Config) *Simulator {
	if cfg.ProtocolVersion == "" {
		cfg.ProtocolVersion = constants.DefaultProtocolVersion
	}
	s := &Simulator{
		manager:    manager,
		exec:       manager.Executor(),
		tracker:    order.NewContinuityTracker(cfg.Topics.SerialNumber),
		headers:    utils.NewHeaderCounter(),
		cfg:        cfg,
		pending:    make(map[uint32][]string),
		lastNodeID: cfg.LastNodeID,
		position:   cfg.Position,
		log: utils.Logger.WithFields(logrus.Fields{
			"component": "simulator",
			"vehicle":   cfg.Topics.SerialNumber,
		}),
	}
	s.listener = &messaging.ListenerFuncs{
		Connect:         s.onConnect,
		Disconnect:      s.stopStatePublishing,
		IncomingMessage: s.onMessage,
	}
	s.tracker.UpdateFromState(s.buildState())
	return s
}

// Start sets the last will, subscribes to orders and instant actions and
// connects.
func (s *Simulator) Start() error {
	return s.exec.Call(func() error {
		if s.started {
			return nil
		}
		topic := s.cfg.Topics.Topic(constants.TopicConnection)
		broken := s.connection(constants.ConnectionStateConnectionBroken)
		broken.Header = s.header(topic)
		will, err := json.Marshal(broken)
		if err != nil {
			return err
		}
		s.started = true
		s.manager.SetLastWill(topic, will, constants.QoSAtLeastOnce, true)
		s.manager.RegisterListener(s.listener)
		s.manager.Subscribe(s.cfg.Topics.Topic(constants.TopicOrder), constants.QoSAtLeastOnce, s.listener)
		s.manager.Subscribe(s.cfg.Topics.Topic(constants.TopicInstantActions), constants.QoSAtLeastOnce, s.listener)
		s.manager.Connect()
		return nil
	})
}

// Shutdown announces OFFLINE and disconnects.
func (s *Simulator) Shutdown() error {
	return s.exec.Call(func() error {
		if !s.started {
			return nil
		}
		s.started = false
		s.stopStatePublishing()
		if s.manager.IsConnected() {
			s.publish(constants.TopicConnection, s.connection(constants.ConnectionStateOffline), true)
		}
		s.manager.Disconnect()
		return nil
	})
}

// Step drives to the next released node and finishes the actions of the
// edge and node on the way.
func (s *Simulator) Step() error {
	return s.exec.Call(func() error {
		if !s.started {
			return ErrNotStarted
		}
		if s.paused {
			return ErrPaused
		}
		if len(s.nodeStates) == 0 || !s.nodeStates[0].Released {
			return ErrNoNextNode
		}
		node := s.nodeStates[0]
		s.nodeStates = s.nodeStates[1:]
		if len(s.edgeStates) > 0 && s.edgeStates[0].SequenceID < node.SequenceID {
			s.finishActions(s.edgeStates[0].SequenceID)
			s.edgeStates = s.edgeStates[1:]
		}
		s.arrive(node)
		s.log.Infof("reached node %s/%d", node.NodeID, node.SequenceID)
		s.publishState()
		return nil
	})
}

// State returns the state the simulator would report now.
func (s *Simulator) State() *models.State {
	var st *models.State
	_ = s.exec.Call(func() error {
		st = s.buildState()
		return nil
	})
	return st
}

func (s *Simulator) onConnect() {
	if !s.started {
		return
	}
	s.publish(constants.TopicConnection, s.connection(constants.ConnectionStateOnline), true)
	s.publishState()
	s.scheduleStatePublishing()
}

func (s *Simulator) onMessage(topic string, payload []byte) {
	t, err := messaging.ParseTopic(topic)
	if err != nil {
		s.log.WithError(err).Warnf("ignoring message on %s", topic)
		return
	}
	switch t.MessageType {
	case constants.TopicOrder:
		var o models.Order
		if err := json.Unmarshal(payload, &o); err != nil {
			s.log.WithError(err).Warn("discarding malformed order")
			return
		}
		s.handleOrder(&o)
	case constants.TopicInstantActions:
		var ia models.InstantActions
		if err := json.Unmarshal(payload, &ia); err != nil {
			s.log.WithError(err).Warn("discarding malformed instant actions")
			return
		}
		s.handleInstantActions(&ia)
	}
}

func (s *Simulator) handleOrder(o *models.Order) {
	update := s.tracker.State() != order.StateIdle && o.OrderID == s.tracker.OrderID()
	if err := s.tracker.Accept(o); err != nil {
		s.log.WithError(err).Warn("order rejected")
		s.errors = append(s.errors, orderError(err, o))
		s.publishState()
		return
	}
	s.errors = nil

	first := o.FirstNode()
	if update {
		s.nodeStates = keepNodes(s.nodeStates, first.SequenceID)
		s.edgeStates = keepEdges(s.edgeStates, first.SequenceID)
		s.dropActionsAfter(first.SequenceID)
		s.trackActions(first.SequenceID, first.Actions)
		if s.lastNodeID == first.NodeID && s.lastNodeSeq == first.SequenceID {
			s.finishActions(first.SequenceID)
		}
	} else {
		s.nodeStates, s.edgeStates = nil, nil
		s.actionStates = nil
		s.pending = make(map[uint32][]string)
		s.trackActions(first.SequenceID, first.Actions)
		s.arrive(models.NodeState{NodeID: first.NodeID, SequenceID: first.SequenceID, Released: first.Released, NodePosition: first.NodePosition})
	}
	for _, n := range o.Nodes[1:] {
		s.nodeStates = append(s.nodeStates, models.NodeState{
			NodeID:       n.NodeID,
			SequenceID:   n.SequenceID,
			Released:     n.Released,
			NodePosition: n.NodePosition,
		})
		s.trackActions(n.SequenceID, n.Actions)
	}
	for _, e := range o.Edges {
		s.edgeStates = append(s.edgeStates, models.EdgeState{EdgeID: e.EdgeID, SequenceID: e.SequenceID, Released: e.Released})
		s.trackActions(e.SequenceID, e.Actions)
	}
	s.publishState()
}

func (s *Simulator) handleInstantActions(ia *models.InstantActions) {
	for _, action := range ia.Actions {
		status := constants.ActionStatusFinished
		switch models.ActionKind(action.ActionType) {
		case models.ActionStartPause:
			s.paused = true
		case models.ActionStopPause:
			s.paused = false
		case models.ActionStateRequest:
		case models.ActionFactsheetRequest:
			if s.cfg.Factsheet == nil {
				status = constants.ActionStatusFailed
				break
			}
			f := *s.cfg.Factsheet
			s.publish(constants.TopicFactsheet, &f, false)
		case models.ActionCancelOrder:
			if len(s.nodeStates) == 0 && len(s.edgeStates) == 0 {
				status = constants.ActionStatusFailed
				s.errors = append(s.errors, models.Error{ErrorType: ErrorTypeNoOrder, ErrorLevel: constants.ErrorLevelWarning})
				break
			}
			s.cancelOrder()
		case models.ActionInitPosition:
			if err := s.initPosition(action); err != nil {
				s.log.WithError(err).Warn("initPosition failed")
				status = constants.ActionStatusFailed
			}
		default:
			s.log.Warnf("unsupported instant action %s", action.ActionType)
			status = constants.ActionStatusFailed
		}
		s.actionStates = append(s.actionStates, models.ActionState{
			ActionID:     action.ActionID,
			ActionType:   action.ActionType,
			ActionStatus: status,
		})
	}
	s.publishState()
}

func (s *Simulator) cancelOrder() {
	for i, as := range s.actionStates {
		if as.ActionStatus == constants.ActionStatusWaiting {
			s.actionStates[i].ActionStatus = constants.ActionStatusFailed
		}
	}
	s.nodeStates, s.edgeStates = nil, nil
	s.pending = make(map[uint32][]string)
	s.log.Infof("order %s cancelled", s.tracker.OrderID())
}

func (s *Simulator) initPosition(action models.Action) error {
	pos := models.AgvPosition{PositionInitialized: true}
	for key, dst := range map[string]*float64{"x": &pos.X, "y": &pos.Y, "theta": &pos.Theta} {
		v, ok := action.Parameter(key)
		if !ok {
			return fmt.Errorf("missing parameter %s", key)
		}
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("parameter %s is not a number", key)
		}
		*dst = f
	}
	if v, ok := action.Parameter("mapId"); ok {
		pos.MapID, _ = v.(string)
	}
	if v, ok := action.Parameter("lastNodeId"); ok {
		if id, _ := v.(string); id != "" {
			s.lastNodeID, s.lastNodeSeq = id, 0
		}
	}
	s.position = &pos
	return nil
}

func (s *Simulator) arrive(node models.NodeState) {
	s.lastNodeID, s.lastNodeSeq = node.NodeID, node.SequenceID
	if p := node.NodePosition; p != nil {
		pos := models.AgvPosition{X: p.X, Y: p.Y, MapID: p.MapID, PositionInitialized: true}
		if p.Theta != nil {
			pos.Theta = *p.Theta
		}
		s.position = &pos
	}
	s.finishActions(node.SequenceID)
}

func (s *Simulator) trackActions(seq uint32, actions []models.Action) {
	for _, a := range actions {
		s.pending[seq] = append(s.pending[seq], a.ActionID)
		s.actionStates = append(s.actionStates, models.ActionState{
			ActionID:     a.ActionID,
			ActionType:   a.ActionType,
			ActionStatus: constants.ActionStatusWaiting,
		})
	}
}

// dropActionsAfter forgets the actions of the replaced horizon.
func (s *Simulator) dropActionsAfter(stitch uint32) {
	dropped := make(map[string]bool)
	for seq, ids := range s.pending {
		if seq <= stitch {
			continue
		}
		for _, id := range ids {
			dropped[id] = true
		}
		delete(s.pending, seq)
	}
	kept := s.actionStates[:0]
	for _, as := range s.actionStates {
		if !dropped[as.ActionID] {
			kept = append(kept, as)
		}
	}
	s.actionStates = kept
}

func (s *Simulator) finishActions(seq uint32) {
	for _, id := range s.pending[seq] {
		for i := range s.actionStates {
			if s.actionStates[i].ActionID == id {
				s.actionStates[i].ActionStatus = constants.ActionStatusFinished
			}
		}
	}
	delete(s.pending, seq)
}

func (s *Simulator) buildState() *models.State {
	paused := s.paused
	st := &models.State{
		OrderID:            s.tracker.OrderID(),
		OrderUpdateID:      s.tracker.OrderUpdateID(),
		LastNodeID:         s.lastNodeID,
		LastNodeSequenceID: s.lastNodeSeq,
		NodeStates:         append([]models.NodeState{}, s.nodeStates...),
		EdgeStates:         append([]models.EdgeState{}, s.edgeStates...),
		Driving:            !paused && len(s.nodeStates) > 0 && s.nodeStates[0].Released,
		Paused:             &paused,
		ActionStates:       append([]models.ActionState{}, s.actionStates...),
		BatteryState:       models.BatteryState{BatteryCharge: 100},
		OperatingMode:      constants.OperatingModeAutomatic,
		Errors:             append([]models.Error{}, s.errors...),
		SafetyState:        models.SafetyState{EStop: constants.EStopNone},
	}
	if s.position != nil {
		pos := *s.position
		st.AgvPosition = &pos
	}
	return st
}

func (s *Simulator) publishState() {
	st := s.buildState()
	s.tracker.UpdateFromState(st)
	s.publish(constants.TopicState, st, false)
}

func (s *Simulator) scheduleStatePublishing() {
	s.stopStatePublishing()
	if s.cfg.StatePublishInterval <= 0 {
		return
	}
	s.stopPeriodic = s.exec.Schedule(s.cfg.StatePublishInterval, func() {
		if !s.started || !s.manager.IsConnected() {
			return
		}
		s.publishState()
		s.scheduleStatePublishing()
	})
}

func (s *Simulator) stopStatePublishing() {
	if s.stopPeriodic != nil {
		s.stopPeriodic()
		s.stopPeriodic = nil
	}
}

func (s *Simulator) connection(state string) *models.Connection {
	return &models.Connection{ConnectionState: state}
}

// publish stamps the header of msg and sends it.
func (s *Simulator) publish(messageType string, msg interface{}, retained bool) {
	topic := s.cfg.Topics.Topic(messageType)
	header := s.header(topic)
	switch m := msg.(type) {
	case *models.State:
		m.Header = header
	case *models.Connection:
		m.Header = header
	case *models.Factsheet:
		m.Header = header
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.WithError(err).Errorf("failed to marshal %s", messageType)
		return
	}
	s.manager.Publish(topic, constants.QoSAtLeastOnce, payload, retained)
}

func (s *Simulator) header(topic string) models.Header {
	return models.NewHeader(s.headers.Next(topic), s.cfg.ProtocolVersion, s.cfg.Topics.Manufacturer, s.cfg.Topics.SerialNumber)
}

func orderError(err error, o *models.Order) models.Error {
	errorType := ErrorTypeValidation
	switch {
	case errors.Is(err, order.ErrNoRoute):
		errorType = ErrorTypeNoRoute
	case errors.Is(err, order.ErrOrderUpdateConflict):
		errorType = ErrorTypeOrderUpdate
	}
	description := err.Error()
	return models.Error{
		ErrorType:        errorType,
		ErrorLevel:       constants.ErrorLevelWarning,
		ErrorDescription: &description,
		ErrorReferences: []models.ErrorReference{
			{ReferenceKey: "orderId", ReferenceValue: o.OrderID},
			{ReferenceKey: "orderUpdateId", ReferenceValue: fmt.Sprint(o.OrderUpdateID)},
		},
	}
}

// keepNodes drops the horizon behind the stitching node.
func keepNodes(states []models.NodeState, stitch uint32) []models.NodeState {
	var kept []models.NodeState
	for _, n := range states {
		if n.SequenceID <= stitch {
			kept = append(kept, n)
		}
	}
	return kept
}

func keepEdges(states []models.EdgeState, stitch uint32) []models.EdgeState {
	var kept []models.EdgeState
	for _, e := range states {
		if e.SequenceID < stitch {
			kept = append(kept, e)
		}
	}
	return kept
}
