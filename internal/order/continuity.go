// internal/order/continuity.go
package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"

	"vda5050-bridge/internal/models"
	"vda5050-bridge/internal/utils"
)

// Tracker states.
const (
	StateIdle     = "idle"
	StateActive   = "active"
	StateFinished = "finished"
)

// Tracker events.
const (
	EventNewOrder    = "new_order"
	EventOrderUpdate = "order_update"
	EventFinish      = "finish"
)

// NodeRef identifies a node together with its sequence id.
type NodeRef struct {
	NodeID     string
	SequenceID uint32
}

// Continuation is what the next order of the same order id has to start from.
type Continuation struct {
	OrderID             string
	OrderUpdateID       uint32
	FirstNodeID         string
	FirstNodeSequenceID uint32
	Finished            bool
}

// ContinuityTracker decides whether an order is new, a valid update of the
// current order, or has to be rejected. It is not safe for concurrent use;
// callers keep it on a single executor.
type ContinuityTracker struct {
	FSM *fsm.FSM

	orderID      string
	updateID     uint32
	baseEnd      NodeRef
	lastReported NodeRef
	log          *logrus.Entry
}

// NewContinuityTracker creates an idle tracker. name shows up in logs.
func NewContinuityTracker(name string) *ContinuityTracker {
	t := &ContinuityTracker{
		log: utils.Logger.WithFields(logrus.Fields{"component": "continuity", "vehicle": name}),
	}
	t.FSM = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: EventNewOrder, Src: []string{StateIdle, StateFinished}, Dst: StateActive},
			{Name: EventOrderUpdate, Src: []string{StateActive, StateFinished}, Dst: StateActive},
			{Name: EventFinish, Src: []string{StateActive}, Dst: StateFinished},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				t.log.Debugf("state changed from %s -> %s (event: %s)", e.Src, e.Dst, e.Event)
			},
		},
	)
	return t
}

// State returns idle, active or finished.
func (t *ContinuityTracker) State() string {
	return t.FSM.Current()
}

// OrderID returns the id of the current order, empty while idle.
func (t *ContinuityTracker) OrderID() string {
	return t.orderID
}

// OrderUpdateID returns the update id of the current order.
func (t *ContinuityTracker) OrderUpdateID() uint32 {
	return t.updateID
}

// Finished reports whether the vehicle reported the current order as done.
func (t *ContinuityTracker) Finished() bool {
	return t.FSM.Is(StateFinished)
}

// BaseEnd returns the last released node of the current order.
func (t *ContinuityTracker) BaseEnd() NodeRef {
	return t.baseEnd
}

// LastReported returns the last node the vehicle reported.
func (t *ContinuityTracker) LastReported() NodeRef {
	return t.lastReported
}

// Accept routes an order to AcceptNewOrder or AcceptOrderUpdate depending on
// its order id.
func (t *ContinuityTracker) Accept(o *models.Order) error {
	if o != nil && !t.FSM.Is(StateIdle) && o.OrderID == t.orderID {
		return t.AcceptOrderUpdate(o)
	}
	return t.AcceptNewOrder(o)
}

// AcceptNewOrder starts tracking o. It fails while another order is in
// progress or when o does not start at the vehicle's last reported node.
func (t *ContinuityTracker) AcceptNewOrder(o *models.Order) error {
	if err := models.ValidateOrder(o); err != nil {
		return err
	}
	if t.FSM.Is(StateActive) {
		return reject(ErrOrderUpdateConflict, o.OrderID, "order %q is still in progress", t.orderID)
	}
	first := o.FirstNode()
	if t.lastReported.NodeID != "" && first.NodeID != t.lastReported.NodeID {
		return reject(ErrNoRoute, o.OrderID, "first node %s is not the last reported node %s", first.NodeID, t.lastReported.NodeID)
	}

	if err := t.fire(EventNewOrder); err != nil {
		return err
	}
	t.commit(o)
	t.log.Infof("accepted new order %s/%d", o.OrderID, o.OrderUpdateID)
	return nil
}

// AcceptOrderUpdate applies an update of the current order. The update id has
// to increase. A finished order is continued from the last reported node, an
// unfinished one from the end of its base.
func (t *ContinuityTracker) AcceptOrderUpdate(o *models.Order) error {
	if err := models.ValidateOrder(o); err != nil {
		return err
	}
	if t.FSM.Is(StateIdle) {
		return reject(ErrOrderUpdateConflict, o.OrderID, "no order to update")
	}
	if o.OrderID != t.orderID {
		return reject(ErrOrderUpdateConflict, o.OrderID, "current order is %q", t.orderID)
	}
	if o.OrderUpdateID <= t.updateID {
		return reject(ErrOrderUpdateConflict, o.OrderID, "update id %d is not greater than %d", o.OrderUpdateID, t.updateID)
	}

	first := NodeRef{NodeID: o.FirstNode().NodeID, SequenceID: o.FirstNode().SequenceID}
	expected := t.baseEnd
	if t.Finished() {
		expected = t.lastReported
	}
	if first != expected {
		return reject(ErrNoRoute, o.OrderID, "update starts at %s/%d, expected %s/%d",
			first.NodeID, first.SequenceID, expected.NodeID, expected.SequenceID)
	}

	if err := t.fire(EventOrderUpdate); err != nil {
		return err
	}
	t.commit(o)
	t.log.Infof("accepted order update %s/%d", o.OrderID, o.OrderUpdateID)
	return nil
}

// UpdateFromState records the vehicle's progress. The current order is marked
// finished once a state for its latest update has no nodes or edges left.
func (t *ContinuityTracker) UpdateFromState(s *models.State) {
	if s == nil {
		return
	}
	if s.LastNodeID != "" {
		t.lastReported = NodeRef{NodeID: s.LastNodeID, SequenceID: s.LastNodeSequenceID}
	}
	if !t.FSM.Is(StateActive) || s.OrderID != t.orderID || s.OrderUpdateID != t.updateID {
		return
	}
	if s.OrderFinished() {
		if err := t.fire(EventFinish); err != nil {
			t.log.WithError(err).Warn("failed to mark order finished")
			return
		}
		t.log.Infof("order %s finished at %s", t.orderID, t.lastReported.NodeID)
	}
}

// Continuation returns where the next order with the current id has to start,
// or nil while idle.
func (t *ContinuityTracker) Continuation() *Continuation {
	if t.FSM.Is(StateIdle) {
		return nil
	}
	c := &Continuation{
		OrderID:       t.orderID,
		OrderUpdateID: t.updateID,
		Finished:      t.Finished(),
	}
	ref := t.baseEnd
	if c.Finished {
		ref = t.lastReported
	}
	c.FirstNodeID, c.FirstNodeSequenceID = ref.NodeID, ref.SequenceID
	return c
}

// Reset drops the current order, e.g. after a cancelOrder. The last reported
// node is kept.
func (t *ContinuityTracker) Reset() {
	t.orderID, t.updateID, t.baseEnd = "", 0, NodeRef{}
	t.FSM.SetState(StateIdle)
}

func (t *ContinuityTracker) commit(o *models.Order) {
	t.orderID = o.OrderID
	t.updateID = o.OrderUpdateID
	if last, ok := o.LastBaseNode(); ok {
		t.baseEnd = NodeRef{NodeID: last.NodeID, SequenceID: last.SequenceID}
	}
}

func (t *ContinuityTracker) fire(event string) error {
	err := t.FSM.Event(context.Background(), event)
	var noTransition fsm.NoTransitionError
	if err != nil && !errors.As(err, &noTransition) {
		return fmt.Errorf("continuity tracker: %w", err)
	}
	return nil
}
