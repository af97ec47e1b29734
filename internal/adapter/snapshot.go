package adapter

import (
	"time"

	"vda5050-bridge/internal/models"
)

// Snapshot is an immutable view of the vehicle. A new one is published after
// every change.
type Snapshot struct {
	Name               string               `json:"name"`
	Enabled            bool                 `json:"enabled"`
	Connected          bool                 `json:"connected"`
	ConnectionState    string               `json:"connectionState"`
	OrderID            string               `json:"orderId,omitempty"`
	OrderUpdateID      uint32               `json:"orderUpdateId"`
	OrderState         string               `json:"orderState"`
	LastNodeID         string               `json:"lastNodeId,omitempty"`
	LastNodeSequenceID uint32               `json:"lastNodeSequenceId"`
	Driving            bool                 `json:"driving"`
	Paused             bool                 `json:"paused"`
	Position           *models.AgvPosition  `json:"position,omitempty"`
	QueuedCommands     []string             `json:"queuedCommands"`
	ActionStates       []models.ActionState `json:"actionStates"`
	Errors             []models.Error       `json:"errors"`
	Factsheet          *models.Factsheet    `json:"factsheet,omitempty"`
	UpdatedAt          time.Time            `json:"updatedAt"`
}

func (a *Adapter) publishSnapshot() {
	s := &Snapshot{
		Name:            a.vehicle.Name,
		Enabled:         a.enabled,
		Connected:       a.manager.IsConnected(),
		ConnectionState: a.connectionState,
		OrderID:         a.tracker.OrderID(),
		OrderUpdateID:   a.tracker.OrderUpdateID(),
		OrderState:      a.tracker.State(),
		QueuedCommands:  make([]string, 0, len(a.queue)),
		ActionStates:    []models.ActionState{},
		Errors:          []models.Error{},
		Factsheet:       a.factsheet,
		UpdatedAt:       time.Now(),
	}
	for _, q := range a.queue {
		s.QueuedCommands = append(s.QueuedCommands, q.cmd.Step.String())
	}
	if a.position != nil {
		pos := *a.position
		s.Position = &pos
	}
	if st := a.lastState; st != nil {
		s.LastNodeID = st.LastNodeID
		s.LastNodeSequenceID = st.LastNodeSequenceID
		s.Driving = st.Driving
		s.Paused = st.IsPaused()
		s.ActionStates = append(s.ActionStates, st.ActionStates...)
		s.Errors = append(s.Errors, st.Errors...)
	}
	a.snapshot.Store(s)
}
