// internal/models/state.go
package models

// NodeState is a node of the current order not yet traversed.
type NodeState struct {
	NodeID          string        `json:"nodeId"`
	SequenceID      uint32        `json:"sequenceId"`
	Released        bool          `json:"released"`
	NodeDescription *string       `json:"nodeDescription,omitempty"`
	NodePosition    *NodePosition `json:"nodePosition,omitempty"`
}

// EdgeState is an edge of the current order not yet traversed.
type EdgeState struct {
	EdgeID          string  `json:"edgeId"`
	SequenceID      uint32  `json:"sequenceId"`
	Released        bool    `json:"released"`
	EdgeDescription *string `json:"edgeDescription,omitempty"`
}

// ActionState reports the progress of an order or instant action.
type ActionState struct {
	ActionID          string  `json:"actionId"`
	ActionType        string  `json:"actionType,omitempty"`
	ActionDescription *string `json:"actionDescription,omitempty"`
	ActionStatus      string  `json:"actionStatus"`
	ResultDescription *string `json:"resultDescription,omitempty"`
}

// AgvPosition is the vehicle's localized pose.
type AgvPosition struct {
	X                   float64  `json:"x"`
	Y                   float64  `json:"y"`
	Theta               float64  `json:"theta"`
	MapID               string   `json:"mapId"`
	PositionInitialized bool     `json:"positionInitialized"`
	LocalizationScore   *float64 `json:"localizationScore,omitempty"`
	DeviationRange      *float64 `json:"deviationRange,omitempty"`
}

type Velocity struct {
	Vx    *float64 `json:"vx,omitempty"`
	Vy    *float64 `json:"vy,omitempty"`
	Omega *float64 `json:"omega,omitempty"`
}

type BatteryState struct {
	BatteryCharge  float64  `json:"batteryCharge"`
	BatteryVoltage *float64 `json:"batteryVoltage,omitempty"`
	BatteryHealth  *int     `json:"batteryHealth,omitempty"`
	Charging       bool     `json:"charging"`
	Reach          *uint32  `json:"reach,omitempty"`
}

type ErrorReference struct {
	ReferenceKey   string `json:"referenceKey"`
	ReferenceValue string `json:"referenceValue"`
}

type Error struct {
	ErrorType        string           `json:"errorType"`
	ErrorReferences  []ErrorReference `json:"errorReferences,omitempty"`
	ErrorDescription *string          `json:"errorDescription,omitempty"`
	ErrorLevel       string           `json:"errorLevel"`
}

type Information struct {
	InfoType        string  `json:"infoType"`
	InfoDescription *string `json:"infoDescription,omitempty"`
	InfoLevel       string  `json:"infoLevel"`
}

type SafetyState struct {
	EStop          string `json:"eStop"`
	FieldViolation bool   `json:"fieldViolation"`
}

// State is the full snapshot a vehicle reports after every change.
type State struct {
	Header
	OrderID               string        `json:"orderId"`
	OrderUpdateID         uint32        `json:"orderUpdateId"`
	LastNodeID            string        `json:"lastNodeId"`
	LastNodeSequenceID    uint32        `json:"lastNodeSequenceId"`
	NodeStates            []NodeState   `json:"nodeStates"`
	EdgeStates            []EdgeState   `json:"edgeStates"`
	Driving               bool          `json:"driving"`
	Paused                *bool         `json:"paused,omitempty"`
	NewBaseRequest        *bool         `json:"newBaseRequest,omitempty"`
	DistanceSinceLastNode *float64      `json:"distanceSinceLastNode,omitempty"`
	AgvPosition           *AgvPosition  `json:"agvPosition,omitempty"`
	Velocity              *Velocity     `json:"velocity,omitempty"`
	ActionStates          []ActionState `json:"actionStates"`
	BatteryState          BatteryState  `json:"batteryState"`
	OperatingMode         string        `json:"operatingMode"`
	Errors                []Error       `json:"errors"`
	Information           []Information `json:"information,omitempty"`
	SafetyState           SafetyState   `json:"safetyState"`
}

// OrderFinished reports whether no nodes or edges of the current order remain.
func (s *State) OrderFinished() bool {
	return len(s.NodeStates) == 0 && len(s.EdgeStates) == 0
}

// IsPaused treats an absent paused flag as false.
func (s *State) IsPaused() bool {
	return s.Paused != nil && *s.Paused
}

// ActionState returns the state of the action with the given id.
func (s *State) ActionState(actionID string) (ActionState, bool) {
	for _, as := range s.ActionStates {
		if as.ActionID == actionID {
			return as, true
		}
	}
	return ActionState{}, false
}
