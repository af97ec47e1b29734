package models

import (
	"fmt"
	"sort"
)

// ActionKind names a predefined VDA5050 action. Action types outside this set
// are vendor specific and are not validated.
type ActionKind string

const (
	ActionStartPause       ActionKind = "startPause"
	ActionStopPause        ActionKind = "stopPause"
	ActionStartCharging    ActionKind = "startCharging"
	ActionStopCharging     ActionKind = "stopCharging"
	ActionInitPosition     ActionKind = "initPosition"
	ActionStateRequest     ActionKind = "stateRequest"
	ActionLogReport        ActionKind = "logReport"
	ActionPick             ActionKind = "pick"
	ActionDrop             ActionKind = "drop"
	ActionDetectObject     ActionKind = "detectObject"
	ActionFinePositioning  ActionKind = "finePositioning"
	ActionWaitForTrigger   ActionKind = "waitForTrigger"
	ActionCancelOrder      ActionKind = "cancelOrder"
	ActionFactsheetRequest ActionKind = "factsheetRequest"
)

// ParameterSchema lists the parameter keys a kind requires and accepts.
type ParameterSchema struct {
	Required []string
	Optional []string
}

func (s ParameterSchema) allows(key string) bool {
	for _, k := range s.Required {
		if k == key {
			return true
		}
	}
	for _, k := range s.Optional {
		if k == key {
			return true
		}
	}
	return false
}

var actionSchemas = map[ActionKind]ParameterSchema{
	ActionStartPause:       {},
	ActionStopPause:        {},
	ActionStartCharging:    {},
	ActionStopCharging:     {},
	ActionInitPosition:     {Required: []string{"x", "y", "theta", "mapId"}, Optional: []string{"lastNodeId"}},
	ActionStateRequest:     {},
	ActionLogReport:        {Required: []string{"reason"}},
	ActionPick:             {Required: []string{"stationType", "loadType"}, Optional: []string{"lhd", "stationName", "loadId", "height", "depth", "side"}},
	ActionDrop:             {Required: []string{"stationType", "loadType"}, Optional: []string{"lhd", "stationName", "loadId", "height", "depth", "side"}},
	ActionDetectObject:     {Optional: []string{"objectType"}},
	ActionFinePositioning:  {Required: []string{"stationType", "stationName"}},
	ActionWaitForTrigger:   {Required: []string{"triggerType"}},
	ActionCancelOrder:      {},
	ActionFactsheetRequest: {},
}

// Schema returns the parameter schema of a predefined kind.
func (k ActionKind) Schema() (ParameterSchema, bool) {
	s, ok := actionSchemas[k]
	return s, ok
}

// Predefined reports whether k is one of the VDA5050 predefined actions.
func (k ActionKind) Predefined() bool {
	_, ok := actionSchemas[k]
	return ok
}

// NewAction builds an action and validates its parameters against the kind's
// schema. Parameters are emitted in key order.
func NewAction(kind ActionKind, id string, blocking BlockingType, params map[string]interface{}) (Action, error) {
	if id == "" {
		return Action{}, &ValidationError{Field: "actionId", Message: "must not be empty"}
	}
	if schema, ok := kind.Schema(); ok {
		for _, key := range schema.Required {
			if _, present := params[key]; !present {
				return Action{}, &ValidationError{
					Field:   "actionParameters",
					Message: fmt.Sprintf("%s requires parameter %q", kind, key),
				}
			}
		}
		for key := range params {
			if !schema.allows(key) {
				return Action{}, &ValidationError{
					Field:   "actionParameters",
					Message: fmt.Sprintf("%s does not accept parameter %q", kind, key),
				}
			}
		}
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	action := Action{
		ActionType:   string(kind),
		ActionID:     id,
		BlockingType: blocking,
	}
	for _, k := range keys {
		action.ActionParameters = append(action.ActionParameters, ActionParameter{Key: k, Value: params[k]})
	}
	return action, nil
}
