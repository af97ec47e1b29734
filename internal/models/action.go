// internal/models/action.go
package models

import (
	"fmt"
	"strings"
)

// BlockingType tells the vehicle whether it may drive or run other actions
// while an action is executed.
type BlockingType string

const (
	BlockingTypeNone BlockingType = "NONE"
	BlockingTypeSoft BlockingType = "SOFT"
	BlockingTypeHard BlockingType = "HARD"
)

// ParseBlockingType accepts the wire names case-insensitively.
func ParseBlockingType(s string) (BlockingType, error) {
	switch BlockingType(strings.ToUpper(strings.TrimSpace(s))) {
	case BlockingTypeNone:
		return BlockingTypeNone, nil
	case BlockingTypeSoft:
		return BlockingTypeSoft, nil
	case BlockingTypeHard:
		return BlockingTypeHard, nil
	}
	return "", &ValidationError{Field: "blockingType", Message: fmt.Sprintf("unknown value %q", s)}
}

// ActionParameter is a key with a typed value (string, number, bool, array or object).
type ActionParameter struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// Action is attached to a node or an edge, or sent as an instant action.
type Action struct {
	ActionType        string            `json:"actionType"`
	ActionID          string            `json:"actionId"`
	ActionDescription *string           `json:"actionDescription,omitempty"`
	BlockingType      BlockingType      `json:"blockingType"`
	ActionParameters  []ActionParameter `json:"actionParameters,omitempty"`
}

// Parameter returns the value of the parameter with the given key.
func (a Action) Parameter(key string) (interface{}, bool) {
	for _, p := range a.ActionParameters {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

// InstantActions carries actions that are executed on arrival.
type InstantActions struct {
	Header
	Actions []Action `json:"actions"`
}
