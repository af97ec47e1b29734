package models

import "vda5050-bridge/internal/common/constants"

// Connection is published retained on the connection topic. CONNECTIONBROKEN
// is configured as the last will.
type Connection struct {
	Header
	ConnectionState string `json:"connectionState"`
}

// IsOnline reports whether the vehicle announced itself as online.
func (c *Connection) IsOnline() bool {
	return c.ConnectionState == constants.ConnectionStateOnline
}

// ValidConnectionState reports whether s is a known connection state.
func ValidConnectionState(s string) bool {
	switch s {
	case constants.ConnectionStateOnline, constants.ConnectionStateOffline, constants.ConnectionStateConnectionBroken:
		return true
	}
	return false
}

// Visualization carries a best-effort pose and velocity. All fields optional.
type Visualization struct {
	Header
	AgvPosition *AgvPosition `json:"agvPosition,omitempty"`
	Velocity    *Velocity    `json:"velocity,omitempty"`
}
