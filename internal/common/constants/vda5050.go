// internal/common/constants/vda5050.go
package constants

// Topic message types
const (
	TopicOrder          = "order"
	TopicInstantActions = "instantActions"
	TopicState          = "state"
	TopicConnection     = "connection"
	TopicVisualization  = "visualization"
	TopicFactsheet      = "factsheet"
)

// Defaults for the topic prefix and header version
const (
	DefaultInterfaceName   = "uagv"
	DefaultMajorVersion    = "v2"
	DefaultProtocolVersion = "2.0.0"
)

// Connection states
const (
	ConnectionStateOnline           = "ONLINE"
	ConnectionStateOffline          = "OFFLINE"
	ConnectionStateConnectionBroken = "CONNECTIONBROKEN"
)

// Operating modes
const (
	OperatingModeAutomatic     = "AUTOMATIC"
	OperatingModeManual        = "MANUAL"
	OperatingModeSemiautomatic = "SEMIAUTOMATIC"
	OperatingModeService       = "SERVICE"
	OperatingModeTeachin       = "TEACHIN"
)

// Action status values
const (
	ActionStatusWaiting      = "WAITING"
	ActionStatusInitializing = "INITIALIZING"
	ActionStatusRunning      = "RUNNING"
	ActionStatusPaused       = "PAUSED"
	ActionStatusFinished     = "FINISHED"
	ActionStatusFailed       = "FAILED"
)

// Error levels
const (
	ErrorLevelWarning = "WARNING"
	ErrorLevelFatal   = "FATAL"
)

// E-stop values
const (
	EStopAutoAck = "AUTOACK"
	EStopManual  = "MANUAL"
	EStopRemote  = "REMOTE"
	EStopNone    = "NONE"
)

// QoS levels
const (
	QoSAtMostOnce  byte = 0
	QoSAtLeastOnce byte = 1
	QoSExactlyOnce byte = 2
)

// Operation names that map to no action at the destination.
const (
	OperationNone = ""
	OperationNop  = "NOP"
)
