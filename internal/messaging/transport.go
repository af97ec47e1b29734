package messaging

import (
	"errors"
	"time"
)

// ErrNotConnected is reported by a transport used before Connect succeeded.
var ErrNotConnected = errors.New("transport not connected")

// Will is the message the broker publishes when the client vanishes.
type Will struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// ConnectOptions are applied at every connect.
type ConnectOptions struct {
	ClientID  string
	Username  string
	Password  string
	KeepAlive time.Duration
	Will      *Will
}

// Transport is an asynchronous publish/subscribe client. Completion callbacks
// and handlers may run on any goroutine.
type Transport interface {
	// SetHandlers installs the inbound message and connection loss handlers.
	// It is called before the first Connect.
	SetHandlers(onMessage func(topic string, payload []byte), onConnectionLost func(err error))
	Connect(opts ConnectOptions, done func(err error))
	Disconnect()
	Subscribe(topic string, qos byte, done func(err error))
	Unsubscribe(topic string, done func(err error))
	Publish(topic string, qos byte, payload []byte, retained bool, done func(err error))
}

// Listener receives connection events and messages. Implementations must be
// comparable, e.g. pointers, since they are looked up on unsubscribe.
type Listener interface {
	OnConnect()
	OnDisconnect()
	OnFailedConnectionAttempt()
	OnIncomingMessage(topic string, payload []byte)
	// OnIdle is called after a requested Disconnect; no reconnect follows.
	OnIdle()
}

// ListenerFuncs adapts optional functions to Listener.
type ListenerFuncs struct {
	Connect                 func()
	Disconnect              func()
	FailedConnectionAttempt func()
	IncomingMessage         func(topic string, payload []byte)
	Idle                    func()
}

func (l *ListenerFuncs) OnConnect() {
	if l.Connect != nil {
		l.Connect()
	}
}

func (l *ListenerFuncs) OnDisconnect() {
	if l.Disconnect != nil {
		l.Disconnect()
	}
}

func (l *ListenerFuncs) OnFailedConnectionAttempt() {
	if l.FailedConnectionAttempt != nil {
		l.FailedConnectionAttempt()
	}
}

func (l *ListenerFuncs) OnIncomingMessage(topic string, payload []byte) {
	if l.IncomingMessage != nil {
		l.IncomingMessage(topic, payload)
	}
}

func (l *ListenerFuncs) OnIdle() {
	if l.Idle != nil {
		l.Idle()
	}
}
