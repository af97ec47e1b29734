// internal/messaging/manager.go
package messaging

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"vda5050-bridge/internal/utils"
)

// DefaultReconnectInterval is used when the configured interval is not positive.
const DefaultReconnectInterval = 5 * time.Second

// ManagerConfig configures a ConnectionManager.
type ManagerConfig struct {
	Options           ConnectOptions
	ReconnectInterval time.Duration
}

type subscription struct {
	topic     string
	qos       byte
	listeners []Listener
}

// ConnectionManager keeps a transport connected and multiplexes topic
// subscriptions between listeners. Its state lives on the executor; the
// public methods hand their work to it and return immediately.
type ConnectionManager struct {
	exec      *Executor
	transport Transport
	cfg       ManagerConfig
	log       *logrus.Entry

	enabled         bool
	connected       bool
	connecting      bool
	idlePending     bool
	will            *Will
	listeners       []Listener
	subs            []*subscription
	cancelReconnect func()

	connectedFlag atomic.Bool
}

// NewConnectionManager wires a manager to transport. Transport callbacks are
// moved onto exec before any state is touched.
func NewConnectionManager(exec *Executor, transport Transport, cfg ManagerConfig) *ConnectionManager {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	m := &ConnectionManager{
		exec:      exec,
		transport: transport,
		cfg:       cfg,
		log:       utils.Logger.WithFields(logrus.Fields{"component": "connection", "clientId": cfg.Options.ClientID}),
	}
	transport.SetHandlers(
		func(topic string, payload []byte) {
			exec.Submit(func() { m.dispatch(topic, payload) })
		},
		func(err error) {
			exec.Submit(func() { m.onConnectionLost(err) })
		},
	)
	return m
}

// Executor returns the executor the manager runs on.
func (m *ConnectionManager) Executor() *Executor {
	return m.exec
}

// IsConnected reports the connection state. It may be called from any goroutine.
func (m *ConnectionManager) IsConnected() bool {
	return m.connectedFlag.Load()
}

// Connect starts connecting and keeps reconnecting until Disconnect.
func (m *ConnectionManager) Connect() {
	m.exec.Submit(func() {
		m.enabled = true
		m.idlePending = false
		m.connect()
	})
}

// Disconnect closes the connection and stops reconnecting. Listeners get
// OnIdle once no connect attempt is outstanding.
func (m *ConnectionManager) Disconnect() {
	m.exec.Submit(func() {
		m.enabled = false
		m.stopReconnect()
		if m.connected {
			m.transport.Disconnect()
			m.setConnected(false)
			m.log.Info("disconnected")
			m.notify(Listener.OnDisconnect)
		}
		if m.connecting {
			m.idlePending = true
			return
		}
		m.notify(Listener.OnIdle)
	})
}

// RegisterListener adds a receiver of connection events.
func (m *ConnectionManager) RegisterListener(l Listener) {
	m.exec.Submit(func() {
		if indexOf(m.listeners, l) < 0 {
			m.listeners = append(m.listeners, l)
		}
	})
}

// UnregisterListener removes a receiver of connection events.
func (m *ConnectionManager) UnregisterListener(l Listener) {
	m.exec.Submit(func() {
		m.listeners = remove(m.listeners, l)
	})
}

// SetLastWill sets the will used by the next connect. It is ignored while
// connected.
func (m *ConnectionManager) SetLastWill(topic string, payload []byte, qos byte, retained bool) {
	m.exec.Submit(func() {
		if m.connected {
			m.log.Warnf("ignoring last will for %s while connected", topic)
			return
		}
		m.will = &Will{Topic: topic, Payload: payload, QoS: qos, Retained: retained}
	})
}

// Subscribe adds l to the listeners of topic. The first listener of a topic
// subscribes at the transport.
func (m *ConnectionManager) Subscribe(topic string, qos byte, l Listener) {
	m.exec.Submit(func() {
		if sub := m.subscription(topic); sub != nil {
			if indexOf(sub.listeners, l) < 0 {
				sub.listeners = append(sub.listeners, l)
			}
			return
		}
		m.subs = append(m.subs, &subscription{topic: topic, qos: qos, listeners: []Listener{l}})
		if m.connected {
			m.subscribeTransport(topic, qos)
		}
	})
}

// Unsubscribe removes l from topic. The last listener leaving unsubscribes at
// the transport.
func (m *ConnectionManager) Unsubscribe(topic string, l Listener) {
	m.exec.Submit(func() {
		sub := m.subscription(topic)
		if sub == nil {
			return
		}
		sub.listeners = remove(sub.listeners, l)
		if len(sub.listeners) > 0 {
			return
		}
		for i, s := range m.subs {
			if s == sub {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				break
			}
		}
		if m.connected {
			m.transport.Unsubscribe(topic, func(err error) {
				if err != nil {
					m.log.WithError(err).Errorf("failed to unsubscribe from %s", topic)
				}
			})
		}
	})
}

// Publish sends payload. Messages published while disconnected are dropped.
func (m *ConnectionManager) Publish(topic string, qos byte, payload []byte, retained bool) {
	m.exec.Submit(func() {
		if !m.connected {
			m.log.Warnf("not connected, dropping message for %s", topic)
			return
		}
		m.transport.Publish(topic, qos, payload, retained, func(err error) {
			if err != nil {
				m.log.WithError(err).Errorf("failed to publish to %s", topic)
			}
		})
	})
}

// SubscribedTopics returns the tracked topics in subscription order. It must
// run on the executor.
func (m *ConnectionManager) SubscribedTopics() []string {
	topics := make([]string, 0, len(m.subs))
	for _, s := range m.subs {
		topics = append(topics, s.topic)
	}
	return topics
}

func (m *ConnectionManager) connect() {
	if m.connected || m.connecting || !m.enabled {
		return
	}
	m.stopReconnect()
	m.connecting = true

	opts := m.cfg.Options
	opts.Will = m.will
	m.log.Infof("connecting as %s", opts.ClientID)
	m.transport.Connect(opts, func(err error) {
		m.exec.Submit(func() { m.onConnectResult(err) })
	})
}

func (m *ConnectionManager) onConnectResult(err error) {
	m.connecting = false
	if !m.enabled {
		if err == nil {
			m.transport.Disconnect()
		}
		if m.idlePending {
			m.idlePending = false
			m.notify(Listener.OnIdle)
		}
		return
	}
	if err != nil {
		m.log.WithError(err).Warnf("connection attempt failed, retrying in %s", m.cfg.ReconnectInterval)
		m.notify(Listener.OnFailedConnectionAttempt)
		m.scheduleReconnect()
		return
	}

	m.setConnected(true)
	m.log.Info("connected")
	m.notify(Listener.OnConnect)
	for _, s := range m.subs {
		m.subscribeTransport(s.topic, s.qos)
	}
}

func (m *ConnectionManager) onConnectionLost(err error) {
	if !m.connected {
		return
	}
	m.setConnected(false)
	m.log.WithError(err).Warnf("connection lost, reconnecting in %s", m.cfg.ReconnectInterval)
	m.notify(Listener.OnDisconnect)
	if m.enabled {
		m.scheduleReconnect()
	}
}

func (m *ConnectionManager) scheduleReconnect() {
	m.stopReconnect()
	m.cancelReconnect = m.exec.Schedule(m.cfg.ReconnectInterval, m.connect)
}

func (m *ConnectionManager) stopReconnect() {
	if m.cancelReconnect != nil {
		m.cancelReconnect()
		m.cancelReconnect = nil
	}
}

func (m *ConnectionManager) subscribeTransport(topic string, qos byte) {
	m.transport.Subscribe(topic, qos, func(err error) {
		if err != nil {
			m.log.WithError(err).Errorf("failed to subscribe to %s", topic)
			return
		}
		m.log.Debugf("subscribed to %s", topic)
	})
}

// dispatch delivers a message to the listeners registered when it arrived.
func (m *ConnectionManager) dispatch(topic string, payload []byte) {
	var targets []Listener
	for _, s := range m.subs {
		if !MatchTopic(s.topic, topic) {
			continue
		}
		for _, l := range s.listeners {
			if indexOf(targets, l) < 0 {
				targets = append(targets, l)
			}
		}
	}
	if len(targets) == 0 {
		m.log.Debugf("no listener for %s", topic)
		return
	}
	for _, l := range targets {
		l.OnIncomingMessage(topic, payload)
	}
}

func (m *ConnectionManager) notify(event func(Listener)) {
	snapshot := append([]Listener(nil), m.listeners...)
	for _, l := range snapshot {
		event(l)
	}
}

func (m *ConnectionManager) setConnected(v bool) {
	m.connected = v
	m.connectedFlag.Store(v)
}

func (m *ConnectionManager) subscription(topic string) *subscription {
	for _, s := range m.subs {
		if s.topic == topic {
			return s
		}
	}
	return nil
}

func (m *ConnectionManager) String() string {
	return fmt.Sprintf("ConnectionManager(%s, connected=%v)", m.cfg.Options.ClientID, m.IsConnected())
}

func indexOf(listeners []Listener, l Listener) int {
	for i, x := range listeners {
		if x == l {
			return i
		}
	}
	return -1
}

func remove(listeners []Listener, l Listener) []Listener {
	if i := indexOf(listeners, l); i >= 0 {
		return append(listeners[:i:i], listeners[i+1:]...)
	}
	return listeners
}
