// internal/messaging/memory.go
package messaging

import (
	"errors"
	"sync"
)

// ErrConnectionDropped is passed to the connection lost handler by Drop.
var ErrConnectionDropped = errors.New("connection dropped")

// MemoryBroker is an in-process broker. It keeps retained messages and
// publishes the will of a transport that is dropped.
type MemoryBroker struct {
	mu       sync.Mutex
	clients  []*MemoryTransport
	retained map[string][]byte
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{retained: make(map[string][]byte)}
}

// Transport returns a new client of the broker.
func (b *MemoryBroker) Transport() *MemoryTransport {
	t := &MemoryTransport{broker: b, subs: make(map[string]byte)}
	b.mu.Lock()
	b.clients = append(b.clients, t)
	b.mu.Unlock()
	return t
}

// Retained returns the retained message of topic.
func (b *MemoryBroker) Retained(topic string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	payload, ok := b.retained[topic]
	return payload, ok
}

func (b *MemoryBroker) publish(topic string, payload []byte, retained bool) {
	var targets []func(string, []byte)

	b.mu.Lock()
	if retained {
		if len(payload) == 0 {
			delete(b.retained, topic)
		} else {
			b.retained[topic] = append([]byte(nil), payload...)
		}
	}
	for _, c := range b.clients {
		if c.connected && c.onMessage != nil && c.matches(topic) {
			targets = append(targets, c.onMessage)
		}
	}
	b.mu.Unlock()

	for _, handler := range targets {
		handler(topic, append([]byte(nil), payload...))
	}
}

type retainedMessage struct {
	topic   string
	payload []byte
}

// MemoryTransport implements Transport on a MemoryBroker. Callbacks run
// synchronously on the calling goroutine.
type MemoryTransport struct {
	broker *MemoryBroker

	// guarded by broker.mu
	connected   bool
	refuse      error
	will        *Will
	subs        map[string]byte
	onMessage   func(topic string, payload []byte)
	onLost      func(err error)
	lastConnect ConnectOptions
	publishQoS  map[string]byte
}

var _ Transport = (*MemoryTransport)(nil)

func (t *MemoryTransport) SetHandlers(onMessage func(topic string, payload []byte), onConnectionLost func(err error)) {
	t.broker.mu.Lock()
	defer t.broker.mu.Unlock()
	t.onMessage, t.onLost = onMessage, onConnectionLost
}

// Refuse makes the following connect attempts fail with err; nil accepts them again.
func (t *MemoryTransport) Refuse(err error) {
	t.broker.mu.Lock()
	defer t.broker.mu.Unlock()
	t.refuse = err
}

func (t *MemoryTransport) Connect(opts ConnectOptions, done func(err error)) {
	t.broker.mu.Lock()
	t.lastConnect = opts
	err := t.refuse
	if err == nil {
		t.connected = true
		t.will = opts.Will
		t.subs = make(map[string]byte)
	}
	t.broker.mu.Unlock()
	done(err)
}

// Disconnect closes the connection gracefully; the will is discarded.
func (t *MemoryTransport) Disconnect() {
	t.broker.mu.Lock()
	defer t.broker.mu.Unlock()
	t.connected = false
	t.will = nil
}

// Drop breaks the connection: the broker publishes the will and the client
// sees a connection loss.
func (t *MemoryTransport) Drop() {
	t.broker.mu.Lock()
	if !t.connected {
		t.broker.mu.Unlock()
		return
	}
	t.connected = false
	will, lost := t.will, t.onLost
	t.will = nil
	t.broker.mu.Unlock()

	if will != nil {
		t.broker.publish(will.Topic, will.Payload, will.Retained)
	}
	if lost != nil {
		lost(ErrConnectionDropped)
	}
}

// Connected reports whether the broker considers the client connected.
func (t *MemoryTransport) Connected() bool {
	t.broker.mu.Lock()
	defer t.broker.mu.Unlock()
	return t.connected
}

// LastConnectOptions returns the options of the most recent connect attempt.
func (t *MemoryTransport) LastConnectOptions() ConnectOptions {
	t.broker.mu.Lock()
	defer t.broker.mu.Unlock()
	return t.lastConnect
}

func (t *MemoryTransport) Subscribe(topic string, qos byte, done func(err error)) {
	t.broker.mu.Lock()
	if !t.connected {
		t.broker.mu.Unlock()
		done(ErrNotConnected)
		return
	}
	t.subs[topic] = qos
	var retained []retainedMessage
	for rt, payload := range t.broker.retained {
		if MatchTopic(topic, rt) {
			retained = append(retained, retainedMessage{topic: rt, payload: append([]byte(nil), payload...)})
		}
	}
	handler := t.onMessage
	t.broker.mu.Unlock()

	done(nil)
	if handler != nil {
		for _, r := range retained {
			handler(r.topic, r.payload)
		}
	}
}

func (t *MemoryTransport) Unsubscribe(topic string, done func(err error)) {
	t.broker.mu.Lock()
	if !t.connected {
		t.broker.mu.Unlock()
		done(ErrNotConnected)
		return
	}
	delete(t.subs, topic)
	t.broker.mu.Unlock()
	done(nil)
}

func (t *MemoryTransport) Publish(topic string, qos byte, payload []byte, retained bool, done func(err error)) {
	t.broker.mu.Lock()
	connected := t.connected
	if connected {
		if t.publishQoS == nil {
			t.publishQoS = make(map[string]byte)
		}
		t.publishQoS[topic] = qos
	}
	t.broker.mu.Unlock()
	if !connected {
		done(ErrNotConnected)
		return
	}
	t.broker.publish(topic, payload, retained)
	done(nil)
}

// PublishedQoS returns the QoS of the last message this transport published on
// topic.
func (t *MemoryTransport) PublishedQoS(topic string) (byte, bool) {
	t.broker.mu.Lock()
	defer t.broker.mu.Unlock()
	qos, ok := t.publishQoS[topic]
	return qos, ok
}

// matches must be called with broker.mu held.
func (t *MemoryTransport) matches(topic string) bool {
	for filter := range t.subs {
		if MatchTopic(filter, topic) {
			return true
		}
	}
	return false
}
