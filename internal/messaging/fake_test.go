package messaging

import (
	"sync"
	"testing"
	"time"
)

type published struct {
	topic    string
	qos      byte
	payload  []byte
	retained bool
}

type transportCalls struct {
	connects     []ConnectOptions
	disconnects  int
	subscribed   []string
	unsubscribed []string
	published    []published
}

// fakeTransport records calls and lets tests complete connects by hand.
type fakeTransport struct {
	mu        sync.Mutex
	onMessage func(string, []byte)
	onLost    func(error)
	pending   []func(error)
	transportCalls
}

func (f *fakeTransport) SetHandlers(onMessage func(string, []byte), onLost func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onMessage, f.onLost = onMessage, onLost
}

func (f *fakeTransport) Connect(opts ConnectOptions, done func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, opts)
	f.pending = append(f.pending, done)
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
}

func (f *fakeTransport) Subscribe(topic string, _ byte, done func(error)) {
	f.mu.Lock()
	f.subscribed = append(f.subscribed, topic)
	f.mu.Unlock()
	done(nil)
}

func (f *fakeTransport) Unsubscribe(topic string, done func(error)) {
	f.mu.Lock()
	f.unsubscribed = append(f.unsubscribed, topic)
	f.mu.Unlock()
	done(nil)
}

func (f *fakeTransport) Publish(topic string, qos byte, payload []byte, retained bool, done func(error)) {
	f.mu.Lock()
	f.published = append(f.published, published{topic, qos, payload, retained})
	f.mu.Unlock()
	done(nil)
}

// completeConnect finishes the oldest pending connect attempt.
func (f *fakeTransport) completeConnect(err error) bool {
	f.mu.Lock()
	if len(f.pending) == 0 {
		f.mu.Unlock()
		return false
	}
	done := f.pending[0]
	f.pending = f.pending[1:]
	f.mu.Unlock()
	done(err)
	return true
}

func (f *fakeTransport) deliver(topic string, payload []byte) {
	f.mu.Lock()
	handler := f.onMessage
	f.mu.Unlock()
	handler(topic, payload)
}

func (f *fakeTransport) lose(err error) {
	f.mu.Lock()
	handler := f.onLost
	f.mu.Unlock()
	handler(err)
}

func (f *fakeTransport) snapshot() transportCalls {
	f.mu.Lock()
	defer f.mu.Unlock()
	return transportCalls{
		connects:     append([]ConnectOptions(nil), f.connects...),
		disconnects:  f.disconnects,
		subscribed:   append([]string(nil), f.subscribed...),
		unsubscribed: append([]string(nil), f.unsubscribed...),
		published:    append([]published(nil), f.published...),
	}
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
