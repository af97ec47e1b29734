package messaging

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	name   string
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) OnConnect()                 { r.add("connect") }
func (r *recorder) OnDisconnect()              { r.add("disconnect") }
func (r *recorder) OnFailedConnectionAttempt() { r.add("failed") }
func (r *recorder) OnIdle()                    { r.add("idle") }
func (r *recorder) OnIncomingMessage(topic string, payload []byte) {
	r.add(topic + ":" + string(payload))
}

func newTestManager(t *testing.T, interval time.Duration) (*ConnectionManager, *fakeTransport, *Executor) {
	t.Helper()
	exec := NewExecutor(t.Name())
	t.Cleanup(exec.Stop)
	ft := &fakeTransport{}
	m := NewConnectionManager(exec, ft, ManagerConfig{
		Options:           ConnectOptions{ClientID: "test"},
		ReconnectInterval: interval,
	})
	return m, ft, exec
}

func connected(t *testing.T, m *ConnectionManager, ft *fakeTransport, exec *Executor) {
	t.Helper()
	m.Connect()
	exec.Flush()
	if !ft.completeConnect(nil) {
		t.Fatal("no connect attempt")
	}
	waitFor(t, "connected", m.IsConnected)
	exec.Flush()
}

func TestSubscriptionsAreReferenceCounted(t *testing.T) {
	m, ft, exec := newTestManager(t, time.Hour)
	connected(t, m, ft, exec)
	a, b := &recorder{name: "a"}, &recorder{name: "b"}

	m.Subscribe("uagv/v2/m/s/state", 0, a)
	m.Subscribe("uagv/v2/m/s/state", 0, b)
	exec.Flush()
	if got := ft.snapshot().subscribed; !reflect.DeepEqual(got, []string{"uagv/v2/m/s/state"}) {
		t.Fatalf("expected a single transport subscribe, got %v", got)
	}

	m.Unsubscribe("uagv/v2/m/s/state", a)
	exec.Flush()
	if got := ft.snapshot().unsubscribed; len(got) != 0 {
		t.Fatalf("intermediate unsubscribe reached the transport: %v", got)
	}

	m.Unsubscribe("uagv/v2/m/s/state", b)
	exec.Flush()
	if got := ft.snapshot().unsubscribed; !reflect.DeepEqual(got, []string{"uagv/v2/m/s/state"}) {
		t.Fatalf("expected transport unsubscribe, got %v", got)
	}
	if topics := m.SubscribedTopics(); len(topics) != 0 {
		t.Errorf("subscription not removed: %v", topics)
	}
}

func TestDispatchOrder(t *testing.T) {
	m, ft, exec := newTestManager(t, time.Hour)
	connected(t, m, ft, exec)

	var mu sync.Mutex
	var order []string
	record := func(name string) Listener {
		return &ListenerFuncs{IncomingMessage: func(topic string, payload []byte) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name+"@"+topic)
		}}
	}
	late := &recorder{name: "late"}
	first := &ListenerFuncs{IncomingMessage: func(topic string, payload []byte) {
		mu.Lock()
		order = append(order, "first@"+topic)
		mu.Unlock()
		// registered during delivery: must not see this message
		m.Subscribe("t/1", 0, late)
	}}

	m.Subscribe("t/1", 0, first)
	m.Subscribe("t/1", 0, record("second"))
	m.Subscribe("t/2", 0, record("other"))
	m.Subscribe("t/+", 0, record("wild"))
	exec.Flush()

	ft.deliver("t/1", []byte("x"))
	exec.Flush()
	exec.Flush()

	mu.Lock()
	got := append([]string(nil), order...)
	mu.Unlock()
	want := []string{"first@t/1", "second@t/1", "wild@t/1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("dispatch order = %v, want %v", got, want)
	}
	if events := late.list(); len(events) != 0 {
		t.Errorf("late listener received %v", events)
	}

	ft.deliver("t/1", []byte("y"))
	exec.Flush()
	if events := late.list(); !reflect.DeepEqual(events, []string{"t/1:y"}) {
		t.Errorf("late listener should receive later messages, got %v", events)
	}
}

func TestReconnectAfterFailure(t *testing.T) {
	m, ft, exec := newTestManager(t, 20*time.Millisecond)
	r := &recorder{}
	m.RegisterListener(r)
	m.Subscribe("a", 1, r)
	m.Subscribe("b", 0, r)
	m.Connect()
	exec.Flush()

	ft.completeConnect(errors.New("refused"))
	waitFor(t, "second attempt", func() bool { return len(ft.snapshot().connects) == 2 })
	if m.IsConnected() {
		t.Fatal("should not be connected")
	}

	ft.completeConnect(nil)
	waitFor(t, "connected", m.IsConnected)
	exec.Flush()
	if got := r.list(); !reflect.DeepEqual(got, []string{"failed", "connect"}) {
		t.Errorf("events = %v", got)
	}
	if got := ft.snapshot().subscribed; !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("subscriptions not issued on connect: %v", got)
	}

	t.Run("connection loss resubscribes", func(t *testing.T) {
		ft.lose(errors.New("broken pipe"))
		waitFor(t, "reconnect attempt", func() bool { return len(ft.snapshot().connects) == 3 })
		ft.completeConnect(nil)
		waitFor(t, "connected", m.IsConnected)
		exec.Flush()
		if got := ft.snapshot().subscribed; !reflect.DeepEqual(got, []string{"a", "b", "a", "b"}) {
			t.Errorf("subscriptions after reconnect = %v", got)
		}
		if got := r.list(); !reflect.DeepEqual(got, []string{"failed", "connect", "disconnect", "connect"}) {
			t.Errorf("events = %v", got)
		}
	})

	t.Run("connect while connected is a no-op", func(t *testing.T) {
		m.Connect()
		exec.Flush()
		if n := len(ft.snapshot().connects); n != 3 {
			t.Errorf("expected no new attempt, got %d attempts", n)
		}
	})
}

func TestLastWill(t *testing.T) {
	m, ft, exec := newTestManager(t, time.Hour)
	m.SetLastWill("uagv/v2/m/s/connection", []byte("BROKEN"), 1, true)
	connected(t, m, ft, exec)

	opts := ft.snapshot().connects[0]
	if opts.Will == nil || opts.Will.Topic != "uagv/v2/m/s/connection" || string(opts.Will.Payload) != "BROKEN" || !opts.Will.Retained {
		t.Fatalf("will not applied: %+v", opts.Will)
	}

	m.SetLastWill("other", []byte("x"), 0, false)
	exec.Flush()
	ft.lose(errors.New("gone"))
	exec.Flush()
	m.Connect()
	exec.Flush()
	if got := ft.snapshot().connects[1].Will; got == nil || got.Topic != "uagv/v2/m/s/connection" {
		t.Errorf("will changed while connected: %+v", got)
	}
}

func TestPublish(t *testing.T) {
	m, ft, exec := newTestManager(t, time.Hour)
	m.Publish("t", 1, []byte("dropped"), false)
	exec.Flush()
	if n := len(ft.snapshot().published); n != 0 {
		t.Fatalf("published while disconnected: %d", n)
	}

	connected(t, m, ft, exec)
	m.Publish("t", 1, []byte("sent"), true)
	exec.Flush()
	got := ft.snapshot().published
	if len(got) != 1 || string(got[0].payload) != "sent" || got[0].qos != 1 || !got[0].retained {
		t.Errorf("unexpected publish: %+v", got)
	}
}

func TestDisconnectGoesIdle(t *testing.T) {
	m, ft, exec := newTestManager(t, 10*time.Millisecond)
	r := &recorder{}
	m.RegisterListener(r)
	connected(t, m, ft, exec)

	m.Disconnect()
	exec.Flush()
	if m.IsConnected() {
		t.Fatal("still connected")
	}
	if got := r.list(); !reflect.DeepEqual(got, []string{"connect", "disconnect", "idle"}) {
		t.Errorf("events = %v", got)
	}

	time.Sleep(50 * time.Millisecond)
	exec.Flush()
	if n := len(ft.snapshot().connects); n != 1 {
		t.Errorf("reconnected after Disconnect: %d attempts", n)
	}
	if ft.snapshot().disconnects != 1 {
		t.Errorf("transport not disconnected")
	}

	m.UnregisterListener(r)
	m.Connect()
	exec.Flush()
	ft.completeConnect(nil)
	waitFor(t, "connected", m.IsConnected)
	exec.Flush()
	if got := r.list(); len(got) != 3 {
		t.Errorf("unregistered listener got events: %v", got)
	}
}

func TestDisconnectWaitsForPendingConnect(t *testing.T) {
	m, ft, exec := newTestManager(t, time.Hour)
	r := &recorder{}
	m.RegisterListener(r)
	m.Connect()
	m.Disconnect()
	exec.Flush()
	if got := r.list(); len(got) != 0 {
		t.Fatalf("idle before the connect attempt finished: %v", got)
	}

	if !ft.completeConnect(nil) {
		t.Fatal("no connect attempt")
	}
	waitFor(t, "idle", func() bool { return reflect.DeepEqual(r.list(), []string{"idle"}) })
	if m.IsConnected() {
		t.Error("late connect must not count as connected")
	}
	if ft.snapshot().disconnects != 1 {
		t.Error("late connection should be closed")
	}
}
