package simulator

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"vda5050-bridge/internal/messaging"
	"vda5050-bridge/internal/models"
)

const topicPrefix = "uagv/v2/acme/agv-1/"

type peer struct {
	transport *messaging.MemoryTransport
	mu        sync.Mutex
	states    []models.State
}

func (p *peer) handle(topic string, payload []byte) {
	if topic != topicPrefix+"state" {
		return
	}
	var s models.State
	if err := json.Unmarshal(payload, &s); err != nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, s)
}

func (p *peer) last() (models.State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.states) == 0 {
		return models.State{}, false
	}
	return p.states[len(p.states)-1], true
}

func (p *peer) send(t *testing.T, kind string, msg interface{}) {
	t.Helper()
	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	p.transport.Publish(topicPrefix+kind, 1, payload, false, func(error) {})
}

func newSimulator(t *testing.T, opts ...func(*Config)) (*Simulator, *peer, *messaging.MemoryBroker, *messaging.MemoryTransport) {
	t.Helper()
	broker := messaging.NewMemoryBroker()
	exec := messaging.NewExecutor(t.Name())
	t.Cleanup(exec.Stop)

	tr := broker.Transport()
	mgr := messaging.NewConnectionManager(exec, tr, messaging.ManagerConfig{
		Options:           messaging.ConnectOptions{ClientID: "agv-1"},
		ReconnectInterval: time.Hour,
	})
	cfg := Config{
		Topics:     messaging.NewTopicBuilder("", "", "acme", "agv-1"),
		LastNodeID: "P0",
		Position:   &models.AgvPosition{MapID: "hall", PositionInitialized: true},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	sim := New(mgr, cfg)

	p := &peer{transport: broker.Transport()}
	p.transport.SetHandlers(p.handle, nil)
	p.transport.Connect(messaging.ConnectOptions{ClientID: "master"}, func(error) {})
	p.transport.Subscribe(topicPrefix+"state", 1, func(error) {})

	if err := sim.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "initial state", func() bool { _, ok := p.last(); return ok })
	return sim, p, broker, tr
}

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

func node(id string, seq uint32, released bool, actions ...models.Action) models.Node {
	return models.Node{NodeID: id, SequenceID: seq, Released: released, Actions: actions}
}

func edge(from, to string, seq uint32, released bool) models.Edge {
	return models.Edge{EdgeID: from + "--" + to, SequenceID: seq, Released: released, StartNodeID: from, EndNodeID: to, Actions: []models.Action{}}
}

func firstOrder() models.Order {
	return models.Order{
		OrderID: "T1",
		Nodes: []models.Node{
			node("P0", 0, true),
			node("P1", 2, true, models.Action{ActionType: "beep", ActionID: "beep-1", BlockingType: models.BlockingTypeNone}),
			node("P2", 4, false),
		},
		Edges: []models.Edge{edge("P0", "P1", 1, true), edge("P1", "P2", 3, false)},
	}
}

func TestConnectionLifecycle(t *testing.T) {
	sim, _, broker, tr := newSimulator(t)

	connection := func() string {
		payload, _ := broker.Retained(topicPrefix + "connection")
		var c models.Connection
		_ = json.Unmarshal(payload, &c)
		return c.ConnectionState
	}
	if got := connection(); got != "ONLINE" {
		t.Fatalf("expected ONLINE, got %s", got)
	}
	will := tr.LastConnectOptions().Will
	if will == nil || !will.Retained || will.Topic != topicPrefix+"connection" {
		t.Fatalf("unexpected will %+v", will)
	}

	if err := sim.Shutdown(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "offline", func() bool { return connection() == "OFFLINE" })
	waitFor(t, "disconnected", func() bool { return !tr.Connected() })
}

func TestWillOnConnectionBreak(t *testing.T) {
	_, _, broker, tr := newSimulator(t)
	tr.Drop()
	payload, _ := broker.Retained(topicPrefix + "connection")
	var c models.Connection
	if err := json.Unmarshal(payload, &c); err != nil || c.ConnectionState != "CONNECTIONBROKEN" {
		t.Fatalf("expected CONNECTIONBROKEN, got %s (%v)", payload, err)
	}
}

func TestOrderExecution(t *testing.T) {
	sim, p, _, _ := newSimulator(t)
	o := firstOrder()
	p.send(t, "order", o)
	waitFor(t, "order accepted", func() bool { return sim.State().OrderID == "T1" })

	st := sim.State()
	if st.LastNodeID != "P0" || len(st.NodeStates) != 2 || len(st.EdgeStates) != 2 || !st.Driving {
		t.Fatalf("unexpected state after accept %+v", st)
	}
	if as, _ := st.ActionState("beep-1"); as.ActionStatus != "WAITING" {
		t.Errorf("expected WAITING, got %s", as.ActionStatus)
	}

	if err := sim.Step(); err != nil {
		t.Fatal(err)
	}
	st = sim.State()
	if st.LastNodeID != "P1" || st.LastNodeSequenceID != 2 || st.Driving {
		t.Fatalf("unexpected state after step %+v", st)
	}
	if as, _ := st.ActionState("beep-1"); as.ActionStatus != "FINISHED" {
		t.Errorf("expected FINISHED, got %s", as.ActionStatus)
	}
	if err := sim.Step(); !errors.Is(err, ErrNoNextNode) {
		t.Fatalf("horizon must not be driven, got %v", err)
	}

	update := models.Order{
		OrderID:       "T1",
		OrderUpdateID: 1,
		Nodes:         []models.Node{node("P1", 2, true), node("P2", 4, true)},
		Edges:         []models.Edge{edge("P1", "P2", 3, true)},
	}
	p.send(t, "order", update)
	waitFor(t, "update accepted", func() bool { return sim.State().OrderUpdateID == 1 })
	if err := sim.Step(); err != nil {
		t.Fatal(err)
	}
	st = sim.State()
	if st.LastNodeID != "P2" || !st.OrderFinished() {
		t.Fatalf("order should be finished at P2, got %+v", st)
	}
	waitFor(t, "published final state", func() bool {
		s, _ := p.last()
		return s.LastNodeID == "P2" && s.OrderFinished()
	})
}

func TestOrderRejections(t *testing.T) {
	sim, p, _, _ := newSimulator(t)

	detached := firstOrder()
	detached.Nodes[0].NodeID = "P9"
	detached.Edges[0].StartNodeID = "P9"
	p.send(t, "order", detached)
	waitFor(t, "no-route error", func() bool {
		s, _ := p.last()
		return len(s.Errors) == 1 && s.Errors[0].ErrorType == ErrorTypeNoRoute
	})

	p.send(t, "order", firstOrder())
	waitFor(t, "order accepted", func() bool { return sim.State().OrderID == "T1" })
	if len(sim.State().Errors) != 0 {
		t.Error("errors should clear on an accepted order")
	}

	stale := firstOrder()
	p.send(t, "order", stale)
	waitFor(t, "update conflict", func() bool {
		s, _ := p.last()
		return len(s.Errors) == 1 && s.Errors[0].ErrorType == ErrorTypeOrderUpdate
	})

	invalid := models.Order{OrderID: "T1", OrderUpdateID: 5}
	p.send(t, "order", invalid)
	waitFor(t, "validation error", func() bool {
		s, _ := p.last()
		return len(s.Errors) == 2 && s.Errors[1].ErrorType == ErrorTypeValidation
	})
}

func TestInstantActions(t *testing.T) {
	sim, p, _, _ := newSimulator(t)
	p.send(t, "order", firstOrder())
	waitFor(t, "order accepted", func() bool { return sim.State().OrderID == "T1" })

	p.send(t, "instantActions", models.InstantActions{Actions: []models.Action{{ActionType: "startPause", ActionID: "a1"}}})
	waitFor(t, "paused", func() bool { return sim.State().IsPaused() })
	if err := sim.Step(); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused, got %v", err)
	}

	p.send(t, "instantActions", models.InstantActions{Actions: []models.Action{
		{ActionType: "stopPause", ActionID: "a2"},
		{ActionType: "cancelOrder", ActionID: "a3"},
		{ActionType: "dance", ActionID: "a4"},
	}})
	waitFor(t, "cancelled", func() bool { return sim.State().OrderFinished() })
	st := sim.State()
	for id, want := range map[string]string{"a2": "FINISHED", "a3": "FINISHED", "a4": "FAILED", "beep-1": "FAILED"} {
		if as, _ := st.ActionState(id); as.ActionStatus != want {
			t.Errorf("%s: expected %s, got %s", id, want, as.ActionStatus)
		}
	}

	p.send(t, "instantActions", models.InstantActions{Actions: []models.Action{{ActionType: "cancelOrder", ActionID: "a5"}}})
	waitFor(t, "cancel without order", func() bool {
		as, _ := sim.State().ActionState("a5")
		return as.ActionStatus == "FAILED"
	})

	initPos := models.Action{ActionType: "initPosition", ActionID: "a6", ActionParameters: []models.ActionParameter{
		{Key: "x", Value: 4.0}, {Key: "y", Value: 1.0}, {Key: "theta", Value: 0.0}, {Key: "mapId", Value: "hall"}, {Key: "lastNodeId", Value: "P7"},
	}}
	p.send(t, "instantActions", models.InstantActions{Actions: []models.Action{initPos}})
	waitFor(t, "position initialized", func() bool { return sim.State().LastNodeID == "P7" })
	if pos := sim.State().AgvPosition; pos == nil || pos.X != 4 || pos.MapID != "hall" {
		t.Errorf("unexpected position %+v", pos)
	}
}

func TestFactsheetRequest(t *testing.T) {
	sim, p, broker, _ := newSimulator(t, func(c *Config) {
		c.Factsheet = &models.Factsheet{TypeSpecification: models.TypeSpecification{SeriesName: "Series A"}}
	})
	var (
		mu       sync.Mutex
		received []models.Factsheet
	)
	listener := broker.Transport()
	listener.SetHandlers(func(_ string, payload []byte) {
		var f models.Factsheet
		if json.Unmarshal(payload, &f) == nil {
			mu.Lock()
			received = append(received, f)
			mu.Unlock()
		}
	}, nil)
	listener.Connect(messaging.ConnectOptions{ClientID: "listener"}, func(error) {})
	listener.Subscribe(topicPrefix+"factsheet", 1, func(error) {})

	p.send(t, "instantActions", models.InstantActions{Actions: []models.Action{{ActionType: "factsheetRequest", ActionID: "f1"}}})
	waitFor(t, "factsheet", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})
	mu.Lock()
	f := received[0]
	mu.Unlock()
	if f.TypeSpecification.SeriesName != "Series A" || f.SerialNumber != "agv-1" || f.HeaderID != 0 {
		t.Errorf("unexpected factsheet %+v", f)
	}
	if as, _ := sim.State().ActionState("f1"); as.ActionStatus != "FINISHED" {
		t.Errorf("expected FINISHED, got %s", as.ActionStatus)
	}
}

func TestStepBeforeStart(t *testing.T) {
	exec := messaging.NewExecutor(t.Name())
	defer exec.Stop()
	mgr := messaging.NewConnectionManager(exec, messaging.NewMemoryBroker().Transport(), messaging.ManagerConfig{})
	sim := New(mgr, Config{Topics: messaging.NewTopicBuilder("", "", "acme", "agv-1")})
	if err := sim.Step(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}
