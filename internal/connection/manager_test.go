package connection

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dmelnik/streamgather/internal/channel"
	"github.com/dmelnik/streamgather/internal/protocol"
)

// fakeClient is an in-memory Client for driving the state machine
// deterministically.
type fakeClient struct {
	factory *fakeFactory

	mu        sync.Mutex
	connected bool

	messages chan TimestampedMessage
	errors   chan error
	sent     [][]byte
}

func (f *fakeClient) Connect(ctx context.Context) error {
	if gate := f.factory.connectGate(); gate != nil {
		<-gate
	}
	if err := f.factory.dialError(); err != nil {
		return err
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeClient) Messages() <-chan TimestampedMessage { return f.messages }
func (f *fakeClient) Errors() <-chan error                { return f.errors }

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// deliver pushes one raw frame into the client's inbound channel.
func (f *fakeClient) deliver(raw string) {
	f.messages <- TimestampedMessage{Data: []byte(raw), ReceivedAt: time.Now()}
}

// fail pushes a transport fault.
func (f *fakeClient) fail(err error) {
	f.errors <- err
}

func (f *fakeClient) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

// fakeFactory creates fakeClients and records every dial.
type fakeFactory struct {
	mu      sync.Mutex
	clients []*fakeClient
	err     error
	gate    chan struct{}
}

func (ff *fakeFactory) new(cfg ClientConfig, logger *slog.Logger) Client {
	c := &fakeClient{
		factory:  ff,
		messages: make(chan TimestampedMessage, 64),
		errors:   make(chan error, 1),
	}
	ff.mu.Lock()
	ff.clients = append(ff.clients, c)
	ff.mu.Unlock()
	return c
}

func (ff *fakeFactory) dialError() error {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.err
}

func (ff *fakeFactory) setDialError(err error) {
	ff.mu.Lock()
	ff.err = err
	ff.mu.Unlock()
}

// setConnectGate makes every subsequent Connect block until the gate is
// closed, to hold a dial in flight.
func (ff *fakeFactory) setConnectGate(gate chan struct{}) {
	ff.mu.Lock()
	ff.gate = gate
	ff.mu.Unlock()
}

func (ff *fakeFactory) connectGate() chan struct{} {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.gate
}

func (ff *fakeFactory) dialCount() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.clients)
}

func (ff *fakeFactory) last() *fakeClient {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.clients) == 0 {
		return nil
	}
	return ff.clients[len(ff.clients)-1]
}

// captureSink records enqueued payloads.
type captureSink struct {
	mu     sync.Mutex
	events []map[string]any
}

func (s *captureSink) Enqueue(payload map[string]any) {
	s.mu.Lock()
	s.events = append(s.events, payload)
	s.mu.Unlock()
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(cfg ManagerConfig) (*Manager, *fakeFactory, *channel.Registry, *captureSink) {
	registry := channel.NewRegistry(testLogger())
	sink := &captureSink{}
	m := NewManager(cfg, registry, sink, testLogger())
	ff := &fakeFactory{}
	m.newClient = ff.new
	return m, ff, registry, sink
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

const handshakeFrame = `{"event":"pusher:connection_established","data":"{\"socket_id\":\"42.17\",\"activity_timeout\":120}"}`

func TestManager_ConnectAndHandshake(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.Host = "ws.test"
	cfg.AppKey = "key"
	m, ff, registry, _ := newTestManager(cfg)
	registry.Add("orders")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop(context.Background())

	if m.State() != StateConnected {
		t.Fatalf("state = %s, want connected", m.State())
	}
	if m.Stats().ReconnectAttempts != 0 {
		t.Errorf("attempts = %d, want 0", m.Stats().ReconnectAttempts)
	}

	c := ff.last()
	c.deliver(handshakeFrame)

	// After the handshake the tracked channel gets a subscribe command.
	waitFor(t, "subscribe frame", func() bool { return len(c.sentFrames()) >= 1 })

	frame, err := protocol.Decode(c.sentFrames()[0])
	if err != nil {
		t.Fatalf("decode sent frame: %v", err)
	}
	if protocol.EventName(frame) != protocol.EventSubscribe {
		t.Errorf("sent event = %q, want subscribe", protocol.EventName(frame))
	}

	// Server confirms; the record flips to active.
	c.deliver(`{"event":"pusher_internal:subscription_succeeded","channel":"orders","data":"{}"}`)
	waitFor(t, "subscription confirmed", func() bool {
		ch, _ := registry.Get("orders")
		return ch.Subscribed
	})

	if m.Stats().SocketID != "42.17" {
		t.Errorf("socket id = %q, want 42.17", m.Stats().SocketID)
	}
}

func TestManager_IntentionalDisconnect(t *testing.T) {
	cfg := DefaultManagerConfig()
	m, ff, registry, _ := newTestManager(cfg)
	registry.Add("orders")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	c := ff.last()
	c.deliver(handshakeFrame)
	c.deliver(`{"event":"pusher_internal:subscription_succeeded","channel":"orders","data":"{}"}`)
	waitFor(t, "subscribed", func() bool { return registry.SubscribedCount() == 1 })

	attemptsBefore := m.Stats().ReconnectAttempts
	m.Disconnect()

	if m.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", m.State())
	}
	if registry.SubscribedCount() != 0 {
		t.Error("subscriptions not swept on intentional disconnect")
	}
	if m.Stats().ReconnectAttempts != attemptsBefore {
		t.Errorf("attempts changed on intentional disconnect: %d -> %d",
			attemptsBefore, m.Stats().ReconnectAttempts)
	}

	// No reconnection may be scheduled.
	time.Sleep(50 * time.Millisecond)
	if ff.dialCount() != 1 {
		t.Errorf("dials = %d after intentional disconnect, want 1", ff.dialCount())
	}
}

func TestManager_DisconnectDuringDial_Terminal(t *testing.T) {
	cfg := DefaultManagerConfig()
	m, ff, _, _ := newTestManager(cfg)
	gate := make(chan struct{})
	ff.setConnectGate(gate)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go m.Start(ctx)
	waitFor(t, "dial in flight", func() bool { return ff.dialCount() == 1 })

	m.Disconnect()
	if m.State() != StateDisconnected {
		t.Fatalf("state = %s after Disconnect, want disconnected", m.State())
	}

	// The dial completes after the teardown. Its connection must be
	// discarded, not adopted.
	close(gate)

	time.Sleep(50 * time.Millisecond)
	if m.State() != StateDisconnected {
		t.Errorf("state = %s after in-flight dial completed, want disconnected", m.State())
	}
	if ff.dialCount() != 1 {
		t.Errorf("dials = %d, want 1", ff.dialCount())
	}
	waitFor(t, "superseded client closed", func() bool { return !ff.last().IsConnected() })
}

func TestManager_ReplacedClientSignals_Ignored(t *testing.T) {
	cfg := DefaultManagerConfig()
	m, ff, _, _ := newTestManager(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	first := ff.last()
	m.Disconnect()
	m.Connect()
	waitFor(t, "reconnected", func() bool {
		return ff.dialCount() == 2 && m.State() == StateConnected
	})

	// Teardown noise from the replaced client must not touch the live
	// connection.
	close(first.messages)
	first.fail(ErrStaleConnection)

	time.Sleep(50 * time.Millisecond)
	if m.State() != StateConnected {
		t.Errorf("state = %s after stale client signals, want connected", m.State())
	}
	if ff.dialCount() != 2 {
		t.Errorf("dials = %d, want 2", ff.dialCount())
	}
	m.Stop(context.Background())
}

func TestManager_TransportFault_SweepsSubscriptions(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.AutoReconnect = false
	m, ff, registry, _ := newTestManager(cfg)
	registry.Add("a")
	registry.Add("b")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	c := ff.last()
	c.deliver(handshakeFrame)
	c.deliver(`{"event":"pusher_internal:subscription_succeeded","channel":"a","data":"{}"}`)
	c.deliver(`{"event":"pusher_internal:subscription_succeeded","channel":"b","data":"{}"}`)
	waitFor(t, "both subscribed", func() bool { return registry.SubscribedCount() == 2 })

	c.fail(ErrStaleConnection)

	waitFor(t, "disconnected", func() bool { return m.State() == StateDisconnected })
	if registry.SubscribedCount() != 0 {
		t.Error("subscriptions not swept after transport fault from connected")
	}
	if ff.dialCount() != 1 {
		t.Errorf("dials = %d with auto reconnect disabled, want 1", ff.dialCount())
	}
}

func TestManager_DialFailure_NoSweep(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.AutoReconnect = false
	m, ff, registry, _ := newTestManager(cfg)
	ff.setDialError(ErrNotConnected)

	// A record left active by an upper layer: the socket never reached
	// connected, so a failed dial must not sweep it.
	registry.Add("orders")
	registry.MarkSubscribed("orders")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	waitFor(t, "disconnected", func() bool { return m.State() == StateDisconnected })
	if registry.SubscribedCount() != 1 {
		t.Error("dial failure from connecting must not sweep subscriptions")
	}
}

func TestManager_GiveUpAfterMaxAttempts(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.MaxReconnectAttempts = intPtr(3)
	cfg.MaxReconnectGapSeconds = floatPtr(0) // fire timers immediately
	m, ff, _, _ := newTestManager(cfg)
	ff.setDialError(ErrNotConnected)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	// Initial dial plus three scheduled reconnects, then give-up on the
	// fourth disconnect.
	waitFor(t, "all attempts exhausted", func() bool {
		return ff.dialCount() == 4 && m.State() == StateDisconnected
	})
	if got := m.Stats().ReconnectAttempts; got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}

	// Give-up is terminal; the counter must not grow and no further
	// dial may happen.
	time.Sleep(50 * time.Millisecond)
	if ff.dialCount() != 4 {
		t.Errorf("dials = %d after give-up, want 4", ff.dialCount())
	}
	if got := m.Stats().ReconnectAttempts; got != 3 {
		t.Errorf("attempts = %d after give-up, want 3", got)
	}
}

func TestManager_SuccessfulConnectResetsAttempts(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.MaxReconnectGapSeconds = floatPtr(0)
	m, ff, _, _ := newTestManager(cfg)
	ff.setDialError(ErrNotConnected)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	waitFor(t, "a few failed dials", func() bool { return ff.dialCount() >= 3 })

	ff.setDialError(nil)
	waitFor(t, "reconnected", func() bool { return m.State() == StateConnected })

	if got := m.Stats().ReconnectAttempts; got != 0 {
		t.Errorf("attempts = %d after successful connect, want 0", got)
	}
	m.Stop(context.Background())
}

func TestManager_ConnectWhileConnected_NoOp(t *testing.T) {
	cfg := DefaultManagerConfig()
	m, ff, _, _ := newTestManager(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	m.Connect()
	m.Connect()

	if ff.dialCount() != 1 {
		t.Errorf("dials = %d, want 1", ff.dialCount())
	}
	m.Stop(context.Background())
}

func TestManager_StaleTimerFire_NoOp(t *testing.T) {
	cfg := DefaultManagerConfig()
	m, ff, _, _ := newTestManager(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.ctx, m.cancel = context.WithCancel(ctx)

	// A fire with a superseded generation while reconnecting.
	m.mu.Lock()
	m.state = StateReconnecting
	m.scheduledGen = 7
	m.mu.Unlock()

	m.onReconnectTimer(6)
	if m.State() != StateReconnecting || ff.dialCount() != 0 {
		t.Error("superseded-generation fire must be a no-op")
	}

	// A fire after an intentional disconnect already moved the state.
	m.mu.Lock()
	m.state = StateDisconnected
	m.mu.Unlock()

	m.onReconnectTimer(7)
	if m.State() != StateDisconnected {
		t.Errorf("state = %s after stale fire, want disconnected", m.State())
	}
	if ff.dialCount() != 0 {
		t.Errorf("stale fire dialed %d times, want 0", ff.dialCount())
	}
}

func TestManager_ErrorFrameRouted(t *testing.T) {
	cfg := DefaultManagerConfig()
	m, ff, _, sink := newTestManager(cfg)

	var mu sync.Mutex
	var got []protocol.ErrorDescriptor
	m.SetErrorHandler(func(desc protocol.ErrorDescriptor) {
		mu.Lock()
		got = append(got, desc)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop(context.Background())

	ff.last().deliver(`{"event":"pusher:error","data":{"code":4201,"message":"pong timeout"}}`)

	waitFor(t, "error handler called", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})

	mu.Lock()
	if got[0].Code != 4201 {
		t.Errorf("code = %d, want 4201", got[0].Code)
	}
	mu.Unlock()

	if sink.count() != 0 {
		t.Error("error frame must not reach the event queue")
	}
}

func TestManager_MalformedErrorFrame_Dropped(t *testing.T) {
	cfg := DefaultManagerConfig()
	m, ff, _, sink := newTestManager(cfg)

	var mu sync.Mutex
	handlerCalled := false
	m.SetErrorHandler(func(protocol.ErrorDescriptor) {
		mu.Lock()
		handlerCalled = true
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop(context.Background())

	c := ff.last()
	c.deliver(`{"event":"pusher:error","data":"not parseable"}`)
	c.deliver(`{"no_event":"here"}`)
	c.deliver(`this is not even json`)

	// Follow with a recognizable event to know processing caught up.
	c.deliver(`{"event":"custom:event","data":{"x":1}}`)
	waitFor(t, "data event", func() bool { return sink.count() == 1 })

	mu.Lock()
	if handlerCalled {
		t.Error("malformed error frame must not reach the error handler")
	}
	mu.Unlock()
	if m.State() != StateConnected {
		t.Errorf("state = %s, classifier noise must not affect the connection", m.State())
	}
}

func TestManager_DataEventEnqueuedVerbatim(t *testing.T) {
	cfg := DefaultManagerConfig()
	m, ff, _, sink := newTestManager(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop(context.Background())

	ff.last().deliver(`{"event":"custom:event","channel":"orders","data":{"x":1}}`)
	waitFor(t, "enqueued", func() bool { return sink.count() == 1 })

	sink.mu.Lock()
	payload := sink.events[0]
	sink.mu.Unlock()

	if protocol.EventName(payload) != "custom:event" {
		t.Errorf("payload event = %q, want custom:event", protocol.EventName(payload))
	}
	if protocol.ChannelName(payload) != "orders" {
		t.Errorf("payload channel = %q, want orders", protocol.ChannelName(payload))
	}
	data, ok := payload["data"].(map[string]any)
	if !ok || data["x"] != float64(1) {
		t.Errorf("payload data = %v, want map with x=1", payload["data"])
	}
}

func TestManager_PingAnsweredWithPong(t *testing.T) {
	cfg := DefaultManagerConfig()
	m, ff, _, _ := newTestManager(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop(context.Background())

	c := ff.last()
	c.deliver(`{"event":"pusher:ping","data":"{}"}`)

	waitFor(t, "pong sent", func() bool {
		for _, raw := range c.sentFrames() {
			if frame, err := protocol.Decode(raw); err == nil &&
				protocol.EventName(frame) == protocol.EventPong {
				return true
			}
		}
		return false
	})
}

func TestManager_ObserverSeesTransitions(t *testing.T) {
	cfg := DefaultManagerConfig()
	m, _, _, _ := newTestManager(cfg)

	var mu sync.Mutex
	var transitions []string
	m.SetStateObserver(func(old, new State) {
		mu.Lock()
		transitions = append(transitions, old.String()+">"+new.String())
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	m.Disconnect()
	m.Stop(context.Background())

	mu.Lock()
	defer mu.Unlock()

	want := []string{
		"disconnected>connecting",
		"connecting>connected",
		"connected>disconnecting",
		"disconnecting>disconnected",
	}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestManager_NetworkReachable_Advisory(t *testing.T) {
	cfg := DefaultManagerConfig()
	m, ff, _, _ := newTestManager(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop(context.Background())

	// A reported outage is diagnostic only and must not change state.
	m.NetworkReachable(false)
	if m.State() != StateConnected {
		t.Errorf("state = %s after reachability signal, want connected", m.State())
	}
	if ff.dialCount() != 1 {
		t.Errorf("dials = %d, want 1", ff.dialCount())
	}
}
