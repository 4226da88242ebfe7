package connection

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dmelnik/streamgather/internal/channel"
	"github.com/dmelnik/streamgather/internal/protocol"
)

// EventSink receives every classified data event, payload unmodified.
type EventSink interface {
	Enqueue(payload map[string]any)
}

// StateObserver is notified immediately after every state change. It
// runs on the manager's internal goroutines with the state lock held
// and must not call back into the Manager.
type StateObserver func(old, new State)

// ErrorHandler receives parsed control-plane error frames.
type ErrorHandler func(desc protocol.ErrorDescriptor)

// Manager owns exactly one logical connection: it tracks connection
// state, decides when and how to reconnect after a drop, dispatches
// classified inbound frames, and restores channel subscriptions across
// reconnects.
//
// The connection is mutated from two asynchronous sources, transport
// lifecycle signals and reconnect timer fires. Both are serialized
// under mu; transitions are short and never block.
type Manager struct {
	cfg      ManagerConfig
	registry *channel.Registry
	sink     EventSink
	logger   *slog.Logger

	policy *reconnectPolicy

	observer     StateObserver
	errorHandler ErrorHandler

	newClient func(ClientConfig, *slog.Logger) Client

	mu              sync.Mutex
	state           State
	client          Client
	socketConnected bool
	handshakeDone   bool
	intentional     bool
	attempts        int
	scheduledGen    uint64
	socketID        string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a connection Manager. The sink may be nil, in
// which case data events are dropped.
func NewManager(cfg ManagerConfig, registry *channel.Registry, sink EventSink, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = channel.NewRegistry(logger)
	}

	return &Manager{
		cfg:       cfg,
		registry:  registry,
		sink:      sink,
		logger:    logger,
		policy:    newReconnectPolicy(cfg.MaxReconnectAttempts, cfg.MaxReconnectGapSeconds),
		newClient: NewClient,
		state:     StateDisconnected,
	}
}

// SetStateObserver registers the state change callback. Call before
// Start.
func (m *Manager) SetStateObserver(fn StateObserver) {
	m.observer = fn
}

// SetErrorHandler registers the control-plane error callback. Call
// before Start.
func (m *Manager) SetErrorHandler(fn ErrorHandler) {
	m.errorHandler = fn
}

// Start issues the initial connect attempt. The context bounds the
// manager's lifetime; cancelling it stops all internal goroutines.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.Connect()
	return nil
}

// Stop performs an intentional disconnect and waits for internal
// goroutines, bounded by ctx.
func (m *Manager) Stop(ctx context.Context) error {
	m.Disconnect()

	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout waiting for connection goroutines")
	}

	return nil
}

// Connect starts a connect attempt. A no-op while already connected or
// a connect is in flight. Clears the intentional-disconnect flag so a
// later drop reconnects again.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.state == StateConnected || m.state == StateConnecting {
		m.mu.Unlock()
		return
	}
	m.intentional = false
	m.policy.cancel()
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	m.dial()
}

// Disconnect closes the connection intentionally. The terminal state is
// disconnected; no reconnection is scheduled and any pending reconnect
// timer is cancelled.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.intentional = true
	m.policy.cancel()

	if m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}

	client := m.client
	m.setStateLocked(StateDisconnecting)
	m.mu.Unlock()

	m.logger.Info("intentional disconnect")

	if client != nil {
		client.Close()
	}

	// Close suppresses the read error, so the disconnect signal is
	// synthesized here.
	m.handleDisconnected(nil, "intentional", nil)
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns a snapshot of the manager's state.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		State:             m.state,
		ReconnectAttempts: m.attempts,
		SocketID:          m.socketID,
		TrackedChannels:   m.registry.Len(),
		ActiveChannels:    m.registry.SubscribedCount(),
	}
}

// Subscribe tracks a channel and, when the handshake is established,
// sends the subscription command immediately. Otherwise the channel is
// subscribed after the next handshake.
func (m *Manager) Subscribe(name string) error {
	m.registry.Add(name)

	m.mu.Lock()
	ready := m.handshakeDone
	client := m.client
	m.mu.Unlock()

	if !ready || client == nil {
		return nil
	}
	return m.sendSubscribe(client, name)
}

// Unsubscribe stops tracking a channel and tells the server when a
// connection is live.
func (m *Manager) Unsubscribe(name string) error {
	m.registry.Remove(name)

	m.mu.Lock()
	ready := m.handshakeDone
	client := m.client
	m.mu.Unlock()

	if !ready || client == nil {
		return nil
	}

	data, err := protocol.UnsubscribeFrame(name)
	if err != nil {
		return err
	}
	return client.Send(data)
}

// NetworkReachable is an advisory connectivity signal. It is diagnostic
// only: connectivity monitoring is unreliable and transient, so a
// reported outage never blocks an attempt.
func (m *Manager) NetworkReachable(reachable bool) {
	m.logger.Debug("network reachability changed", "reachable", reachable)
}

// setStateLocked mutates the state and notifies the observer. Caller
// holds mu.
func (m *Manager) setStateLocked(next State) {
	if m.state == next {
		return
	}
	old := m.state
	m.state = next
	m.logger.Debug("state change", "from", old.String(), "to", next.String())
	if m.observer != nil {
		m.observer(old, next)
	}
}

// dial creates a fresh client and attempts the transport connect. A
// dial failure is a disconnect signal like any other.
func (m *Manager) dial() {
	clientCfg := ClientConfig{
		URL:             endpointURL(m.cfg),
		ActivityTimeout: m.cfg.ActivityTimeout,
		WriteTimeout:    m.cfg.WriteTimeout,
		BufferSize:      m.cfg.BufferSize,
	}
	client := m.newClient(clientCfg, m.logger)

	m.mu.Lock()
	m.client = client
	m.mu.Unlock()

	if err := client.Connect(m.ctx); err != nil {
		m.logger.Warn("connect failed", "error", err)
		m.handleDisconnected(client, "dial error", err)
		return
	}

	// An intentional disconnect may have landed while the dial was in
	// flight. Its teardown wins: the late connection is discarded, not
	// adopted.
	m.mu.Lock()
	if m.intentional || m.state != StateConnecting || m.client != client {
		m.mu.Unlock()
		m.logger.Debug("superseded dial discarded")
		client.Close()
		return
	}
	m.socketConnected = true
	m.attempts = 0
	m.policy.cancel()
	m.setStateLocked(StateConnected)
	m.mu.Unlock()

	m.logger.Info("socket connected")

	m.wg.Add(1)
	go m.readLoop(client)
}

// handleDisconnected processes any disconnect signal. Explicit error,
// clean close and cancellation are treated identically; the reason is
// used only for logging. A non-nil from restricts the signal to the
// current client, so teardown noise from a replaced client is ignored.
func (m *Manager) handleDisconnected(from Client, reason string, err error) {
	m.mu.Lock()

	if from != nil && from != m.client {
		m.mu.Unlock()
		m.logger.Debug("disconnect signal from replaced client ignored", "reason", reason)
		return
	}

	prev := m.state
	if prev == StateDisconnected {
		m.mu.Unlock()
		return
	}

	// Channels can only have been live if the socket reached connected
	// before dropping.
	if prev == StateConnected || prev == StateDisconnecting {
		swept := m.registry.MarkAllUnsubscribed()
		m.logger.Debug("subscriptions marked inactive", "count", swept)
	}

	m.socketConnected = false
	m.handshakeDone = false
	m.socketID = ""
	m.setStateLocked(StateDisconnected)

	m.logger.Info("disconnected",
		"reason", reason,
		"error", err,
		"prior_state", prev.String(),
	)

	if m.intentional {
		m.mu.Unlock()
		return
	}
	if !m.cfg.AutoReconnect {
		m.logger.Debug("auto reconnect disabled")
		m.mu.Unlock()
		return
	}
	if !m.policy.shouldAttempt(m.attempts) {
		m.logger.Warn("reconnect attempts exhausted, giving up",
			"attempts", m.attempts,
		)
		m.mu.Unlock()
		return
	}

	m.setStateLocked(StateReconnecting)
	delay := m.policy.computeDelay(m.attempts)
	m.attempts++
	m.scheduledGen = m.policy.schedule(delay, m.onReconnectTimer)
	m.logger.Info("reconnect scheduled",
		"delay", delay,
		"attempt", m.attempts,
	)
	m.mu.Unlock()
}

// onReconnectTimer fires on the policy timer goroutine. A fire whose
// scheduling generation has been superseded, or that arrives after the
// state moved on, is a no-op.
func (m *Manager) onReconnectTimer(gen uint64) {
	m.mu.Lock()
	if m.state != StateReconnecting || gen != m.scheduledGen {
		m.mu.Unlock()
		m.logger.Debug("stale reconnect timer ignored", "gen", gen)
		return
	}
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	m.dial()
}

// readLoop consumes lifecycle signals and inbound frames from one
// client until it fails or the manager shuts down.
func (m *Manager) readLoop(c Client) {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return

		case err := <-c.Errors():
			m.handleDisconnected(c, "transport fault", err)
			return

		case msg, ok := <-c.Messages():
			if !ok {
				m.handleDisconnected(c, "transport closed", nil)
				return
			}
			m.handleFrame(msg.Data)
		}
	}
}

// handleFrame decodes and dispatches one inbound frame. Reserved
// lifecycle events are handled locally; everything else goes through
// the classifier.
func (m *Manager) handleFrame(data []byte) {
	frame, err := protocol.Decode(data)
	if err != nil {
		m.logger.Debug("undecodable frame dropped", "error", err)
		return
	}

	switch protocol.EventName(frame) {
	case protocol.EventConnectionEstablished:
		m.handleHandshake(frame)
		return
	case protocol.EventPing:
		m.sendPong()
		return
	case protocol.EventPong:
		return
	case protocol.EventSubscriptionSucceeded:
		name := protocol.ChannelName(frame)
		m.registry.MarkSubscribed(name)
		m.logger.Debug("subscription confirmed", "channel", name)
		return
	}

	cf := protocol.Classify(frame)
	switch cf.Kind {
	case protocol.KindError:
		m.logger.Warn("control-plane error frame",
			"code", cf.Error.Code,
			"message", cf.Error.Message,
		)
		if m.errorHandler != nil {
			m.errorHandler(*cf.Error)
		}

	case protocol.KindData:
		if m.sink != nil {
			m.sink.Enqueue(cf.Payload)
		}

	default:
		m.logger.Debug("unrecognized frame dropped", "event", protocol.EventName(frame))
	}
}

// handleHandshake processes the protocol-level connection_established
// event, distinct from the raw socket connect, and resubscribes every
// tracked channel.
func (m *Manager) handleHandshake(frame map[string]any) {
	hs := protocol.ParseHandshake(frame)
	if hs == nil {
		m.logger.Warn("malformed handshake frame dropped")
		return
	}

	m.mu.Lock()
	m.handshakeDone = true
	m.socketID = hs.SocketID
	client := m.client
	m.mu.Unlock()

	m.logger.Info("handshake established",
		"socket_id", hs.SocketID,
		"activity_timeout", hs.ActivityTimeout,
	)

	for _, ch := range m.registry.All() {
		if err := m.sendSubscribe(client, ch.Name); err != nil {
			m.logger.Warn("resubscribe failed",
				"channel", ch.Name,
				"error", err,
			)
		}
	}
}

// sendSubscribe sends one subscription command.
func (m *Manager) sendSubscribe(c Client, name string) error {
	data, err := protocol.SubscribeFrame(name)
	if err != nil {
		return err
	}
	if err := c.Send(data); err != nil {
		return err
	}
	m.logger.Debug("subscribe sent", "channel", name)
	return nil
}

// sendPong answers an application-level ping.
func (m *Manager) sendPong() {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()

	if client == nil {
		return
	}
	data, err := protocol.PongFrame()
	if err != nil {
		return
	}
	if err := client.Send(data); err != nil {
		m.logger.Debug("pong send failed", "error", err)
	}
}
