package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mariankugiel/patient-realtime/internal/metrics"
	"github.com/mariankugiel/patient-realtime/internal/protocol"
	"github.com/mariankugiel/patient-realtime/internal/router"
	"github.com/mariankugiel/patient-realtime/internal/subscriber"
)

// Manager owns the transport lifecycle for one session.
type Manager interface {
	// Connect starts connecting to url in the background. It is a no-op
	// while connected or while an attempt is in flight. From Failed or
	// Reconnecting it starts over with the attempt counter reset.
	Connect(url, token string) error

	// Disconnect closes the transport and cancels any pending reconnect.
	// No automatic reconnect follows.
	Disconnect()

	// Close disconnects and waits for background goroutines to exit.
	Close(ctx context.Context) error

	// SendMessage writes payload if the transport is open. It never queues.
	SendMessage(payload any) bool

	OnMessage(h router.Handler) subscriber.Subscription
	OnConnect(h func()) subscriber.Subscription
	OnDisconnect(h func(DisconnectEvent)) subscriber.Subscription
	OnError(h func(error)) subscriber.Subscription

	State() State
	ConnectionID() string
	HeartbeatActive() bool
	Stats() ManagerStats
}

// ManagerOption configures a Manager.
type ManagerOption func(*manager)

// WithDialer replaces the WebSocket client factory.
func WithDialer(d Dialer) ManagerOption {
	return func(m *manager) {
		m.dial = d
	}
}

// manager implements the Manager interface.
type manager struct {
	cfg    ManagerConfig
	logger *slog.Logger
	dial   Dialer
	router router.Router

	onConnect    *subscriber.Registry[func()]
	onDisconnect *subscriber.Registry[func(DisconnectEvent)]
	onError      *subscriber.Registry[func(error)]

	wg sync.WaitGroup

	mu           sync.Mutex
	state        State
	inFlight     bool // dial in progress
	url          string
	token        string
	attempts     int
	connectionID string
	client       Client
	cancel       context.CancelFunc
	gen          uint64        // bumped on every Connect/Disconnect; stale loops compare against it
	loopDone     chan struct{} // closed when the latest run loop exits
	heartbeat    chan struct{} // non-nil iff state == Connected
	pending      int           // reconnect timers waiting to fire
	scheduled    int64
	heartbeats   int64
	lastPong     time.Time
}

// NewManager creates a new Connection Manager.
func NewManager(cfg ManagerConfig, logger *slog.Logger, opts ...ManagerOption) Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &manager{
		cfg:          cfg,
		logger:       logger,
		dial:         NewClient,
		onConnect:    subscriber.NewRegistry[func()]("connect", logger),
		onDisconnect: subscriber.NewRegistry[func(DisconnectEvent)]("disconnect", logger),
		onError:      subscriber.NewRegistry[func(error)]("error", logger),
	}
	m.router = router.NewRouter(router.Hooks{
		OnHandshake: m.handleHandshake,
		OnPong:      m.handlePong,
	}, logger)

	for _, opt := range opts {
		opt(m)
	}

	metrics.SetConnectionState(Disconnected.String())
	return m
}

// Connect starts a connection attempt.
func (m *manager) Connect(url, token string) error {
	if _, err := dialURL(url, ""); url == "" || err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidURL, url)
	}

	m.mu.Lock()
	if m.inFlight || m.state == Connected || m.state == Connecting {
		m.mu.Unlock()
		m.logger.Debug("connect ignored", "state", m.State())
		return nil
	}

	// A pending reconnect belongs to the previous loop; cancel it.
	if m.cancel != nil {
		m.cancel()
	}

	m.url = url
	m.token = token
	m.attempts = 0
	m.gen++
	gen := m.gen

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	prev := m.loopDone
	done := make(chan struct{})
	m.loopDone = done
	m.transitionLocked(Connecting)

	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(ctx, gen, prev, done)
	return nil
}

// Disconnect tears the connection down. It does not wait for the
// background loop, so it is safe to call from any handler.
func (m *manager) Disconnect() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.gen++
	client := m.client
	m.client = nil
	m.connectionID = ""
	m.inFlight = false
	prev := m.state
	attempts := m.attempts
	m.transitionLocked(Disconnected)
	m.mu.Unlock()

	if client != nil {
		client.Close()
	}

	if prev != Disconnected {
		m.logger.Info("disconnected", "previous_state", prev)
		m.emitDisconnect(DisconnectEvent{
			State:         Disconnected,
			Attempts:      attempts,
			UserInitiated: true,
		})
	}
}

// Close disconnects and waits for the connection loop to exit.
func (m *manager) Close(ctx context.Context) error {
	m.Disconnect()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		m.logger.Warn("connection manager close timed out")
		return ctx.Err()
	}
}

// SendMessage writes payload to the open transport.
func (m *manager) SendMessage(payload any) bool {
	m.mu.Lock()
	client := m.client
	open := m.state == Connected && client != nil
	m.mu.Unlock()

	if !open || !client.IsConnected() {
		return false
	}

	data, err := encodePayload(payload)
	if err != nil {
		m.logger.Warn("failed to encode outbound message", "error", err)
		return false
	}

	if err := client.Send(data); err != nil {
		m.logger.Debug("send failed", "error", err)
		return false
	}
	return true
}

// OnMessage registers a handler for routed frames.
func (m *manager) OnMessage(h router.Handler) subscriber.Subscription {
	return m.router.Subscribe(h)
}

// OnConnect registers a handler called after each successful open.
func (m *manager) OnConnect(h func()) subscriber.Subscription {
	return m.onConnect.Add(h)
}

// OnDisconnect registers a handler called on every close.
func (m *manager) OnDisconnect(h func(DisconnectEvent)) subscriber.Subscription {
	return m.onDisconnect.Add(h)
}

// OnError registers a handler for transport errors.
func (m *manager) OnError(h func(error)) subscriber.Subscription {
	return m.onError.Add(h)
}

// State returns the current lifecycle state.
func (m *manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConnectionID returns the server-assigned id of the current connection.
func (m *manager) ConnectionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectionID
}

// HeartbeatActive reports whether the heartbeat ticker is running.
func (m *manager) HeartbeatActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heartbeat != nil
}

// Stats returns current statistics.
func (m *manager) Stats() ManagerStats {
	rs := m.router.Stats()

	m.mu.Lock()
	defer m.mu.Unlock()

	return ManagerStats{
		State:               m.state,
		ConnectionID:        m.connectionID,
		ReconnectAttempts:   m.attempts,
		ReconnectsScheduled: m.scheduled,
		PendingReconnects:   m.pending,
		HeartbeatsSent:      m.heartbeats,
		LastPong:            m.lastPong,
		FramesReceived:      rs.FramesReceived,
		FramesRouted:        rs.FramesRouted,
		ParseErrors:         rs.ParseErrors,
	}
}

// run drives one Connect call until Disconnect, a newer Connect, or Failed.
// It does not dial before the previous loop has exited and closed its
// transport.
func (m *manager) run(ctx context.Context, gen uint64, prev <-chan struct{}, done chan<- struct{}) {
	defer m.wg.Done()
	defer close(done)

	if prev != nil {
		<-prev
	}

	for {
		err := m.session(ctx, gen)
		if err == nil {
			return
		}

		if !m.scheduleReconnect(gen, err) {
			return
		}

		timer := time.NewTimer(m.cfg.ReconnectInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.mu.Lock()
			m.pending--
			m.mu.Unlock()
			return
		case <-timer.C:
		}

		m.mu.Lock()
		m.pending--
		if m.gen != gen {
			m.mu.Unlock()
			return
		}
		attempt := m.attempts
		m.transitionLocked(Connecting)
		m.mu.Unlock()

		m.logger.Info("reconnecting", "attempt", attempt)
	}
}

// session dials and reads until the transport closes. It returns nil when
// the session was superseded or cancelled and the close error otherwise.
func (m *manager) session(ctx context.Context, gen uint64) error {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return nil
	}
	m.inFlight = true
	cfg := ClientConfig{
		URL:              m.url,
		Token:            m.token,
		HandshakeTimeout: m.cfg.HandshakeTimeout,
		WriteTimeout:     m.cfg.WriteTimeout,
		BufferSize:       m.cfg.BufferSize,
	}
	m.mu.Unlock()

	client := m.dial(cfg, m.logger)
	err := client.Connect(ctx)

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		client.Close()
		return nil
	}
	m.inFlight = false
	if err != nil {
		m.mu.Unlock()
		client.Close()
		return m.transportFailure(cfg.URL, err)
	}
	m.client = client
	m.attempts = 0
	m.transitionLocked(Connected)
	m.mu.Unlock()

	m.logger.Info("connected", "url", cfg.URL)
	metrics.AddSubscriberPanics("connect", m.onConnect.Each(func(h func()) { h() }))

	for {
		select {
		case <-ctx.Done():
			client.Close()
			return nil

		case err := <-client.Errors():
			// The read loop queues every frame before reporting the close.
			m.drain(ctx, client)

			m.mu.Lock()
			if m.gen != gen {
				m.mu.Unlock()
				client.Close()
				return nil
			}
			m.client = nil
			m.connectionID = ""
			m.transitionLocked(Reconnecting)
			m.mu.Unlock()
			client.Close()
			return m.transportFailure(cfg.URL, err)

		case msg := <-client.Messages():
			if ctx.Err() != nil {
				client.Close()
				return nil
			}
			m.router.Dispatch(msg.Data, msg.ReceivedAt)
		}
	}
}

// drain dispatches frames still buffered in client without blocking.
func (m *manager) drain(ctx context.Context, client Client) {
	for {
		select {
		case msg := <-client.Messages():
			if ctx.Err() != nil {
				return
			}
			m.router.Dispatch(msg.Data, msg.ReceivedAt)
		default:
			return
		}
	}
}

// transportFailure normalises err and forwards it to error handlers.
func (m *manager) transportFailure(url string, err error) error {
	var terr *TransportError
	if !errors.As(err, &terr) {
		terr = &TransportError{URL: url, Err: err}
	}
	m.logger.Warn("connection error", "error", terr)
	metrics.AddSubscriberPanics("error", m.onError.Each(func(h func(error)) { h(terr) }))
	return terr
}

// scheduleReconnect counts an abnormal close and either reserves a
// reconnect timer or moves to Failed. Returns false when the loop must stop.
func (m *manager) scheduleReconnect(gen uint64, cause error) bool {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return false
	}

	m.attempts++
	attempts := m.attempts

	if attempts < m.cfg.MaxReconnectAttempts {
		m.pending++
		m.scheduled++
		m.transitionLocked(Reconnecting)
		m.mu.Unlock()

		metrics.IncReconnectScheduled()
		m.logger.Warn("reconnect scheduled",
			"attempt", attempts,
			"max_attempts", m.cfg.MaxReconnectAttempts,
			"delay", m.cfg.ReconnectInterval,
		)
		m.emitDisconnect(DisconnectEvent{State: Reconnecting, Attempts: attempts, Err: cause})
		return true
	}

	m.transitionLocked(Failed)
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.mu.Unlock()

	metrics.IncReconnectExhausted()
	m.logger.Error("reconnect attempts exhausted", "attempts", attempts, "error", cause)
	m.emitDisconnect(DisconnectEvent{
		State:    Failed,
		Attempts: attempts,
		Err:      &ReconnectExhaustedError{Attempts: attempts},
	})
	return false
}

// transitionLocked moves to s, starting the heartbeat on entry to
// Connected and stopping it on exit. Must be called with m.mu held.
func (m *manager) transitionLocked(s State) {
	if m.state == s {
		return
	}

	if m.state == Connected && m.heartbeat != nil {
		close(m.heartbeat)
		m.heartbeat = nil
	}

	prev := m.state
	m.state = s

	if s == Connected {
		m.heartbeat = make(chan struct{})
		go m.heartbeatLoop(m.heartbeat, m.client)
	}

	metrics.SetConnectionState(s.String())
	m.logger.Debug("state change", "from", prev, "to", s)
}

// heartbeatLoop sends pings until stop is closed.
func (m *manager) heartbeatLoop(stop <-chan struct{}, client Client) {
	if m.cfg.HeartbeatInterval <= 0 || client == nil {
		<-stop
		return
	}

	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			select {
			case <-stop:
				return
			default:
			}

			// The transport may have closed without the read loop noticing yet.
			if !client.IsConnected() {
				continue
			}

			data, err := protocol.EncodePing(now)
			if err != nil {
				continue
			}
			err = client.Send(data)
			metrics.IncHeartbeat(err == nil)
			if err != nil {
				m.logger.Debug("failed to send ping", "error", err)
				continue
			}

			m.mu.Lock()
			m.heartbeats++
			m.mu.Unlock()
		}
	}
}

func (m *manager) handleHandshake(connectionID string) {
	m.mu.Lock()
	m.connectionID = connectionID
	m.mu.Unlock()

	m.logger.Info("connection established", "connection_id", connectionID)
}

func (m *manager) handlePong(f protocol.Frame) {
	m.mu.Lock()
	m.lastPong = f.ReceivedAt
	m.mu.Unlock()
}

func (m *manager) emitDisconnect(ev DisconnectEvent) {
	metrics.AddSubscriberPanics("disconnect", m.onDisconnect.Each(func(h func(DisconnectEvent)) { h(ev) }))
}

// encodePayload accepts pre-encoded frames or marshals anything else.
func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	case string:
		return []byte(p), nil
	default:
		return json.Marshal(p)
	}
}
