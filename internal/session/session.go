// Package session wires one authenticated realtime session together: the
// connection manager, notification store, presence registry, side-effect
// dispatcher, reconciliation poller and auth failure guard.
//
// A Session is built on login and torn down with Close. Nothing in it is
// shared with other sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mariankugiel/patient-realtime/internal/auth"
	"github.com/mariankugiel/patient-realtime/internal/config"
	"github.com/mariankugiel/patient-realtime/internal/connection"
	"github.com/mariankugiel/patient-realtime/internal/effects"
	"github.com/mariankugiel/patient-realtime/internal/model"
	"github.com/mariankugiel/patient-realtime/internal/notification"
	"github.com/mariankugiel/patient-realtime/internal/poller"
	"github.com/mariankugiel/patient-realtime/internal/presence"
	"github.com/mariankugiel/patient-realtime/internal/protocol"
	"github.com/mariankugiel/patient-realtime/internal/subscriber"
)

// Errors
var (
	ErrAlreadyStarted = errors.New("session already started")
	ErrClosed         = errors.New("session closed")
)

// Config holds session settings.
type Config struct {
	ID                string
	WSURL             string
	Connection        connection.ManagerConfig
	Notifications     notification.Config
	Effects           effects.Config
	ReconcileInterval time.Duration
	MaxAuthFailures   int
}

// ConfigFrom maps the file configuration onto session settings.
func ConfigFrom(c *config.Config) Config {
	return Config{
		ID:    c.Session.ID,
		WSURL: c.API.WSURL,
		Connection: connection.ManagerConfig{
			MaxReconnectAttempts: c.Connection.MaxReconnectAttempts,
			ReconnectInterval:    c.Connection.ReconnectInterval,
			HeartbeatInterval:    c.Connection.HeartbeatInterval,
			HandshakeTimeout:     c.Connection.HandshakeTimeout,
			WriteTimeout:         c.Connection.WriteTimeout,
			BufferSize:           c.Connection.BufferSize,
		},
		Notifications: notification.Config{
			RemoteTimeout: c.Notifications.RemoteTimeout,
			PageSize:      c.Notifications.PageSize,
		},
		Effects:           effects.DefaultConfig(),
		ReconcileInterval: c.Notifications.ReconcileInterval,
		MaxAuthFailures:   c.Auth.MaxAuthFailures,
	}
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	ID                string        `json:"id"`
	State             string        `json:"state"`
	ConnectionID      string        `json:"connection_id,omitempty"`
	ReconnectAttempts int           `json:"reconnect_attempts"`
	HeartbeatActive   bool          `json:"heartbeat_active"`
	LastPong          time.Time     `json:"last_pong,omitempty"`
	Notifications     int           `json:"notifications"`
	Unread            int           `json:"unread"`
	Online            []int64       `json:"online"`
	AuthFailures      int           `json:"auth_failures"`
	Authenticated     bool          `json:"authenticated"`
	Effects           effects.Stats `json:"effects"`
	Reconciles        int64         `json:"reconciles"`
}

// Option configures a Session.
type Option func(*Session)

// WithDialer replaces the WebSocket client factory.
func WithDialer(d connection.Dialer) Option {
	return func(s *Session) {
		s.dialer = d
	}
}

// WithEffects sets the side effects applied to pushed notifications.
func WithEffects(e ...effects.Effect) Option {
	return func(s *Session) {
		s.effectList = append(s.effectList, e...)
	}
}

// Session is one authenticated realtime session.
type Session struct {
	cfg    Config
	logger *slog.Logger
	creds  *auth.Credentials

	dialer     connection.Dialer
	effectList []effects.Effect

	conn       connection.Manager
	store      *notification.Store
	presence   *presence.Registry
	dispatcher *effects.Dispatcher
	poller     *poller.Poller
	guard      *auth.Guard
	chat       *subscriber.Registry[func(model.ChatMessage)]
	subs       subscriber.Group

	mu      sync.Mutex
	started bool
	closed  bool
}

// New builds a session. Nothing runs until Start.
func New(cfg Config, creds *auth.Credentials, remote notification.Remote, logger *slog.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ID != "" {
		logger = logger.With("session", cfg.ID)
	}

	s := &Session{
		cfg:    cfg,
		logger: logger,
		creds:  creds,
	}
	for _, opt := range opts {
		opt(s)
	}

	var connOpts []connection.ManagerOption
	if s.dialer != nil {
		connOpts = append(connOpts, connection.WithDialer(s.dialer))
	}

	s.dispatcher = effects.NewDispatcher(cfg.Effects, logger, s.effectList...)
	s.store = notification.NewStore(remote, cfg.Notifications, logger,
		notification.WithNotifier(s.dispatcher),
		notification.WithRemoteErrorHandler(s.handleRemoteError),
	)
	s.presence = presence.NewRegistry(logger)
	s.conn = connection.NewManager(cfg.Connection, logger, connOpts...)
	s.poller = poller.New(poller.Config{Interval: cfg.ReconcileInterval}, s.store, logger)
	s.guard = auth.NewGuard(cfg.MaxAuthFailures, s.handleAuthExhausted, logger)
	s.chat = subscriber.NewRegistry[func(model.ChatMessage)]("chat", logger)

	s.subs.Add(
		s.conn.OnMessage(s.store.HandleFrame),
		s.conn.OnMessage(s.presence.HandleFrame),
		s.conn.OnMessage(s.handleChat),
		s.conn.OnConnect(s.handleConnect),
		s.conn.OnDisconnect(s.handleDisconnect),
		s.conn.OnError(s.handleTransportError),
	)

	return s
}

// Start connects, loads notification history and starts reconciliation.
// A failed history load is logged and the session continues empty.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.started:
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	if err := s.conn.Connect(s.cfg.WSURL, s.creds.Token()); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	if err := s.store.LoadInitial(ctx); err != nil {
		s.logger.Warn("continuing without notification history", "error", err)
	}

	if err := s.poller.Start(ctx); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}

	s.logger.Info("session started", "unread", s.store.UnreadCount())
	return nil
}

// Close detaches every consumer, disconnects, stops reconciliation and then
// drains pending remote calls and side effects.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.subs.Unsubscribe()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.conn.Close(gctx) })
	g.Go(func() error { return s.poller.Stop(gctx) })
	stopErr := g.Wait()

	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error { return s.store.Close(gctx) })
	g.Go(func() error { return s.dispatcher.Close(gctx) })
	drainErr := g.Wait()

	if err := errors.Join(stopErr, drainErr); err != nil {
		s.logger.Warn("session closed with errors", "error", err)
		return err
	}

	s.logger.Info("session closed")
	return nil
}

// OnChat registers fn for incoming chat messages.
func (s *Session) OnChat(fn func(model.ChatMessage)) subscriber.Subscription {
	return s.chat.Add(fn)
}

// Connection returns the session's connection manager.
func (s *Session) Connection() connection.Manager { return s.conn }

// Notifications returns the session's notification store.
func (s *Session) Notifications() *notification.Store { return s.store }

// Presence returns the session's presence registry.
func (s *Session) Presence() *presence.Registry { return s.presence }

// Snapshot reports the session's current state.
func (s *Session) Snapshot() Snapshot {
	cs := s.conn.Stats()
	ns := s.store.Stats()

	return Snapshot{
		ID:                s.cfg.ID,
		State:             cs.State.String(),
		ConnectionID:      cs.ConnectionID,
		ReconnectAttempts: cs.ReconnectAttempts,
		HeartbeatActive:   s.conn.HeartbeatActive(),
		LastPong:          cs.LastPong,
		Notifications:     ns.Total,
		Unread:            ns.Unread,
		Online:            s.presence.Online(),
		AuthFailures:      s.guard.Failures(),
		Authenticated:     s.creds.Valid(),
		Effects:           s.dispatcher.Stats(),
		Reconciles:        ns.Reconciles,
	}
}

func (s *Session) handleChat(f protocol.Frame) {
	if f.Type != protocol.TypeNewMessage {
		return
	}
	msg, err := protocol.DecodeChatMessage(f)
	if err != nil {
		s.logger.Warn("dropping malformed chat message", "error", err)
		return
	}
	s.chat.Each(func(fn func(model.ChatMessage)) { fn(msg) })
}

func (s *Session) handleConnect() {
	s.guard.Reset()
	s.logger.Info("realtime channel open")
}

func (s *Session) handleDisconnect(ev connection.DisconnectEvent) {
	switch {
	case ev.UserInitiated:
		s.logger.Info("realtime channel closed")
	case ev.State == connection.Failed:
		s.logger.Error("realtime channel failed", "attempts", ev.Attempts, "error", ev.Err)
	default:
		s.logger.Warn("realtime channel lost", "attempts", ev.Attempts, "error", ev.Err)
	}
}

func (s *Session) handleTransportError(err error) {
	s.guard.Observe(err)
}

func (s *Session) handleRemoteError(err error) {
	if s.guard.Observe(err) {
		return
	}
	s.poller.Trigger()
}

// handleAuthExhausted runs on repeated rejected credentials.
func (s *Session) handleAuthExhausted() {
	s.logger.Error("credentials rejected repeatedly, signing out")
	s.creds.Clear()
	s.conn.Disconnect()
}
