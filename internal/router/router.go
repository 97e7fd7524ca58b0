package router

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mariankugiel/patient-realtime/internal/metrics"
	"github.com/mariankugiel/patient-realtime/internal/protocol"
	"github.com/mariankugiel/patient-realtime/internal/subscriber"
)

// Router classifies inbound frames and fans them out to subscribers.
type Router interface {
	// Dispatch parses a raw frame and routes it. Malformed frames are
	// logged, counted and returned as *ProtocolError.
	Dispatch(raw []byte, receivedAt time.Time) error

	// Subscribe registers a handler for every non-internal frame.
	Subscribe(h Handler) subscriber.Subscription

	// Stats returns current router statistics.
	Stats() RouterStats
}

// router is the internal implementation.
type router struct {
	hooks    Hooks
	logger   *slog.Logger
	handlers *subscriber.Registry[Handler]

	mu            sync.RWMutex
	received      int64
	routed        int64
	internal      int64
	parseErrors   int64
	handlerPanics int64
}

// NewRouter creates a new Message Router.
func NewRouter(hooks Hooks, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &router{
		hooks:    hooks,
		logger:   logger,
		handlers: subscriber.NewRegistry[Handler]("message", logger),
	}
}

// Subscribe registers a message handler.
func (r *router) Subscribe(h Handler) subscriber.Subscription {
	return r.handlers.Add(h)
}

// Stats returns current statistics.
func (r *router) Stats() RouterStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RouterStats{
		FramesReceived: r.received,
		FramesRouted:   r.routed,
		InternalFrames: r.internal,
		ParseErrors:    r.parseErrors,
		HandlerPanics:  r.handlerPanics,
	}
}

// Dispatch parses and routes a single frame.
func (r *router) Dispatch(raw []byte, receivedAt time.Time) error {
	r.mu.Lock()
	r.received++
	r.mu.Unlock()

	frame, err := protocol.Parse(raw, receivedAt)
	if err != nil {
		return r.protocolError(raw, err)
	}

	metrics.IncFrame(frame.Type)

	switch frame.Type {
	case protocol.TypeConnectionEstablished:
		id, err := protocol.DecodeConnectionEstablished(frame)
		if err != nil {
			return r.protocolError(raw, err)
		}
		r.countInternal()
		if r.hooks.OnHandshake != nil {
			r.hooks.OnHandshake(id)
		}
		return nil

	case protocol.TypePong:
		r.countInternal()
		if r.hooks.OnPong != nil {
			r.hooks.OnPong(frame)
		}
		return nil
	}

	panics := r.handlers.Each(func(h Handler) { h(frame) })
	metrics.AddSubscriberPanics("message", panics)

	r.mu.Lock()
	r.routed++
	r.handlerPanics += int64(panics)
	r.mu.Unlock()

	return nil
}

func (r *router) countInternal() {
	r.mu.Lock()
	r.internal++
	r.mu.Unlock()
}

func (r *router) protocolError(raw []byte, err error) error {
	perr := &ProtocolError{Raw: raw, Err: err}
	r.logger.Warn("dropping malformed frame", "error", perr)
	metrics.IncProtocolError()

	r.mu.Lock()
	r.parseErrors++
	r.mu.Unlock()

	return perr
}
