// Package subscriber provides an ordered, concurrency-safe callback registry
// with explicit subscription handles.
//
// Handlers are invoked in registration order. A panicking handler is
// recovered and logged; delivery continues with the remaining handlers.
package subscriber

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Subscription is the handle returned by Add. Unsubscribe removes exactly
// the handler it was returned for and is safe to call more than once.
type Subscription interface {
	ID() string
	Unsubscribe()
}

type entry[H any] struct {
	id      string
	handler H
}

// Registry holds handlers of type H.
type Registry[H any] struct {
	name   string
	logger *slog.Logger

	mu      sync.RWMutex
	entries []entry[H]
}

// NewRegistry creates an empty registry. The name is attached to panic logs.
func NewRegistry[H any](name string, logger *slog.Logger) *Registry[H] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry[H]{
		name:   name,
		logger: logger,
	}
}

// Add registers a handler and returns its subscription.
func (r *Registry[H]) Add(h H) Subscription {
	id := uuid.NewString()

	r.mu.Lock()
	r.entries = append(r.entries, entry[H]{id: id, handler: h})
	r.mu.Unlock()

	return &subscription[H]{id: id, registry: r}
}

// Len returns the number of registered handlers.
func (r *Registry[H]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Each calls fn for every handler registered at the time of the call.
// The registry lock is not held while fn runs, so handlers may subscribe
// or unsubscribe freely. Returns the number of invocations that panicked.
func (r *Registry[H]) Each(fn func(H)) int {
	r.mu.RLock()
	snapshot := make([]entry[H], len(r.entries))
	copy(snapshot, r.entries)
	r.mu.RUnlock()

	failed := 0
	for _, e := range snapshot {
		if err := r.invoke(fn, e.handler); err != nil {
			failed++
			r.logger.Error("subscriber panicked",
				"registry", r.name,
				"subscription", e.id,
				"error", err,
			)
		}
	}
	return failed
}

func (r *Registry[H]) invoke(fn func(H), h H) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	fn(h)
	return nil
}

func (r *Registry[H]) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.id == id {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return
		}
	}
}

type subscription[H any] struct {
	id       string
	registry *Registry[H]
	once     sync.Once
}

func (s *subscription[H]) ID() string { return s.id }

func (s *subscription[H]) Unsubscribe() {
	s.once.Do(func() {
		s.registry.remove(s.id)
	})
}

// Group collects subscriptions so they can be released together.
type Group struct {
	mu   sync.Mutex
	subs []Subscription
}

// Add appends subscriptions to the group.
func (g *Group) Add(subs ...Subscription) {
	g.mu.Lock()
	g.subs = append(g.subs, subs...)
	g.mu.Unlock()
}

// Unsubscribe releases every subscription in the group.
func (g *Group) Unsubscribe() {
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
}
