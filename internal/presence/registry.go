// Package presence fans user_status_change events out to subscribers and
// remembers the last known status per user.
package presence

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/mariankugiel/patient-realtime/internal/metrics"
	"github.com/mariankugiel/patient-realtime/internal/model"
	"github.com/mariankugiel/patient-realtime/internal/protocol"
	"github.com/mariankugiel/patient-realtime/internal/subscriber"
)

// Callback receives one presence change.
type Callback func(userID int64, status model.PresenceStatus)

// Registry tracks presence for one session.
type Registry struct {
	logger *slog.Logger
	subs   *subscriber.Registry[Callback]

	mu     sync.RWMutex
	status map[int64]model.PresenceStatus
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "presence")

	return &Registry{
		logger: logger,
		subs:   subscriber.NewRegistry[Callback]("presence", logger),
		status: make(map[int64]model.PresenceStatus),
	}
}

// Subscribe registers cb. Unsubscribing removes exactly this callback.
func (r *Registry) Subscribe(cb Callback) subscriber.Subscription {
	return r.subs.Add(cb)
}

// HandleFrame consumes user_status_change frames and ignores the rest.
func (r *Registry) HandleFrame(f protocol.Frame) {
	if f.Type != protocol.TypeUserStatusChange {
		return
	}

	ev, err := protocol.DecodePresence(f)
	if err != nil {
		metrics.IncProtocolError()
		r.logger.Warn("dropping malformed presence event", "error", err)
		return
	}
	r.Publish(ev)
}

// Publish records ev and delivers it to every subscriber. A panicking
// subscriber is logged and the rest still receive the event.
func (r *Registry) Publish(ev model.PresenceEvent) {
	if ev.Status != model.PresenceOnline && ev.Status != model.PresenceOffline {
		r.logger.Warn("unknown presence status", "user_id", ev.UserID, "status", ev.Status)
		return
	}

	r.mu.Lock()
	r.status[ev.UserID] = ev.Status
	r.mu.Unlock()

	metrics.IncPresence(string(ev.Status))

	failed := r.subs.Each(func(cb Callback) {
		cb(ev.UserID, ev.Status)
	})
	if failed > 0 {
		metrics.AddSubscriberPanics("presence", failed)
	}
}

// Status returns the last known status of a user.
func (r *Registry) Status(userID int64) (model.PresenceStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.status[userID]
	return s, ok
}

// Online returns the ids of users last seen online, in ascending order.
func (r *Registry) Online() []int64 {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.status))
	for id, s := range r.status {
		if s == model.PresenceOnline {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Reset forgets every known status. Subscribers are kept.
func (r *Registry) Reset() {
	r.mu.Lock()
	clear(r.status)
	r.mu.Unlock()
}
