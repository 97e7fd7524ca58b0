// Package effects runs best-effort side effects for pushed notifications.
//
// Notifications are queued without bound and applied by a single worker in
// arrival order. Each effect runs in isolation: an error or panic in one is
// logged and counted and the remaining effects still run.
package effects

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mariankugiel/patient-realtime/internal/metrics"
	"github.com/mariankugiel/patient-realtime/internal/model"
	"github.com/mariankugiel/patient-realtime/internal/queue"
)

// Effect is one side effect applied to each pushed notification.
type Effect interface {
	Name() string
	Apply(ctx context.Context, n model.Notification) error
}

type funcEffect struct {
	name string
	fn   func(ctx context.Context, n model.Notification) error
}

func (f funcEffect) Name() string { return f.name }

func (f funcEffect) Apply(ctx context.Context, n model.Notification) error {
	return f.fn(ctx, n)
}

// Func adapts a function to an Effect.
func Func(name string, fn func(ctx context.Context, n model.Notification) error) Effect {
	return funcEffect{name: name, fn: fn}
}

// Config holds dispatcher settings.
type Config struct {
	EffectTimeout time.Duration // Per effect application
	QueueCapacity int           // Initial queue capacity; grows as needed
}

// DefaultConfig returns dispatcher defaults.
func DefaultConfig() Config {
	return Config{
		EffectTimeout: 10 * time.Second,
		QueueCapacity: 64,
	}
}

// Stats holds dispatcher counters.
type Stats struct {
	Queued    int
	Processed int64
	Failures  int64
	Dropped   int64
}

// Dispatcher applies effects on a background worker.
type Dispatcher struct {
	cfg     Config
	effects []Effect
	logger  *slog.Logger
	queue   *queue.Buffer[model.Notification]

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	processed atomic.Int64
	failures  atomic.Int64
	dropped   atomic.Int64
}

// NewDispatcher creates a dispatcher and starts its worker.
func NewDispatcher(cfg Config, logger *slog.Logger, effects ...Effect) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EffectTimeout <= 0 {
		cfg.EffectTimeout = DefaultConfig().EffectTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:     cfg,
		effects: effects,
		logger:  logger.With("component", "effects"),
		queue:   queue.New[model.Notification](cfg.QueueCapacity),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go d.run()
	return d
}

// Notify queues n. It never blocks; after Close the notification is dropped.
func (d *Dispatcher) Notify(n model.Notification) {
	if !d.queue.Push(n) {
		d.dropped.Add(1)
		d.logger.Debug("dispatcher closed, dropping notification", "id", n.ID)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for {
		n, ok := d.queue.Pop()
		if !ok {
			return
		}
		for _, e := range d.effects {
			if err := d.apply(e, n); err != nil {
				d.failures.Add(1)
				metrics.IncEffectFailure(e.Name())
				d.logger.Warn("effect failed",
					"effect", e.Name(),
					"notification_id", n.ID,
					"error", err,
				)
			}
		}
		d.processed.Add(1)
	}
}

func (d *Dispatcher) apply(e Effect, n model.Notification) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.EffectTimeout)
	defer cancel()
	return e.Apply(ctx, n)
}

// Close stops accepting notifications and waits for the queue to drain.
// If ctx expires first, in-flight effects are cancelled and the remaining
// queue is abandoned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.once.Do(d.queue.Close)

	select {
	case <-d.done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		for {
			if _, ok := d.queue.TryPop(); !ok {
				break
			}
			d.dropped.Add(1)
		}
		<-d.done
		return ctx.Err()
	}
}

// Stats returns dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Queued:    d.queue.Len(),
		Processed: d.processed.Load(),
		Failures:  d.failures.Load(),
		Dropped:   d.dropped.Load(),
	}
}
