package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Reconciler refreshes local state from the source of truth.
type Reconciler interface {
	Reconcile(ctx context.Context) error
}

// ReconcilerFunc is a function adapter for Reconciler.
type ReconcilerFunc func(ctx context.Context) error

func (f ReconcilerFunc) Reconcile(ctx context.Context) error {
	return f(ctx)
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Poll interval (default: 5m)
	Timeout     time.Duration // Per-cycle timeout (default: 30s)
	PollOnStart bool          // Run one cycle immediately on Start
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Minute,
		Timeout:  30 * time.Second,
	}
}

// Stats holds poller counters.
type Stats struct {
	Runs      int64
	Failures  int64
	Triggered int64
	LastRun   time.Time
}

// Poller periodically reconciles a target.
type Poller struct {
	cfg     Config
	target  Reconciler
	logger  *slog.Logger
	trigger chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool

	runs      atomic.Int64
	failures  atomic.Int64
	triggered atomic.Int64
	lastRun   atomic.Int64 // unix nanos
}

// New creates a new Poller.
func New(cfg Config, target Reconciler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		cfg:     cfg,
		target:  target,
		logger:  logger.With("component", "poller"),
		trigger: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins the polling loop. ctx only bounds the call itself; the loop
// runs until Stop. Starting twice is a no-op.
func (p *Poller) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.wg.Add(1)
	p.mu.Unlock()

	go p.run()

	p.logger.Info("reconciliation poller started", "interval", p.cfg.Interval)
	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("reconciliation poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger requests a cycle as soon as possible. Requests made while one is
// already pending are merged.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
		p.triggered.Add(1)
	default:
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	if p.cfg.PollOnStart {
		p.poll()
	}

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.poll()
		case <-p.trigger:
			p.poll()
			ticker.Reset(p.cfg.Interval)
		}
	}
}

// poll runs one reconciliation cycle.
func (p *Poller) poll() {
	start := time.Now()

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	err := p.target.Reconcile(ctx)

	p.runs.Add(1)
	p.lastRun.Store(start.UnixNano())

	if err != nil {
		p.failures.Add(1)
		p.logger.Warn("reconcile failed",
			"error", err,
			"duration", time.Since(start),
		)
		return
	}

	p.logger.Debug("reconcile complete", "duration", time.Since(start))
}

// Stats returns poller counters.
func (p *Poller) Stats() Stats {
	s := Stats{
		Runs:      p.runs.Load(),
		Failures:  p.failures.Load(),
		Triggered: p.triggered.Load(),
	}
	if ns := p.lastRun.Load(); ns != 0 {
		s.LastRun = time.Unix(0, ns)
	}
	return s
}
