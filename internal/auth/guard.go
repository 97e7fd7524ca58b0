package auth

import (
	"log/slog"
	"sync"
)

// Guard counts consecutive authentication failures and runs the caller's
// policy once the limit is reached. The policy runs at most once until Reset.
type Guard struct {
	max         int
	onExhausted func()
	logger      *slog.Logger

	mu        sync.Mutex
	failures  int
	triggered bool
}

// NewGuard creates a guard. A max below 1 is treated as 1.
func NewGuard(max int, onExhausted func(), logger *slog.Logger) *Guard {
	if max < 1 {
		max = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		max:         max,
		onExhausted: onExhausted,
		logger:      logger.With("component", "auth_guard"),
	}
}

// Observe records err. Non-auth errors leave the count untouched. It returns
// true when this call triggered the policy.
func (g *Guard) Observe(err error) bool {
	if !IsAuthFailure(err) {
		return false
	}

	g.mu.Lock()
	g.failures++
	n := g.failures
	fire := n >= g.max && !g.triggered
	if fire {
		g.triggered = true
	}
	g.mu.Unlock()

	g.logger.Warn("authentication rejected", "failures", n, "max", g.max, "error", err)

	if fire {
		g.logger.Error("authentication failure limit reached", "failures", n)
		if g.onExhausted != nil {
			g.onExhausted()
		}
	}
	return fire
}

// Reset clears the count after a successful authenticated open.
func (g *Guard) Reset() {
	g.mu.Lock()
	g.failures = 0
	g.triggered = false
	g.mu.Unlock()
}

// Failures returns the current consecutive failure count.
func (g *Guard) Failures() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures
}
