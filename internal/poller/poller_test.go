package poller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mariankugiel/patient-realtime/internal/api"
)

func TestPoller_Poll(t *testing.T) {
	// Create a test server that returns an unread count.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"unread_count": 3})
	}))
	defer server.Close()

	client := api.NewClient(server.URL, "", api.WithTimeout(5*time.Second))

	var unread atomic.Int64
	target := ReconcilerFunc(func(ctx context.Context) error {
		n, err := client.UnreadCount(ctx)
		if err != nil {
			return err
		}
		unread.Store(int64(n))
		return nil
	})

	p := New(Config{Interval: time.Hour, Timeout: 5 * time.Second}, target, nil)

	// Call poll directly.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p.ctx = ctx

	p.poll()

	if got := unread.Load(); got != 3 {
		t.Errorf("unread = %d, want 3", got)
	}
	if s := p.Stats(); s.Runs != 1 || s.Failures != 0 || s.LastRun.IsZero() {
		t.Errorf("stats = %+v, want one successful run", s)
	}
}

func TestPoller_PollFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := api.NewClient(server.URL, "expired")
	target := ReconcilerFunc(func(ctx context.Context) error {
		_, err := client.UnreadCount(ctx)
		return err
	})

	p := New(Config{Interval: time.Hour}, target, nil)

	p.poll()
	p.poll()

	if s := p.Stats(); s.Runs != 2 || s.Failures != 2 {
		t.Errorf("stats = %+v, want 2 runs and 2 failures", s)
	}
}

func TestPoller_StartStop(t *testing.T) {
	var calls atomic.Int32
	target := ReconcilerFunc(func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	cfg := Config{
		Interval: 100 * time.Millisecond,
		Timeout:  5 * time.Second,
	}

	p := New(cfg, target, nil)

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Wait for at least one poll.
	time.Sleep(250 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if calls.Load() == 0 {
		t.Error("reconciler was never called")
	}

	after := calls.Load()
	time.Sleep(150 * time.Millisecond)
	if calls.Load() != after {
		t.Error("reconciler called after Stop")
	}
}

func TestPoller_PollOnStart(t *testing.T) {
	called := make(chan struct{}, 1)
	target := ReconcilerFunc(func(ctx context.Context) error {
		select {
		case called <- struct{}{}:
		default:
		}
		return nil
	})

	p := New(Config{Interval: time.Hour, PollOnStart: true}, target, nil)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop(context.Background())

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("no cycle on start")
	}
}

func TestPoller_Trigger(t *testing.T) {
	release := make(chan struct{})
	var calls, inFlight, maxInFlight atomic.Int32

	target := ReconcilerFunc(func(ctx context.Context) error {
		current := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := maxInFlight.Load()
			if current <= old || maxInFlight.CompareAndSwap(old, current) {
				break
			}
		}
		if calls.Add(1) == 1 {
			<-release
		}
		return nil
	})

	p := New(Config{Interval: time.Hour}, target, nil)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop(context.Background())

	p.Trigger()

	// Wait until the first cycle is running.
	deadline := time.Now().Add(time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// A burst while a cycle runs collapses into one extra cycle.
	for i := 0; i < 10; i++ {
		p.Trigger()
	}
	close(release)

	deadline = time.Now().Add(time.Second)
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
	if got := maxInFlight.Load(); got != 1 {
		t.Errorf("maxInFlight = %d, want 1", got)
	}
}

func TestPoller_OutlivesStartContext(t *testing.T) {
	var calls atomic.Int32
	target := ReconcilerFunc(func(ctx context.Context) error {
		calls.Add(1)
		return ctx.Err()
	})

	p := New(Config{Interval: time.Hour}, target, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := p.Start(ctx); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	cancel()

	p.Trigger()

	deadline := time.Now().Add(time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d after start context ended, want 1", calls.Load())
	}
	if s := p.Stats(); s.Failures != 0 {
		t.Errorf("cycle ran with a cancelled context: %+v", s)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	p.Trigger()
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 1 {
		t.Error("reconciler called after Stop")
	}
}

func TestPoller_StartWithDoneContext(t *testing.T) {
	p := New(DefaultConfig(), ReconcilerFunc(func(context.Context) error { return nil }), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Start error = %v, want context.Canceled", err)
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Errorf("Stop without Start failed: %v", err)
	}
}

func TestPoller_TimeoutApplied(t *testing.T) {
	target := ReconcilerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	p := New(Config{Interval: time.Hour, Timeout: 20 * time.Millisecond}, target, nil)

	start := time.Now()
	p.poll()

	if time.Since(start) > time.Second {
		t.Error("cycle ignored its timeout")
	}
	if p.Stats().Failures != 1 {
		t.Error("timed out cycle should count as a failure")
	}
}

func TestReconcilerFunc(t *testing.T) {
	want := errors.New("boom")
	f := ReconcilerFunc(func(context.Context) error { return want })
	if err := f.Reconcile(context.Background()); !errors.Is(err, want) {
		t.Errorf("Reconcile() = %v, want %v", err, want)
	}
}
