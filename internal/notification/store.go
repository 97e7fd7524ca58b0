package notification

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/mariankugiel/patient-realtime/internal/api"
	"github.com/mariankugiel/patient-realtime/internal/metrics"
	"github.com/mariankugiel/patient-realtime/internal/model"
	"github.com/mariankugiel/patient-realtime/internal/protocol"
	"github.com/mariankugiel/patient-realtime/internal/subscriber"
)

// Store is the session's notification list. All methods are safe for
// concurrent use.
type Store struct {
	remote   Remote
	notifier Notifier
	cfg      Config
	logger   *slog.Logger

	onRemoteError func(error)
	changes       *subscriber.Registry[func(unread int)]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lifeMu sync.Mutex
	closed bool

	mu     sync.RWMutex
	items  []model.Notification
	unread int
	loaded bool

	// Pushes seen while a reconcile fetch is in flight.
	pushSeq    uint64
	fetching   int
	duringSync []pushRecord

	loadStarted atomic.Bool

	pushed         atomic.Int64
	remoteFailures atomic.Int64
	reconciles     atomic.Int64
	pending        atomic.Int64
}

type pushRecord struct {
	seq uint64
	n   model.Notification
}

// Option configures a Store.
type Option func(*Store)

// WithNotifier sets the side-effect sink for pushed notifications.
func WithNotifier(n Notifier) Option {
	return func(s *Store) {
		s.notifier = n
	}
}

// WithRemoteErrorHandler is called with a *RemoteCallError whenever a
// mirrored mutation fails.
func WithRemoteErrorHandler(fn func(error)) Option {
	return func(s *Store) {
		s.onRemoteError = fn
	}
}

// NewStore creates an empty store backed by remote.
func NewStore(remote Remote, cfg Config, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = DefaultConfig().RemoteTimeout
	}
	logger = logger.With("component", "notifications")

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		remote:  remote,
		cfg:     cfg,
		logger:  logger,
		changes: subscriber.NewRegistry[func(int)]("notification_changes", logger),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadInitial fetches history and the unread count concurrently. Only the
// first call does any work. On failure the store stays empty and the error
// is returned for logging; the session carries on.
func (s *Store) LoadInitial(ctx context.Context) error {
	if !s.loadStarted.CompareAndSwap(false, true) {
		return nil
	}

	var (
		items       []model.Notification
		serverCount int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = s.remote.ListNotifications(gctx, s.listOptions())
		return err
	})
	g.Go(func() error {
		var err error
		serverCount, err = s.remote.UnreadCount(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		s.logger.Error("initial notification load failed", "error", err)
		return fmt.Errorf("load notifications: %w", err)
	}

	unread := s.merge(items)
	if serverCount != unread {
		s.logger.Debug("server unread count differs from loaded page",
			"server", serverCount,
			"local", unread,
		)
	}

	s.logger.Info("notifications loaded", "count", len(items), "unread", unread)
	return nil
}

// Reconcile refetches the list and replaces local state with it.
// Notifications pushed while the fetch is in flight stay at the front.
func (s *Store) Reconcile(ctx context.Context) error {
	s.lifeMu.Lock()
	closed := s.closed
	s.lifeMu.Unlock()
	if closed {
		return ErrClosed
	}

	s.mu.Lock()
	s.fetching++
	since := s.pushSeq
	s.mu.Unlock()

	items, err := s.remote.ListNotifications(ctx, s.listOptions())

	s.mu.Lock()
	pushed := s.pushedSinceLocked(since)
	s.fetching--
	if s.fetching == 0 {
		s.duringSync = nil
	}
	if err != nil {
		s.mu.Unlock()
		metrics.IncReconcile(false)
		return fmt.Errorf("reconcile notifications: %w", err)
	}

	s.items = overlay(pushed, items)
	s.unread = countUnread(s.items)
	s.loaded = true
	unread, total := s.unread, len(s.items)
	s.mu.Unlock()

	s.reconciles.Add(1)
	metrics.IncReconcile(true)
	s.changed(unread)

	s.logger.Debug("notifications reconciled",
		"count", total,
		"unread", unread,
		"kept_pushes", len(pushed),
	)
	return nil
}

// pushedSinceLocked returns the current entries of notifications pushed
// after seq, newest first, one per id.
func (s *Store) pushedSinceLocked(seq uint64) []model.Notification {
	var (
		out  []model.Notification
		seen = make(map[int64]struct{})
	)
	for i := len(s.duringSync) - 1; i >= 0; i-- {
		rec := s.duringSync[i]
		if rec.seq <= seq {
			break
		}
		n := rec.n
		if n.ID != 0 {
			if _, dup := seen[n.ID]; dup {
				continue
			}
			seen[n.ID] = struct{}{}
			j := s.indexLocked(n.ID)
			if j < 0 {
				continue
			}
			n = s.items[j]
		}
		out = append(out, n)
	}
	return out
}

// overlay puts pushed ahead of fetched, dropping fetched entries that a
// push superseded.
func overlay(pushed, fetched []model.Notification) []model.Notification {
	if len(pushed) == 0 {
		return fetched
	}

	ids := make(map[int64]struct{}, len(pushed))
	for _, n := range pushed {
		if n.ID != 0 {
			ids[n.ID] = struct{}{}
		}
	}

	out := make([]model.Notification, 0, len(pushed)+len(fetched))
	out = append(out, pushed...)
	for _, n := range fetched {
		if _, ok := ids[n.ID]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// HandleFrame consumes notification and medication_reminder frames and
// ignores everything else.
func (s *Store) HandleFrame(f protocol.Frame) {
	if !f.IsNotification() {
		return
	}

	n, err := protocol.DecodeNotification(f)
	if err != nil {
		metrics.IncProtocolError()
		s.logger.Warn("dropping malformed notification", "type", f.Type, "error", err)
		return
	}
	s.OnPush(n)
}

// OnPush prepends a pushed notification and hands it to the notifier. A
// notification whose id is already present replaces the old entry.
func (s *Store) OnPush(n model.Notification) {
	if !n.Status.Valid() {
		n.Status = model.StatusUnread
	}

	s.mu.Lock()
	if n.ID != 0 {
		if i := s.indexLocked(n.ID); i >= 0 {
			if s.items[i].IsUnread() {
				s.unread--
			}
			s.items = slices.Delete(s.items, i, i+1)
		}
	}
	s.items = slices.Insert(s.items, 0, n)
	if n.IsUnread() {
		s.unread++
	}
	s.pushSeq++
	if s.fetching > 0 {
		s.duringSync = append(s.duringSync, pushRecord{seq: s.pushSeq, n: n})
	}
	unread := s.unread
	s.mu.Unlock()

	s.pushed.Add(1)
	metrics.IncNotificationPushed(string(n.Kind))
	s.changed(unread)

	s.logger.Debug("notification pushed", "id", n.ID, "kind", n.Kind, "unread", unread)

	if s.notifier != nil {
		s.notifier.Notify(n)
	}
}

// MarkRead moves an unread notification to read and mirrors the change.
// It reports whether local state changed; when it did not, no remote call
// is made.
func (s *Store) MarkRead(id int64) bool {
	if !s.setStatus(id, model.StatusRead) {
		return false
	}
	s.mirror(OpMarkRead, id, func(ctx context.Context) error {
		return s.remote.MarkRead(ctx, id)
	})
	return true
}

// Dismiss moves a notification to dismissed and mirrors the change.
func (s *Store) Dismiss(id int64) bool {
	if !s.setStatus(id, model.StatusDismissed) {
		return false
	}
	s.mirror(OpDismiss, id, func(ctx context.Context) error {
		return s.remote.Dismiss(ctx, id)
	})
	return true
}

// MarkAllRead marks every unread notification read, forces the counter to
// zero, and issues one bulk remote call. Dismissed entries are untouched.
func (s *Store) MarkAllRead() int {
	s.mu.Lock()
	marked := 0
	for i := range s.items {
		if s.items[i].IsUnread() {
			s.items[i].Status = model.StatusRead
			marked++
		}
	}
	s.unread = 0
	s.mu.Unlock()

	if marked > 0 {
		s.changed(0)
	}
	s.mirror(OpMarkAllRead, 0, s.remote.MarkAllRead)
	return marked
}

func (s *Store) setStatus(id int64, target model.NotificationStatus) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}

	cur := s.items[i].Status
	// Dismissed is final for read transitions.
	if cur == target || (cur == model.StatusDismissed && target == model.StatusRead) {
		s.mu.Unlock()
		return false
	}

	if cur == model.StatusUnread {
		s.unread = max(0, s.unread-1)
	}
	s.items[i].Status = target
	unread := s.unread
	s.mu.Unlock()

	s.changed(unread)
	return true
}

// mirror runs a remote call in the background. Calls issued after Close
// are skipped.
func (s *Store) mirror(op string, id int64, call func(ctx context.Context) error) {
	s.lifeMu.Lock()
	if s.closed {
		s.lifeMu.Unlock()
		s.logger.Debug("store closed, skipping remote call", "op", op, "id", id)
		return
	}
	s.wg.Add(1)
	s.lifeMu.Unlock()

	s.pending.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.pending.Add(-1)

		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.RemoteTimeout)
		defer cancel()

		if err := call(ctx); err != nil {
			s.remoteFailed(&RemoteCallError{Op: op, ID: id, Err: err})
		}
	}()
}

func (s *Store) remoteFailed(err *RemoteCallError) {
	s.remoteFailures.Add(1)
	metrics.IncRemoteCallFailure(err.Op)
	s.logger.Warn("remote call failed", "op", err.Op, "id", err.ID, "error", err.Err)

	if s.onRemoteError != nil {
		s.onRemoteError(err)
	}
}

// merge installs a fetched list, keeping any pushes received before it
// arrived that the list does not contain.
func (s *Store) merge(fetched []model.Notification) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int64]struct{}, len(fetched))
	for _, n := range fetched {
		seen[n.ID] = struct{}{}
	}

	merged := make([]model.Notification, 0, len(s.items)+len(fetched))
	for _, n := range s.items {
		if _, ok := seen[n.ID]; !ok {
			merged = append(merged, n)
		}
	}
	merged = append(merged, fetched...)

	s.items = merged
	s.unread = countUnread(merged)
	s.loaded = true

	metrics.SetUnread(s.unread)
	return s.unread
}

func (s *Store) changed(unread int) {
	metrics.SetUnread(unread)
	if n := s.changes.Each(func(fn func(int)) { fn(unread) }); n > 0 {
		metrics.AddSubscriberPanics("notification_changes", n)
	}
}

func (s *Store) indexLocked(id int64) int {
	return slices.IndexFunc(s.items, func(n model.Notification) bool {
		return n.ID == id
	})
}

func (s *Store) listOptions() api.ListOptions {
	return api.ListOptions{Limit: s.cfg.PageSize}
}

// OnChange registers fn to receive the unread count after every change.
func (s *Store) OnChange(fn func(unread int)) subscriber.Subscription {
	return s.changes.Add(fn)
}

// Notifications returns a copy of the list, newest first.
func (s *Store) Notifications() []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// Get returns the notification with the given id.
func (s *Store) Get(id int64) (model.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexLocked(id); i >= 0 {
		return s.items[i], true
	}
	return model.Notification{}, false
}

// UnreadCount returns the number of unread notifications.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// Stats returns a snapshot of store counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	total, unread, loaded := len(s.items), s.unread, s.loaded
	s.mu.RUnlock()

	return Stats{
		Total:          total,
		Unread:         unread,
		Loaded:         loaded,
		Pushed:         s.pushed.Load(),
		RemoteFailures: s.remoteFailures.Load(),
		Reconciles:     s.reconciles.Load(),
		PendingRemote:  s.pending.Load(),
	}
}

// Wait blocks until every in-flight remote call has finished.
func (s *Store) Wait() {
	s.wg.Wait()
}

// Close stops accepting remote calls and waits for in-flight ones. If ctx
// expires first, the remaining calls are cancelled.
func (s *Store) Close(ctx context.Context) error {
	s.lifeMu.Lock()
	if s.closed {
		s.lifeMu.Unlock()
		return nil
	}
	s.closed = true
	s.lifeMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

func countUnread(items []model.Notification) int {
	n := 0
	for _, item := range items {
		if item.IsUnread() {
			n++
		}
	}
	return n
}
