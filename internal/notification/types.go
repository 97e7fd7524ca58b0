package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mariankugiel/patient-realtime/internal/api"
	"github.com/mariankugiel/patient-realtime/internal/model"
)

// Remote operation names used in errors, logs and metrics.
const (
	OpMarkRead    = "mark_read"
	OpDismiss     = "dismiss"
	OpMarkAllRead = "mark_all_read"
)

// ErrClosed is returned by operations that need the remote after Close.
var ErrClosed = errors.New("notification store closed")

// Remote is the subset of the notification service the store needs.
// *api.Client satisfies it.
type Remote interface {
	ListNotifications(ctx context.Context, opts api.ListOptions) ([]model.Notification, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkRead(ctx context.Context, id int64) error
	Dismiss(ctx context.Context, id int64) error
	MarkAllRead(ctx context.Context) error
}

// Notifier receives every pushed notification for side effects.
type Notifier interface {
	Notify(n model.Notification)
}

// RemoteCallError reports a mirrored mutation the service rejected or never
// received. ID is zero for bulk operations.
type RemoteCallError struct {
	Op  string
	ID  int64
	Err error
}

func (e *RemoteCallError) Error() string {
	if e.ID == 0 {
		return fmt.Sprintf("notification %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("notification %s %d: %v", e.Op, e.ID, e.Err)
}

func (e *RemoteCallError) Unwrap() error {
	return e.Err
}

// Config holds store settings.
type Config struct {
	RemoteTimeout time.Duration // Per remote call
	PageSize      int           // Limit for list fetches, 0 for the service default
}

// DefaultConfig returns the store defaults.
func DefaultConfig() Config {
	return Config{
		RemoteTimeout: 10 * time.Second,
		PageSize:      100,
	}
}

// Stats is a point-in-time view of the store.
type Stats struct {
	Total          int
	Unread         int
	Loaded         bool
	Pushed         int64
	RemoteFailures int64
	Reconciles     int64
	PendingRemote  int64
}
