package model

import "time"

// -----------------------------------------------------------------------------
// Notifications
// -----------------------------------------------------------------------------

// NotificationStatus is the read state of a notification.
type NotificationStatus string

const (
	StatusUnread    NotificationStatus = "unread"
	StatusRead      NotificationStatus = "read"
	StatusDismissed NotificationStatus = "dismissed"
)

// Valid reports whether s is one of the known statuses.
func (s NotificationStatus) Valid() bool {
	switch s {
	case StatusUnread, StatusRead, StatusDismissed:
		return true
	}
	return false
}

// NotificationKind classifies a notification.
type NotificationKind string

const (
	KindMedicationReminder NotificationKind = "medication_reminder"
	KindNotification       NotificationKind = "notification"
	KindMessage            NotificationKind = "message"
)

// Notification is a single entry in the user's notification list.
type Notification struct {
	ID           int64              // Backend primary key
	Title        string             // Short headline
	Message      string             // Body text
	Kind         NotificationKind   // medication_reminder, notification, message
	Status       NotificationStatus // unread, read, dismissed
	CreatedAt    time.Time          // Creation time (UTC)
	MedicationID *int64             // Set for medication reminders only
}

// IsUnread reports whether the notification counts toward the unread badge.
func (n Notification) IsUnread() bool {
	return n.Status == StatusUnread
}

// -----------------------------------------------------------------------------
// Presence
// -----------------------------------------------------------------------------

// PresenceStatus is a remote user's online state.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

// PresenceEvent is a single user_status_change push.
type PresenceEvent struct {
	UserID int64
	Status PresenceStatus
}

// -----------------------------------------------------------------------------
// Messaging
// -----------------------------------------------------------------------------

// ChatMessage is the payload of a new_message push.
type ChatMessage struct {
	ID         int64
	SenderID   int64
	ReceiverID int64
	Content    string
	CreatedAt  time.Time
}
