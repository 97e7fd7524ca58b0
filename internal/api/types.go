package api

import "github.com/mariankugiel/patient-realtime/internal/protocol"

// NotificationsResponse from GET /notifications. The service returns a bare
// JSON array of notifications in display order.
type NotificationsResponse []protocol.NotificationPayload

// UnreadCountResponse from GET /notifications/unread-count
type UnreadCountResponse struct {
	UnreadCount int `json:"unread_count"`
}

// ListOptions configures a ListNotifications request.
type ListOptions struct {
	Limit  int
	Offset int
	Status string // unread, read, dismissed; empty for all
}
