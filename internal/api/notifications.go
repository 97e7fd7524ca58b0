package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/mariankugiel/patient-realtime/internal/model"
)

// ListNotifications fetches notifications in the order the service returns them.
func (c *Client) ListNotifications(ctx context.Context, opts ListOptions) ([]model.Notification, error) {
	query := url.Values{}

	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		query.Set("offset", strconv.Itoa(opts.Offset))
	}
	if opts.Status != "" {
		query.Set("status", opts.Status)
	}

	var resp NotificationsResponse
	if err := c.get(ctx, "/notifications", query, &resp); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	out := make([]model.Notification, 0, len(resp))
	for _, p := range resp {
		out = append(out, p.ToModel(string(model.KindNotification)))
	}
	return out, nil
}

// UnreadCount fetches the server-side unread counter.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var resp UnreadCountResponse
	if err := c.get(ctx, "/notifications/unread-count", nil, &resp); err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return resp.UnreadCount, nil
}

// MarkRead marks a single notification as read.
func (c *Client) MarkRead(ctx context.Context, id int64) error {
	if err := c.post(ctx, fmt.Sprintf("/notifications/%d/read", id), nil); err != nil {
		return fmt.Errorf("mark read %d: %w", id, err)
	}
	return nil
}

// Dismiss marks a single notification as dismissed.
func (c *Client) Dismiss(ctx context.Context, id int64) error {
	if err := c.post(ctx, fmt.Sprintf("/notifications/%d/dismiss", id), nil); err != nil {
		return fmt.Errorf("dismiss %d: %w", id, err)
	}
	return nil
}

// MarkAllRead marks every unread notification as read.
func (c *Client) MarkAllRead(ctx context.Context) error {
	if err := c.post(ctx, "/notifications/read-all", nil); err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	return nil
}
