// Package notification keeps the session's local notification list and
// unread counter.
//
// Mutations are applied locally first and mirrored to the notification
// service in the background. A failed remote call is not rolled back; it is
// reported through the remote error handler, which the session uses to
// schedule a reconciliation that replaces local state with the server's.
//
// The unread counter always equals the number of notifications whose status
// is unread.
package notification
