// Package api provides the REST client for the notification service.
//
// Endpoints (relative to the configured base URL):
//   - GET  /notifications
//   - GET  /notifications/unread-count
//   - POST /notifications/{id}/read
//   - POST /notifications/{id}/dismiss
//   - POST /notifications/read-all
//
// All requests carry the session token as a Bearer credential.
package api
