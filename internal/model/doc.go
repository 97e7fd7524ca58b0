// Package model defines shared domain types used across the realtime engine.
//
// Conventions:
//   - Notification IDs and user IDs: int64, as assigned by the backend
//   - Timestamps: time.Time in UTC
//   - Statuses are typed strings matching their wire values
package model
