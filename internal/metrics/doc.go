// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Connection state, reconnects and heartbeat pings
//   - Inbound frames by type and protocol errors
//   - Notification pushes, unread count and remote call failures
//   - Side-effect failures and presence events
package metrics
