// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns a single WebSocket transport per instance
//   - Reconnects after abnormal closes at a fixed interval, up to a ceiling
//   - Sends application-level heartbeat pings while connected
//   - Routes inbound frames through the Message Router
//   - Exposes connect, disconnect, error and message subscriptions
package connection
