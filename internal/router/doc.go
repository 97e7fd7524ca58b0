// Package router implements the Message Router component.
//
// The Message Router:
//   - Parses inbound frames and classifies them by type
//   - Consumes protocol-internal frames (handshake, pong) through hooks
//   - Fans every other frame out to subscribers in registration order
//   - Drops malformed frames without affecting the connection
package router
