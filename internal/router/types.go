package router

import (
	"fmt"

	"github.com/mariankugiel/patient-realtime/internal/protocol"
)

// Handler receives a routed frame. Handlers must not assume they are the
// only or first recipient.
type Handler func(protocol.Frame)

// Hooks receive protocol-internal frames. Nil hooks are skipped.
type Hooks struct {
	OnHandshake func(connectionID string)
	OnPong      func(f protocol.Frame)
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	FramesReceived int64 // Every frame passed to Dispatch
	FramesRouted   int64 // Frames delivered to subscribers
	InternalFrames int64 // Handshake and pong frames
	ParseErrors    int64 // Frames dropped as malformed
	HandlerPanics  int64 // Recovered subscriber panics
}

// ProtocolError is a malformed inbound frame. It is never fatal to the
// connection.
type ProtocolError struct {
	Raw []byte
	Err error
}

func (e *ProtocolError) Error() string {
	const maxRaw = 128
	raw := e.Raw
	if len(raw) > maxRaw {
		raw = raw[:maxRaw]
	}
	return fmt.Sprintf("protocol error: %v (frame %q)", e.Err, raw)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
