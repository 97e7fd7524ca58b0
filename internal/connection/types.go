package connection

import (
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
	ErrInvalidURL    = errors.New("invalid websocket url")
)

// State is the lifecycle state of a Manager.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// DisconnectEvent is delivered to disconnect handlers on every close.
type DisconnectEvent struct {
	State         State // State entered: Reconnecting, Failed or Disconnected
	Attempts      int   // Consecutive abnormal closes so far
	UserInitiated bool  // True when caused by Disconnect
	Err           error // Close cause; *ReconnectExhaustedError when State is Failed
}

// TransportError is a socket-level failure: dial, read or write.
type TransportError struct {
	URL        string // Endpoint without credentials
	StatusCode int    // HTTP status of a failed handshake, 0 otherwise
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport %s: handshake status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ReconnectExhaustedError is reported once the reconnect ceiling is reached.
type ReconnectExhaustedError struct {
	Attempts int
}

func (e *ReconnectExhaustedError) Error() string {
	return fmt.Sprintf("reconnect attempts exhausted after %d tries", e.Attempts)
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL without credentials (e.g., wss://host/ws/notifications)
	Token            string        // Sent as the "token" query parameter
	HandshakeTimeout time.Duration // Dial + upgrade deadline
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       256,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	MaxReconnectAttempts int           // Abnormal closes tolerated before Failed
	ReconnectInterval    time.Duration // Fixed delay before each reconnect
	HeartbeatInterval    time.Duration // Ping period while connected
	HandshakeTimeout     time.Duration // Passed to each client
	WriteTimeout         time.Duration // Passed to each client
	BufferSize           int           // Passed to each client
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxReconnectAttempts: 5,
		ReconnectInterval:    5 * time.Second,
		HeartbeatInterval:    30 * time.Second,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         5 * time.Second,
		BufferSize:           256,
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	State               State
	ConnectionID        string
	ReconnectAttempts   int
	ReconnectsScheduled int64
	PendingReconnects   int // Never more than 1
	HeartbeatsSent      int64
	LastPong            time.Time
	FramesReceived      int64
	FramesRouted        int64
	ParseErrors         int64
}
