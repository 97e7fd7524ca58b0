package config

import (
	"time"

	"github.com/google/uuid"
)

// Default values for optional configuration fields.
const (
	DefaultRestURL              = "http://localhost:8000/api/v1"
	DefaultWSURL                = "ws://localhost:8000/api/v1/ws"
	DefaultAPITimeout           = 30 * time.Second
	DefaultMaxRetries           = 3
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectInterval    = 5 * time.Second
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultBufferSize           = 256
	DefaultReconcileInterval    = 5 * time.Minute
	DefaultRemoteTimeout        = 10 * time.Second
	DefaultPageSize             = 100
	DefaultMaxAuthFailures      = 3
	DefaultMetricsPort          = 9090
	DefaultMetricsPath          = "/metrics"
	DefaultLogLevel             = "info"
)

// ApplyDefaults fills zero-valued optional fields. A missing session id is
// generated.
func (c *Config) ApplyDefaults() {
	if c.Session.ID == "" {
		c.Session.ID = uuid.NewString()
	}

	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.WSURL == "" {
		c.API.WSURL = DefaultWSURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	// Connection defaults
	if c.Connection.MaxReconnectAttempts == 0 {
		c.Connection.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Connection.ReconnectInterval == 0 {
		c.Connection.ReconnectInterval = DefaultReconnectInterval
	}
	if c.Connection.HeartbeatInterval == 0 {
		c.Connection.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.BufferSize == 0 {
		c.Connection.BufferSize = DefaultBufferSize
	}

	// Notification defaults
	if c.Notifications.ReconcileInterval == 0 {
		c.Notifications.ReconcileInterval = DefaultReconcileInterval
	}
	if c.Notifications.RemoteTimeout == 0 {
		c.Notifications.RemoteTimeout = DefaultRemoteTimeout
	}
	if c.Notifications.PageSize == 0 {
		c.Notifications.PageSize = DefaultPageSize
	}

	if c.Auth.MaxAuthFailures == 0 {
		c.Auth.MaxAuthFailures = DefaultMaxAuthFailures
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}
