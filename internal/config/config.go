// Package config loads the realtime client's YAML configuration.
package config

import "time"

// Config is the root configuration for one realtime session.
type Config struct {
	Session       SessionConfig       `yaml:"session"`
	API           APIConfig           `yaml:"api"`
	Connection    ConnectionConfig    `yaml:"connection"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Auth          AuthConfig          `yaml:"auth"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Log           LogConfig           `yaml:"log"`
}

// SessionConfig identifies this session in logs.
type SessionConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds the notification service endpoints and credentials.
type APIConfig struct {
	RestURL    string        `yaml:"rest_url"`
	WSURL      string        `yaml:"ws_url"`
	Token      string        `yaml:"token"`      // Opaque bearer token
	TokenFile  string        `yaml:"token_file"` // Read when token is empty
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// ConnectionConfig holds WebSocket connection manager settings.
type ConnectionConfig struct {
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	BufferSize           int           `yaml:"buffer_size"`
}

// NotificationsConfig holds notification store and side-effect settings.
type NotificationsConfig struct {
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	RemoteTimeout     time.Duration `yaml:"remote_timeout"`
	PageSize          int           `yaml:"page_size"`
	WebhookURL        string        `yaml:"webhook_url"` // Optional local notifier gateway
	Bell              bool          `yaml:"bell"`        // Ring the terminal bell for reminders
}

// AuthConfig holds the auth failure policy.
type AuthConfig struct {
	MaxAuthFailures int `yaml:"max_auth_failures"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
