// Package auth holds the session's opaque bearer token and the policy for
// repeated authentication failures.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/mariankugiel/patient-realtime/internal/api"
	"github.com/mariankugiel/patient-realtime/internal/connection"
)

// TokenEnv is consulted when neither a token nor a token file is configured.
const TokenEnv = "PATIENT_API_TOKEN"

// ErrNoToken is returned when no token source yields a value.
var ErrNoToken = errors.New("auth: no token configured")

// Credentials holds the bearer token for one authenticated session.
type Credentials struct {
	mu    sync.RWMutex
	token string
}

// NewCredentials wraps an already acquired token.
func NewCredentials(token string) *Credentials {
	return &Credentials{token: token}
}

// LoadCredentials resolves the token from, in order, the literal value, the
// token file, and the PATIENT_API_TOKEN environment variable.
func LoadCredentials(token, tokenFile string) (*Credentials, error) {
	token = strings.TrimSpace(token)
	if token == "" && tokenFile != "" {
		data, err := os.ReadFile(tokenFile)
		if err != nil {
			return nil, fmt.Errorf("read token file: %w", err)
		}
		token = strings.TrimSpace(string(data))
		if token == "" {
			return nil, fmt.Errorf("token file %s is empty", tokenFile)
		}
	}
	if token == "" {
		token = strings.TrimSpace(os.Getenv(TokenEnv))
	}
	if token == "" {
		return nil, ErrNoToken
	}

	return &Credentials{token: token}, nil
}

// Token returns the current token, or "" once cleared.
func (c *Credentials) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Clear drops the token. Subsequent requests go out unauthenticated.
func (c *Credentials) Clear() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// Valid reports whether a token is present.
func (c *Credentials) Valid() bool {
	return c.Token() != ""
}

// String never prints the token itself.
func (c *Credentials) String() string {
	return "Credentials{" + Redact(c.Token()) + "}"
}

// Redact masks a token for logging, keeping at most the last four characters.
func Redact(token string) string {
	switch {
	case token == "":
		return "<empty>"
	case len(token) <= 8:
		return "****"
	default:
		return "****" + token[len(token)-4:]
	}
}

// IsAuthFailure reports whether err is a rejected-credentials failure from
// either the WebSocket handshake or the REST API.
func IsAuthFailure(err error) bool {
	if err == nil {
		return false
	}

	var te *connection.TransportError
	if errors.As(err, &te) {
		return te.StatusCode == http.StatusUnauthorized || te.StatusCode == http.StatusForbidden
	}

	var ae *api.APIError
	if errors.As(err, &ae) {
		return ae.IsAuth()
	}

	return false
}
