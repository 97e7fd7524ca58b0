package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/mariankugiel/patient-realtime/internal/api"
	"github.com/mariankugiel/patient-realtime/internal/connection"
)

func TestLoadCredentials(t *testing.T) {
	t.Run("literal token wins", func(t *testing.T) {
		t.Setenv(TokenEnv, "from-env")

		creds, err := LoadCredentials("  literal  ", "")
		if err != nil {
			t.Fatalf("LoadCredentials failed: %v", err)
		}
		if creds.Token() != "literal" {
			t.Errorf("Token() = %q, want %q", creds.Token(), "literal")
		}
	})

	t.Run("token file", func(t *testing.T) {
		t.Setenv(TokenEnv, "from-env")
		path := filepath.Join(t.TempDir(), "token")
		if err := os.WriteFile(path, []byte("file-token\n"), 0600); err != nil {
			t.Fatalf("write token file: %v", err)
		}

		creds, err := LoadCredentials("", path)
		if err != nil {
			t.Fatalf("LoadCredentials failed: %v", err)
		}
		if creds.Token() != "file-token" {
			t.Errorf("Token() = %q, want %q", creds.Token(), "file-token")
		}
	})

	t.Run("environment fallback", func(t *testing.T) {
		t.Setenv(TokenEnv, "from-env")

		creds, err := LoadCredentials("", "")
		if err != nil {
			t.Fatalf("LoadCredentials failed: %v", err)
		}
		if creds.Token() != "from-env" {
			t.Errorf("Token() = %q, want %q", creds.Token(), "from-env")
		}
	})

	t.Run("nothing configured", func(t *testing.T) {
		t.Setenv(TokenEnv, "")

		_, err := LoadCredentials("", "")
		if !errors.Is(err, ErrNoToken) {
			t.Errorf("error = %v, want ErrNoToken", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadCredentials("", "/nonexistent/path/token")
		if err == nil || !strings.Contains(err.Error(), "read token file") {
			t.Errorf("error = %v, want read token file error", err)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "token")
		if err := os.WriteFile(path, []byte("\n"), 0600); err != nil {
			t.Fatalf("write token file: %v", err)
		}

		_, err := LoadCredentials("", path)
		if err == nil || !strings.Contains(err.Error(), "is empty") {
			t.Errorf("error = %v, want empty file error", err)
		}
	})
}

func TestCredentials_Clear(t *testing.T) {
	creds := NewCredentials("secret-token-1234")
	if !creds.Valid() {
		t.Fatal("new credentials should be valid")
	}

	creds.Clear()

	if creds.Valid() || creds.Token() != "" {
		t.Errorf("after Clear: Valid=%v Token=%q", creds.Valid(), creds.Token())
	}
}

func TestRedact(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"", "<empty>"},
		{"short", "****"},
		{"12345678", "****"},
		{"eyJhbGciOiJIUzI1NiJ9.abcd", "****abcd"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Redact(tt.token); got != tt.want {
				t.Errorf("Redact(%q) = %q, want %q", tt.token, got, tt.want)
			}
		})
	}

	creds := NewCredentials("eyJhbGciOiJIUzI1NiJ9.abcd")
	if s := fmt.Sprint(creds); strings.Contains(s, "eyJ") {
		t.Errorf("String() leaked token: %s", s)
	}
}

func TestIsAuthFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"handshake 401", &connection.TransportError{URL: "ws://x", StatusCode: 401, Err: errors.New("bad handshake")}, true},
		{"handshake 403", &connection.TransportError{URL: "ws://x", StatusCode: 403, Err: errors.New("bad handshake")}, true},
		{"handshake 502", &connection.TransportError{URL: "ws://x", StatusCode: 502, Err: errors.New("bad handshake")}, false},
		{"read error", &connection.TransportError{URL: "ws://x", Err: errors.New("eof")}, false},
		{"api 401 wrapped", fmt.Errorf("mark read 3: %w", &api.APIError{StatusCode: 401}), true},
		{"api 500", &api.APIError{StatusCode: 500}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAuthFailure(tt.err); got != tt.want {
				t.Errorf("IsAuthFailure() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGuard(t *testing.T) {
	authErr := &connection.TransportError{URL: "ws://x", StatusCode: 401, Err: errors.New("bad handshake")}

	t.Run("fires once at the limit", func(t *testing.T) {
		var fired atomic.Int32
		g := NewGuard(3, func() { fired.Add(1) }, nil)

		g.Observe(authErr)
		g.Observe(authErr)
		if fired.Load() != 0 {
			t.Fatal("policy fired before the limit")
		}
		if !g.Observe(authErr) {
			t.Error("third failure should trigger")
		}
		g.Observe(authErr)

		if fired.Load() != 1 {
			t.Errorf("policy fired %d times, want 1", fired.Load())
		}
	})

	t.Run("ignores other errors", func(t *testing.T) {
		var fired atomic.Int32
		g := NewGuard(1, func() { fired.Add(1) }, nil)

		g.Observe(errors.New("network down"))
		g.Observe(nil)

		if g.Failures() != 0 || fired.Load() != 0 {
			t.Errorf("failures=%d fired=%d, want 0/0", g.Failures(), fired.Load())
		}
	})

	t.Run("reset re-arms", func(t *testing.T) {
		var fired atomic.Int32
		g := NewGuard(2, func() { fired.Add(1) }, nil)

		g.Observe(authErr)
		g.Reset()
		g.Observe(authErr)
		if fired.Load() != 0 {
			t.Fatal("reset should clear consecutive count")
		}
		g.Observe(authErr)
		g.Reset()
		g.Observe(authErr)
		g.Observe(authErr)

		if fired.Load() != 2 {
			t.Errorf("policy fired %d times, want 2", fired.Load())
		}
	})

	t.Run("minimum of one", func(t *testing.T) {
		g := NewGuard(0, nil, nil)
		if !g.Observe(authErr) {
			t.Error("max 0 should behave as 1")
		}
	})
}
