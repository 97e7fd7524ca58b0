package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mariankugiel/patient-realtime/internal/api"
	"github.com/mariankugiel/patient-realtime/internal/auth"
	"github.com/mariankugiel/patient-realtime/internal/config"
	"github.com/mariankugiel/patient-realtime/internal/model"
	"github.com/mariankugiel/patient-realtime/internal/session"
)

type emptyRemote struct{}

func (emptyRemote) ListNotifications(context.Context, api.ListOptions) ([]model.Notification, error) {
	return nil, nil
}
func (emptyRemote) UnreadCount(context.Context) (int, error) { return 0, nil }
func (emptyRemote) MarkRead(context.Context, int64) error     { return nil }
func (emptyRemote) Dismiss(context.Context, int64) error      { return nil }
func (emptyRemote) MarkAllRead(context.Context) error         { return nil }

func TestHealthStatus(t *testing.T) {
	tests := []struct {
		state string
		authn bool
		want  string
	}{
		{"connected", true, "healthy"},
		{"connecting", true, "degraded"},
		{"reconnecting", true, "degraded"},
		{"failed", true, "unhealthy"},
		{"disconnected", true, "unhealthy"},
		{"connected", false, "unhealthy"},
	}

	for _, tt := range tests {
		snap := session.Snapshot{State: tt.state, Authenticated: tt.authn}
		if got := healthStatus(snap); got != tt.want {
			t.Errorf("healthStatus(%s, auth=%v) = %q, want %q", tt.state, tt.authn, got, tt.want)
		}
	}
}

func TestHealthHandler(t *testing.T) {
	var cfg config.Config
	cfg.ApplyDefaults()

	sess := session.New(session.ConfigFrom(&cfg), auth.NewCredentials("token"), emptyRemote{}, nil)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		sess.Close(ctx)
	}()

	handler := createHealthHandler(sess, "/metrics")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d for a session that never connected", rec.Code, http.StatusServiceUnavailable)
	}

	var body struct {
		Status  string `json:"status"`
		Session struct {
			ID    string `json:"id"`
			State string `json:"state"`
		} `json:"session"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body.Status != "unhealthy" || body.Session.State != "disconnected" {
		t.Errorf("health = %+v", body)
	}
	if body.Session.ID != cfg.Session.ID {
		t.Errorf("session id = %q, want %q", body.Session.ID, cfg.Session.ID)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", rec.Code)
	}
}
