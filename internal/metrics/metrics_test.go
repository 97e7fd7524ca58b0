package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetConnectionState(t *testing.T) {
	SetConnectionState("connected")

	for _, s := range States {
		want := 0.0
		if s == "connected" {
			want = 1
		}
		if got := testutil.ToFloat64(connectionState.WithLabelValues(s)); got != want {
			t.Errorf("connection_state{state=%q} = %v, want %v", s, got, want)
		}
	}

	SetConnectionState("failed")
	if got := testutil.ToFloat64(connectionState.WithLabelValues("connected")); got != 0 {
		t.Errorf("connected gauge = %v after leaving state, want 0", got)
	}
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(remoteCallFailures.WithLabelValues("mark_read"))
	IncRemoteCallFailure("mark_read")
	IncRemoteCallFailure("mark_read")
	if got := testutil.ToFloat64(remoteCallFailures.WithLabelValues("mark_read")); got != before+2 {
		t.Errorf("remote_call_failures_total = %v, want %v", got, before+2)
	}

	beforeOK := testutil.ToFloat64(heartbeatPings.WithLabelValues("success"))
	IncHeartbeat(true)
	if got := testutil.ToFloat64(heartbeatPings.WithLabelValues("success")); got != beforeOK+1 {
		t.Errorf("heartbeat success = %v, want %v", got, beforeOK+1)
	}
}

func TestAddSubscriberPanics_IgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(subscriberPanics.WithLabelValues("zero"))
	AddSubscriberPanics("zero", 0)
	if got := testutil.ToFloat64(subscriberPanics.WithLabelValues("zero")); got != before {
		t.Errorf("subscriber_panics_total = %v, want %v", got, before)
	}
}

func TestSetUnread(t *testing.T) {
	SetUnread(3)
	if got := testutil.ToFloat64(unreadNotifications); got != 3 {
		t.Errorf("notifications_unread = %v, want 3", got)
	}
}

func TestHandler(t *testing.T) {
	IncFrame("notification")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "patient_realtime_frames_received_total") {
		t.Error("metrics output missing frames_received_total")
	}
}
