package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "patient_realtime"

var (
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Inbound frames by type",
		},
		[]string{"type"},
	)
	protocolErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Inbound frames dropped because they could not be parsed",
		},
	)
	connectionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "1 for the current connection state, 0 otherwise",
		},
		[]string{"state"},
	)
	reconnectsScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect attempts scheduled after an abnormal close",
		},
	)
	reconnectsExhausted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_exhausted_total",
			Help:      "Times the reconnect ceiling was reached",
		},
	)
	heartbeatPings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeat_pings_total",
			Help:      "Heartbeat pings by outcome",
		},
		[]string{"status"},
	)
	notificationsPushed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_pushed_total",
			Help:      "Notifications received over the realtime channel by kind",
		},
		[]string{"kind"},
	)
	unreadNotifications = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notifications_unread",
			Help:      "Current unread notification count",
		},
	)
	remoteCallFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_call_failures_total",
			Help:      "Failed notification API calls by operation",
		},
		[]string{"op"},
	)
	reconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Notification resyncs by outcome",
		},
		[]string{"status"},
	)
	effectFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "effect_failures_total",
			Help:      "Failed notification side effects by effect name",
		},
		[]string{"effect"},
	)
	presenceEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_events_total",
			Help:      "Presence changes by status",
		},
		[]string{"status"},
	)
	subscriberPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriber_panics_total",
			Help:      "Recovered panics in subscriber callbacks by registry",
		},
		[]string{"registry"},
	)
)

func init() {
	prometheus.MustRegister(
		framesReceived,
		protocolErrors,
		connectionState,
		reconnectsScheduled,
		reconnectsExhausted,
		heartbeatPings,
		notificationsPushed,
		unreadNotifications,
		remoteCallFailures,
		reconciliations,
		effectFailures,
		presenceEvents,
		subscriberPanics,
	)
}

// States lists every connection state label, in state-machine order.
var States = []string{"disconnected", "connecting", "connected", "reconnecting", "failed"}

// IncFrame counts an inbound frame of the given type.
func IncFrame(frameType string) {
	framesReceived.WithLabelValues(frameType).Inc()
}

// IncProtocolError counts a dropped malformed frame.
func IncProtocolError() {
	protocolErrors.Inc()
}

// SetConnectionState marks state as current and clears the others.
func SetConnectionState(state string) {
	for _, s := range States {
		v := 0.0
		if s == state {
			v = 1
		}
		connectionState.WithLabelValues(s).Set(v)
	}
}

// IncReconnectScheduled counts a scheduled reconnect.
func IncReconnectScheduled() {
	reconnectsScheduled.Inc()
}

// IncReconnectExhausted counts a transition to the failed state.
func IncReconnectExhausted() {
	reconnectsExhausted.Inc()
}

// IncHeartbeat counts a heartbeat ping; ok reports whether the write succeeded.
func IncHeartbeat(ok bool) {
	heartbeatPings.WithLabelValues(outcome(ok)).Inc()
}

// IncNotificationPushed counts a pushed notification.
func IncNotificationPushed(kind string) {
	notificationsPushed.WithLabelValues(kind).Inc()
}

// SetUnread records the unread notification count.
func SetUnread(n int) {
	unreadNotifications.Set(float64(n))
}

// IncRemoteCallFailure counts a failed notification API call.
func IncRemoteCallFailure(op string) {
	remoteCallFailures.WithLabelValues(op).Inc()
}

// IncReconcile counts a resync; ok reports whether it succeeded.
func IncReconcile(ok bool) {
	reconciliations.WithLabelValues(outcome(ok)).Inc()
}

// IncEffectFailure counts a failed side effect.
func IncEffectFailure(effect string) {
	effectFailures.WithLabelValues(effect).Inc()
}

// IncPresence counts a presence change.
func IncPresence(status string) {
	presenceEvents.WithLabelValues(status).Inc()
}

// AddSubscriberPanics counts recovered subscriber panics.
func AddSubscriberPanics(registry string, n int) {
	if n > 0 {
		subscriberPanics.WithLabelValues(registry).Add(float64(n))
	}
}

// Handler returns an HTTP handler that exposes Prometheus metrics.
func Handler() http.Handler { return promhttp.Handler() }

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
