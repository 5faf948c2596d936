package observ

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_http_requests_total",
			Help: "HTTP requests by matched route, method and status code",
		},
		[]string{"route", "method", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "convo_http_request_duration_seconds",
			Help:    "HTTP request latency by matched route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	MessagesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_messages_appended_total",
			Help: "Messages appended by type and origin (guest or staff)",
		},
		[]string{"type", "origin"},
	)

	Reactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_reactions_total",
			Help: "Reaction mutations by operation",
		},
		[]string{"op"},
	)

	// Conflicts counts mutations that gave up waiting for a row lock.
	Conflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_conflicts_total",
			Help: "Mutations rejected with a concurrent update conflict",
		},
		[]string{"op"},
	)

	GuestSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "convo_guest_sessions_active",
			Help: "Guest sessions with activity inside the active window",
		},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_notifications_total",
			Help: "Staff notifications by dispatch outcome",
		},
		[]string{"status"},
	)
)

// Message origins.
const (
	OriginGuest = "guest"
	OriginStaff = "staff"
)

func RecordMessage(msgType, origin string) {
	MessagesAppended.WithLabelValues(msgType, origin).Inc()
}

func RecordReaction(op string) {
	Reactions.WithLabelValues(op).Inc()
}

func RecordConflict(op string) {
	Conflicts.WithLabelValues(op).Inc()
}

func RecordNotifications(status string, n int) {
	Notifications.WithLabelValues(status).Add(float64(n))
}
