package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fixgate"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)
	sessionMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "messages_total",
			Help:      "FIX messages by direction and MsgType.",
		},
		[]string{"session", "direction", "msg_type"},
	)
	sessionResendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "resend_requests_total",
			Help:      "ResendRequests sent or serviced.",
		},
		[]string{"session", "direction"},
	)
	sessionGapFills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "gap_fills_total",
			Help:      "SequenceReset messages sent or applied.",
		},
		[]string{"session", "direction", "gap_fill"},
	)
	sessionRejects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "rejects_total",
			Help:      "Session-level Reject messages.",
		},
		[]string{"session", "direction"},
	)
	sessionHeartbeats = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "heartbeats_total",
			Help:      "Heartbeats sent or received.",
		},
		[]string{"session", "direction"},
	)
	sessionTestRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "test_requests_total",
			Help:      "TestRequests sent after receive-timer expiry.",
		},
		[]string{"session"},
	)
	sessionTerminations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "terminations_total",
			Help:      "Session terminations by reason.",
		},
		[]string{"session", "reason"},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions currently in the ACTIVE state.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			sessionMessages,
			sessionResendRequests,
			sessionGapFills,
			sessionRejects,
			sessionHeartbeats,
			sessionTestRequests,
			sessionTerminations,
			sessionsActive,
		)
	})
}

func RecordHTTPRequest(service, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(service, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordMessage counts one message; direction is "in" or "out".
func RecordMessage(session, direction, msgType string) {
	RegisterMetrics()
	sessionMessages.WithLabelValues(session, direction, msgType).Inc()
}

func RecordResendRequest(session, direction string) {
	RegisterMetrics()
	sessionResendRequests.WithLabelValues(session, direction).Inc()
}

func RecordSequenceReset(session, direction string, gapFill bool) {
	RegisterMetrics()
	sessionGapFills.WithLabelValues(session, direction, strconv.FormatBool(gapFill)).Inc()
}

func RecordReject(session, direction string) {
	RegisterMetrics()
	sessionRejects.WithLabelValues(session, direction).Inc()
}

func RecordHeartbeat(session, direction string) {
	RegisterMetrics()
	sessionHeartbeats.WithLabelValues(session, direction).Inc()
}

func RecordTestRequest(session string) {
	RegisterMetrics()
	sessionTestRequests.WithLabelValues(session).Inc()
}

func RecordTermination(session, reason string) {
	RegisterMetrics()
	sessionTerminations.WithLabelValues(session, reason).Inc()
}

// SessionActive moves the active gauge by one in either direction.
func SessionActive(active bool) {
	RegisterMetrics()
	if active {
		sessionsActive.Inc()
		return
	}
	sessionsActive.Dec()
}
