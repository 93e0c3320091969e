package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"app", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tether",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"app", "method", "path", "status"},
	)
	linkConnectIntents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "link",
			Name:      "connect_intents_total",
			Help:      "Connect intents published by a link, by kind.",
		},
		[]string{"kind"},
	)
	linkDecodeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "link",
			Name:      "decode_errors_total",
			Help:      "Inbound units dropped by the decoder.",
		},
	)
	linkTerminalFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "link",
			Name:      "terminal_failures_total",
			Help:      "Terminal end events surfaced by a link, by reason.",
		},
		[]string{"reason"},
	)
	linkBackoffDelay = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tether",
			Subsystem: "link",
			Name:      "backoff_delay_seconds",
			Help:      "Computed backoff delay per retry attempt.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
	relayConnections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "relay",
			Name:      "connections_total",
			Help:      "Accepted relay WebSocket connections.",
		},
	)
	relayMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "relay",
			Name:      "messages_total",
			Help:      "Relay messages, by direction.",
		},
		[]string{"direction"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			linkConnectIntents,
			linkDecodeErrors,
			linkTerminalFailures,
			linkBackoffDelay,
			relayConnections,
			relayMessages,
		)
	})
}

func RecordHTTPRequest(app, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(app, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(app, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordConnectIntent(kind string) {
	RegisterMetrics()
	linkConnectIntents.WithLabelValues(kind).Inc()
}

func RecordDecodeError() {
	RegisterMetrics()
	linkDecodeErrors.Inc()
}

func RecordTerminalFailure(reason string) {
	RegisterMetrics()
	linkTerminalFailures.WithLabelValues(reason).Inc()
}

func RecordBackoffDelay(delay time.Duration) {
	RegisterMetrics()
	linkBackoffDelay.Observe(delay.Seconds())
}

func RecordRelayConnection() {
	RegisterMetrics()
	relayConnections.Inc()
}

func RecordRelayMessage(direction string) {
	RegisterMetrics()
	relayMessages.WithLabelValues(direction).Inc()
}
