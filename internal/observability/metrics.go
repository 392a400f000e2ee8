package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "frames_processed_total",
		Help:      "Total number of camera frames processed by the engine",
	})

	AuthAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "auth_attempts_total",
		Help:      "Authentication attempt outcomes",
	}, []string{"result"})

	VerificationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "verification_duration_seconds",
		Help:      "Continuous detection time required to reach verified",
		Buckets:   prometheus.LinearBuckets(0.5, 0.5, 12),
	})

	UnauthorizedEscalations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "unauthorized_escalations_total",
		Help:      "Unauthorized-attempt records committed after a sustained low-confidence streak",
	})

	AccessLogsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "access_logs_written_total",
		Help:      "Access log records submitted to the persistence gateway",
	})

	SideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "side_effect_failures_total",
		Help:      "Absorbed persistence/alert failures by kind",
	}, []string{"kind"})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "tick_duration_seconds",
		Help:      "Duration of one engine tick (detect, embed, match, decide)",
		Buckets:   prometheus.ExponentialBuckets(0.002, 2, 10),
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facegate",
		Name:      "queue_depth",
		Help:      "Number of pending side-effect jobs in queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facegate",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
