package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intervue",
		Name:      "sessions_started_total",
		Help:      "Interview sessions started or resumed",
	}, []string{"mode"})

	sessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intervue",
		Name:      "sessions_ended_total",
		Help:      "Interview sessions ended, by reason",
	}, []string{"reason"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "intervue",
		Name:      "active_sessions",
		Help:      "Sessions currently owned by this agent",
	})

	socketReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intervue",
		Name:      "socket_reconnects_total",
		Help:      "Realtime transport reconnect outcomes",
	}, []string{"outcome"})

	warningsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "intervue",
		Name:      "warnings_total",
		Help:      "Content warnings received from the interview backend",
	})

	storeFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "intervue",
		Name:      "store_quota_fallbacks_total",
		Help:      "Session saves that fell back to the minimal record",
	})

	audioErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intervue",
		Name:      "audio_errors_total",
		Help:      "Audio playback errors by media error category",
	}, []string{"category"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "intervue",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of agent API requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

// SessionStarted counts a new ("start") or resumed ("resume") session.
func SessionStarted(mode string) {
	sessionsStarted.WithLabelValues(mode).Inc()
	activeSessions.Inc()
}

// SessionEnded counts a session leaving this agent.
func SessionEnded(reason string) {
	sessionsEnded.WithLabelValues(reason).Inc()
	activeSessions.Dec()
}

// SocketReconnect records a reconnect outcome ("success" or "exhausted").
func SocketReconnect(outcome string) {
	socketReconnects.WithLabelValues(outcome).Inc()
}

// WarningIssued counts a content warning.
func WarningIssued() { warningsIssued.Inc() }

// StoreFallback counts a quota-exhaustion fallback write.
func StoreFallback() { storeFallbacks.Inc() }

// AudioError counts a playback error.
func AudioError(category string) {
	audioErrors.WithLabelValues(category).Inc()
}

// Middleware records request latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpLatency.WithLabelValues(c.Request.Method, path, statusClass(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the Prometheus registry.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
