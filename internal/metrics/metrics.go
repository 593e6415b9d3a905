// Package metrics provides Prometheus instrumentation for the Willow API.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "willow",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// EmbedSessionsTotal counts embed session resolutions by result.
	EmbedSessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Name:      "embed_sessions_total",
			Help:      "Total embed session resolutions by result (ok, domain_rejected, not_found, limit_reached).",
		},
		[]string{"result"},
	)

	// EmbedTokensIssuedTotal counts freshly minted embed tokens.
	EmbedTokensIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "willow",
		Name:      "embed_tokens_issued_total",
		Help:      "Total embed tokens minted (reuses of an existing token are not counted).",
	})

	// VerificationEmailsTotal counts verification emails by result.
	VerificationEmailsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Name:      "verification_emails_total",
			Help:      "Total verification email sends by result (sent, failed).",
		},
		[]string{"result"},
	)

	// VerificationRedemptionsTotal counts token redemption attempts by outcome.
	VerificationRedemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Name:      "verification_redemptions_total",
			Help:      "Total verification token redemptions by outcome (ok, invalid, consumed, expired).",
		},
		[]string{"outcome"},
	)

	// StripeWebhookEventsTotal counts processed Stripe webhook events by type and result.
	StripeWebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Name:      "stripe_webhook_events_total",
			Help:      "Total Stripe webhook events by type and result.",
		},
		[]string{"type", "result"},
	)

	// UsageQueriesTotal counts usage meter evaluations by tier.
	UsageQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Name:      "usage_queries_total",
			Help:      "Total usage meter evaluations by effective tier.",
		},
		[]string{"tier"},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "willow", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "willow", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "willow", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// DBWaitCount tracks the total number of connections waited for.
	DBWaitCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "willow", Name: "db_wait_count_total",
		Help: "Total number of connections waited for.",
	})
	// DBWaitDuration tracks total time waited for connections.
	DBWaitDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "willow", Name: "db_wait_duration_seconds_total",
		Help: "Total time waited for connections in seconds.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "willow", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		EmbedSessionsTotal,
		EmbedTokensIssuedTotal,
		VerificationEmailsTotal,
		VerificationRedemptionsTotal,
		StripeWebhookEventsTotal,
		UsageQueriesTotal,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		DBWaitCount,
		DBWaitDuration,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			DBWaitCount.Set(float64(stats.WaitCount))
			DBWaitDuration.Set(stats.WaitDuration.Seconds())
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
