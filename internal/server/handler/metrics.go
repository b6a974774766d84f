package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	chronosTransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronos_transactions_total",
		Help: "Total ledger transactions by final status.",
	}, []string{"status"})

	chronosEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronos_temporal_events_total",
		Help: "Total temporal events registered by kind.",
	}, []string{"kind"})

	chronosCoordinationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronos_coordination_attempts_total",
		Help: "Total coordination attempts by result.",
	}, []string{"result"})

	chronosProofsGeneratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chronos_proofs_generated_total",
		Help: "Total proofs generated.",
	})

	chronosProofsFinalizedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chronos_proofs_finalized_total",
		Help: "Total proofs finalized.",
	})

	chronosIntegritySweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronos_integrity_sweeps_total",
		Help: "Total background chain verification sweeps by result.",
	}, []string{"result"})

	chronosRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronos_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	chronosRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chronos_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		chronosRequestsTotal.WithLabelValues(method, path, status).Inc()
		chronosRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordTransaction records a ledger append outcome.
func RecordTransaction(confirmed bool) {
	if confirmed {
		chronosTransactionsTotal.WithLabelValues("confirmed").Inc()
	} else {
		chronosTransactionsTotal.WithLabelValues("rejected").Inc()
	}
}

// RecordEventKind records a registered temporal event.
func RecordEventKind(kind string) {
	chronosEventsTotal.WithLabelValues(kind).Inc()
}

// RecordCoordination records a coordination attempt outcome.
func RecordCoordination(completed bool) {
	if completed {
		chronosCoordinationTotal.WithLabelValues("completed").Inc()
	} else {
		chronosCoordinationTotal.WithLabelValues("rejected").Inc()
	}
}

// RecordProofGenerated records a proof generation.
func RecordProofGenerated() { chronosProofsGeneratedTotal.Inc() }

// RecordProofFinalized records a proof finalization.
func RecordProofFinalized() { chronosProofsFinalizedTotal.Inc() }

// RecordIntegritySweep records a background verification sweep result.
func RecordIntegritySweep(valid bool) {
	if valid {
		chronosIntegritySweepsTotal.WithLabelValues("valid").Inc()
	} else {
		chronosIntegritySweepsTotal.WithLabelValues("broken").Inc()
	}
}
