package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quiz"

// Metrics holds Prometheus metrics for the contest service
type Metrics struct {
	RequestCounter     *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	RequestsInFlight   prometheus.Gauge
	LedgerTransactions *prometheus.CounterVec
	LedgerAmount       *prometheus.CounterVec
	Finalizations      *prometheus.CounterVec
	FinalizeDuration   prometheus.Histogram
	FinalizeBatchSize  prometheus.Gauge
	PrizeNotifications *prometheus.CounterVec
	SessionTransitions *prometheus.CounterVec
}

// New registers every collector on reg. Tests pass a fresh
// prometheus.NewRegistry(); the server passes prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Number of requests currently being processed",
			},
		),
		LedgerTransactions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "transactions_total",
				Help:      "Wallet transactions by type and final status",
			},
			[]string{"type", "status"},
		),
		LedgerAmount: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "amount_total",
				Help:      "Sum of completed transaction amounts by type",
			},
			[]string{"type"},
		),
		Finalizations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "finalize",
				Name:      "contests_total",
				Help:      "Contest finalization attempts by outcome",
			},
			[]string{"outcome"}, // ended, skipped, failed
		),
		FinalizeDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "finalize",
				Name:      "contest_duration_seconds",
				Help:      "Time spent finalizing one contest",
				Buckets:   prometheus.DefBuckets,
			},
		),
		FinalizeBatchSize: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "finalize",
				Name:      "last_batch_size",
				Help:      "Number of due contests picked up by the last tick",
			},
		),
		PrizeNotifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notify",
				Name:      "prize_events_total",
				Help:      "Prize credited notifications by result",
			},
			[]string{"result"},
		),
		SessionTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "transitions_total",
				Help:      "Play tracker state transitions",
			},
			[]string{"to"},
		),
	}
}

// GinMiddleware records request count, latency and in-flight requests.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
		m.RequestCounter.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
