package http

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the server's prometheus instruments.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	queriesTotal    *prometheus.CounterVec
	ingestTotal     *prometheus.CounterVec
}

// NewMetrics creates and registers the server metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "knowledged_http_requests_total",
			Help: "Total HTTP requests by method, path and status code.",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "knowledged_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by method and path.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"method", "path"}),
		queriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "knowledged_rag_queries_total",
			Help: "Total knowledge base queries by outcome (ok, unavailable, error).",
		}, []string{"outcome"}),
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "knowledged_ingest_total",
			Help: "Total vector ingestion attempts by collection and outcome.",
		}, []string{"collection", "outcome"}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.queriesTotal,
		m.ingestTotal,
	)
	return m
}

// Registry returns the registry backing the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordQuery counts one knowledge base query outcome.
func (m *Metrics) RecordQuery(outcome string) {
	m.queriesTotal.WithLabelValues(outcome).Inc()
}

// RecordIngest counts one ingestion attempt.
func (m *Metrics) RecordIngest(collection string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.ingestTotal.WithLabelValues(collection, outcome).Inc()
}

// Middleware instruments every request with count and duration.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			m.requestsTotal.WithLabelValues(
				c.Request().Method,
				path,
				strconv.Itoa(c.Response().Status),
			).Inc()
			m.requestDuration.WithLabelValues(c.Request().Method, path).
				Observe(time.Since(start).Seconds())

			return err
		}
	}
}
