// Package metrics exposes Prometheus collectors for HTTP traffic and workflow
// state transitions.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telecare/telecare/internal/platform/db"
)

const namespace = "telecare"

type Metrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.HistogramVec
	transitions *prometheus.CounterVec
}

// New builds a private registry so tests can create as many instances as
// they need.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method, route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_transitions_total",
			Help:      "Successful workflow state changes by resource and target status.",
		}, []string{"resource", "to"}),
	}
	reg.MustRegister(
		m.requests,
		m.transitions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveTransition counts one state change, e.g. ("appointment", "confirmed").
func (m *Metrics) ObserveTransition(resource, to string) {
	m.transitions.WithLabelValues(resource, to).Inc()
}

// Middleware records request latency labelled by the route template, never the
// raw path, to keep label cardinality bounded.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Path() == "/metrics" {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.requests.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// TrackPool exports connection pool gauges read from stats at scrape time.
// Call it once per Metrics.
func (m *Metrics) TrackPool(stats func() *db.PoolStats) {
	gauge := func(name, help string, read func(*db.PoolStats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return read(stats()) })
	}
	m.registry.MustRegister(
		gauge("total_conns", "Open connections in the pool.",
			func(s *db.PoolStats) float64 { return float64(s.TotalConns) }),
		gauge("idle_conns", "Idle connections in the pool.",
			func(s *db.PoolStats) float64 { return float64(s.IdleConns) }),
		gauge("acquired_conns", "Connections currently checked out.",
			func(s *db.PoolStats) float64 { return float64(s.AcquiredConns) }),
		gauge("max_conns", "Configured pool size limit.",
			func(s *db.PoolStats) float64 { return float64(s.MaxConns) }),
	)
}

func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry}))
}
