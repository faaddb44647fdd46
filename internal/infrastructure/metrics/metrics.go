// Package metrics exposes netdiag's Prometheus instrumentation.
package metrics

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/RaufunNazin/bnetdiag/internal/topology"
)

const namespace = "netdiag"

// Metrics owns a private registry so tests and multiple servers never
// collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	mutations    *prometheus.CounterVec
	resetRows    prometheus.Counter
	reattached   prometheus.Counter
}

// New creates and registers all collectors. dbStats may be nil.
func New(version string, dbStats func() sql.DBStats) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "topology",
			Name:      "mutations_total",
			Help:      "Committed topology mutations by action.",
		}, []string{"action"}),
		resetRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "topology",
			Name:      "positions_reset_total",
			Help:      "Device positions cleared by layout invalidation.",
		}),
		reattached: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "topology",
			Name:      "orphans_reattached_total",
			Help:      "Connect operations that reused a parentless record.",
		}),
	}

	m.registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.mutations,
		m.resetRows,
		m.reattached,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "build_info",
			Help:        "Always 1; labelled with the running version.",
			ConstLabels: prometheus.Labels{"version": version},
		}, func() float64 { return 1 }),
	)
	if dbStats != nil {
		m.registry.MustRegister(&dbCollector{stats: dbStats})
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry for extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records one served HTTP request. route should be the
// router pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// TopologyChanged implements topology.ChangeListener.
func (m *Metrics) TopologyChanged(_ context.Context, c topology.Change) {
	m.mutations.WithLabelValues(string(c.Action)).Inc()
	m.resetRows.Add(float64(c.Reset))
	if c.Reattached {
		m.reattached.Inc()
	}
}

var _ topology.ChangeListener = (*Metrics)(nil)

// dbCollector reports connection pool statistics at scrape time.
type dbCollector struct {
	stats func() sql.DBStats
}

var (
	dbOpenDesc = prometheus.NewDesc(namespace+"_db_open_connections",
		"Open database connections.", nil, nil)
	dbInUseDesc = prometheus.NewDesc(namespace+"_db_in_use_connections",
		"Database connections currently in use.", nil, nil)
	dbWaitDesc = prometheus.NewDesc(namespace+"_db_wait_count_total",
		"Connections waited for.", nil, nil)
	dbWaitSecondsDesc = prometheus.NewDesc(namespace+"_db_wait_seconds_total",
		"Time spent waiting for a connection.", nil, nil)
)

func (c *dbCollector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

func (c *dbCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(dbOpenDesc, prometheus.GaugeValue, float64(s.OpenConnections))
	ch <- prometheus.MustNewConstMetric(dbInUseDesc, prometheus.GaugeValue, float64(s.InUse))
	ch <- prometheus.MustNewConstMetric(dbWaitDesc, prometheus.CounterValue, float64(s.WaitCount))
	ch <- prometheus.MustNewConstMetric(dbWaitSecondsDesc, prometheus.CounterValue, s.WaitDuration.Seconds())
}
