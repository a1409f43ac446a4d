// Package observability wires Prometheus metrics and OpenTelemetry tracing.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kbquery/application/ports"
	"kbquery/application/queries/bus"
)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Query bus metrics
	Queries       *prometheus.CounterVec
	QueryErrors   *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec

	// Read path metrics
	TierOutcomes   *prometheus.CounterVec
	FacetCache     *prometheus.CounterVec
	SceneTruncated prometheus.Counter
}

var (
	_ ports.QueryMetrics = (*Collector)(nil)
	_ bus.Metrics        = (*Collector)(nil)
)

// NewCollector creates a collector on its own registry
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Total number of queries dispatched through the bus",
			},
			[]string{"query"},
		),
		QueryErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "query_errors_total",
				Help:      "Total number of queries that returned an error",
			},
			[]string{"query"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Query duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"query"},
		),
		TierOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_tier_outcomes_total",
				Help:      "Outcome of each source tier consulted by a read operation",
			},
			[]string{"operation", "tier", "outcome"},
		),
		FacetCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "facet_cache_requests_total",
				Help:      "Facet cache lookups by result",
			},
			[]string{"result"},
		),
		SceneTruncated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scene_truncated_total",
				Help:      "Scenes cut short by a node or edge cap",
			},
		),
	}

	c.registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.Queries,
		c.QueryErrors,
		c.QueryDuration,
		c.TierOutcomes,
		c.FacetCache,
		c.SceneTruncated,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry metrics are registered on
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveTier records how a source tier answered
func (c *Collector) ObserveTier(operation, tier, outcome string) {
	c.TierOutcomes.WithLabelValues(operation, tier, outcome).Inc()
}

// ObserveFacetCache records a facet cache lookup
func (c *Collector) ObserveFacetCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.FacetCache.WithLabelValues(result).Inc()
}

// ObserveSceneTruncated records a truncated scene
func (c *Collector) ObserveSceneTruncated() {
	c.SceneTruncated.Inc()
}

// StartTimer starts a duration observation for the bus metric
func (c *Collector) StartTimer(metric, label string) bus.Timer {
	start := time.Now()
	return timerFunc(func() {
		if metric == "query_duration" {
			c.QueryDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
		}
	})
}

// Increment bumps the named bus counter
func (c *Collector) Increment(metric, label string) {
	switch metric {
	case "query_count":
		c.Queries.WithLabelValues(label).Inc()
	case "query_errors":
		c.QueryErrors.WithLabelValues(label).Inc()
	}
}

// ObserveHTTP records a served request
func (c *Collector) ObserveHTTP(method, route string, status int, duration time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

type timerFunc func()

func (f timerFunc) Stop() { f() }
