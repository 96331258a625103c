// Package metrics provides Prometheus metrics for the metadata repository.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors of the service.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	TransitionsTotal *prometheus.CounterVec
	LockConflicts    *prometheus.CounterVec

	TimelineDuration prometheus.Histogram
	TimelineVisits   prometheus.Histogram

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mdr_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mdr_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		TransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mdr_lifecycle_transitions_total",
			Help: "Lifecycle operations on versioned items",
		}, []string{"entity", "operation", "result"}),
		LockConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mdr_lock_conflicts_total",
			Help: "Writes rejected by the optimistic lock check",
		}, []string{"aggregate"}),
		TimelineDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mdr_timeline_generation_seconds",
			Help:    "Time spent generating a study visit timeline",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		TimelineVisits: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mdr_timeline_visits",
			Help:    "Number of visits in generated timelines",
			Buckets: prometheus.LinearBuckets(0, 10, 10),
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "mdr_item_cache_hits_total",
			Help: "Item cache hits",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "mdr_item_cache_misses_total",
			Help: "Item cache misses",
		}),
	}
}

// Handler exposes the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observe helpers are no-ops on a nil Metrics.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordTransition(entity, operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.TransitionsTotal.WithLabelValues(entity, operation, result).Inc()
}

func (m *Metrics) ObserveTimeline(visits int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.TimelineDuration.Observe(elapsed.Seconds())
	m.TimelineVisits.Observe(float64(visits))
}
