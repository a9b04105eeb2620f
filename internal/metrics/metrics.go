// Package metrics exposes Prometheus collectors for materialization passes
// and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/attendance-tracker/internal/application"
)

const namespace = "attendance"

// Metrics owns a private registry so tests and multiple hosts in one process
// do not collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	passes     *prometheus.CounterVec
	instances  *prometheus.CounterVec
	templates  prometheus.Gauge
	duration   *prometheus.HistogramVec
	lastPass   prometheus.Gauge
	requests   *prometheus.CounterVec
	reqLatency *prometheus.HistogramVec
}

var _ application.MaterializeRecorder = (*Metrics)(nil)

// New registers every collector on a fresh registry, including the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "materialize",
			Name:      "passes_total",
			Help:      "Materialization passes by mode and outcome.",
		}, []string{"mode", "outcome"}),
		instances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "materialize",
			Name:      "instances_total",
			Help:      "Instances visited by materialization passes, split into created and existing.",
		}, []string{"mode", "result"}),
		templates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "materialize",
			Name:      "active_templates",
			Help:      "Active templates seen by the most recent pass.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "materialize",
			Name:      "duration_seconds",
			Help:      "Duration of materialization passes.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		lastPass: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "materialize",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful materialization pass.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		reqLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.passes,
		m.instances,
		m.templates,
		m.duration,
		m.lastPass,
		m.requests,
		m.reqLatency,
	)
	return m
}

// Registry returns the registry backing the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveMaterialization records one completed pass.
func (m *Metrics) ObserveMaterialization(mode string, result application.MaterializeResult, elapsed time.Duration, err error) {
	if m == nil {
		return
	}

	outcome := "success"
	if err != nil {
		outcome = application.ErrorKind(err)
	}
	m.passes.WithLabelValues(mode, outcome).Inc()
	m.instances.WithLabelValues(mode, "created").Add(float64(result.Created))
	m.instances.WithLabelValues(mode, "existing").Add(float64(result.Existing))
	m.duration.WithLabelValues(mode).Observe(elapsed.Seconds())
	if err == nil {
		m.templates.Set(float64(result.Templates))
		m.lastPass.SetToCurrentTime()
	}
}

// ObserveRequest records one served HTTP request. route is the matched
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.reqLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
