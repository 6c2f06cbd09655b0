// Package metrics exposes Prometheus instrumentation for the HTTP surface,
// authorization decisions, rate limiting and the task event stream.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/opsboard/opsboard/internal/platform/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build independent instances.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	authzDecisions      *prometheus.CounterVec
	rateLimited         *prometheus.CounterVec
	eventSubscribers    prometheus.Gauge
	auditDropped        prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		authzDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Permission checks by role, resource, action and outcome.",
		}, []string{"role", "resource", "action", "outcome"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_rejections_total",
			Help: "Requests rejected by the rate limiter.",
		}, []string{"scope"}),
		eventSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "task_event_subscribers",
			Help: "Connected task event stream subscribers.",
		}),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_events_dropped_total",
			Help: "Asynchronous audit events dropped because the buffer was full.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpInFlight,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.authzDecisions,
		m.rateLimited,
		m.eventSubscribers,
		m.auditDropped,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Instrument records request count, latency and in-flight gauge under the
// given route label. Use the registered pattern, never the raw path.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		start := time.Now()
		sw := middleware.NewStatusWriter(w)
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.Status)
		m.httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

// ObserveDecision counts one permission check.
func (m *Metrics) ObserveDecision(role, resource, action string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.authzDecisions.WithLabelValues(role, resource, action, outcome).Inc()
}

// ObserveRateLimited counts one throttled request.
func (m *Metrics) ObserveRateLimited(scope string) {
	m.rateLimited.WithLabelValues(scope).Inc()
}

// SubscriberConnected and SubscriberDisconnected track the event stream gauge.
func (m *Metrics) SubscriberConnected()    { m.eventSubscribers.Inc() }
func (m *Metrics) SubscriberDisconnected() { m.eventSubscribers.Dec() }

// AuditDropped counts one dropped asynchronous audit event.
func (m *Metrics) AuditDropped() { m.auditDropped.Inc() }
