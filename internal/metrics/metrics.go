// Package metrics declares the Prometheus collectors exported on /metrics.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector.
type Metrics struct {
	registry      *prometheus.Registry
	borrows       *prometheus.CounterVec
	returns       *prometheus.CounterVec
	rateLimited   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	requests      *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		borrows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookwise_borrows_total",
			Help: "Borrow attempts by result.",
		}, []string{"result"}),
		returns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookwise_returns_total",
			Help: "Return attempts by result.",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookwise_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}, []string{"policy"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookwise_notifications_total",
			Help: "Notification dispatches by event and result.",
		}, []string{"event", "result"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bookwise_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.borrows, m.returns, m.rateLimited, m.notifications, m.requests,
	)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Borrow counts one borrow attempt.
func (m *Metrics) Borrow(result string) {
	if m != nil {
		m.borrows.WithLabelValues(result).Inc()
	}
}

// Return counts one return attempt.
func (m *Metrics) Return(result string) {
	if m != nil {
		m.returns.WithLabelValues(result).Inc()
	}
}

// RateLimited counts one rejected request.
func (m *Metrics) RateLimited(policy string) {
	if m != nil {
		m.rateLimited.WithLabelValues(policy).Inc()
	}
}

// Notification counts one dispatch.
func (m *Metrics) Notification(event, result string) {
	if m != nil {
		m.notifications.WithLabelValues(event, result).Inc()
	}
}

// ObserveRequest records request latency.
func (m *Metrics) ObserveRequest(method, route, status string, d time.Duration) {
	if m != nil {
		m.requests.WithLabelValues(method, route, status).Observe(d.Seconds())
	}
}
