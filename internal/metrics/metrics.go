// Package metrics exposes the service's Prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
)

const namespace = "url_mapping"

// Shorten outcomes.
const (
	OutcomeCreated  = "created"
	OutcomeExisting = "existing"
	OutcomeError    = "error"
)

// Redirect outcomes.
const (
	OutcomeFound    = "found"
	OutcomeNotFound = "not_found"
)

// Metrics holds every counter the service updates.
type Metrics struct {
	registry       *prometheus.Registry
	shortens       *prometheus.CounterVec
	redirects      *prometheus.CounterVec
	publishErrors  *prometheus.CounterVec
	breakerChanges *prometheus.CounterVec
}

// New creates the instruments on a dedicated registry together with the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		shortens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shorten_requests_total",
			Help:      "Shorten requests by outcome.",
		}, []string{"outcome"}),
		redirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redirects_total",
			Help:      "Redirect requests by outcome.",
		}, []string{"outcome"}),
		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Analytics events that could not be published.",
		}, []string{"topic"}),
		breakerChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_breaker_transitions_total",
			Help:      "Cache circuit breaker state transitions by target state.",
		}, []string{"to"}),
	}

	reg.MustRegister(m.shortens, m.redirects, m.publishErrors, m.breakerChanges)

	return m
}

func (m *Metrics) Shorten(outcome string) {
	m.shortens.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Redirect(outcome string) {
	m.redirects.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PublishFailed(topic string) {
	m.publishErrors.WithLabelValues(topic).Inc()
}

// BreakerStateChanged matches the hook signature of the Redis cache.
func (m *Metrics) BreakerStateChanged(_, to gobreaker.State) {
	m.breakerChanges.WithLabelValues(to.String()).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
