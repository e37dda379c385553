// Package metrics exposes per-provider curation metrics to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "curator"

// ProviderMetrics tracks provider traffic, reliability and quality.
//
// Metrics:
//   - curator_provider_requests_total{provider,outcome}
//   - curator_provider_latency_seconds{provider}
//   - curator_provider_errors_total{provider,kind}
//   - curator_provider_tokens_total{provider}
//   - curator_provider_quality_score{provider,component}
//   - curator_provider_avoided{provider} (1 = avoided)
//   - curator_provider_connection_state{provider,state} (1 = current state)
//   - curator_failovers_total{from,to}
//
// A nil *ProviderMetrics is valid and records nothing.
type ProviderMetrics struct {
	registry *prometheus.Registry

	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	errors    *prometheus.CounterVec
	tokens    *prometheus.CounterVec
	quality   *prometheus.GaugeVec
	avoided   *prometheus.GaugeVec
	state     *prometheus.GaugeVec
	failovers *prometheus.CounterVec
}

// NewProviderMetrics creates the collectors and registers them, together
// with the Go runtime collectors, on a fresh registry.
func NewProviderMetrics() *ProviderMetrics {
	reg := prometheus.NewRegistry()

	pm := &ProviderMetrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of chat attempts per provider by outcome",
		}, []string{"provider", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_seconds",
			Help:      "Chat attempt latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"provider"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Failed attempts per provider by error kind",
		}, []string{"provider", "kind"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_tokens_total",
			Help:      "Tokens consumed per provider",
		}, []string{"provider"}),
		quality: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_quality_score",
			Help:      "Latest quality score per provider and component",
		}, []string{"provider", "component"}),
		avoided: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_avoided",
			Help:      "1 when the curator currently avoids the provider",
		}, []string{"provider"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_connection_state",
			Help:      "1 for the provider's current connection state",
		}, []string{"provider", "state"}),
		failovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failovers_total",
			Help:      "Requests moved from one provider to another",
		}, []string{"from", "to"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		pm.requests,
		pm.latency,
		pm.errors,
		pm.tokens,
		pm.quality,
		pm.avoided,
		pm.state,
		pm.failovers,
	)

	return pm
}

// Registry returns the underlying registry, mainly for tests.
func (pm *ProviderMetrics) Registry() *prometheus.Registry {
	if pm == nil {
		return nil
	}
	return pm.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (pm *ProviderMetrics) Handler() http.Handler {
	if pm == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
}

// RecordAttempt records one chat attempt.
func (pm *ProviderMetrics) RecordAttempt(provider string, success bool, latencySeconds float64, tokens int) {
	if pm == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	pm.requests.WithLabelValues(provider, outcome).Inc()
	pm.latency.WithLabelValues(provider).Observe(latencySeconds)
	if tokens > 0 {
		pm.tokens.WithLabelValues(provider).Add(float64(tokens))
	}
}

// RecordError counts a failed attempt by taxonomy kind.
func (pm *ProviderMetrics) RecordError(provider, kind string) {
	if pm == nil {
		return
	}
	pm.errors.WithLabelValues(provider, kind).Inc()
}

// SetQuality publishes one quality score component.
func (pm *ProviderMetrics) SetQuality(provider, component string, value float64) {
	if pm == nil {
		return
	}
	pm.quality.WithLabelValues(provider, component).Set(value)
}

// SetAvoided publishes the avoidance flag.
func (pm *ProviderMetrics) SetAvoided(provider string, avoided bool) {
	if pm == nil {
		return
	}
	v := 0.0
	if avoided {
		v = 1.0
	}
	pm.avoided.WithLabelValues(provider).Set(v)
}

// SetState marks current as the provider's connection state, clearing the rest.
func (pm *ProviderMetrics) SetState(provider, current string, all []string) {
	if pm == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1.0
		}
		pm.state.WithLabelValues(provider, s).Set(v)
	}
}

// RecordFailover counts a failover between two providers.
func (pm *ProviderMetrics) RecordFailover(from, to string) {
	if pm == nil {
		return
	}
	pm.failovers.WithLabelValues(from, to).Inc()
}

// Forget drops every series of an unregistered provider.
func (pm *ProviderMetrics) Forget(provider string) {
	if pm == nil {
		return
	}
	labels := prometheus.Labels{"provider": provider}
	pm.requests.DeletePartialMatch(labels)
	pm.latency.DeletePartialMatch(labels)
	pm.errors.DeletePartialMatch(labels)
	pm.tokens.DeletePartialMatch(labels)
	pm.quality.DeletePartialMatch(labels)
	pm.avoided.DeletePartialMatch(labels)
	pm.state.DeletePartialMatch(labels)
}
