// Package observability provides Prometheus metrics for the dispatch core.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"chatgate/internal/core"
	"chatgate/internal/providers"
)

const namespace = "chatgate"

// Dispatch outcome label values.
const (
	OutcomeSuccess = "success"
)

// PrometheusHooks implements providers.Hooks with Prometheus collectors.
type PrometheusHooks struct {
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	configLoadErrors *prometheus.CounterVec
}

var _ providers.Hooks = (*PrometheusHooks)(nil)

// NewPrometheusHooks creates the collectors and registers them with reg.
// A nil reg selects prometheus.DefaultRegisterer.
func NewPrometheusHooks(reg prometheus.Registerer) *PrometheusHooks {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	h := &PrometheusHooks{
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Total completion dispatches by provider and outcome",
		}, []string{"provider", "outcome"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Completion dispatch latency including the provider call",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"provider"}),
		configLoadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_load_errors_total",
			Help:      "Total provider configuration load failures by kind",
		}, []string{"kind"}),
	}
	reg.MustRegister(h.dispatchTotal, h.dispatchDuration, h.configLoadErrors)
	return h
}

// OnConfigLoad counts failed loads by error kind.
func (h *PrometheusHooks) OnConfigLoad(err error) {
	if err == nil {
		return
	}
	h.configLoadErrors.WithLabelValues(core.KindOf(err).String()).Inc()
}

// OnDispatch records the outcome and latency of one dispatch. The provider
// label is empty for rejected identifiers, which keeps caller input out of
// label values.
func (h *PrometheusHooks) OnDispatch(provider string, err error, elapsed time.Duration) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = core.KindOf(err).String()
	}
	h.dispatchTotal.WithLabelValues(provider, outcome).Inc()
	h.dispatchDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}
