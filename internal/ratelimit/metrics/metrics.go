package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are safe to use through a nil pointer.
type Metrics struct {
	Checks             *prometheus.CounterVec
	StoreErrors        prometheus.Counter
	BreakerTransitions *prometheus.CounterVec
	BreakerOpen        prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Checks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdash_ratelimit_checks_total",
			Help: "Rate limit checks by class and outcome (allowed, denied, failed_open)",
		}, []string{"class", "outcome"}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "opsdash_ratelimit_store_errors_total",
			Help: "Counter store errors that caused a fail-open decision",
		}),
		BreakerTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdash_ratelimit_breaker_transitions_total",
			Help: "Counter store circuit breaker transitions",
		}, []string{"to"}),
		BreakerOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "opsdash_ratelimit_breaker_open",
			Help: "1 while the counter store circuit is open",
		}),
	}
}

func (m *Metrics) IncrementCheck(class, outcome string) {
	if m == nil {
		return
	}
	m.Checks.WithLabelValues(class, outcome).Inc()
}

func (m *Metrics) IncrementStoreErrors() {
	if m == nil {
		return
	}
	m.StoreErrors.Inc()
}

func (m *Metrics) BreakerOpened() {
	if m == nil {
		return
	}
	m.BreakerTransitions.WithLabelValues("open").Inc()
	m.BreakerOpen.Set(1)
}

func (m *Metrics) BreakerClosed() {
	if m == nil {
		return
	}
	m.BreakerTransitions.WithLabelValues("closed").Inc()
	m.BreakerOpen.Set(0)
}
