package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for auth operations. A nil *Metrics is a no-op.
type Metrics struct {
	SessionsCreated   prometheus.Counter
	SessionsRefreshed prometheus.Counter
	Validations       *prometheus.CounterVec
	AuthFailures      *prometheus.CounterVec
	CacheWriteErrors  prometheus.Counter
	RevocationErrors  prometheus.Counter
	LoginDurationMs   prometheus.Histogram
	RefreshDurationMs prometheus.Histogram
	SweptRefreshRows  prometheus.Counter
}

// New registers the auth collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "opsdash_sessions_created_total",
			Help: "Total number of sessions created at login",
		}),
		SessionsRefreshed: f.NewCounter(prometheus.CounterOpts{
			Name: "opsdash_sessions_refreshed_total",
			Help: "Total number of access assertions minted from a refresh assertion",
		}),
		Validations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdash_session_validations_total",
			Help: "Session validations by outcome (cache_hit, degraded, rejected)",
		}, []string{"outcome"}),
		AuthFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdash_auth_failures_total",
			Help: "Authentication failures by reason",
		}, []string{"reason"}),
		CacheWriteErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "opsdash_session_cache_write_errors_total",
			Help: "Session cache writes that failed after the ledger write succeeded",
		}),
		RevocationErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "opsdash_revocation_errors_total",
			Help: "Revocation marker reads or writes that failed",
		}),
		LoginDurationMs: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "opsdash_login_duration_ms",
			Help:    "Duration of login requests in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		RefreshDurationMs: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "opsdash_token_refresh_duration_ms",
			Help:    "Duration of token refresh requests in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		SweptRefreshRows: f.NewCounter(prometheus.CounterOpts{
			Name: "opsdash_refresh_rows_swept_total",
			Help: "Expired refresh ledger rows removed by the sweep worker",
		}),
	}
}

func (m *Metrics) IncrementSessionsCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
}

func (m *Metrics) IncrementSessionsRefreshed() {
	if m == nil {
		return
	}
	m.SessionsRefreshed.Inc()
}

func (m *Metrics) IncrementValidation(outcome string) {
	if m == nil {
		return
	}
	m.Validations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementAuthFailures(reason string) {
	if m == nil {
		return
	}
	m.AuthFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementCacheWriteErrors() {
	if m == nil {
		return
	}
	m.CacheWriteErrors.Inc()
}

func (m *Metrics) IncrementRevocationErrors() {
	if m == nil {
		return
	}
	m.RevocationErrors.Inc()
}

func (m *Metrics) ObserveLoginDuration(durationMs float64) {
	if m == nil {
		return
	}
	m.LoginDurationMs.Observe(durationMs)
}

func (m *Metrics) ObserveRefreshDuration(durationMs float64) {
	if m == nil {
		return
	}
	m.RefreshDurationMs.Observe(durationMs)
}

func (m *Metrics) AddSweptRefreshRows(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SweptRefreshRows.Add(float64(n))
}
