package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the audit pipeline. A nil *Metrics is a no-op.
type Metrics struct {
	recorded       *prometheus.CounterVec
	writeFailures  prometheus.Counter
	fanOutDropped  prometheus.Counter
	fanOutFailures *prometheus.CounterVec
	queueDepth     prometheus.Gauge
}

// New registers the audit collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		recorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdash_audit_events_recorded_total",
			Help: "Audit events durably recorded, by kind",
		}, []string{"kind"}),
		writeFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "opsdash_audit_write_failures_total",
			Help: "Audit events lost because the durable write failed",
		}),
		fanOutDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "opsdash_audit_fanout_dropped_total",
			Help: "Significant events not fanned out because the queue was full or closed",
		}),
		fanOutFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdash_audit_fanout_failures_total",
			Help: "Fan-out step failures, by stage",
		}, []string{"stage"}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "opsdash_audit_fanout_queue_depth",
			Help: "Significant events waiting for fan-out",
		}),
	}
}

func (m *Metrics) IncRecorded(kind string) {
	if m == nil {
		return
	}
	m.recorded.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncWriteFailure() {
	if m == nil {
		return
	}
	m.writeFailures.Inc()
}

func (m *Metrics) IncFanOutDropped() {
	if m == nil {
		return
	}
	m.fanOutDropped.Inc()
}

func (m *Metrics) IncFanOutFailure(stage string) {
	if m == nil {
		return
	}
	m.fanOutFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
