package newsvc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
	expired  prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "newsbase",
			Name:      "operations_total",
			Help:      "Service operations by outcome.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "newsbase",
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"op"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "newsbase",
			Name:      "expired_rows_total",
			Help:      "Overview rows removed by expiry.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ops, m.duration, m.expired)
	}
	return m
}

func (m *metrics) observe(op string, start time.Time, err error) {
	m.ops.WithLabelValues(op, outcome(err)).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
