package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics engine counters. A nil *Metrics records nothing.
type Metrics struct {
	operations  *prometheus.CounterVec
	conflicts   *prometheus.CounterVec
	corruptions *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// NewMetrics creates the engine collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ramdis",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Engine operations by outcome.",
			},
			[]string{"op", "result"},
		),
		conflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ramdis",
				Subsystem: "engine",
				Name:      "commit_conflicts_total",
				Help:      "Substrate commits rejected with a conflict.",
			},
			[]string{"op"},
		),
		corruptions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ramdis",
				Subsystem: "engine",
				Name:      "corruptions_total",
				Help:      "Records found violating the list layout.",
			},
			[]string{"op"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ramdis",
				Subsystem: "engine",
				Name:      "operation_seconds",
				Help:      "Engine operation latency, retries included.",
				Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 10),
			},
			[]string{"op"},
		),
	}
	for _, c := range []prometheus.Collector{m.operations, m.conflicts, m.corruptions, m.latency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, result(err)).Inc()
	m.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) conflict(op string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(op).Inc()
}

func (m *Metrics) corrupt(op string) {
	if m == nil {
		return
	}
	m.corruptions.WithLabelValues(op).Inc()
}
