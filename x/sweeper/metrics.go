package sweeper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/harberger/metrics"
)

// Metrics holds sweeper metrics.
type Metrics struct {
	SweepsTotal       *prometheus.CounterVec
	SweepDuration     prometheus.Histogram
	SlotsCollected    prometheus.Histogram
	SlotsFailed       prometheus.Counter
	LastSweepUnixTime prometheus.Gauge
}

// NewMetrics creates sweeper metrics on the shared registry.
func NewMetrics() *Metrics {
	reg := metrics.NewComponentRegistry(metrics.Namespace, "sweeper")

	return &Metrics{
		SweepsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "sweeps_total",
			Help: "Total number of collection sweeps by result",
		}, []string{"result"}),
		SweepDuration: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "sweep_duration_seconds",
			Help:    "Duration of collection sweeps",
			Buckets: metrics.DurationBuckets,
		}),
		SlotsCollected: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "slots_collected",
			Help:    "Number of slots that paid tax in a sweep",
			Buckets: metrics.CountBuckets,
		}),
		SlotsFailed: reg.NewCounter(prometheus.CounterOpts{
			Name: "slot_failures_total",
			Help: "Total number of slot collections a sweep could not complete",
		}),
		LastSweepUnixTime: reg.NewGauge(prometheus.GaugeOpts{
			Name: "last_sweep_timestamp_seconds",
			Help: "Unix time of the last successful sweep",
		}),
	}
}

func (m *Metrics) record(start time.Time, res Result, err error) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(time.Since(start).Seconds())
	m.SlotsFailed.Add(float64(res.Failed))
	if err != nil {
		m.SweepsTotal.WithLabelValues("failed").Inc()
		return
	}
	m.SweepsTotal.WithLabelValues("ok").Inc()
	m.SlotsCollected.Observe(float64(res.Collected))
	m.LastSweepUnixTime.SetToCurrentTime()
}
