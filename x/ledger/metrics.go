package ledger

import (
	"math/big"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/harberger/metrics"
	"github.com/compose-network/harberger/x/asset"
)

// Metrics holds slot-ledger metrics.
type Metrics struct {
	ClaimsTotal       *prometheus.CounterVec
	RejectionsTotal   *prometheus.CounterVec
	TaxCollectedTotal *prometheus.CounterVec
	ForeclosuresTotal prometheus.Counter
	RemovalsTotal     prometheus.Counter
	ActiveSlots       prometheus.Gauge
	OperationDuration *prometheus.HistogramVec
}

// NewMetrics creates ledger metrics on the shared registry.
func NewMetrics() *Metrics {
	reg := metrics.NewComponentRegistry(metrics.Namespace, "ledger")

	return &Metrics{
		ClaimsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "claims_total",
			Help: "Total number of committed claims by type (create, bid)",
		}, []string{"type"}),

		RejectionsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "rejections_total",
			Help: "Total number of aborted operations by operation and error kind",
		}, []string{"operation", "kind"}),

		TaxCollectedTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "tax_collected_total",
			Help: "Tax routed to the authority, in currency base units (approximate)",
		}, []string{"currency"}),

		ForeclosuresTotal: reg.NewCounter(prometheus.CounterOpts{
			Name: "foreclosures_total",
			Help: "Total number of foreclosed slots",
		}),

		RemovalsTotal: reg.NewCounter(prometheus.CounterOpts{
			Name: "removals_total",
			Help: "Total number of forced removals",
		}),

		ActiveSlots: reg.NewGauge(prometheus.GaugeOpts{
			Name: "active_slots",
			Help: "Number of slots currently held",
		}),

		OperationDuration: reg.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "operation_duration_seconds",
			Help:    "Duration of ledger operations",
			Buckets: metrics.DurationBuckets,
		}, []string{"operation"}),
	}
}

func (m *Metrics) recordOperation(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		m.RejectionsTotal.WithLabelValues(op, KindOf(err).String()).Inc()
	}
}

func (m *Metrics) recordClaim(created bool) {
	if m == nil {
		return
	}
	if created {
		m.ClaimsTotal.WithLabelValues("create").Inc()
		return
	}
	m.ClaimsTotal.WithLabelValues("bid").Inc()
}

func (m *Metrics) recordTax(c asset.Currency, amount *uint256.Int) {
	if m == nil || amount.IsZero() {
		return
	}
	f, _ := new(big.Float).SetInt(amount.ToBig()).Float64()
	m.TaxCollectedTotal.WithLabelValues(c.String()).Add(f)
}

func (m *Metrics) recordForeclosure() {
	if m == nil {
		return
	}
	m.ForeclosuresTotal.Inc()
}

func (m *Metrics) recordRemoval() {
	if m == nil {
		return
	}
	m.RemovalsTotal.Inc()
}

func (m *Metrics) setActive(n int) {
	if m == nil {
		return
	}
	m.ActiveSlots.Set(float64(n))
}
