package asset

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/harberger/metrics"
)

// Metrics holds asset-router metrics.
type Metrics struct {
	TransfersTotal *prometheus.CounterVec
}

// NewMetrics creates asset-router metrics on the shared registry.
func NewMetrics() *Metrics {
	reg := metrics.NewComponentRegistry(metrics.Namespace, "asset")

	return &Metrics{
		TransfersTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "transfers_total",
			Help: "Total number of asset transfers by currency kind and result",
		}, []string{"kind", "result"}),
	}
}

// RecordTransfer records a transfer attempt.
func (m *Metrics) RecordTransfer(c Currency, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.TransfersTotal.WithLabelValues(c.Kind(), result).Inc()
}
