package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestComponentRegistryReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewComponentRegistryWith(reg, "test", "ledger")

	c1 := r.NewCounter(prometheus.CounterOpts{Name: "claims_total", Help: "claims"})
	c2 := r.NewCounter(prometheus.CounterOpts{Name: "claims_total", Help: "claims"})

	c1.Inc()
	c2.Inc()
	require.Equal(t, float64(2), testutil.ToFloat64(c1))

	n, err := testutil.GatherAndCount(reg, "test_ledger_claims_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestGetRegistrySingleton(t *testing.T) {
	require.Same(t, GetRegistry(), GetRegistry())
}
