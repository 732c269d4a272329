package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.SettlementsSynced.Inc()
	m.Divergences.WithLabelValues("settlement").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SettlementsSynced))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Divergences.WithLabelValues("settlement")))

	// A second set on a fresh registry does not collide.
	assert.NotPanics(t, func() { NewWithRegistry(prometheus.NewRegistry()) })
}
