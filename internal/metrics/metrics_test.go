package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveEvent("Swap", "ok")
	m.ObserveEvent("Swap", "ok")
	m.SkipEvent("unknown_pool")
	m.TokenFallback("symbol")
	m.ObserveRefresh(10 * time.Millisecond)
	m.SetLastProcessedBlock(42)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("Swap", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsSkipped.WithLabelValues("unknown_pool")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenFallbacks.WithLabelValues("symbol")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.LastProcessedBlock))

	count, err := testutil.GatherAndCount(reg, "poolscope_refresh_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveEvent("Swap", "ok")
	m.SkipEvent("x")
	m.TokenFallback("name")
	m.ObserveRefresh(time.Second)
	m.SetLastProcessedBlock(1)
}
