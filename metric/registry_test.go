package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoreMetricsCount(t *testing.T) {
	m := NewMetrics()

	m.CountTransition("Event")
	m.CountTransition("Event")
	m.CountTransition("BeginRun")
	m.CountEvent()
	m.CountVerdict("Skip")

	assert.InDelta(t, 2.0, testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("Event")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("BeginRun")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.EventsTotal), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.VerdictsTotal.WithLabelValues("Skip")), 1e-9)
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CountTransition("Event")
		m.CountEvent()
		m.CountVerdict("Stop")
	})
}

func TestRegistryRegisterAndUnregister(t *testing.T) {
	r := NewMetricsRegistry()
	require.NotNil(t, r.CoreMetrics())
	require.NotNil(t, r.PrometheusRegistry())

	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "mymod_hits_total", Help: "test"})
	require.NoError(t, r.Register("MyPkg.Dump", "hits", c))

	// duplicate key is rejected
	err := r.Register("MyPkg.Dump", "hits", c)
	assert.Error(t, err)

	assert.True(t, r.Unregister("MyPkg.Dump", "hits"))
	assert.False(t, r.Unregister("MyPkg.Dump", "hits"))
}
