package modules

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcls-psana/psana/config"
	"github.com/lcls-psana/psana/loader"
	"github.com/lcls-psana/psana/metric"
	"github.com/lcls-psana/psana/psenv"
	"github.com/lcls-psana/psana/psevt"
)

func TestRegisterAndLoad(t *testing.T) {
	reg := loader.NewRegistry()
	require.NoError(t, Register(reg))

	l := loader.New(reg)
	cfg := config.NewStore()

	m, err := l.LoadModule("psana.EventKeys", cfg)
	require.NoError(t, err)
	assert.Equal(t, "psana.EventKeys", m.Name())

	m, err = l.LoadModule("PrintSeparator:banner", cfg)
	require.NoError(t, err)
	assert.Equal(t, "psana.PrintSeparator:banner", m.Name())
}

func TestRegisterNilRegistry(t *testing.T) {
	assert.Error(t, Register(nil))
}

func TestPrintSeparatorConfigurable(t *testing.T) {
	cfg := config.NewStore()
	cfg.Put("psana.PrintSeparator:banner", "separator", "----")

	m, err := NewPrintSeparator("psana.PrintSeparator:banner", cfg)
	require.NoError(t, err)

	ps := m.(*PrintSeparator)
	assert.Equal(t, "----", ps.separator)

	// smoke: the hooks must not touch the verdict
	ps.Reset()
	ps.Event(psevt.New(), nil)
	assert.Equal(t, 0, int(ps.Status()))
}

func TestEventKeysRegistersDumpCounter(t *testing.T) {
	cfg := config.NewStore()
	registry := metric.NewMetricsRegistry()
	env := psenv.New("job", psenv.NewFromConfig("", ""), "", cfg, psenv.WithMetrics(registry))

	m, err := NewEventKeys("psana.EventKeys", cfg)
	require.NoError(t, err)
	ek := m.(*EventKeys)

	ek.BeginJob(psevt.New(), env)
	require.NotNil(t, ek.dumps, "counter registered on beginJob")
	assert.InDelta(t, 1.0, testutil.ToFloat64(ek.dumps), 1e-9)

	ek.Event(psevt.New(), env)
	ek.Event(psevt.New(), env)
	assert.InDelta(t, 3.0, testutil.ToFloat64(ek.dumps), 1e-9)

	ek.EndJob(psevt.New(), env)
	assert.Nil(t, ek.dumps, "counter released on endJob")

	// a second job can register the same metric again
	ek.BeginJob(psevt.New(), env)
	require.NotNil(t, ek.dumps)
}

func TestEventKeysUnmeteredEnv(t *testing.T) {
	cfg := config.NewStore()
	env := psenv.New("job", psenv.NewFromConfig("", ""), "", cfg)

	m, err := NewEventKeys("psana.EventKeys", cfg)
	require.NoError(t, err)
	ek := m.(*EventKeys)

	assert.NotPanics(t, func() {
		ek.BeginJob(psevt.New(), env)
		ek.Event(psevt.New(), env)
		ek.EndJob(psevt.New(), env)
	})
	assert.Nil(t, ek.dumps)
}
