// Package modules provides the built-in analysis modules shipped with
// the framework and registers them with the loader's factory registry.
package modules

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lcls-psana/psana/config"
	"github.com/lcls-psana/psana/errors"
	"github.com/lcls-psana/psana/loader"
	"github.com/lcls-psana/psana/psenv"
	"github.com/lcls-psana/psana/psevt"
	"github.com/lcls-psana/psana/psmod"
)

// Register registers the built-in module factories with the provided
// registry.
func Register(registry *loader.Registry) error {
	if registry == nil {
		return errors.WrapFatal(errors.ErrInvalidConfig, "modules", "Register", "registry validation")
	}

	if err := registry.RegisterModule("psana.EventKeys", NewEventKeys); err != nil {
		return errors.WrapInvalid(err, "modules", "Register", "EventKeys registration")
	}
	if err := registry.RegisterModule("psana.PrintSeparator", NewPrintSeparator); err != nil {
		return errors.WrapInvalid(err, "modules", "Register", "PrintSeparator registration")
	}
	return nil
}

// EventKeys dumps the key set of every event it sees; useful for
// discovering what a stream actually carries.
type EventKeys struct {
	psmod.Base
	logger *slog.Logger
	dumps  prometheus.Counter
}

// NewEventKeys is the EventKeys factory.
func NewEventKeys(name string, cfg *config.Store) (psmod.Module, error) {
	return &EventKeys{Base: psmod.NewBase(name, cfg), logger: slog.Default()}, nil
}

// BeginJob dumps the keys of the configure transition and registers the
// module's dump counter when the job is metered.
func (m *EventKeys) BeginJob(evt *psevt.Event, env *psenv.Env) {
	if reg := env.Metrics(); reg != nil {
		counter := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "psana",
			Name:      "eventkeys_dumps_total",
			Help:      "Key-set dumps produced by the EventKeys module",
		})
		if err := reg.Register(m.Name(), "dumps", counter); err != nil {
			m.logger.Warn("metric registration failed", "module", m.Name(), "error", err)
		} else {
			m.dumps = counter
		}
	}
	m.dump("beginJob", evt)
}

// BeginRun dumps the keys of the run-opening transition.
func (m *EventKeys) BeginRun(evt *psevt.Event, env *psenv.Env) { m.dump("beginRun", evt) }

// BeginCalibCycle dumps the keys of the cycle-opening transition.
func (m *EventKeys) BeginCalibCycle(evt *psevt.Event, env *psenv.Env) { m.dump("beginCalibCycle", evt) }

// Event dumps the event's keys.
func (m *EventKeys) Event(evt *psevt.Event, env *psenv.Env) { m.dump("event", evt) }

// EndJob releases the module's collector.
func (m *EventKeys) EndJob(evt *psevt.Event, env *psenv.Env) {
	if reg := env.Metrics(); reg != nil && m.dumps != nil {
		reg.Unregister(m.Name(), "dumps")
		m.dumps = nil
	}
}

func (m *EventKeys) dump(hook string, evt *psevt.Event) {
	if m.dumps != nil {
		m.dumps.Inc()
	}
	keys := evt.Keys()
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	m.logger.Info("event keys", "module", m.Name(), "hook", hook, "keys", names)
}

// PrintSeparator prints a separator line for every event, making
// per-event output of surrounding modules readable.
type PrintSeparator struct {
	psmod.Base
	separator string
	logger    *slog.Logger
}

// NewPrintSeparator is the PrintSeparator factory. The separator string
// is configurable per instance.
func NewPrintSeparator(name string, cfg *config.Store) (psmod.Module, error) {
	m := &PrintSeparator{Base: psmod.NewBase(name, cfg), logger: slog.Default()}
	m.separator = m.ConfigStrDef("separator", "========")
	return m, nil
}

// Event prints the separator.
func (m *PrintSeparator) Event(evt *psevt.Event, env *psenv.Env) {
	m.logger.Info(m.separator)
}
