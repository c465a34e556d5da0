package psmod

import (
	"github.com/lcls-psana/psana/config"
	"github.com/lcls-psana/psana/psenv"
	"github.com/lcls-psana/psana/psevt"
)

// Module is the capability interface of a user analysis module. The
// event loop invokes the lifecycle hooks at each hierarchy boundary and
// Event for every event, in registration order. Hooks communicate
// through the verdict rather than a return value; the loop calls Reset
// before every invocation and reads Status after it.
type Module interface {
	// Name returns the full display name "Pkg.Class[:instance]".
	Name() string
	// ClassName returns the name without the instance suffix.
	ClassName() string

	BeginJob(evt *psevt.Event, env *psenv.Env)
	BeginRun(evt *psevt.Event, env *psenv.Env)
	BeginCalibCycle(evt *psevt.Event, env *psenv.Env)
	Event(evt *psevt.Event, env *psenv.Env)
	EndCalibCycle(evt *psevt.Event, env *psenv.Env)
	EndRun(evt *psevt.Event, env *psenv.Env)
	EndJob(evt *psevt.Event, env *psenv.Env)

	// ObserveAllEvents reports whether the module wants Event calls
	// even after an earlier module requested skip.
	ObserveAllEvents() bool
	// Reset clears the verdict to OK.
	Reset()
	// Status returns the verdict written by the last invocation.
	Status() Verdict
}

// Failer is an optional interface for modules that carry an error
// behind an Abort verdict, such as scripted-module adapters. The loop
// includes the error in the abort diagnostic.
type Failer interface {
	Err() error
}

// Base provides default no-op lifecycle hooks, verdict plumbing and
// configuration access for concrete modules. Embed it and override the
// hooks the module needs; only Event has no useful default.
type Base struct {
	psenv.Configurable
	status     Verdict
	observeAll bool
}

// NewBase creates the embedded helper from a display name and the
// configuration store.
func NewBase(name string, cfg *config.Store) Base {
	return Base{Configurable: psenv.NewConfigurable(name, cfg)}
}

// BeginJob does nothing by default.
func (b *Base) BeginJob(*psevt.Event, *psenv.Env) {}

// BeginRun does nothing by default.
func (b *Base) BeginRun(*psevt.Event, *psenv.Env) {}

// BeginCalibCycle does nothing by default.
func (b *Base) BeginCalibCycle(*psevt.Event, *psenv.Env) {}

// Event does nothing by default.
func (b *Base) Event(*psevt.Event, *psenv.Env) {}

// EndCalibCycle does nothing by default.
func (b *Base) EndCalibCycle(*psevt.Event, *psenv.Env) {}

// EndRun does nothing by default.
func (b *Base) EndRun(*psevt.Event, *psenv.Env) {}

// EndJob does nothing by default.
func (b *Base) EndJob(*psevt.Event, *psenv.Env) {}

// ObserveAllEvents reports whether skip verdicts are ignored for this
// module.
func (b *Base) ObserveAllEvents() bool { return b.observeAll }

// SetObserveAll flags the module to receive every event regardless of
// prior skip verdicts.
func (b *Base) SetObserveAll(observe bool) { b.observeAll = observe }

// Reset clears the verdict to OK.
func (b *Base) Reset() { b.status = OK }

// Status returns the current verdict.
func (b *Base) Status() Verdict { return b.status }

// Skip requests that the remaining ordinary modules skip this event.
func (b *Base) Skip() { b.status = Skip }

// Stop requests a clean finish after this call.
func (b *Base) Stop() { b.status = Stop }

// Abort requests immediate termination with no finalization.
func (b *Base) Abort() { b.status = Abort }
