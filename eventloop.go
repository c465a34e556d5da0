package psana

import (
	"fmt"
	"log/slog"

	"github.com/lcls-psana/psana/errors"
	"github.com/lcls-psana/psana/logging"
	"github.com/lcls-psana/psana/metric"
	"github.com/lcls-psana/psana/psenv"
	"github.com/lcls-psana/psana/psevt"
	"github.com/lcls-psana/psana/psmod"
)

// loopState is how deep into the hierarchy the loop has entered.
// States are ordered; unwinding walks back towards stateNone.
type loopState int

const (
	stateNone loopState = iota
	stateConfigured
	stateRunning
	stateScanning
)

func (s loopState) String() string {
	switch s {
	case stateNone:
		return "None"
	case stateConfigured:
		return "Configured"
	case stateRunning:
		return "Running"
	case stateScanning:
		return "Scanning"
	default:
		return "unknown"
	}
}

// hook identifies a module lifecycle callback for one state boundary.
type hook func(m psmod.Module, evt *psevt.Event, env *psenv.Env)

// openHooks maps a state to the module callback invoked on entering it.
var openHooks = map[loopState]hook{
	stateConfigured: func(m psmod.Module, evt *psevt.Event, env *psenv.Env) { m.BeginJob(evt, env) },
	stateRunning:    func(m psmod.Module, evt *psevt.Event, env *psenv.Env) { m.BeginRun(evt, env) },
	stateScanning:   func(m psmod.Module, evt *psevt.Event, env *psenv.Env) { m.BeginCalibCycle(evt, env) },
}

// closeHooks maps a state to the module callback invoked on leaving it.
var closeHooks = map[loopState]hook{
	stateConfigured: func(m psmod.Module, evt *psevt.Event, env *psenv.Env) { m.EndJob(evt, env) },
	stateRunning:    func(m psmod.Module, evt *psevt.Event, env *psenv.Env) { m.EndRun(evt, env) },
	stateScanning:   func(m psmod.Module, evt *psevt.Event, env *psenv.Env) { m.EndCalibCycle(evt, env) },
}

// openTransitions maps a state to the transition emitted on entering it.
// Entering Configured emits nothing.
var openTransitions = map[loopState]TransitionKind{
	stateRunning:  TransitionBeginRun,
	stateScanning: TransitionBeginCalibCycle,
}

// closeTransitions maps a state to the transition emitted on leaving it.
var closeTransitions = map[loopState]TransitionKind{
	stateRunning:  TransitionEndRun,
	stateScanning: TransitionEndCalibCycle,
}

// EventLoop is the core dispatcher. It pulls transitions from the input
// module, manages job/run/step nesting, invokes the module chain,
// enforces flow-control verdicts, and buffers transitions for the
// iterators. The loop is single-threaded; no user code is ever called
// re-entrantly.
type EventLoop struct {
	input   psmod.InputModule
	modules []psmod.Module
	env     *psenv.Env
	logger  *slog.Logger
	joblog  *logging.Logger
	metrics *metric.Metrics

	state      loopState
	pending    []Transition
	putback    bool
	stopping   bool
	terminated bool
}

// LoopOption configures the event loop.
type LoopOption func(*EventLoop)

// WithLogger sets the loop's logger.
func WithLogger(logger *slog.Logger) LoopOption {
	return func(l *EventLoop) { l.logger = logger }
}

// WithJobLogger sets the job logger used to announce flow-control
// decisions; with a NATS-backed logger a running job can be watched
// live.
func WithJobLogger(joblog *logging.Logger) LoopOption {
	return func(l *EventLoop) { l.joblog = joblog }
}

// WithMetrics attaches pipeline metrics to the loop.
func WithMetrics(m *metric.Metrics) LoopOption {
	return func(l *EventLoop) { l.metrics = m }
}

// NewEventLoop wires an input module, the user-module chain and the
// environment into a dispatcher.
func NewEventLoop(input psmod.InputModule, modules []psmod.Module, env *psenv.Env, opts ...LoopOption) *EventLoop {
	l := &EventLoop{
		input:   input,
		modules: modules,
		env:     env,
		logger:  slog.Default(),
		state:   stateNone,
	}
	for _, o := range opts {
		o(l)
	}
	if l.joblog == nil {
		l.joblog = logging.NewLogger("EventLoop", "", nil, l.logger)
	}
	return l
}

// Env returns the environment shared by the module chain.
func (l *EventLoop) Env() *psenv.Env { return l.env }

// Index returns the input module's random-access index, or the
// unsupported default when the input has none.
func (l *EventLoop) Index() psmod.Index {
	if idx, ok := l.input.(psmod.Indexed); ok {
		return idx.Index()
	}
	return psmod.UnsupportedIndex{}
}

// Putback returns an over-consumed transition to the loop so the
// enclosing iterator can observe it. The buffer holds one unread
// transition at most; a second putback before the first is consumed is
// iterator misuse and panics.
func (l *EventLoop) Putback(t Transition) {
	if l.putback {
		panic("psana: transition putback buffer overflow")
	}
	l.putback = true
	l.pending = append([]Transition{t}, l.pending...)
}

// terminator is the kind/event pair returned once the loop is done.
func terminator() Transition {
	return Transition{Kind: TransitionNone}
}

// pop removes and returns the first pending transition.
func (l *EventLoop) pop() Transition {
	t := l.pending[0]
	l.pending = l.pending[1:]
	l.putback = false
	l.metrics.CountTransition(t.Kind.String())
	return t
}

// Next runs one iteration and returns the next transition. The
// terminator is returned once the input is exhausted and every open
// scope has been closed. An Abort verdict from the input or a module
// surfaces as an ErrAbortRequested error; no further hooks run after
// it.
func (l *EventLoop) Next() (Transition, error) {
	// deliver transitions buffered by a previous iteration (or put
	// back by an iterator) before anything else
	if len(l.pending) > 0 {
		return l.pop(), nil
	}
	if l.terminated {
		return terminator(), nil
	}

	if l.state == stateNone {
		if err := l.initialize(); err != nil {
			return terminator(), err
		}
	}

	for len(l.pending) == 0 && !l.stopping {
		evt := psevt.New()

		istat, err := l.input.Event(evt, l.env)
		if err != nil {
			return terminator(), errors.Wrap(err, "EventLoop", "Next", "input event")
		}
		l.logger.Debug("input.Event returned", "status", istat.String())

		switch istat {
		case psmod.SkipEvent:
			continue

		case psmod.StopInput:
			l.stopping = true

		case psmod.AbortInput:
			l.joblog.Info(fmt.Sprintf("input module %s requested abort", l.input.Name()))
			return terminator(), abortError(l.input.Name(), nil)

		case psmod.DoEvent:
			stat, failed := l.dispatchEvent(evt)
			if stat == psmod.Abort {
				return terminator(), failed
			}
			l.metrics.CountEvent()
			// the event is delivered even when a module requested
			// stop; the stop takes effect afterwards
			l.pending = append(l.pending, Transition{Kind: TransitionEvent, Event: evt})
			if stat == psmod.Stop {
				l.stopping = true
			}

		default:
			if err := l.scopeTransition(istat, evt); err != nil {
				return terminator(), err
			}
		}
	}

	if len(l.pending) == 0 {
		// input exhausted or stop requested: close every open scope
		if err := l.finalize(); err != nil {
			return terminator(), err
		}
	}

	if len(l.pending) > 0 {
		return l.pop(), nil
	}
	return terminator(), nil
}

// initialize runs BeginJob on the input and every module, entering the
// Configured state.
func (l *EventLoop) initialize() error {
	evt := psevt.New()
	if err := l.input.BeginJob(evt, l.env); err != nil {
		return errors.Wrap(err, "EventLoop", "Next", "input beginJob")
	}
	stat, failed := l.newState(stateConfigured, evt)
	if stat == psmod.Abort {
		return failed
	}
	if stat == psmod.Stop {
		// stop accepting new work but continue to unwind
		l.stopping = true
	}
	return nil
}

// scopeTransition handles a non-event transition from the input:
// unwind any still-open inner scopes, then enter the new state. The
// loop is lenient about nesting violations; it closes whatever the new
// transition implies must be closed.
func (l *EventLoop) scopeTransition(istat psmod.InputStatus, evt *psevt.Event) error {
	var unwindTo, newState loopState
	switch istat {
	case psmod.BeginRun:
		unwindTo, newState = stateConfigured, stateRunning
	case psmod.BeginCalibCycle:
		unwindTo, newState = stateRunning, stateScanning
	case psmod.EndCalibCycle:
		unwindTo, newState = stateRunning, stateNone
	case psmod.EndRun:
		unwindTo, newState = stateConfigured, stateNone
	default:
		return errors.WrapFatal(
			fmt.Errorf("unexpected input status %s", istat),
			"EventLoop", "scopeTransition", "transition dispatch")
	}

	stat, failed := l.unwind(unwindTo, evt, false)
	if stat == psmod.Abort {
		return failed
	}
	if stat == psmod.Stop {
		l.stopping = true
		return nil
	}
	if newState != stateNone {
		stat, failed = l.newState(newState, evt)
		if stat == psmod.Abort {
			return failed
		}
		if stat == psmod.Stop {
			l.stopping = true
		}
	}
	return nil
}

// finalize calls EndJob on the input, closes all open scopes with
// verdicts ignored, and marks the loop terminated. The closing
// transitions stay in the pending queue for the iterators.
func (l *EventLoop) finalize() error {
	evt := psevt.New()
	l.terminated = true
	if err := l.input.EndJob(evt, l.env); err != nil {
		return errors.Wrap(err, "EventLoop", "Next", "input endJob")
	}
	l.unwind(stateNone, evt, true)
	return nil
}

// Close shuts the loop down if its consumer abandons it mid-stream:
// open scopes are closed with verdicts ignored and the input's EndJob
// runs. Closing a terminated loop is a no-op.
func (l *EventLoop) Close() error {
	if l.terminated || l.state == stateNone {
		l.terminated = true
		return nil
	}
	return l.finalize()
}

// newState enters a state, recursively entering any missing
// intermediate states first, and dispatches the opening hook to every
// module in status-ignoring mode.
func (l *EventLoop) newState(state loopState, evt *psevt.Event) (psmod.Verdict, error) {
	l.logger.Debug("newState", "state", state.String())

	if l.state < state-1 {
		// use a different event instance for the synthesized scope
		stat, failed := l.newState(state-1, psevt.New())
		if stat != psmod.OK {
			return stat, failed
		}
	}

	l.state = state

	stat, failed := l.dispatchScope(openHooks[state], evt)
	if stat == psmod.OK {
		if kind, ok := openTransitions[state]; ok {
			l.pending = append(l.pending, Transition{Kind: kind, Event: evt})
		}
	}
	return stat, failed
}

// closeState leaves the current state, dispatching the closing hook in
// status-ignoring mode.
func (l *EventLoop) closeState(evt *psevt.Event) (psmod.Verdict, error) {
	l.logger.Debug("closeState", "state", l.state.String())

	stat, failed := l.dispatchScope(closeHooks[l.state], evt)
	if stat == psmod.OK {
		if kind, ok := closeTransitions[l.state]; ok {
			l.pending = append(l.pending, Transition{Kind: kind, Event: evt})
		}
	}
	l.state--
	return stat, failed
}

// unwind closes scopes until the loop is at the target state. With
// ignoreStatus set (shutdown) verdicts cannot interrupt the unwind.
func (l *EventLoop) unwind(target loopState, evt *psevt.Event, ignoreStatus bool) (psmod.Verdict, error) {
	for l.state > target {
		stat, failed := l.closeState(evt)
		if !ignoreStatus && stat != psmod.OK {
			return stat, failed
		}
	}
	return psmod.OK, nil
}

// dispatchScope invokes a scope hook on every module in registration
// order, status-ignoring mode: Skip is ignored, Stop is remembered but
// the iteration continues, Abort breaks immediately.
func (l *EventLoop) dispatchScope(h hook, evt *psevt.Event) (psmod.Verdict, error) {
	stat := psmod.OK
	for _, mod := range l.modules {
		mod.Reset()
		h(mod, evt, l.env)

		switch mod.Status() {
		case psmod.OK:
		case psmod.Skip:
			l.logger.Debug("module requested skip during scope transition", "module", mod.Name())
			l.metrics.CountVerdict(psmod.Skip.String())
		case psmod.Stop:
			l.joblog.Info(fmt.Sprintf("module %s requested stop", mod.Name()))
			l.metrics.CountVerdict(psmod.Stop.String())
			stat = psmod.Stop
		case psmod.Abort:
			l.joblog.Info(fmt.Sprintf("module %s requested abort", mod.Name()))
			l.metrics.CountVerdict(psmod.Abort.String())
			return psmod.Abort, abortError(mod.Name(), mod)
		}
	}
	return stat, nil
}

// dispatchEvent invokes the Event hook on every module in registration
// order, skip-respecting mode: after a module requests skip, later
// ordinary modules are not called but observe-all modules still are.
func (l *EventLoop) dispatchEvent(evt *psevt.Event) (psmod.Verdict, error) {
	stat := psmod.OK
	for _, mod := range l.modules {
		mod.Reset()

		if stat == psmod.OK || mod.ObserveAllEvents() {
			mod.Event(evt, l.env)
		}

		switch mod.Status() {
		case psmod.OK:
		case psmod.Skip:
			// remember the skip but keep going: there may be modules
			// interested in every event
			l.logger.Debug("module requested skip", "module", mod.Name())
			l.metrics.CountVerdict(psmod.Skip.String())
			if stat == psmod.OK {
				stat = psmod.Skip
			}
			evt.MarkSkip()
		case psmod.Stop:
			l.joblog.Info(fmt.Sprintf("module %s requested stop", mod.Name()))
			l.metrics.CountVerdict(psmod.Stop.String())
			return psmod.Stop, nil
		case psmod.Abort:
			l.joblog.Info(fmt.Sprintf("module %s requested abort", mod.Name()))
			l.metrics.CountVerdict(psmod.Abort.String())
			return psmod.Abort, abortError(mod.Name(), mod)
		}
	}
	return stat, nil
}

// abortError builds the error surfaced for an Abort verdict. When the
// module carries an underlying error (scripted modules do) it is
// included in the chain.
func abortError(name string, mod psmod.Module) error {
	err := fmt.Errorf("%w by %s", errors.ErrAbortRequested, name)
	if failer, ok := mod.(psmod.Failer); ok && failer != nil {
		if cause := failer.Err(); cause != nil {
			err = fmt.Errorf("%w by %s: %w", errors.ErrAbortRequested, name, cause)
		}
	}
	return errors.WrapFatal(err, "EventLoop", "Next", "module dispatch")
}
