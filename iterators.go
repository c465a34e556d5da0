package psana

import (
	stderrors "errors"

	"github.com/lcls-psana/psana/errors"
	"github.com/lcls-psana/psana/psenv"
	"github.com/lcls-psana/psana/psevt"
)

// EventIter is the innermost pull iterator: it advances the event loop
// and yields events, passing scope transitions through silently. The
// iterator terminates on the loop's terminator or on its configured
// stop kind.
type EventIter struct {
	loop *EventLoop
	stop TransitionKind
	done bool
}

// Next returns the next event, or nil when the iteration is finished.
func (it *EventIter) Next() (*psevt.Event, error) {
	if it.done {
		return nil, nil
	}

	for {
		t, err := it.loop.Next()
		if err != nil {
			it.done = true
			return nil, err
		}
		switch t.Kind {
		case TransitionNone, it.stop:
			it.done = true
			return nil, nil
		case TransitionEvent:
			return t.Event, nil
		default:
			// scope transition inside our window, not ours to report
		}
	}
}

// Step represents one calibration cycle. Its events iterator stops at
// the cycle's closing transition.
type Step struct {
	loop *EventLoop
}

// Events returns the iterator over this step's events.
func (s *Step) Events() *EventIter {
	return &EventIter{loop: s.loop, stop: TransitionEndCalibCycle}
}

// Env returns the environment object.
func (s *Step) Env() *psenv.Env { return s.loop.Env() }

// StepIter iterates over the calibration cycles of one run (or of the
// whole data source). When the configured stop kind appears it is put
// back into the loop so the enclosing iterator can observe it.
type StepIter struct {
	loop *EventLoop
	stop TransitionKind
	done bool
}

// Next returns the next step, or nil when the iteration is finished.
func (it *StepIter) Next() (*Step, error) {
	if it.done {
		return nil, nil
	}

	for {
		t, err := it.loop.Next()
		if err != nil {
			it.done = true
			return nil, err
		}
		switch t.Kind {
		case TransitionNone:
			it.done = true
			return nil, nil
		case it.stop:
			// return the transition to the stream, someone else may be
			// interested in it
			it.loop.Putback(t)
			it.done = true
			return nil, nil
		case TransitionBeginCalibCycle:
			return &Step{loop: it.loop}, nil
		default:
			continue
		}
	}
}

// Run represents one run. Steps and events iterators stop at the run's
// closing transition.
type Run struct {
	loop *EventLoop
}

// Steps returns the iterator over this run's calibration cycles.
func (r *Run) Steps() *StepIter {
	return &StepIter{loop: r.loop, stop: TransitionEndRun}
}

// Events returns the iterator over this run's events across all of its
// calibration cycles.
func (r *Run) Events() *EventIter {
	return &EventIter{loop: r.loop, stop: TransitionEndRun}
}

// Env returns the environment object.
func (r *Run) Env() *psenv.Env { return r.loop.Env() }

// RunIter iterates over runs. When the input supports random access the
// iterator pre-enumerates the published run numbers and positions the
// index at each one before pulling its transitions.
type RunIter struct {
	loop *EventLoop
	done bool

	// indexing
	checked bool
	indexed bool
	runs    []uint32
	runIdx  int
}

// Next returns the next run, or nil when the iteration is finished.
func (it *RunIter) Next() (*Run, error) {
	run, _, err := it.NextWithEvent()
	return run, err
}

// NextWithEvent returns the next run together with the event carried by
// its opening transition.
func (it *RunIter) NextWithEvent() (*Run, *psevt.Event, error) {
	if it.done {
		return nil, nil, nil
	}

	if err := it.position(); err != nil {
		it.done = true
		return nil, nil, err
	}
	if it.done {
		// index exhausted its published run list
		return nil, nil, nil
	}

	for {
		t, err := it.loop.Next()
		if err != nil {
			it.done = true
			return nil, nil, err
		}
		switch t.Kind {
		case TransitionNone:
			it.done = true
			return nil, nil, nil
		case TransitionBeginRun:
			return &Run{loop: it.loop}, t.Event, nil
		default:
			continue
		}
	}
}

// position drives the index to the next published run number when
// random access is available.
func (it *RunIter) position() error {
	idx := it.loop.Index()

	if !it.checked {
		it.checked = true
		runs, err := idx.Runs()
		switch {
		case err == nil:
			it.indexed = true
			it.runs = runs
		case stderrors.Is(err, errors.ErrUnsupportedIndex):
			// sequential input, nothing to drive
		default:
			return err
		}
	}

	if !it.indexed {
		return nil
	}
	if it.runIdx >= len(it.runs) {
		it.done = true
		return nil
	}
	if err := idx.SetRun(int(it.runs[it.runIdx])); err != nil {
		return err
	}
	it.runIdx++
	return nil
}
