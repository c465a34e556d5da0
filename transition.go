package psana

import (
	"github.com/lcls-psana/psana/psevt"
)

// TransitionKind is the kind of a transition emitted by the event loop
// to its iterators.
type TransitionKind int

const (
	// TransitionNone is the terminator: the loop is exhausted.
	TransitionNone TransitionKind = iota
	// TransitionBeginRun opens a run scope.
	TransitionBeginRun
	// TransitionBeginCalibCycle opens a calibration-cycle scope.
	TransitionBeginCalibCycle
	// TransitionEvent delivers one event.
	TransitionEvent
	// TransitionEndCalibCycle closes a calibration-cycle scope.
	TransitionEndCalibCycle
	// TransitionEndRun closes a run scope.
	TransitionEndRun
)

// String returns the transition name.
func (k TransitionKind) String() string {
	switch k {
	case TransitionNone:
		return "None"
	case TransitionBeginRun:
		return "BeginRun"
	case TransitionBeginCalibCycle:
		return "BeginCalibCycle"
	case TransitionEvent:
		return "Event"
	case TransitionEndCalibCycle:
		return "EndCalibCycle"
	case TransitionEndRun:
		return "EndRun"
	default:
		return "unknown"
	}
}

// Transition is one unit emitted by the event loop: a kind plus the
// event object the transition was dispatched with. The terminator
// carries a nil event.
type Transition struct {
	Kind  TransitionKind
	Event *psevt.Event
}
