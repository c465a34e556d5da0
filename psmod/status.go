// Package psmod defines the contracts between the event loop and the
// pluggable analysis modules: the module capability interface with its
// flow-control verdicts, the input-module contract with its transition
// stream, the random-access indexing interface, and the module
// specifier grammar.
package psmod

// Verdict is a user module's flow-control decision, written per call
// and cleared to OK before every invocation.
type Verdict int

const (
	// OK continues normal processing.
	OK Verdict = iota
	// Skip asks to skip the remaining ordinary modules for this event.
	Skip
	// Stop asks to finish with the events; open scopes are closed.
	Stop
	// Abort asks to terminate immediately with no finalization.
	Abort
)

// String returns the verdict name.
func (v Verdict) String() string {
	switch v {
	case OK:
		return "OK"
	case Skip:
		return "Skip"
	case Stop:
		return "Stop"
	case Abort:
		return "Abort"
	default:
		return "unknown"
	}
}

// InputStatus is the transition kind produced by an input module. The
// first five denote positions in the run/step/event hierarchy; the last
// three are flow-control verdicts from the input.
type InputStatus int

const (
	// BeginRun opens a run scope.
	BeginRun InputStatus = iota
	// BeginCalibCycle opens a calibration-cycle scope.
	BeginCalibCycle
	// DoEvent delivers one event.
	DoEvent
	// EndCalibCycle closes the current calibration-cycle scope.
	EndCalibCycle
	// EndRun closes the current run scope.
	EndRun
	// SkipEvent drops the current datagram without dispatching it.
	SkipEvent
	// StopInput signals normal end of the stream.
	StopInput
	// AbortInput requests immediate termination with no finalization.
	AbortInput
)

// String returns the transition name.
func (s InputStatus) String() string {
	switch s {
	case BeginRun:
		return "BeginRun"
	case BeginCalibCycle:
		return "BeginCalibCycle"
	case DoEvent:
		return "DoEvent"
	case EndCalibCycle:
		return "EndCalibCycle"
	case EndRun:
		return "EndRun"
	case SkipEvent:
		return "Skip"
	case StopInput:
		return "Stop"
	case AbortInput:
		return "Abort"
	default:
		return "unknown"
	}
}
