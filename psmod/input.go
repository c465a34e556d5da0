package psmod

import (
	"github.com/lcls-psana/psana/errors"
	"github.com/lcls-psana/psana/psenv"
	"github.com/lcls-psana/psana/psevt"
)

// InputModule is the polymorphic source of the transition stream. The
// loop calls BeginJob once, then Event repeatedly until it returns
// StopInput, then EndJob once. Event may block on I/O or on a
// shared-memory ring; errors are non-recoverable and terminate the job.
type InputModule interface {
	// Name returns the full display name "Pkg.Class[:instance]".
	Name() string

	BeginJob(evt *psevt.Event, env *psenv.Env) error
	Event(evt *psevt.Event, env *psenv.Env) (InputStatus, error)
	EndJob(evt *psevt.Event, env *psenv.Env) error
}

// EventTime is the timestamp used by the indexing interface, seconds
// and nanoseconds since the epoch as recorded in the data stream.
type EventTime struct {
	Sec  uint32
	Nsec uint32
}

// Value packs the timestamp into a single ordered integer.
func (t EventTime) Value() uint64 {
	return uint64(t.Sec)<<32 | uint64(t.Nsec)
}

// Index is the random-access interface an input module may support.
// The run and step iterators consult it when available.
type Index interface {
	// Runs returns the run numbers present in the input.
	Runs() ([]uint32, error)
	// RunTimes returns the event times of the current step.
	RunTimes() ([]EventTime, error)
	// Jump positions the input at the event with the given time.
	Jump(t EventTime) error
	// SetRun positions the input at the beginning of a run.
	SetRun(run int) error
	// End releases any resources held for random access.
	End() error
}

// Indexed is implemented by input modules that expose an Index.
type Indexed interface {
	Index() Index
}

// UnsupportedIndex is the default Index for inputs without random
// access; every method fails with ErrUnsupportedIndex.
type UnsupportedIndex struct{}

func (UnsupportedIndex) unsupported(op string) error {
	return errors.WrapInvalid(errors.ErrUnsupportedIndex, "Index", op, "random access")
}

// Runs fails with ErrUnsupportedIndex.
func (u UnsupportedIndex) Runs() ([]uint32, error) { return nil, u.unsupported("Runs") }

// RunTimes fails with ErrUnsupportedIndex.
func (u UnsupportedIndex) RunTimes() ([]EventTime, error) { return nil, u.unsupported("RunTimes") }

// Jump fails with ErrUnsupportedIndex.
func (u UnsupportedIndex) Jump(EventTime) error { return u.unsupported("Jump") }

// SetRun fails with ErrUnsupportedIndex.
func (u UnsupportedIndex) SetRun(int) error { return u.unsupported("SetRun") }

// End fails with ErrUnsupportedIndex.
func (u UnsupportedIndex) End() error { return u.unsupported("End") }
