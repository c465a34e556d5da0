package psana

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcls-psana/psana/config"
	"github.com/lcls-psana/psana/errors"
	"github.com/lcls-psana/psana/psenv"
	"github.com/lcls-psana/psana/psevt"
	"github.com/lcls-psana/psana/psmod"
)

// scriptedInput is an input module that replays a fixed transition
// sequence and then stops.
type scriptedInput struct {
	name string
	seq  []psmod.InputStatus
	pos  int

	beginJobCalls int
	endJobCalls   int

	index psmod.Index
}

func (s *scriptedInput) Name() string { return s.name }

func (s *scriptedInput) BeginJob(*psevt.Event, *psenv.Env) error {
	s.beginJobCalls++
	return nil
}

func (s *scriptedInput) EndJob(*psevt.Event, *psenv.Env) error {
	s.endJobCalls++
	return nil
}

func (s *scriptedInput) Event(*psevt.Event, *psenv.Env) (psmod.InputStatus, error) {
	if s.pos >= len(s.seq) {
		return psmod.StopInput, nil
	}
	istat := s.seq[s.pos]
	s.pos++
	return istat, nil
}

// indexedInput additionally exposes a random-access index.
type indexedInput struct {
	scriptedInput
}

func (s *indexedInput) Index() psmod.Index { return s.index }

// fakeIndex records SetRun calls.
type fakeIndex struct {
	psmod.UnsupportedIndex
	runs    []uint32
	setRuns []int
}

func (f *fakeIndex) Runs() ([]uint32, error) { return f.runs, nil }
func (f *fakeIndex) SetRun(run int) error {
	f.setRuns = append(f.setRuns, run)
	return nil
}

// recorder is a user module that journals every hook invocation into a
// shared trace and can be programmed to return a verdict from any hook.
type recorder struct {
	psmod.Base
	journal *[]string

	// verdict to set, keyed by hook name; "event#N" keys react to the
	// N-th event (1-based)
	react map[string]psmod.Verdict

	eventCount      int
	resetViolations int
}

func newRecorder(name string, journal *[]string) *recorder {
	return &recorder{
		Base:    psmod.NewBase(name, config.NewStore()),
		journal: journal,
		react:   make(map[string]psmod.Verdict),
	}
}

func (r *recorder) hook(name string) {
	if r.Status() != psmod.OK {
		// Reset must have run before every invocation
		r.resetViolations++
	}
	*r.journal = append(*r.journal, r.Name()+"."+name)
	if v, ok := r.react[name]; ok {
		r.set(v)
	}
}

func (r *recorder) set(v psmod.Verdict) {
	switch v {
	case psmod.Skip:
		r.Skip()
	case psmod.Stop:
		r.Stop()
	case psmod.Abort:
		r.Abort()
	}
}

func (r *recorder) BeginJob(*psevt.Event, *psenv.Env)        { r.hook("beginJob") }
func (r *recorder) BeginRun(*psevt.Event, *psenv.Env)        { r.hook("beginRun") }
func (r *recorder) BeginCalibCycle(*psevt.Event, *psenv.Env) { r.hook("beginCalibCycle") }
func (r *recorder) EndCalibCycle(*psevt.Event, *psenv.Env)   { r.hook("endCalibCycle") }
func (r *recorder) EndRun(*psevt.Event, *psenv.Env)          { r.hook("endRun") }
func (r *recorder) EndJob(*psevt.Event, *psenv.Env)          { r.hook("endJob") }

func (r *recorder) Event(*psevt.Event, *psenv.Env) {
	r.eventCount++
	r.hook("event")
	if v, ok := r.react[fmt.Sprintf("event#%d", r.eventCount)]; ok {
		r.set(v)
	}
}

func testEnv() *psenv.Env {
	return psenv.New("test", psenv.NewFromConfig("", ""), "", config.NewStore())
}

// transition shorthands for scripted sequences
var (
	tBR = psmod.BeginRun
	tBC = psmod.BeginCalibCycle
	tD  = psmod.DoEvent
	tEC = psmod.EndCalibCycle
	tER = psmod.EndRun
)

func newLoop(seq []psmod.InputStatus, mods ...psmod.Module) (*EventLoop, *scriptedInput) {
	input := &scriptedInput{name: "TestInput.Scripted", seq: seq}
	return NewEventLoop(input, mods, testEnv()), input
}

// drain pulls the loop until the terminator and returns the kinds seen.
func drain(t *testing.T, loop *EventLoop) []TransitionKind {
	t.Helper()
	var kinds []TransitionKind
	for {
		tr, err := loop.Next()
		require.NoError(t, err)
		if tr.Kind == TransitionNone {
			return kinds
		}
		kinds = append(kinds, tr.Kind)
	}
}

func TestLoopEmitsNestedTransitions(t *testing.T) {
	var journal []string
	mod := newRecorder("psana.Rec", &journal)
	loop, input := newLoop([]psmod.InputStatus{tBR, tBC, tD, tD, tEC, tER}, mod)

	kinds := drain(t, loop)
	assert.Equal(t, []TransitionKind{
		TransitionBeginRun,
		TransitionBeginCalibCycle,
		TransitionEvent,
		TransitionEvent,
		TransitionEndCalibCycle,
		TransitionEndRun,
	}, kinds)

	assert.Equal(t, 1, input.beginJobCalls)
	assert.Equal(t, 1, input.endJobCalls)
	assert.Equal(t, []string{
		"psana.Rec.beginJob",
		"psana.Rec.beginRun",
		"psana.Rec.beginCalibCycle",
		"psana.Rec.event",
		"psana.Rec.event",
		"psana.Rec.endCalibCycle",
		"psana.Rec.endRun",
		"psana.Rec.endJob",
	}, journal)
	assert.Zero(t, mod.resetViolations)
}

func TestLoopTerminatorIsSticky(t *testing.T) {
	loop, _ := newLoop([]psmod.InputStatus{tBR, tER})
	drain(t, loop)

	for i := 0; i < 3; i++ {
		tr, err := loop.Next()
		require.NoError(t, err)
		assert.Equal(t, TransitionNone, tr.Kind)
	}
}

func TestLoopPairedBracketsOnShutdownUnwind(t *testing.T) {
	// input dies inside an open calib cycle; the loop must emit the
	// paired closings during shutdown
	var journal []string
	mod := newRecorder("psana.Rec", &journal)
	loop, input := newLoop([]psmod.InputStatus{tBR, tBC, tD}, mod)

	kinds := drain(t, loop)
	assert.Equal(t, []TransitionKind{
		TransitionBeginRun,
		TransitionBeginCalibCycle,
		TransitionEvent,
		TransitionEndCalibCycle,
		TransitionEndRun,
	}, kinds)

	assert.Equal(t, 1, input.endJobCalls)
	assert.Equal(t, "psana.Rec.endJob", journal[len(journal)-1])
	assert.Equal(t, "psana.Rec.endRun", journal[len(journal)-2])
	assert.Equal(t, "psana.Rec.endCalibCycle", journal[len(journal)-3])
}

func TestLoopLenientNestingSynthesizesMissingScopes(t *testing.T) {
	// BeginCalibCycle with no enclosing BeginRun: the loop enters the
	// missing intermediate state first
	loop, _ := newLoop([]psmod.InputStatus{tBC, tD, tEC})

	kinds := drain(t, loop)
	assert.Equal(t, []TransitionKind{
		TransitionBeginRun,
		TransitionBeginCalibCycle,
		TransitionEvent,
		TransitionEndCalibCycle,
		TransitionEndRun,
	}, kinds)
}

func TestLoopInputSkipProducesNothing(t *testing.T) {
	loop, _ := newLoop([]psmod.InputStatus{tBR, tBC, psmod.SkipEvent, tD, psmod.SkipEvent, tEC, tER})

	kinds := drain(t, loop)
	events := 0
	for _, k := range kinds {
		if k == TransitionEvent {
			events++
		}
	}
	assert.Equal(t, 1, events)
}

func TestLoopRegistrationOrder(t *testing.T) {
	var journal []string
	m1 := newRecorder("psana.A", &journal)
	m2 := newRecorder("psana.B", &journal)
	m3 := newRecorder("psana.C", &journal)
	loop, _ := newLoop([]psmod.InputStatus{tBR, tBC, tD, tEC, tER}, m1, m2, m3)

	drain(t, loop)

	for i := 0; i+2 < len(journal); i += 3 {
		assert.Equal(t, "psana.A.", journal[i][:8])
		assert.Equal(t, "psana.B.", journal[i+1][:8])
		assert.Equal(t, "psana.C.", journal[i+2][:8])
	}

	// endJob uses the same order as beginJob
	assert.Equal(t, []string{"psana.A.endJob", "psana.B.endJob", "psana.C.endJob"}, journal[len(journal)-3:])
}

func TestLoopModuleStopOnEventStillDeliversIt(t *testing.T) {
	// a stop requested at event #2 still delivers that event, then
	// endJob runs
	var journal []string
	mod := newRecorder("psana.Rec", &journal)
	mod.react["event#2"] = psmod.Stop
	loop, input := newLoop([]psmod.InputStatus{tBR, tBC, tD, tD, tD, tEC, tER}, mod)

	kinds := drain(t, loop)
	events := 0
	for _, k := range kinds {
		if k == TransitionEvent {
			events++
		}
	}
	assert.Equal(t, 2, events)
	assert.Equal(t, 2, mod.eventCount)
	assert.Equal(t, 1, input.endJobCalls)
	assert.Contains(t, journal, "psana.Rec.endJob")
	assert.Contains(t, journal, "psana.Rec.endCalibCycle")
	assert.Contains(t, journal, "psana.Rec.endRun")
}

func TestLoopScopeStopLatchesAndFinalizes(t *testing.T) {
	// Stop from a scope hook closes all remaining scopes and runs
	// endJob; no events are emitted afterwards
	var journal []string
	mod := newRecorder("psana.Rec", &journal)
	mod.react["beginRun"] = psmod.Stop
	loop, input := newLoop([]psmod.InputStatus{tBR, tBC, tD, tEC, tER}, mod)

	kinds := drain(t, loop)
	assert.NotContains(t, kinds, TransitionEvent)
	assert.Equal(t, 1, input.endJobCalls)
	assert.Equal(t, []string{
		"psana.Rec.beginJob",
		"psana.Rec.beginRun",
		"psana.Rec.endRun",
		"psana.Rec.endJob",
	}, journal)
}

func TestLoopBeginJobStopShutsDownCleanly(t *testing.T) {
	var journal []string
	mod := newRecorder("psana.Rec", &journal)
	mod.react["beginJob"] = psmod.Stop
	loop, input := newLoop([]psmod.InputStatus{tBR, tBC, tD, tEC, tER}, mod)

	kinds := drain(t, loop)
	assert.Empty(t, kinds)
	assert.Equal(t, 1, input.endJobCalls)
	assert.Equal(t, []string{"psana.Rec.beginJob", "psana.Rec.endJob"}, journal)
}

func TestLoopSkipRespectsObserveAll(t *testing.T) {
	// module B skips, ordinary module C is not called, observe-all
	// module D still is; the event reaches the iterator
	// with the skip marker set
	var journal []string
	a := newRecorder("psana.A", &journal)
	b := newRecorder("psana.B", &journal)
	b.react["event"] = psmod.Skip
	c := newRecorder("psana.C", &journal)
	d := newRecorder("psana.D", &journal)
	d.SetObserveAll(true)

	loop, _ := newLoop([]psmod.InputStatus{tBR, tBC, tD, tEC, tER}, a, b, c, d)

	var evt *psevt.Event
	for {
		tr, err := loop.Next()
		require.NoError(t, err)
		if tr.Kind == TransitionEvent {
			evt = tr.Event
		}
		if tr.Kind == TransitionNone {
			break
		}
	}

	require.NotNil(t, evt)
	assert.True(t, evt.SkipMarked())

	assert.Equal(t, 1, a.eventCount)
	assert.Equal(t, 1, b.eventCount)
	assert.Equal(t, 0, c.eventCount, "ordinary module after Skip must not see the event")
	assert.Equal(t, 1, d.eventCount, "observe-all module must see the event")

	// skip does not apply to scope transitions
	assert.Contains(t, journal, "psana.C.beginRun")
	assert.Contains(t, journal, "psana.C.endRun")
}

func TestLoopSkipDoesNotLeakAcrossEvents(t *testing.T) {
	var journal []string
	a := newRecorder("psana.A", &journal)
	a.react["event#1"] = psmod.Skip
	b := newRecorder("psana.B", &journal)

	loop, _ := newLoop([]psmod.InputStatus{tBR, tBC, tD, tD, tEC, tER}, a, b)
	drain(t, loop)

	assert.Equal(t, 2, a.eventCount)
	assert.Equal(t, 1, b.eventCount, "second event must reach B again")
}

func TestLoopInputAbort(t *testing.T) {
	// an aborting input makes the dispatcher raise; no further hooks run
	var journal []string
	mod := newRecorder("psana.Rec", &journal)
	loop, input := newLoop([]psmod.InputStatus{tBR, tBC, tD, psmod.AbortInput}, mod)

	var err error
	for {
		var tr Transition
		tr, err = loop.Next()
		if err != nil || tr.Kind == TransitionNone {
			break
		}
	}

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAbortRequested)
	assert.Equal(t, 0, input.endJobCalls, "no finalization after abort")
	assert.NotContains(t, journal, "psana.Rec.endJob")
	assert.NotContains(t, journal, "psana.Rec.endRun")
}

func TestLoopModuleAbort(t *testing.T) {
	var journal []string
	a := newRecorder("psana.A", &journal)
	b := newRecorder("psana.B", &journal)
	a.react["event"] = psmod.Abort

	loop, input := newLoop([]psmod.InputStatus{tBR, tBC, tD, tEC, tER}, a, b)

	var err error
	for {
		var tr Transition
		tr, err = loop.Next()
		if err != nil || tr.Kind == TransitionNone {
			break
		}
	}

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAbortRequested)
	assert.Contains(t, err.Error(), "psana.A")
	assert.Equal(t, 0, b.eventCount, "abort breaks the chain immediately")
	assert.Equal(t, 0, input.endJobCalls)
}

func TestLoopPutbackDepthOne(t *testing.T) {
	loop, _ := newLoop([]psmod.InputStatus{tBR, tER})

	tr, err := loop.Next()
	require.NoError(t, err)
	require.Equal(t, TransitionBeginRun, tr.Kind)

	loop.Putback(tr)
	assert.Panics(t, func() { loop.Putback(tr) })

	// the put-back transition is the next one delivered
	tr2, err := loop.Next()
	require.NoError(t, err)
	assert.Equal(t, TransitionBeginRun, tr2.Kind)
}

func TestLoopCloseUnwindsOpenScopes(t *testing.T) {
	var journal []string
	mod := newRecorder("psana.Rec", &journal)
	loop, input := newLoop([]psmod.InputStatus{tBR, tBC, tD, tD, tEC, tER}, mod)

	// consume only up to the first event, then abandon the loop
	for {
		tr, err := loop.Next()
		require.NoError(t, err)
		if tr.Kind == TransitionEvent {
			break
		}
	}

	require.NoError(t, loop.Close())
	assert.Equal(t, 1, input.endJobCalls)
	assert.Contains(t, journal, "psana.Rec.endCalibCycle")
	assert.Contains(t, journal, "psana.Rec.endRun")
	assert.Contains(t, journal, "psana.Rec.endJob")

	// a closed loop only reports the terminator... after its buffered
	// closings are drained
	for {
		tr, err := loop.Next()
		require.NoError(t, err)
		if tr.Kind == TransitionNone {
			break
		}
	}
}

func TestLoopResetBeforeEveryInvocation(t *testing.T) {
	var journal []string
	a := newRecorder("psana.A", &journal)
	a.react["event"] = psmod.Skip
	b := newRecorder("psana.B", &journal)
	b.SetObserveAll(true)

	loop, _ := newLoop([]psmod.InputStatus{tBR, tBC, tD, tD, tD, tEC, tER}, a, b)
	drain(t, loop)

	assert.Zero(t, a.resetViolations)
	assert.Zero(t, b.resetViolations)
}
