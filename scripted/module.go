package scripted

import (
	"fmt"
	"log/slog"

	lua "github.com/yuin/gopher-lua"

	"github.com/lcls-psana/psana/errors"
	"github.com/lcls-psana/psana/psenv"
	"github.com/lcls-psana/psana/psevt"
	"github.com/lcls-psana/psana/psmod"
)

// Module adapts a Lua class table to the psmod.Module contract. Each
// lifecycle callback is looked up by name per call; absent callbacks
// are no-ops. A Lua error sets the Abort verdict and is reported
// through the Failer interface.
type Module struct {
	psmod.Base
	state  *lua.LState
	self   *lua.LTable
	err    error
	logger *slog.Logger
}

// init calls the optional init(self, config) constructor with the
// module's configuration as named parameters.
func (m *Module) init(params map[string]string) error {
	fn, ok := m.state.GetField(m.self, "init").(*lua.LFunction)
	if !ok {
		return nil
	}

	cfgTable := m.state.NewTable()
	for key, value := range params {
		m.state.SetField(cfgTable, key, lua.LString(value))
	}

	err := m.state.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, m.self, cfgTable)
	if err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s: init: %v", errors.ErrScriptLoad, m.Name(), err),
			"Module", "init", "script constructor")
	}
	return nil
}

// Err returns the error behind an Abort verdict, if any.
func (m *Module) Err() error { return m.err }

// BeginJob invokes the script's beginjob callback if present.
func (m *Module) BeginJob(evt *psevt.Event, env *psenv.Env) { m.call("beginjob", evt, env) }

// BeginRun invokes the script's beginrun callback if present.
func (m *Module) BeginRun(evt *psevt.Event, env *psenv.Env) { m.call("beginrun", evt, env) }

// BeginCalibCycle invokes the script's begincalibcycle callback if present.
func (m *Module) BeginCalibCycle(evt *psevt.Event, env *psenv.Env) { m.call("begincalibcycle", evt, env) }

// Event invokes the script's event callback.
func (m *Module) Event(evt *psevt.Event, env *psenv.Env) { m.call("event", evt, env) }

// EndCalibCycle invokes the script's endcalibcycle callback if present.
func (m *Module) EndCalibCycle(evt *psevt.Event, env *psenv.Env) { m.call("endcalibcycle", evt, env) }

// EndRun invokes the script's endrun callback if present.
func (m *Module) EndRun(evt *psevt.Event, env *psenv.Env) { m.call("endrun", evt, env) }

// EndJob invokes the script's endjob callback if present.
func (m *Module) EndJob(evt *psevt.Event, env *psenv.Env) { m.call("endjob", evt, env) }

// call invokes one callback. The callback receives (self, event, env)
// and may return "skip", "stop" or "abort" to set its verdict.
func (m *Module) call(name string, evt *psevt.Event, env *psenv.Env) {
	fn, ok := m.state.GetField(m.self, name).(*lua.LFunction)
	if !ok {
		return
	}

	err := m.state.CallByParam(
		lua.P{Fn: fn, NRet: 1, Protect: true},
		m.self, wrapEvent(m.state, evt), envTable(m.state, env))
	if err != nil {
		m.err = errors.Wrap(
			fmt.Errorf("%w: %s.%s: %v", errors.ErrScriptCall, m.Name(), name, err),
			"Module", "call", "script callback")
		m.logger.Error("scripted module callback failed", "module", m.Name(), "callback", name, "error", err)
		m.Abort()
		return
	}

	ret := m.state.Get(-1)
	m.state.Pop(1)
	switch lua.LVAsString(ret) {
	case "skip":
		m.Skip()
	case "stop":
		m.Stop()
	case "abort":
		m.Abort()
	}
}

const eventTypeName = "psana.event"

// registerEventType installs the event userdata metatable in a state.
func registerEventType(L *lua.LState) {
	if L.GetTypeMetatable(eventTypeName) != lua.LNil {
		return
	}
	mt := L.NewTypeMetatable(eventTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), eventMethods))
}

func wrapEvent(L *lua.LState, evt *psevt.Event) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = evt
	L.SetMetatable(ud, L.GetTypeMetatable(eventTypeName))
	return ud
}

func checkEvent(L *lua.LState) *psevt.Event {
	ud := L.CheckUserData(1)
	if evt, ok := ud.Value.(*psevt.Event); ok {
		return evt
	}
	L.ArgError(1, "event expected")
	return nil
}

// eventMethods is the string-valued slice of the event container
// exposed to scripts.
var eventMethods = map[string]lua.LGFunction{
	"get": func(L *lua.LState) int {
		evt := checkEvent(L)
		key := L.CheckString(2)
		if v, ok := psevt.Get[string](evt, psevt.WithKey(key)); ok {
			L.Push(lua.LString(v))
		} else {
			L.Push(lua.LNil)
		}
		return 1
	},
	"put": func(L *lua.LState) int {
		evt := checkEvent(L)
		key := L.CheckString(2)
		value := L.CheckString(3)
		psevt.Replace(evt, value, psevt.WithKey(key))
		return 0
	},
	"skip_marked": func(L *lua.LState) int {
		evt := checkEvent(L)
		L.Push(lua.LBool(evt.SkipMarked()))
		return 1
	},
	"len": func(L *lua.LState) int {
		evt := checkEvent(L)
		L.Push(lua.LNumber(evt.Len()))
		return 1
	},
}

// envTable renders the environment for one callback invocation.
func envTable(L *lua.LState, env *psenv.Env) *lua.LTable {
	tbl := L.NewTable()
	if env == nil {
		return tbl
	}
	L.SetField(tbl, "job_name", lua.LString(env.JobName()))
	L.SetField(tbl, "job_id", lua.LString(env.JobID()))
	L.SetField(tbl, "instrument", lua.LString(env.Instrument()))
	L.SetField(tbl, "experiment", lua.LString(env.Experiment()))
	L.SetField(tbl, "calib_dir", lua.LString(env.CalibDir()))
	L.SetField(tbl, "worker_id", lua.LNumber(env.WorkerID()))
	return tbl
}
