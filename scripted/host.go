// Package scripted hosts user modules written in Lua. A module
// specifier "Package.Class[:instance]" resolves to the script
// <script-dir>/<Package>/<Class>.lua, which must define a global table
// named after the class. The table's "event" function is required; the
// other lifecycle callbacks (beginjob, beginrun, begincalibcycle,
// endcalibcycle, endrun, endjob) are optional and silently no-op when
// absent. The host owns one interpreter state per module and is the
// bridge's scoped resource: created on first load, released by Close.
package scripted

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"golang.org/x/sync/errgroup"

	"github.com/lcls-psana/psana/config"
	"github.com/lcls-psana/psana/errors"
	"github.com/lcls-psana/psana/psmod"
)

// callback names the framework looks up on a scripted module. "event"
// is mandatory, the rest are optional.
var callbackNames = []string{
	"beginjob", "beginrun", "begincalibcycle",
	"event",
	"endcalibcycle", "endrun", "endjob",
}

// Host loads and owns scripted modules.
type Host struct {
	dir    string
	cfg    *config.Store
	logger *slog.Logger

	mu     sync.Mutex
	states []*lua.LState
}

// NewHost creates a scripted-module host rooted at a script directory.
func NewHost(dir string, cfg *config.Store, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{dir: dir, cfg: cfg, logger: logger}
}

func (h *Host) scriptPath(s psmod.Spec) string {
	return filepath.Join(h.dir, s.Package, s.Class+".lua")
}

// Resolves reports whether a script exists for the specifier.
func (h *Host) Resolves(s psmod.Spec) bool {
	if h.dir == "" {
		return false
	}
	info, err := os.Stat(h.scriptPath(s))
	return err == nil && !info.IsDir()
}

// Load constructs one scripted module.
func (h *Host) Load(s psmod.Spec) (psmod.Module, error) {
	path := h.scriptPath(s)

	L := lua.NewState()
	h.track(L)

	if err := L.DoFile(path); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s: %v", errors.ErrScriptLoad, path, err),
			"Host", "Load", "script execution")
	}

	clsVal := L.GetGlobal(s.Class)
	cls, ok := clsVal.(*lua.LTable)
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s does not define table %q", errors.ErrScriptLoad, path, s.Class),
			"Host", "Load", "class lookup")
	}

	if err := checkCallbackNames(cls, path); err != nil {
		return nil, err
	}

	if _, ok := L.GetField(cls, "event").(*lua.LFunction); !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s: class %q does not define an event() function", errors.ErrScriptLoad, path, s.Class),
			"Host", "Load", "event callback validation")
	}

	registerEventType(L)

	mod := &Module{
		Base:   psmod.NewBase(s.FullName(), h.cfg),
		state:  L,
		self:   cls,
		logger: h.logger,
	}

	if err := mod.init(h.configParams(s)); err != nil {
		return nil, err
	}

	h.logger.Debug("loaded scripted module", "module", s.FullName(), "script", path)
	return mod, nil
}

// LoadAll constructs scripted modules concurrently, preserving order.
// Each module owns a private interpreter state, so loads are
// independent.
func (h *Host) LoadAll(specs []psmod.Spec) ([]psmod.Module, error) {
	modules := make([]psmod.Module, len(specs))

	var g errgroup.Group
	for i, s := range specs {
		i, s := i, s
		g.Go(func() error {
			m, err := h.Load(s)
			if err != nil {
				return err
			}
			modules[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return modules, nil
}

// Close releases every interpreter state the host created.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, L := range h.states {
		L.Close()
	}
	h.states = nil
}

func (h *Host) track(L *lua.LState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, L)
}

// configParams collects the module's configuration as named parameters,
// class-name section first, display-name section overriding.
func (h *Host) configParams(s psmod.Spec) map[string]string {
	params := make(map[string]string)
	if h.cfg == nil {
		return params
	}
	for _, section := range []string{s.ClassName(), s.FullName()} {
		for _, key := range h.cfg.Keys(section) {
			if v, err := h.cfg.GetStr(section, key); err == nil {
				params[key] = v
			}
		}
	}
	return params
}

// checkCallbackNames rejects pre-rename callback spellings. The
// documented names are all lowercase; a key that matches one of them
// case-insensitively but not exactly is a legacy name and the load
// fails rather than silently ignoring the callback.
func checkCallbackNames(cls *lua.LTable, path string) error {
	var bad []string
	cls.ForEach(func(k, _ lua.LValue) {
		name, ok := k.(lua.LString)
		if !ok {
			return
		}
		for _, documented := range callbackNames {
			if string(name) != documented && strings.EqualFold(string(name), documented) {
				bad = append(bad, fmt.Sprintf("%s (want %s)", string(name), documented))
			}
		}
	})
	if len(bad) > 0 {
		return errors.WrapFatal(
			fmt.Errorf("%w: %s uses legacy callback names: %s", errors.ErrScriptLoad, path, strings.Join(bad, ", ")),
			"Host", "Load", "callback name validation")
	}
	return nil
}
