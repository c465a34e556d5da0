package loader

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"plugin"

	"github.com/lcls-psana/psana/config"
	"github.com/lcls-psana/psana/errors"
	"github.com/lcls-psana/psana/psmod"
	"github.com/lcls-psana/psana/scripted"
)

// Factory symbol prefixes in shared libraries. Go plugins can only
// export capitalized identifiers, so the historical underscore prefix
// is title-cased.
const (
	ModuleSymbolPrefix = "Psana_module_"
	InputSymbolPrefix  = "Psana_input_module_"
)

// Loader resolves module specifiers to constructed instances.
type Loader struct {
	reg     *Registry
	scripts *scripted.Host
	libDir  string
	logger  *slog.Logger
}

// Option configures the loader.
type Option func(*Loader)

// WithScriptHost attaches a scripted-module host.
func WithScriptHost(host *scripted.Host) Option {
	return func(l *Loader) { l.scripts = host }
}

// WithLibDir sets the directory searched for package shared libraries.
// Without it the bare lib<Package>.so name is opened as a path relative
// to the current working directory.
func WithLibDir(dir string) Option {
	return func(l *Loader) { l.libDir = dir }
}

// WithLogger sets the loader's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// New creates a loader over a factory registry.
func New(reg *Registry, opts ...Option) *Loader {
	l := &Loader{reg: reg, logger: slog.Default()}
	for _, o := range opts {
		o(l)
	}
	return l
}

// LoadModule resolves one user-module specifier.
func (l *Loader) LoadModule(spec string, cfg *config.Store) (psmod.Module, error) {
	s, err := psmod.ParseSpec(spec)
	if err != nil {
		return nil, err
	}

	if factory, ok := l.reg.moduleFactory(s.ClassName()); ok {
		l.logger.Debug("loading module from registry", "module", s.FullName())
		return construct(factory, s, cfg)
	}

	if l.scripts != nil && l.scripts.Resolves(s) {
		l.logger.Debug("loading scripted module", "module", s.FullName())
		return l.scripts.Load(s)
	}

	sym, err := l.loadFactorySymbol(s, ModuleSymbolPrefix)
	if err != nil {
		return nil, err
	}
	factory, err := asModuleFactory(sym, ModuleSymbolPrefix+s.Class)
	if err != nil {
		return nil, err
	}
	return construct(factory, s, cfg)
}

// LoadInputModule resolves one input-module specifier.
func (l *Loader) LoadInputModule(spec string, cfg *config.Store) (psmod.InputModule, error) {
	s, err := psmod.ParseSpec(spec)
	if err != nil {
		return nil, err
	}

	if factory, ok := l.reg.inputFactory(s.ClassName()); ok {
		l.logger.Debug("loading input module from registry", "module", s.FullName())
		return constructInput(factory, s, cfg)
	}

	sym, err := l.loadFactorySymbol(s, InputSymbolPrefix)
	if err != nil {
		return nil, err
	}
	factory, err := asInputFactory(sym, InputSymbolPrefix+s.Class)
	if err != nil {
		return nil, err
	}
	return constructInput(factory, s, cfg)
}

// LoadModules resolves a list of user-module specifiers preserving the
// registration order. Scripted modules are constructed concurrently by
// the host; everything else loads sequentially.
func (l *Loader) LoadModules(specs []string, cfg *config.Store) ([]psmod.Module, error) {
	parsed := make([]psmod.Spec, len(specs))
	for i, spec := range specs {
		s, err := psmod.ParseSpec(spec)
		if err != nil {
			return nil, err
		}
		parsed[i] = s
	}

	modules := make([]psmod.Module, len(specs))

	// batch the scripted specifiers through the host's parallel loader
	if l.scripts != nil {
		var scriptSpecs []psmod.Spec
		var scriptIdx []int
		for i, s := range parsed {
			if _, native := l.reg.moduleFactory(s.ClassName()); !native && l.scripts.Resolves(s) {
				scriptSpecs = append(scriptSpecs, s)
				scriptIdx = append(scriptIdx, i)
			}
		}
		if len(scriptSpecs) > 0 {
			loaded, err := l.scripts.LoadAll(scriptSpecs)
			if err != nil {
				return nil, err
			}
			for j, idx := range scriptIdx {
				modules[idx] = loaded[j]
			}
		}
	}

	for i, spec := range specs {
		if modules[i] != nil {
			continue
		}
		m, err := l.LoadModule(spec, cfg)
		if err != nil {
			return nil, err
		}
		modules[i] = m
	}
	return modules, nil
}

func construct(factory Factory, s psmod.Spec, cfg *config.Store) (psmod.Module, error) {
	m, err := factory(s.FullName(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "Loader", "LoadModule", "factory execution")
	}
	if m == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrNilFactory, s.FullName()),
			"Loader", "LoadModule", "factory result validation")
	}
	return m, nil
}

func constructInput(factory InputFactory, s psmod.Spec, cfg *config.Store) (psmod.InputModule, error) {
	m, err := factory(s.FullName(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "Loader", "LoadInputModule", "factory execution")
	}
	if m == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrNilFactory, s.FullName()),
			"Loader", "LoadInputModule", "factory result validation")
	}
	return m, nil
}

// loadFactorySymbol opens the package's shared library with global
// symbol visibility and looks up a factory symbol.
func (l *Loader) loadFactorySymbol(s psmod.Spec, prefix string) (plugin.Symbol, error) {
	lib := "lib" + s.Package + ".so"
	if l.libDir != "" {
		lib = filepath.Join(l.libDir, lib)
	}

	l.logger.Debug("loading library", "library", lib)
	p, err := plugin.Open(lib)
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s: %v", errors.ErrLibraryLoad, lib, err),
			"Loader", "loadFactorySymbol", "library loading")
	}

	symName := prefix + s.Class
	sym, err := p.Lookup(symName)
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s in %s", errors.ErrSymbolLookup, symName, lib),
			"Loader", "loadFactorySymbol", "symbol lookup")
	}
	return sym, nil
}

func symbolTypeError(symName string, sym plugin.Symbol) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s has unexpected type %T", errors.ErrSymbolLookup, symName, sym),
		"Loader", "loadFactorySymbol", "factory signature validation")
}

// asModuleFactory converts a plugin symbol to a module factory. Plugins
// may export the function itself or a variable of the factory type;
// Lookup returns a pointer for variables.
func asModuleFactory(sym plugin.Symbol, symName string) (Factory, error) {
	switch f := sym.(type) {
	case Factory:
		return f, nil
	case *Factory:
		return *f, nil
	case func(string, *config.Store) (psmod.Module, error):
		return f, nil
	case *func(string, *config.Store) (psmod.Module, error):
		return *f, nil
	default:
		return nil, symbolTypeError(symName, sym)
	}
}

// asInputFactory converts a plugin symbol to an input-module factory.
func asInputFactory(sym plugin.Symbol, symName string) (InputFactory, error) {
	switch f := sym.(type) {
	case InputFactory:
		return f, nil
	case *InputFactory:
		return *f, nil
	case func(string, *config.Store) (psmod.InputModule, error):
		return f, nil
	case *func(string, *config.Store) (psmod.InputModule, error):
		return *f, nil
	default:
		return nil, symbolTypeError(symName, sym)
	}
}
