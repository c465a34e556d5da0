// Package loader resolves module specifiers "Package.Class[:instance]"
// to constructed module instances. Resolution consults the in-process
// factory registry first, then the scripted-module host when one is
// attached, and finally the package's shared library via the Go plugin
// mechanism.
package loader

import (
	"fmt"
	"sync"

	"github.com/lcls-psana/psana/config"
	"github.com/lcls-psana/psana/errors"
	"github.com/lcls-psana/psana/psmod"
)

// Factory constructs a user module from its full display name and the
// configuration store.
type Factory func(name string, cfg *config.Store) (psmod.Module, error)

// InputFactory constructs an input module from its full display name
// and the configuration store.
type InputFactory func(name string, cfg *config.Store) (psmod.InputModule, error)

// Registry holds in-process module factories keyed by "Package.Class".
// Compiled-in modules register here; the loader consults the registry
// before looking at scripts or shared libraries.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Factory
	inputs  map[string]InputFactory
}

// NewRegistry creates an empty factory registry.
func NewRegistry() *Registry {
	return &Registry{
		modules: make(map[string]Factory),
		inputs:  make(map[string]InputFactory),
	}
}

// RegisterModule registers a user-module factory for a class name.
// Duplicate registrations are invalid.
func (r *Registry) RegisterModule(className string, factory Factory) error {
	if className == "" || factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterModule", "factory validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.modules[className]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("module factory %q is already registered", className),
			"Registry", "RegisterModule", "duplicate factory check")
	}
	r.modules[className] = factory
	return nil
}

// RegisterInput registers an input-module factory for a class name.
// Duplicate registrations are invalid.
func (r *Registry) RegisterInput(className string, factory InputFactory) error {
	if className == "" || factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterInput", "factory validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.inputs[className]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("input factory %q is already registered", className),
			"Registry", "RegisterInput", "duplicate factory check")
	}
	r.inputs[className] = factory
	return nil
}

func (r *Registry) moduleFactory(className string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.modules[className]
	return f, ok
}

func (r *Registry) inputFactory(className string) (InputFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.inputs[className]
	return f, ok
}

// ListModules returns the registered user-module class names.
func (r *Registry) ListModules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	return names
}
