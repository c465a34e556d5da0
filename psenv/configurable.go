package psenv

import (
	stderrors "errors"
	"strings"

	"github.com/lcls-psana/psana/config"
	"github.com/lcls-psana/psana/errors"
)

// Configurable gives a named object uniform access to its configuration.
// The display name has the form "Class" or "Class:instance"; lookups
// consult the section named after the full display name first and fall
// back to the bare class name. Package qualifiers ("Pkg.Class") stay
// part of both names.
type Configurable struct {
	name      string
	className string
	cfg       *config.Store
}

// NewConfigurable derives the class name from a display name.
func NewConfigurable(name string, cfg *config.Store) Configurable {
	className := name
	if p := strings.Index(className, ":"); p >= 0 {
		className = className[:p]
	}
	return Configurable{name: name, className: className, cfg: cfg}
}

// Name returns the full display name including the instance suffix.
func (c *Configurable) Name() string { return c.name }

// ClassName returns the bare class name.
func (c *Configurable) ClassName() string { return c.className }

// ConfigStore returns the underlying store.
func (c *Configurable) ConfigStore() *config.Store { return c.cfg }

// fallback retries a lookup under the class-name section when the
// display-name section misses. Parse failures are not retried.
func fallback[T any](err error, retry func() (T, error)) (T, error) {
	if stderrors.Is(err, errors.ErrMissingConfig) {
		return retry()
	}
	var zero T
	return zero, err
}

// ConfigStr returns a string parameter or ErrMissingConfig.
func (c *Configurable) ConfigStr(param string) (string, error) {
	v, err := c.cfg.GetStr(c.name, param)
	if err != nil {
		return fallback(err, func() (string, error) { return c.cfg.GetStr(c.className, param) })
	}
	return v, nil
}

// ConfigStrDef returns a string parameter or the default.
func (c *Configurable) ConfigStrDef(param, def string) string {
	if v, err := c.ConfigStr(param); err == nil {
		return v
	}
	return def
}

// ConfigInt returns an integer parameter or ErrMissingConfig.
func (c *Configurable) ConfigInt(param string) (int, error) {
	v, err := c.cfg.GetInt(c.name, param)
	if err != nil {
		return fallback(err, func() (int, error) { return c.cfg.GetInt(c.className, param) })
	}
	return v, nil
}

// ConfigIntDef returns an integer parameter or the default.
func (c *Configurable) ConfigIntDef(param string, def int) int {
	if v, err := c.ConfigInt(param); err == nil {
		return v
	}
	return def
}

// ConfigBool returns a boolean parameter or ErrMissingConfig.
func (c *Configurable) ConfigBool(param string) (bool, error) {
	v, err := c.cfg.GetBool(c.name, param)
	if err != nil {
		return fallback(err, func() (bool, error) { return c.cfg.GetBool(c.className, param) })
	}
	return v, nil
}

// ConfigBoolDef returns a boolean parameter or the default.
func (c *Configurable) ConfigBoolDef(param string, def bool) bool {
	if v, err := c.ConfigBool(param); err == nil {
		return v
	}
	return def
}

// ConfigFloat returns a float parameter or ErrMissingConfig.
func (c *Configurable) ConfigFloat(param string) (float64, error) {
	v, err := c.cfg.GetFloat(c.name, param)
	if err != nil {
		return fallback(err, func() (float64, error) { return c.cfg.GetFloat(c.className, param) })
	}
	return v, nil
}

// ConfigFloatDef returns a float parameter or the default.
func (c *Configurable) ConfigFloatDef(param string, def float64) float64 {
	if v, err := c.ConfigFloat(param); err == nil {
		return v
	}
	return def
}

// ConfigList returns a list parameter or ErrMissingConfig.
func (c *Configurable) ConfigList(param string) ([]string, error) {
	v, err := c.cfg.GetList(c.name, param)
	if err != nil {
		return fallback(err, func() ([]string, error) { return c.cfg.GetList(c.className, param) })
	}
	return v, nil
}

// ConfigListDef returns a list parameter or the default.
func (c *Configurable) ConfigListDef(param string, def []string) []string {
	if v, err := c.ConfigList(param); err == nil {
		return v
	}
	return def
}
