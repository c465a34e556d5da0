package psmod

import (
	"fmt"
	"strings"

	"github.com/lcls-psana/psana/errors"
)

// DefaultPackage is assumed when a module specifier has no package
// qualifier.
const DefaultPackage = "psana"

// Spec is a parsed module specifier "Package.Class[:instance]".
type Spec struct {
	Package  string
	Class    string
	Instance string
}

// FullName returns the display name "Package.Class[:instance]".
func (s Spec) FullName() string {
	name := s.Package + "." + s.Class
	if s.Instance != "" {
		name += ":" + s.Instance
	}
	return name
}

// ClassName returns "Package.Class" without the instance suffix.
func (s Spec) ClassName() string {
	return s.Package + "." + s.Class
}

// ParseSpec parses a module specifier. The package defaults to
// DefaultPackage when absent. An empty class, an empty package before a
// dot, or extra separators make the specifier ill-formed.
func ParseSpec(spec string) (Spec, error) {
	bad := func() (Spec, error) {
		return Spec{}, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrModuleName, spec),
			"Spec", "ParseSpec", "module specifier parsing")
	}

	name := spec
	instance := ""
	if p := strings.Index(name, ":"); p >= 0 {
		instance = name[p+1:]
		name = name[:p]
		if instance == "" || strings.Contains(instance, ":") {
			return bad()
		}
	}

	pkg := DefaultPackage
	class := name
	if p := strings.Index(name, "."); p >= 0 {
		pkg = name[:p]
		class = name[p+1:]
	}
	if pkg == "" || class == "" || strings.Contains(class, ".") {
		return bad()
	}

	return Spec{Package: pkg, Class: class, Instance: instance}, nil
}
