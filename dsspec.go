package psana

import (
	"path/filepath"
	"strings"
)

// InputClass is the classification of an input specifier.
type InputClass int

const (
	// ClassUnknown means the specifier carried no recognizable type.
	ClassUnknown InputClass = iota
	// ClassXtc is XTC file input.
	ClassXtc
	// ClassH5 is HDF5 file input.
	ClassH5
	// ClassShmem is live shared-memory input.
	ClassShmem
	// ClassIdx is indexed XTC input with random access.
	ClassIdx
	// ClassSmd is small-data XTC input.
	ClassSmd
)

// String returns the classification name.
func (c InputClass) String() string {
	switch c {
	case ClassXtc:
		return "xtc"
	case ClassH5:
		return "h5"
	case ClassShmem:
		return "shmem"
	case ClassIdx:
		return "idx"
	case ClassSmd:
		return "smd"
	default:
		return "unknown"
	}
}

// SupportsParallel reports whether the classification can run in the
// master/worker layout.
func (c InputClass) SupportsParallel() bool {
	return c == ClassXtc || c == ClassShmem
}

// supportsSkip reports whether the input can honor a skip-events
// request; live shared-memory input cannot.
func (c InputClass) supportsSkip() bool {
	return c != ClassShmem
}

// Dataset is a parsed dataset specifier of the form
// "exp=cxi12345:run=54:idx:dir=/path". Components are separated by
// colons; each is either key=value or a bare flag.
type Dataset struct {
	values map[string]string
	flags  map[string]bool
}

// IsDatasetSpec distinguishes dataset specifiers from plain file paths.
func IsDatasetSpec(spec string) bool {
	return strings.Contains(spec, "=")
}

// ParseDataset parses a dataset specifier.
func ParseDataset(spec string) Dataset {
	ds := Dataset{values: make(map[string]string), flags: make(map[string]bool)}
	for _, part := range strings.Split(spec, ":") {
		if part == "" {
			continue
		}
		if p := strings.Index(part, "="); p >= 0 {
			ds.values[part[:p]] = part[p+1:]
		} else {
			ds.flags[part] = true
		}
	}
	return ds
}

// Value returns the value of a key component, empty when absent.
func (d Dataset) Value(key string) string { return d.values[key] }

// Flag reports whether a bare flag component is present.
func (d Dataset) Flag(name string) bool { return d.flags[name] }

// Experiment returns the experiment name from the specifier.
func (d Dataset) Experiment() string { return d.values["exp"] }

// Instrument returns the instrument name: an explicit instr component,
// or the uppercased first three characters of the experiment name.
func (d Dataset) Instrument() string {
	if instr, ok := d.values["instr"]; ok {
		return instr
	}
	exp := d.Experiment()
	if len(exp) < 3 {
		return strings.ToUpper(exp)
	}
	return strings.ToUpper(exp[:3])
}

// classifyOne determines the input class of a single specifier.
func classifyOne(spec string) InputClass {
	if IsDatasetSpec(spec) {
		ds := ParseDataset(spec)
		switch {
		case ds.Flag("shmem") || ds.Value("shmem") != "":
			return ClassShmem
		case ds.Flag("idx"):
			return ClassIdx
		case ds.Flag("smd"):
			return ClassSmd
		case ds.Flag("h5"):
			return ClassH5
		default:
			return ClassXtc
		}
	}

	switch strings.ToLower(filepath.Ext(spec)) {
	case ".xtc":
		return ClassXtc
	case ".h5", ".hdf5":
		return ClassH5
	default:
		return ClassUnknown
	}
}

// Classify determines the common input class of a specifier list.
// Mixed classes are invalid; a list with no recognizable class
// defaults to xtc.
func Classify(specs []string) (InputClass, bool) {
	class := ClassUnknown
	for _, spec := range specs {
		c := classifyOne(spec)
		if c == ClassUnknown {
			continue
		}
		if class == ClassUnknown {
			class = c
		} else if class != c {
			return ClassUnknown, false
		}
	}
	if class == ClassUnknown {
		class = ClassXtc
	}
	return class, true
}
