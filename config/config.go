// Package config implements the sectioned key/value configuration store
// used by the psana framework. Values are kept as strings and converted
// on access; list values are whitespace-separated. The well-known
// "psana" section carries framework-level keys (modules, files, events,
// skip-events, parallel, instrument, experiment, calib-dir, job-name);
// every module reads from its own section named after the module's full
// display name, with a fallback to the bare class name.
package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/lcls-psana/psana/errors"
)

// Section is the well-known framework configuration section.
const Section = "psana"

// Store is a thread-safe sectioned key/value store.
type Store struct {
	mu       sync.RWMutex
	sections map[string]map[string]string
}

// NewStore creates an empty configuration store.
func NewStore() *Store {
	return &Store{sections: make(map[string]map[string]string)}
}

// Put sets a single configuration value.
func (s *Store) Put(section, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.sections[section]
	if !ok {
		sec = make(map[string]string)
		s.sections[section] = sec
	}
	sec[key] = value
}

// PutOption sets a value from a "section.key" option name. A name
// without a dot goes to the framework section.
func (s *Store) PutOption(name, value string) {
	section := Section
	key := name
	if p := strings.Index(name, "."); p >= 0 {
		section = name[:p]
		key = name[p+1:]
	}
	s.Put(section, key, value)
}

// HasSection reports whether a section has at least one key.
func (s *Store) HasSection(section string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sections[section]) > 0
}

// Keys returns the sorted key names of a section.
func (s *Store) Keys(section string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec := s.sections[section]
	keys := make([]string, 0, len(sec))
	for k := range sec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) lookup(section, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec, ok := s.sections[section]
	if !ok {
		return "", false
	}
	v, ok := sec[key]
	return v, ok
}

func missing(section, key string) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: [%s] %s", errors.ErrMissingConfig, section, key),
		"Store", "Get", "configuration lookup")
}

// GetStr returns a string value or ErrMissingConfig.
func (s *Store) GetStr(section, key string) (string, error) {
	v, ok := s.lookup(section, key)
	if !ok {
		return "", missing(section, key)
	}
	return v, nil
}

// GetStrDef returns a string value or the default.
func (s *Store) GetStrDef(section, key, def string) string {
	if v, ok := s.lookup(section, key); ok {
		return v
	}
	return def
}

// GetInt returns an integer value or ErrMissingConfig.
func (s *Store) GetInt(section, key string) (int, error) {
	v, ok := s.lookup(section, key)
	if !ok {
		return 0, missing(section, key)
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, errors.WrapInvalid(err, "Store", "GetInt", fmt.Sprintf("parsing [%s] %s", section, key))
	}
	return n, nil
}

// GetIntDef returns an integer value or the default.
func (s *Store) GetIntDef(section, key string, def int) int {
	n, err := s.GetInt(section, key)
	if err != nil {
		return def
	}
	return n
}

// GetUint returns an unsigned integer value or ErrMissingConfig.
func (s *Store) GetUint(section, key string) (uint64, error) {
	v, ok := s.lookup(section, key)
	if !ok {
		return 0, missing(section, key)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, errors.WrapInvalid(err, "Store", "GetUint", fmt.Sprintf("parsing [%s] %s", section, key))
	}
	return n, nil
}

// GetUintDef returns an unsigned integer value or the default.
func (s *Store) GetUintDef(section, key string, def uint64) uint64 {
	n, err := s.GetUint(section, key)
	if err != nil {
		return def
	}
	return n
}

// GetBool returns a boolean value or ErrMissingConfig. Accepts the
// usual strconv spellings plus yes/no.
func (s *Store) GetBool(section, key string) (bool, error) {
	v, ok := s.lookup(section, key)
	if !ok {
		return false, missing(section, key)
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes":
		return true, nil
	case "no":
		return false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, errors.WrapInvalid(err, "Store", "GetBool", fmt.Sprintf("parsing [%s] %s", section, key))
	}
	return b, nil
}

// GetBoolDef returns a boolean value or the default.
func (s *Store) GetBoolDef(section, key string, def bool) bool {
	b, err := s.GetBool(section, key)
	if err != nil {
		return def
	}
	return b
}

// GetFloat returns a float value or ErrMissingConfig.
func (s *Store) GetFloat(section, key string) (float64, error) {
	v, ok := s.lookup(section, key)
	if !ok {
		return 0, missing(section, key)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, errors.WrapInvalid(err, "Store", "GetFloat", fmt.Sprintf("parsing [%s] %s", section, key))
	}
	return f, nil
}

// GetFloatDef returns a float value or the default.
func (s *Store) GetFloatDef(section, key string, def float64) float64 {
	f, err := s.GetFloat(section, key)
	if err != nil {
		return def
	}
	return f
}

// GetList returns a list value or ErrMissingConfig. Lists are stored as
// whitespace-separated strings; an empty value is an empty list.
func (s *Store) GetList(section, key string) ([]string, error) {
	v, ok := s.lookup(section, key)
	if !ok {
		return nil, missing(section, key)
	}
	return strings.Fields(v), nil
}

// GetListDef returns a list value or the default.
func (s *Store) GetListDef(section, key string, def []string) []string {
	l, err := s.GetList(section, key)
	if err != nil {
		return def
	}
	return l
}
