package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lcls-psana/psana/errors"
)

// Load reads a configuration file into the store. The format is chosen
// by extension: .yml and .yaml files are parsed as a two-level YAML
// mapping (section -> key -> scalar or sequence), anything else as the
// native psana.cfg dialect ("[section]" headers, "key = value" lines,
// "#" comments). Values loaded later override earlier ones.
func (s *Store) Load(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return s.loadYAML(path)
	default:
		return s.loadCfg(path)
	}
}

func (s *Store) loadCfg(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.WrapInvalid(err, "Store", "Load", "opening configuration file")
	}
	defer f.Close()

	section := Section
	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if p := strings.Index(line, "#"); p >= 0 {
			line = line[:p]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return errors.WrapInvalid(
					fmt.Errorf("%w: %s:%d: malformed section header %q", errors.ErrInvalidConfig, path, lineno, line),
					"Store", "Load", "parsing configuration file")
			}
			section = strings.TrimSpace(line[1 : len(line)-1])
			continue
		}
		p := strings.Index(line, "=")
		if p < 0 {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %s:%d: expected key = value, got %q", errors.ErrInvalidConfig, path, lineno, line),
				"Store", "Load", "parsing configuration file")
		}
		key := strings.TrimSpace(line[:p])
		value := strings.TrimSpace(line[p+1:])
		s.Put(section, key, value)
	}
	if err := scanner.Err(); err != nil {
		return errors.WrapInvalid(err, "Store", "Load", "reading configuration file")
	}
	return nil
}

func (s *Store) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WrapInvalid(err, "Store", "Load", "opening configuration file")
	}

	var doc map[string]map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return errors.WrapInvalid(err, "Store", "Load", "parsing YAML configuration")
	}

	for section, keys := range doc {
		for key, value := range keys {
			s.Put(section, key, yamlScalar(value))
		}
	}
	return nil
}

// yamlScalar renders a YAML value into the store's string form.
// Sequences become whitespace-separated lists.
func yamlScalar(v any) string {
	switch t := v.(type) {
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, yamlScalar(e))
		}
		return strings.Join(parts, " ")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
