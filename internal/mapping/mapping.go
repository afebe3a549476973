// Package mapping defines the Mapping Set: the ordered list of output field
// computations applied to every input row.
package mapping

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mapping computes one output field. Formula is evaluated against each row
// and the result is stored under Name.
type Mapping struct {
	Name    string `json:"name" yaml:"name"`
	Formula string `json:"formula" yaml:"formula"`
}

// Set is an ordered list of mappings. When several mappings share a Name the
// last one wins; the field keeps the position of its first appearance.
type Set []Mapping

// Names returns the distinct output field names in first-appearance order,
// which is also the key order of every output record.
func (s Set) Names() []string {
	seen := make(map[string]struct{}, len(s))
	out := make([]string, 0, len(s))
	for _, m := range s {
		if _, ok := seen[m.Name]; ok {
			continue
		}
		seen[m.Name] = struct{}{}
		out = append(out, m.Name)
	}
	return out
}

// Shadowed returns the indexes of mappings whose result is always
// overwritten by a later mapping with the same name.
func (s Set) Shadowed() []int {
	last := make(map[string]int, len(s))
	for i, m := range s {
		last[m.Name] = i
	}
	var out []int
	for i, m := range s {
		if last[m.Name] != i {
			out = append(out, i)
		}
	}
	return out
}

// Validate checks the structural rules: at least one mapping, and no blank
// names or formulas.
func (s Set) Validate() error {
	if len(s) == 0 {
		return errors.New("mapping set is empty")
	}
	var errs []error
	for i, m := range s {
		if strings.TrimSpace(m.Name) == "" {
			errs = append(errs, fmt.Errorf("mappings[%d]: name is empty", i))
		}
		if strings.TrimSpace(m.Formula) == "" {
			errs = append(errs, fmt.Errorf("mappings[%d] (%s): formula is empty", i, m.Name))
		}
	}
	return errors.Join(errs...)
}

// Format of a mapping or pipeline file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatOf picks the format from the file extension; anything that is not
// .yaml or .yml is read as JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load reads a mapping set from path.
func Load(path string) (Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mappings: %w", err)
	}
	defer f.Close()
	s, err := Decode(f, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Decode reads a list of {name, formula} entries in the given format.
func Decode(r io.Reader, format Format) (Set, error) {
	var s Set
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode yaml mappings: %w", err)
		}
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&s); err != nil {
			return nil, fmt.Errorf("decode json mappings: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown mappings format %q", format)
	}
	return s, nil
}
