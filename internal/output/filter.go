package output

import (
	"fmt"
	"strings"
)

// knownFields is the full streaming record schema.
var knownFields = map[string]bool{
	"hostname":     true,
	"stdout":       true,
	"stderr":       true,
	"stdout_lines": true,
	"exit_code":    true,
	"duration_ms":  true,
	"timestamp":    true,
	"attempts":     true,
	"error":        true,
}

// FieldFilter restricts emitted records to a caller-specified subset of
// field names, applied uniformly across modes. A nil filter passes
// everything through.
type FieldFilter struct {
	allow map[string]bool
}

// ParseFieldFilter parses a comma-separated field list. An empty input
// yields a nil filter. Unknown field names are rejected up front so a typo
// fails the run instead of silently emitting empty records.
func ParseFieldFilter(spec string) (*FieldFilter, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}
	allow := make(map[string]bool)
	for _, name := range strings.Split(spec, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !knownFields[name] {
			return nil, fmt.Errorf("unknown field %q in --fields", name)
		}
		allow[name] = true
	}
	if len(allow) == 0 {
		return nil, fmt.Errorf("--fields selects no fields")
	}
	return &FieldFilter{allow: allow}, nil
}

// Apply removes record keys not named by the filter. It mutates and
// returns the given map.
func (f *FieldFilter) Apply(m map[string]any) map[string]any {
	if f == nil {
		return m
	}
	for k := range m {
		if !f.allow[k] {
			delete(m, k)
		}
	}
	return m
}
