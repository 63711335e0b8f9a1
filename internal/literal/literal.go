// Package literal loads tree template literals from YAML or JSON and selects
// sub-literals with JSONPath.
package literal

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"

	"github.com/goccy/go-yaml"
	"github.com/theory/jsonpath"
	"github.com/thingswise/etcdstat/internal/ordered"
)

var (
	ErrEmpty    = errors.New("literal is empty")
	ErrNotFound = errors.New("no value matched")
	ErrInvalid  = errors.New("invalid literal")
)

// Load reads and decodes the literal stored in path.
func Load(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read literal: %w", err)
	}

	v, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// Decode reads a single YAML document (JSON is accepted as a subset). Mapping
// key order is preserved: every mapping becomes an *ordered.Map.
func Decode(r io.Reader) (any, error) {
	var v any
	dec := yaml.NewDecoder(r, yaml.UseOrderedMap())
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return ordered.FromYAML(v), nil
}

// Select returns the first node of v matching the JSONPath expression expr.
// Selected objects keep their original key order.
func Select(v any, expr string) (any, error) {
	if expr == "" {
		return nil, fmt.Errorf("%w: JSONPath expression is empty", ErrInvalid)
	}

	path, err := jsonpath.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: JSONPath %s: %v", ErrInvalid, expr, err)
	}

	origins := make(map[uintptr]*ordered.Map)
	results := path.Select(plain(v, origins))
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, expr)
	}
	return restore(results[0], origins), nil
}

// plain mirrors ordered.Plain but records which ordered map every plain map
// was built from.
func plain(v any, origins map[uintptr]*ordered.Map) any {
	switch t := v.(type) {
	case *ordered.Map:
		out := make(map[string]any, t.Len())
		for k, item := range t.All() {
			out[k] = plain(item, origins)
		}
		origins[reflect.ValueOf(out).Pointer()] = t
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = plain(item, origins)
		}
		return out
	default:
		return v
	}
}

func restore(v any, origins map[uintptr]*ordered.Map) any {
	switch t := v.(type) {
	case map[string]any:
		if m, ok := origins[reflect.ValueOf(t).Pointer()]; ok {
			return m
		}
		return ordered.FromYAML(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = restore(item, origins)
		}
		return out
	default:
		return v
	}
}
