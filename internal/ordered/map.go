package ordered

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"slices"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
)

// Map is a string-keyed map that remembers insertion order.
// Setting an existing key replaces its value in place.
type Map struct {
	keys   []string
	values map[string]any
}

func New() *Map {
	return &Map{values: make(map[string]any)}
}

// NewWithCapacity reduces allocations when the number of keys is known.
func NewWithCapacity(capacity int) *Map {
	return &Map{
		keys:   make([]string, 0, capacity),
		values: make(map[string]any, capacity),
	}
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

func (m *Map) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

func (m *Map) Set(key string, value any) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Delete reports whether the key was present.
func (m *Map) Delete(key string) bool {
	if _, ok := m.values[key]; !ok {
		return false
	}
	delete(m.values, key)
	m.keys = slices.DeleteFunc(m.keys, func(k string) bool { return k == key })
	return true
}

func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return slices.Clone(m.keys)
}

// All iterates entries in insertion order.
func (m *Map) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		if m == nil {
			return
		}
		for _, k := range m.keys {
			if !yield(k, m.values[k]) {
				return
			}
		}
	}
}

// Plain converts the map and any nested ordered maps to map[string]any.
func (m *Map) Plain() map[string]any {
	out := make(map[string]any, m.Len())
	for k, v := range m.All() {
		out[k] = Plain(v)
	}
	return out
}

// Plain returns v with every *Map replaced by map[string]any, recursively.
func Plain(v any) any {
	switch t := v.(type) {
	case *Map:
		return t.Plain()
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Plain(item)
		}
		return out
	default:
		return v
	}
}

// FromYAML converts goccy ordered mappings into *Map, recursively.
// Plain maps are converted too, with keys in sorted order.
func FromYAML(v any) any {
	switch t := v.(type) {
	case yaml.MapSlice:
		out := NewWithCapacity(len(t))
		for _, item := range t {
			out.Set(keyString(item.Key), FromYAML(item.Value))
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := NewWithCapacity(len(t))
		for _, k := range keys {
			out.Set(k, FromYAML(t[k]))
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = FromYAML(item)
		}
		return out
	default:
		return v
	}
}

func keyString(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprint(k)
}

// MarshalJSON emits keys in insertion order.
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON keeps the key order of the encoded object.
func (m *Map) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeJSON(dec)
	if err != nil {
		return err
	}
	decoded, ok := v.(*Map)
	if !ok {
		return fmt.Errorf("ordered: expected JSON object, got %T", v)
	}
	*m = *decoded
	return nil
}

// MarshalYAML emits an ordered YAML mapping.
func (m *Map) MarshalYAML() (any, error) {
	out := make(yaml.MapSlice, 0, m.Len())
	for k, v := range m.All() {
		out = append(out, yaml.MapItem{Key: k, Value: v})
	}
	return out, nil
}

// String renders a debug representation in insertion order, e.g. map[a:1 b:[x y]].
func (m *Map) String() string {
	var b strings.Builder
	b.WriteString("map[")
	first := true
	for k, v := range m.All() {
		if !first {
			b.WriteByte(' ')
		}
		first = false
		fmt.Fprintf(&b, "%s:%v", k, v)
	}
	b.WriteByte(']')
	return b.String()
}
