// Package document defines the read-only view of hierarchical data consumed
// by the tree template engine, with in-memory and key-value snapshot
// implementations.
package document

import (
	"iter"
	"strconv"

	"github.com/goccy/go-yaml"
	"github.com/thingswise/etcdstat/internal/ordered"
)

// Document is a position in a hierarchical data source.
// Missing nodes are never errors: Value returns nil, Subdocument returns an
// empty document and Children yields nothing.
type Document interface {
	// Value returns the data stored at path relative to this position.
	Value(path []string) any

	// Subdocument returns the document rooted at path.
	Subdocument(path []string) Document

	// Children enumerates the named children of this position.
	Children() iter.Seq2[string, Document]
}

// Here is the path segment that stays at the current position.
const Here = "."

// Memory wraps a native nested value: *ordered.Map, map[string]any,
// yaml.MapSlice, []any or a scalar.
type Memory struct {
	val any
}

// FromValue wraps v without copying it.
func FromValue(v any) *Memory {
	return &Memory{val: v}
}

func (d *Memory) Value(path []string) any {
	cur := d.val
	for _, seg := range path {
		if seg == Here {
			continue
		}
		next, ok := child(cur, seg)
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

func (d *Memory) Subdocument(path []string) Document {
	return &Memory{val: d.Value(path)}
}

// Children yields map entries (ordered maps in insertion order, plain maps by
// sorted key) and array elements named by their decimal index.
func (d *Memory) Children() iter.Seq2[string, Document] {
	return func(yield func(string, Document) bool) {
		switch t := d.val.(type) {
		case *ordered.Map:
			for k, v := range t.All() {
				if !yield(k, &Memory{val: v}) {
					return
				}
			}
		case map[string]any:
			for _, k := range sortedKeys(t) {
				if !yield(k, &Memory{val: t[k]}) {
					return
				}
			}
		case yaml.MapSlice:
			for _, item := range t {
				if !yield(keyString(item.Key), &Memory{val: item.Value}) {
					return
				}
			}
		case []any:
			for i, v := range t {
				if !yield(strconv.Itoa(i), &Memory{val: v}) {
					return
				}
			}
		}
	}
}

func child(v any, name string) (any, bool) {
	switch t := v.(type) {
	case *ordered.Map:
		return t.Get(name)
	case map[string]any:
		c, ok := t[name]
		return c, ok
	case yaml.MapSlice:
		for _, item := range t {
			if keyString(item.Key) == name {
				return item.Value, true
			}
		}
		return nil, false
	case []any:
		i, err := strconv.Atoi(name)
		if err != nil || i < 0 || i >= len(t) {
			return nil, false
		}
		return t[i], true
	default:
		return nil, false
	}
}
