package tree

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/goccy/go-yaml"
	"github.com/thingswise/etcdstat/internal/ordered"
)

// Node is a compiled template node: *Primitive, *Reference, *Object or *Array.
type Node interface {
	render(ctx Context) (any, error)
	node()
}

// Primitive renders its literal value unchanged.
type Primitive struct {
	Value any
}

// Reference renders the value found at Path.
type Reference struct {
	Path PathTemplate
}

// Entry is one key of an Object template.
type Entry struct {
	Name  NameTemplate
	Value Node
}

// Object renders entries in declaration order into one ordered map.
type Object struct {
	Entries []Entry
}

// Array renders every item against the same context.
type Array struct {
	Items []Node
}

func (*Primitive) node() {}
func (*Reference) node() {}
func (*Object) node()    {}
func (*Array) node()     {}

// Template is a compiled tree template. It is immutable and safe for
// concurrent use.
type Template struct {
	root Node
}

// Compile classifies literal recursively: maps become objects, lists become
// arrays, "^(path)" strings become references and all other values are kept
// as primitives. Keys of plain maps are compiled in sorted order; use
// *ordered.Map (or yaml.MapSlice) to control entry order.
func Compile(literal any) (*Template, error) {
	root, err := compile(literal, "$")
	if err != nil {
		return nil, err
	}
	return &Template{root: root}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(literal any) *Template {
	t, err := Compile(literal)
	if err != nil {
		panic(err)
	}
	return t
}

// Root returns the top-level compiled node.
func (t *Template) Root() Node {
	return t.root
}

func compile(literal any, at string) (Node, error) {
	switch v := literal.(type) {
	case *ordered.Map:
		obj := &Object{Entries: make([]Entry, 0, v.Len())}
		for k, val := range v.All() {
			e, err := compileEntry(k, val, at)
			if err != nil {
				return nil, err
			}
			obj.Entries = append(obj.Entries, e)
		}
		return obj, nil
	case yaml.MapSlice:
		obj := &Object{Entries: make([]Entry, 0, len(v))}
		for _, item := range v {
			e, err := compileEntry(fmt.Sprint(item.Key), item.Value, at)
			if err != nil {
				return nil, err
			}
			obj.Entries = append(obj.Entries, e)
		}
		return obj, nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		obj := &Object{Entries: make([]Entry, 0, len(v))}
		for _, k := range keys {
			e, err := compileEntry(k, v[k], at)
			if err != nil {
				return nil, err
			}
			obj.Entries = append(obj.Entries, e)
		}
		return obj, nil
	case []any:
		arr := &Array{Items: make([]Node, 0, len(v))}
		for i, item := range v {
			n, err := compile(item, at+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return nil, err
			}
			arr.Items = append(arr.Items, n)
		}
		return arr, nil
	case string:
		path, ok, err := parseReference(v)
		if err != nil {
			return nil, fmt.Errorf("at %s: %w", at, err)
		}
		if ok {
			return &Reference{Path: path}, nil
		}
		return &Primitive{Value: v}, nil
	default:
		return &Primitive{Value: v}, nil
	}
}

func compileEntry(key string, value any, at string) (Entry, error) {
	name, err := parseName(key)
	if err != nil {
		return Entry{}, fmt.Errorf("at %s: %w", at, err)
	}

	child, err := compile(value, at+"."+key)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Name: name, Value: child}, nil
}
