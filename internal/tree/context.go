package tree

import (
	"maps"

	"github.com/thingswise/etcdstat/internal/document"
)

// Bindings maps placeholder names to matched child names. Values are never
// modified in place; With returns an extended copy.
type Bindings map[string]string

// With returns a copy of b that also binds name to value.
func (b Bindings) With(name, value string) Bindings {
	out := make(Bindings, len(b)+1)
	maps.Copy(out, b)
	out[name] = value
	return out
}

// Context is a document position together with the bindings collected on
// the way there. Contexts produced by Match remember the position the match
// started from.
type Context struct {
	Root document.Document
	Vars Bindings

	outer *Context
}

// NewContext starts at doc with no bindings.
func NewContext(doc document.Document) Context {
	return Context{Root: doc, Vars: Bindings{}}
}

// lookup reads path at the innermost position first, then at each enclosing
// position, and returns the first non-nil value.
func (c Context) lookup(path []string) any {
	for cur := &c; cur != nil; cur = cur.outer {
		if cur.Root == nil {
			continue
		}
		if v := cur.Root.Value(path); v != nil {
			return v
		}
	}
	return nil
}
