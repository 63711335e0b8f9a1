package tree

import (
	"iter"

	"github.com/thingswise/etcdstat/internal/document"
)

// Match lazily enumerates every context reachable from ctx along path.
// Leading literal segments are resolved with one Subdocument call; each
// placeholder segment fans out over Children, binding the child name. The
// result is the Cartesian product of nested wildcards in path order. A
// placeholder already bound by an enclosing key is rebound (shadowed).
func Match(path PathTemplate, ctx Context) iter.Seq[Context] {
	return func(yield func(Context) bool) {
		if ctx.Root == nil {
			return
		}
		m := matcher{outer: &ctx, yield: yield}
		m.match(path.segs, ctx.Root, ctx.Vars)
	}
}

type matcher struct {
	outer *Context
	yield func(Context) bool
}

// match reports false once yield asked to stop.
func (m *matcher) match(segs []Segment, doc document.Document, vars Bindings) bool {
	if prefix := literalPrefix(segs); len(prefix) > 0 {
		doc = doc.Subdocument(prefix)
		segs = segs[len(prefix):]
	}

	if len(segs) == 0 {
		return m.yield(Context{Root: doc, Vars: vars, outer: m.outer})
	}

	wildcard, rest := segs[0], segs[1:]
	for name, child := range doc.Children() {
		if !m.match(rest, child, vars.With(wildcard.Name, name)) {
			return false
		}
	}
	return true
}
