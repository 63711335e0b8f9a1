package tree

import (
	"github.com/thingswise/etcdstat/internal/document"
	"github.com/thingswise/etcdstat/internal/ordered"
)

// Render evaluates the template against doc with no bindings.
func (t *Template) Render(doc document.Document) (any, error) {
	return t.root.render(NewContext(doc))
}

// RenderContext evaluates the template at an explicit position and bindings.
func (t *Template) RenderContext(ctx Context) (any, error) {
	if ctx.Vars == nil {
		ctx.Vars = Bindings{}
	}
	return t.root.render(ctx)
}

func (p *Primitive) render(Context) (any, error) {
	return p.Value, nil
}

// render resolves the path at the current position, falling back to the
// positions enclosing it. String values holding a JSON literal are decoded.
// Because of the fallback, an entry such as "^(x/{n}) k": "^(v)" drops k
// only when no enclosing position holds a v either.
func (r *Reference) render(ctx Context) (any, error) {
	path, err := r.Path.Render(ctx.Vars)
	if err != nil {
		return nil, err
	}

	v := ctx.lookup(path)
	if s, ok := v.(string); ok {
		decoded, _ := document.Decode(s)
		return decoded, nil
	}
	return v, nil
}

func (a *Array) render(ctx Context) (any, error) {
	out := make([]any, 0, len(a.Items))
	for _, item := range a.Items {
		v, err := item.render(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// render applies entries in order. A plain key is always set, even to nil.
// A wildcard key whose value renders nil deletes that key instead, which lets
// a later, narrower entry retract output of an earlier one.
func (o *Object) render(ctx Context) (any, error) {
	out := ordered.NewWithCapacity(len(o.Entries))

	for _, e := range o.Entries {
		if e.Name.Match == nil {
			name, err := e.Name.Name.Render(ctx.Vars)
			if err != nil {
				return nil, err
			}
			v, err := e.Value.render(ctx)
			if err != nil {
				return nil, err
			}
			out.Set(name, v)
			continue
		}

		for sub := range Match(*e.Name.Match, ctx) {
			name, err := e.Name.Name.Render(sub.Vars)
			if err != nil {
				return nil, err
			}
			v, err := e.Value.render(sub)
			if err != nil {
				return nil, err
			}
			if v == nil {
				out.Delete(name)
				continue
			}
			out.Set(name, v)
		}
	}

	return out, nil
}
