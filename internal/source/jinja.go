package source

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	minijinja "github.com/mitsuhiko/minijinja/minijinja-go/v2"
	"github.com/mitsuhiko/minijinja/minijinja-go/v2/value"
)

var errorType = reflect.TypeFor[error]()

// Env renders Jinja templates against a Registry. Every registry key is a
// callable function ({{ disk_usage_pct("/") }}); keys whose function takes
// no arguments can also be used as plain variables ({{ cpu }}). Variables
// are evaluated lazily, at most once between two calls to Bind. Undefined
// names are errors.
//
// An Env is not safe for concurrent use.
type Env struct {
	registry *Registry
	env      *minijinja.Environment

	funcs    Funcs
	values   map[string]value.Value
	failed   map[string]error
	failures *failures
}

// Template is a parsed Jinja template and the identifiers used inside its
// {{ }} and {% %} tags.
type Template struct {
	tmpl  *minijinja.Template
	src   string
	names []string
}

func (t *Template) Source() string { return t.src }

func NewEnv(r *Registry) *Env {
	env := minijinja.NewEnvironment()
	env.SetUndefinedBehavior(minijinja.UndefinedStrict)

	e := &Env{registry: r, env: env}
	e.Bind(context.Background())
	return e
}

// Bind rebinds every registry function to ctx and drops cached variables.
func (e *Env) Bind(ctx context.Context) {
	e.failures = &failures{}
	ctx = context.WithValue(ctx, failuresKey{}, e.failures)

	e.funcs = e.registry.Funcs(ctx)
	e.values = make(map[string]value.Value)
	e.failed = make(map[string]error)
	for name, fn := range e.funcs {
		e.env.AddFunction(name, callable(name, fn, e.failures))
	}
}

func (e *Env) Parse(name, src string) (*Template, error) {
	tmpl, err := e.env.TemplateFromNamedString(name, src)
	if err != nil {
		return nil, err
	}
	return &Template{tmpl: tmpl, src: src, names: identifiers(src)}, nil
}

// Render evaluates the variables t refers to and renders it. A failed metric
// read fails the render even where the engine would print an undefined
// value.
func (e *Env) Render(t *Template) (string, error) {
	var errs []error
	vars := make(map[string]value.Value)
	for _, name := range t.names {
		v, err := e.variable(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !v.IsUndefined() {
			vars[name] = v
		}
	}

	mark := e.failures.len()
	out, err := t.tmpl.Render(value.FromMap(vars))
	if err != nil {
		errs = append([]error{err}, errs...)
	}
	errs = append(errs, e.failures.since(mark)...)
	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return out, nil
}

// variable returns the cached value of a zero-argument function, or
// undefined when name is not one.
func (e *Env) variable(name string) (value.Value, error) {
	if v, ok := e.values[name]; ok {
		return v, nil
	}
	if err, ok := e.failed[name]; ok {
		return value.Undefined(), err
	}

	fn, ok := e.funcs[name]
	if !ok {
		return value.Undefined(), nil
	}
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.Type().NumIn() != 0 {
		return value.Undefined(), nil
	}

	v, err := invoke(name, rv, nil)
	if err != nil {
		e.failed[name] = err
		return value.Undefined(), err
	}
	e.values[name] = v
	return v, nil
}

// callable adapts fn to the engine. Errors are also recorded in f, since the
// engine does not keep them wrapped.
func callable(name string, fn any, f *failures) minijinja.FunctionFunc {
	rv := reflect.ValueOf(fn)
	return func(_ *minijinja.State, args []value.Value, _ map[string]value.Value) (value.Value, error) {
		v, err := invoke(name, rv, args)
		if err != nil {
			f.add(err)
		}
		return v, err
	}
}

// invoke calls fn with args converted to its parameter types. fn returns a
// single value, optionally followed by an error.
func invoke(name string, fn reflect.Value, args []value.Value) (value.Value, error) {
	if fn.Kind() != reflect.Func {
		return value.FromAny(fn.Interface()), nil
	}

	ft := fn.Type()
	if ft.IsVariadic() || len(args) != ft.NumIn() {
		return value.Undefined(), fmt.Errorf("%s() takes %d arguments, got %d", name, ft.NumIn(), len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		v, err := argument(a, ft.In(i))
		if err != nil {
			return value.Undefined(), fmt.Errorf("%s() argument %d: %w", name, i+1, err)
		}
		in[i] = v
	}

	out := fn.Call(in)
	if n := len(out); n > 0 && ft.Out(n-1) == errorType {
		if err, _ := out[n-1].Interface().(error); err != nil {
			return value.Undefined(), fmt.Errorf("%s(): %w", name, err)
		}
		out = out[:n-1]
	}
	if len(out) == 0 {
		return value.None(), nil
	}
	return value.FromAny(out[0].Interface()), nil
}

func argument(v value.Value, t reflect.Type) (reflect.Value, error) {
	switch t.Kind() {
	case reflect.String:
		if s, ok := v.AsString(); ok {
			return reflect.ValueOf(s).Convert(t), nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if i, ok := v.AsInt(); ok {
			return reflect.ValueOf(i).Convert(t), nil
		}
	case reflect.Float32, reflect.Float64:
		if f, ok := v.AsFloat(); ok {
			return reflect.ValueOf(f).Convert(t), nil
		}
	case reflect.Bool:
		if b, ok := v.AsBool(); ok {
			return reflect.ValueOf(b), nil
		}
	case reflect.Interface:
		raw := v.Raw()
		if raw == nil || v.IsNone() || v.IsUndefined() {
			return reflect.Zero(t), nil
		}
		if rv := reflect.ValueOf(raw); rv.Type().AssignableTo(t) {
			return rv, nil
		}
	}
	return reflect.Value{}, fmt.Errorf("cannot use %s as %s", v.Kind(), t)
}

// identifiers collects the names used inside {{ }} and {% %} tags.
func identifiers(src string) []string {
	var names []string
	seen := make(map[string]bool)

	rest := src
	for {
		open := strings.IndexAny(rest, "{")
		if open < 0 || open+1 >= len(rest) {
			break
		}
		var closer string
		switch rest[open+1] {
		case '{':
			closer = "}}"
		case '%':
			closer = "%}"
		default:
			rest = rest[open+1:]
			continue
		}
		body := rest[open+2:]
		end := strings.Index(body, closer)
		if end < 0 {
			end = len(body)
		}
		for _, name := range scanNames(body[:end]) {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
		if end == len(body) {
			break
		}
		rest = body[end+len(closer):]
	}
	return names
}

// scanNames returns identifier tokens outside string literals. Attribute
// names after '.' are skipped.
func scanNames(s string) []string {
	var names []string
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"' || c == '\'':
			j := i + 1
			for j < len(s) && s[j] != c {
				if s[j] == '\\' {
					j++
				}
				j++
			}
			i = j + 1
		case isNameStart(c):
			j := i + 1
			for j < len(s) && (isNameStart(s[j]) || (s[j] >= '0' && s[j] <= '9')) {
				j++
			}
			if i == 0 || s[i-1] != '.' {
				names = append(names, s[i:j])
			}
			i = j
		default:
			i++
		}
	}
	return names
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

type failuresKey struct{}

// failures collects errors raised by metric reads during a render.
type failures struct {
	mu   sync.Mutex
	errs []error
}

func (f *failures) add(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

func (f *failures) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.errs)
}

func (f *failures) since(mark int) []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.errs[mark:])
}

// report records err for the Env that bound ctx.
func report(ctx context.Context, err error) {
	if f, ok := ctx.Value(failuresKey{}).(*failures); ok {
		f.add(err)
	}
}
