package tree

import (
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/thingswise/etcdstat/internal/document"
)

// endlessDoc has an unbounded number of children and counts how many were produced.
type endlessDoc struct {
	produced *int
}

func (d endlessDoc) Value([]string) any { return nil }

func (d endlessDoc) Subdocument([]string) document.Document { return d }

func (d endlessDoc) Children() iter.Seq2[string, document.Document] {
	return func(yield func(string, document.Document) bool) {
		for i := 0; ; i++ {
			*d.produced++
			if !yield(strconv.Itoa(i), d) {
				return
			}
		}
	}
}

// recordingDoc logs every Subdocument call made through it.
type recordingDoc struct {
	inner document.Document
	calls *[][]string
}

func (d recordingDoc) Value(path []string) any { return d.inner.Value(path) }

func (d recordingDoc) Subdocument(path []string) document.Document {
	*d.calls = append(*d.calls, slices.Clone(path))
	return recordingDoc{inner: d.inner.Subdocument(path), calls: d.calls}
}

func (d recordingDoc) Children() iter.Seq2[string, document.Document] {
	return func(yield func(string, document.Document) bool) {
		for name, c := range d.inner.Children() {
			if !yield(name, recordingDoc{inner: c, calls: d.calls}) {
				return
			}
		}
	}
}

func TestMatchIsLazy(t *testing.T) {
	t.Parallel()

	var produced int
	ctx := NewContext(endlessDoc{produced: &produced})

	var got []string
	for c := range Match(ParsePath("{a}/{b}"), ctx) {
		got = append(got, c.Vars["a"]+"."+c.Vars["b"])
		if len(got) == 3 {
			break
		}
	}

	if !slices.Equal(got, []string{"0.0", "0.1", "0.2"}) {
		t.Fatalf("Match() = %v", got)
	}
	if produced != 4 {
		t.Fatalf("children produced = %d, want 4", produced)
	}
}

func TestMatchResolvesLiteralRunsOnce(t *testing.T) {
	t.Parallel()

	var calls [][]string
	doc := recordingDoc{
		inner: document.FromValue(mustDecode(t, `{"a":{"b":{"1":{"c":{"d":5}},"2":{"c":{"d":6}}}}}`)),
		calls: &calls,
	}

	var got []string
	for c := range Match(ParsePath("/a/b/{x}/c/d/"), NewContext(doc)) {
		got = append(got, fmt.Sprintf("%s=%v", c.Vars["x"], c.Root.Value(nil)))
	}

	if !slices.Equal(got, []string{"1=5", "2=6"}) {
		t.Fatalf("Match() = %v", got)
	}

	want := [][]string{{"a", "b"}, {"c", "d"}, {"c", "d"}}
	if !slices.EqualFunc(calls, want, slices.Equal[[]string]) {
		t.Fatalf("Subdocument calls = %v, want %v", calls, want)
	}
}

func TestMatchBindings(t *testing.T) {
	t.Parallel()

	doc := document.FromValue(mustDecode(t, `{"h":{"a":{"s":{"x":1,"y":2}},"b":{"s":{}},"c":{"s":{"z":3}}}}`))

	tests := []struct {
		name string
		path string
		vars Bindings
		want []string
	}{
		{name: "literal_only", path: "h/a", want: []string{""}},
		{name: "missing_literal", path: "h/nope/s/{svc}", want: nil},
		{name: "single", path: "h/{host}", want: []string{"host=a", "host=b", "host=c"}},
		{name: "product", path: "h/{host}/s/{svc}", want: []string{"host=a,svc=x", "host=a,svc=y", "host=c,svc=z"}},
		{name: "keeps_outer_bindings", path: "h/{host}", vars: Bindings{"env": "prod"}, want: []string{"env=prod,host=a", "env=prod,host=b", "env=prod,host=c"}},
		{name: "shadows", path: "h/a/s/{host}", vars: Bindings{"host": "outer"}, want: []string{"host=x", "host=y"}},
		{name: "leaf_has_no_children", path: "h/a/s/x/{v}", want: nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := NewContext(doc)
			if tt.vars != nil {
				ctx.Vars = tt.vars
			}

			var got []string
			for c := range Match(ParsePath(tt.path), ctx) {
				got = append(got, formatBindings(c.Vars))
			}
			if !slices.Equal(got, tt.want) {
				t.Fatalf("Match(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestMatchDoesNotMutateBindings(t *testing.T) {
	t.Parallel()

	vars := Bindings{"x": "orig"}
	ctx := Context{Root: document.FromValue(mustDecode(t, `{"a":1,"b":2}`)), Vars: vars}

	for range Match(ParsePath("{x}"), ctx) {
	}
	if vars["x"] != "orig" || len(vars) != 1 {
		t.Fatalf("bindings mutated: %v", vars)
	}
}

func TestMatchContextsFallBackToTheirOrigin(t *testing.T) {
	t.Parallel()

	root := NewContext(document.FromValue(mustDecode(t, `{"v":"root","a":{"k":{},"m":{"v":"inner"}}}`)))
	if root.outer != nil {
		t.Fatal("root context has an outer context")
	}

	got := map[string]any{}
	for c := range Match(ParsePath("a/{x}"), root) {
		if c.outer == nil || c.outer.Root != root.Root {
			t.Fatalf("match %v does not remember its origin", c.Vars)
		}
		got[c.Vars["x"]] = c.lookup([]string{"v"})
	}

	want := map[string]any{"k": "root", "m": "inner"}
	if len(got) != len(want) || got["k"] != want["k"] || got["m"] != want["m"] {
		t.Fatalf("lookup(v) = %v, want %v", got, want)
	}
}

func formatBindings(b Bindings) string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + b[k]
	}
	return strings.Join(parts, ",")
}
