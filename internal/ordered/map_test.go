package ordered

import (
	"encoding/json"
	"testing"

	"github.com/goccy/go-yaml"
)

func TestMapKeepsInsertionOrder(t *testing.T) {
	t.Parallel()

	m := New()
	m.Set("b", 1)
	m.Set("a", 2)
	m.Set("c", 3)
	m.Set("b", 4)

	got, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if want := `{"b":4,"a":2,"c":3}`; string(got) != want {
		t.Fatalf("Marshal() = %s, want %s", got, want)
	}
}

func TestMapDelete(t *testing.T) {
	t.Parallel()

	m := New()
	m.Set("a", 1)
	m.Set("b", 2)

	if !m.Delete("a") {
		t.Fatal("Delete(a) = false, want true")
	}
	if m.Delete("missing") {
		t.Fatal("Delete(missing) = true, want false")
	}
	if m.Len() != 1 || m.Keys()[0] != "b" {
		t.Fatalf("Keys() = %v, want [b]", m.Keys())
	}

	m.Set("a", 3)
	if got := m.String(); got != "map[b:2 a:3]" {
		t.Fatalf("String() = %q, want %q", got, "map[b:2 a:3]")
	}
}

func TestDecodeJSONKeepsOrder(t *testing.T) {
	t.Parallel()

	v, err := DecodeJSON([]byte(`{"z": {"y": 1, "x": [true, null]}, "a": "s"}`))
	if err != nil {
		t.Fatalf("DecodeJSON() error = %v", err)
	}

	m, ok := v.(*Map)
	if !ok {
		t.Fatalf("DecodeJSON() = %T, want *Map", v)
	}
	if got := m.Keys(); len(got) != 2 || got[0] != "z" || got[1] != "a" {
		t.Fatalf("Keys() = %v, want [z a]", got)
	}

	encoded, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if want := `{"z":{"y":1,"x":[true,null]},"a":"s"}`; string(encoded) != want {
		t.Fatalf("Marshal() = %s, want %s", encoded, want)
	}
}

func TestDecodeJSONRejectsTrailingData(t *testing.T) {
	t.Parallel()

	if _, err := DecodeJSON([]byte(`1 2`)); err == nil {
		t.Fatal("DecodeJSON() error = nil, want trailing data error")
	}
}

func TestFromYAML(t *testing.T) {
	t.Parallel()

	in := yaml.MapSlice{
		{Key: "second", Value: []any{yaml.MapSlice{{Key: "k", Value: "v"}}}},
		{Key: "first", Value: map[string]any{"b": 1, "a": 2}},
	}

	m, ok := FromYAML(in).(*Map)
	if !ok {
		t.Fatalf("FromYAML() = %T, want *Map", FromYAML(in))
	}

	encoded, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if want := `{"second":[{"k":"v"}],"first":{"a":2,"b":1}}`; string(encoded) != want {
		t.Fatalf("Marshal() = %s, want %s", encoded, want)
	}
}

func TestMarshalYAMLKeepsOrder(t *testing.T) {
	t.Parallel()

	m := New()
	m.Set("z", 1)
	m.Set("a", "x")

	out, err := yaml.Marshal(m)
	if err != nil {
		t.Fatalf("yaml.Marshal() error = %v", err)
	}
	if want := "z: 1\na: x\n"; string(out) != want {
		t.Fatalf("yaml.Marshal() = %q, want %q", out, want)
	}
}
