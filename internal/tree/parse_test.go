package tree

import (
	"errors"
	"slices"
	"testing"
)

func TestParseStr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		input            string
		wantPlaceholders []string
		wantString       string
		wantErr          bool
	}{
		{name: "literal", input: "plain", wantString: "plain"},
		{name: "empty", input: "", wantString: ""},
		{name: "single_placeholder", input: "{x}", wantPlaceholders: []string{"x"}, wantString: "{x}"},
		{name: "mixed", input: "cpu_{host}_{core}!", wantPlaceholders: []string{"host", "core"}, wantString: "cpu_{host}_{core}!"},
		{name: "adjacent", input: "{a}{b}", wantPlaceholders: []string{"a", "b"}, wantString: "{a}{b}"},
		{name: "stray_close_is_literal", input: "a}b", wantString: "a}b"},
		{name: "unterminated", input: "name_{x", wantErr: true},
		{name: "unterminated_after_valid", input: "{a}_{b", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseStr(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrSyntax) {
					t.Fatalf("ParseStr(%q) error = %v, want ErrSyntax", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseStr(%q) error = %v", tt.input, err)
			}
			var names []string
			for _, p := range got.parts {
				if p.placeholder {
					names = append(names, p.text)
				}
			}
			if !slices.Equal(names, tt.wantPlaceholders) {
				t.Fatalf("placeholders = %v, want %v", names, tt.wantPlaceholders)
			}
			if got.String() != tt.wantString {
				t.Fatalf("String() = %q, want %q", got.String(), tt.wantString)
			}
		})
	}
}

func TestStrTemplateRender(t *testing.T) {
	t.Parallel()

	tmpl := MustParseStr("{host}/cpu_{core}")

	got, err := tmpl.Render(Bindings{"host": "web1", "core": "0"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got != "web1/cpu_0" {
		t.Fatalf("Render() = %q, want %q", got, "web1/cpu_0")
	}

	if _, err := tmpl.Render(Bindings{"host": "web1"}); !errors.Is(err, ErrUnboundVariable) {
		t.Fatalf("Render() error = %v, want ErrUnboundVariable", err)
	}
}

func TestParsePathNormalization(t *testing.T) {
	t.Parallel()

	want := ParsePath("a/b")
	if want.Len() != 2 || want.segs[0].Placeholder || want.segs[1].Placeholder {
		t.Fatalf("ParsePath(a/b) = %v, want two literal segments", want.segs)
	}

	for _, input := range []string{"/a/b/", "a/b", "a/b/", "/a/b"} {
		if got := ParsePath(input); !slices.Equal(got.segs, want.segs) {
			t.Errorf("ParsePath(%q) = %v, want %v", input, got.segs, want.segs)
		}
	}
}

func TestParsePathSegments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  []Segment
	}{
		{input: "", want: []Segment{}},
		{input: "/", want: []Segment{}},
		{input: "a/{x}/b", want: []Segment{{Name: "a"}, {Name: "x", Placeholder: true}, {Name: "b"}}},
		{input: "./a", want: []Segment{{Name: "."}, {Name: "a"}}},
		{input: "a{x}", want: []Segment{{Name: "a{x}"}}},
		{input: "{}", want: []Segment{{Name: "", Placeholder: true}}},
		{input: "a//b", want: []Segment{{Name: "a"}, {Name: ""}, {Name: "b"}}},
	}

	for _, tt := range tests {
		if got := ParsePath(tt.input).segs; !slices.Equal(got, tt.want) {
			t.Errorf("ParsePath(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestPathTemplateRender(t *testing.T) {
	t.Parallel()

	p := ParsePath("hosts/{h}/cpu")

	got, err := p.Render(Bindings{"h": "web1"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !slices.Equal(got, []string{"hosts", "web1", "cpu"}) {
		t.Fatalf("Render() = %v", got)
	}

	if _, err := p.Render(nil); !errors.Is(err, ErrUnboundVariable) {
		t.Fatalf("Render() error = %v, want ErrUnboundVariable", err)
	}
}

func TestParseName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		key       string
		wantMatch string
		wantName  string
		wantErr   bool
	}{
		{name: "plain", key: "total", wantName: "total"},
		{name: "interpolated", key: "cpu_{h}", wantName: "cpu_{h}"},
		{name: "wildcard", key: "^(a/{x}) name_{x}", wantMatch: "a/{x}", wantName: "name_{x}"},
		{name: "wildcard_spaces", key: "^( /a/{x}/ )   {x} ", wantMatch: "a/{x}", wantName: "{x}"},
		{name: "missing_name", key: "^(a/{x})", wantErr: true},
		{name: "blank_name", key: "^(a/{x})   ", wantErr: true},
		{name: "missing_paren", key: "^(a/{x} name", wantErr: true},
		{name: "bad_interpolation", key: "^(a/{x}) name_{x", wantErr: true},
		{name: "bad_plain_interpolation", key: "name_{x", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseName(tt.key)
			if tt.wantErr {
				if !errors.Is(err, ErrSyntax) {
					t.Fatalf("parseName(%q) error = %v, want ErrSyntax", tt.key, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseName(%q) error = %v", tt.key, err)
			}

			if tt.wantMatch == "" {
				if got.Match != nil {
					t.Fatalf("parseName(%q) Match = %v, want nil", tt.key, got.Match)
				}
			} else if got.Match == nil || got.Match.String() != tt.wantMatch {
				t.Fatalf("parseName(%q) Match = %v, want %q", tt.key, got.Match, tt.wantMatch)
			}
			if got.Name.String() != tt.wantName {
				t.Fatalf("parseName(%q) Name = %q, want %q", tt.key, got.Name.String(), tt.wantName)
			}
		})
	}
}

func TestParseReference(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		wantRef bool
		want    string
		wantErr bool
	}{
		{input: "^(a/b)", wantRef: true, want: "a/b"},
		{input: "^( /a/{x}/v/ )", wantRef: true, want: "a/{x}/v"},
		{input: "^(.)", wantRef: true, want: "."},
		{input: "plain", wantRef: false},
		{input: "x^(a)", wantRef: false},
		{input: "(a)", wantRef: false},
		{input: "^()", wantErr: true},
		{input: "^(  )", wantErr: true},
		{input: "^(a/(b))", wantRef: true, want: "a/(b)"},
		{input: "^(a)b)", wantRef: true, want: "a)b"},
		{input: "^(a", wantRef: false},
		{input: "^(a) b", wantRef: false},
		{input: "^(", wantRef: false},
	}

	for _, tt := range tests {
		path, ok, err := parseReference(tt.input)
		if tt.wantErr {
			if !errors.Is(err, ErrSyntax) {
				t.Errorf("parseReference(%q) error = %v, want ErrSyntax", tt.input, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseReference(%q) error = %v", tt.input, err)
			continue
		}
		if ok != tt.wantRef {
			t.Errorf("parseReference(%q) ok = %v, want %v", tt.input, ok, tt.wantRef)
			continue
		}
		if ok && path.String() != tt.want {
			t.Errorf("parseReference(%q) = %q, want %q", tt.input, path.String(), tt.want)
		}
	}
}
