package tree

import (
	"fmt"
	"strings"
)

// Segment is one step of a PathTemplate: a literal child name or a placeholder.
type Segment struct {
	Name        string
	Placeholder bool
}

func (s Segment) String() string {
	if s.Placeholder {
		return "{" + s.Name + "}"
	}
	return s.Name
}

// PathTemplate is a '/'-separated document path with {name} placeholder segments.
type PathTemplate struct {
	segs []Segment
}

// ParsePath splits s on '/'. One leading and one trailing empty segment are
// dropped, so "/a/b/", "a/b" and "a/b/" are the same path. A segment that is
// exactly {name} becomes a placeholder.
func ParsePath(s string) PathTemplate {
	parts := strings.Split(s, "/")
	if len(parts) > 0 && parts[0] == "" {
		parts = parts[1:]
	}
	if len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}

	segs := make([]Segment, 0, len(parts))
	for _, p := range parts {
		if len(p) >= 2 && p[0] == '{' && p[len(p)-1] == '}' {
			segs = append(segs, Segment{Name: p[1 : len(p)-1], Placeholder: true})
			continue
		}
		segs = append(segs, Segment{Name: p})
	}
	return PathTemplate{segs: segs}
}

func (p PathTemplate) Len() int {
	return len(p.segs)
}

// Render substitutes placeholders from vars and returns the concrete path.
func (p PathTemplate) Render(vars Bindings) ([]string, error) {
	out := make([]string, len(p.segs))
	for i, s := range p.segs {
		if !s.Placeholder {
			out[i] = s.Name
			continue
		}
		v, ok := vars[s.Name]
		if !ok {
			return nil, fmt.Errorf("%w: {%s} in path %q", ErrUnboundVariable, s.Name, p.String())
		}
		out[i] = v
	}
	return out, nil
}

func (p PathTemplate) String() string {
	parts := make([]string, len(p.segs))
	for i, s := range p.segs {
		parts[i] = s.String()
	}
	return strings.Join(parts, "/")
}

// literalPrefix returns the leading run of literal segment names.
func literalPrefix(segs []Segment) []string {
	var names []string
	for _, s := range segs {
		if s.Placeholder {
			break
		}
		names = append(names, s.Name)
	}
	return names
}
