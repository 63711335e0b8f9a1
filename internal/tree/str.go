package tree

import (
	"fmt"
	"strings"
)

type strPart struct {
	text        string
	placeholder bool
}

// StrTemplate is a string with {name} placeholders.
type StrTemplate struct {
	parts []strPart
}

// ParseStr splits s into literal runs and {name} placeholders.
func ParseStr(s string) (StrTemplate, error) {
	var parts []strPart

	rest := s
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			break
		}
		end := strings.IndexByte(rest[open+1:], '}')
		if end < 0 {
			return StrTemplate{}, fmt.Errorf("%w: unterminated placeholder in %q", ErrSyntax, s)
		}
		if open > 0 {
			parts = append(parts, strPart{text: rest[:open]})
		}
		parts = append(parts, strPart{text: rest[open+1 : open+1+end], placeholder: true})
		rest = rest[open+1+end+1:]
	}
	if rest != "" {
		parts = append(parts, strPart{text: rest})
	}

	return StrTemplate{parts: parts}, nil
}

// MustParseStr is like ParseStr but panics on error.
func MustParseStr(s string) StrTemplate {
	t, err := ParseStr(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Render substitutes every placeholder from vars.
func (t StrTemplate) Render(vars Bindings) (string, error) {
	if len(t.parts) == 1 && !t.parts[0].placeholder {
		return t.parts[0].text, nil
	}

	var b strings.Builder
	for _, p := range t.parts {
		if !p.placeholder {
			b.WriteString(p.text)
			continue
		}
		v, ok := vars[p.text]
		if !ok {
			return "", fmt.Errorf("%w: {%s} in %q", ErrUnboundVariable, p.text, t.String())
		}
		b.WriteString(v)
	}
	return b.String(), nil
}

func (t StrTemplate) String() string {
	var b strings.Builder
	for _, p := range t.parts {
		if p.placeholder {
			b.WriteByte('{')
			b.WriteString(p.text)
			b.WriteByte('}')
			continue
		}
		b.WriteString(p.text)
	}
	return b.String()
}
