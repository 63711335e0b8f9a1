package tree

import (
	"fmt"
	"strings"
)

const patternPrefix = "^("

// NameTemplate produces object keys. With a Match path it yields one key per
// context matched by that path; otherwise it yields a single key rendered
// with the enclosing bindings.
type NameTemplate struct {
	Match *PathTemplate
	Name  StrTemplate
}

func (n NameTemplate) String() string {
	if n.Match == nil {
		return n.Name.String()
	}
	return patternPrefix + n.Match.String() + ") " + n.Name.String()
}

// parseName recognises "^(path) name" wildcard keys; every other key is a
// plain interpolated name.
func parseName(key string) (NameTemplate, error) {
	if !strings.HasPrefix(key, patternPrefix) {
		name, err := ParseStr(key)
		if err != nil {
			return NameTemplate{}, err
		}
		return NameTemplate{Name: name}, nil
	}

	end := strings.IndexByte(key, ')')
	if end < 0 {
		return NameTemplate{}, fmt.Errorf("%w: key pattern %q has no closing ')'", ErrSyntax, key)
	}

	path := ParsePath(strings.TrimSpace(key[len(patternPrefix):end]))
	rawName := strings.TrimSpace(key[end+1:])
	if rawName == "" {
		return NameTemplate{}, fmt.Errorf("%w: key pattern %q has no name", ErrSyntax, key)
	}

	name, err := ParseStr(rawName)
	if err != nil {
		return NameTemplate{}, err
	}
	return NameTemplate{Match: &path, Name: name}, nil
}

// parseReference reports whether s is reference syntax "^(path)" and parses
// it. The path runs up to the final ')', so it may itself contain parens.
// Strings that start with "^(" but do not end with ')' are plain values.
func parseReference(s string) (PathTemplate, bool, error) {
	if !strings.HasPrefix(s, patternPrefix) || !strings.HasSuffix(s, ")") {
		return PathTemplate{}, false, nil
	}

	inner := strings.TrimSpace(s[len(patternPrefix) : len(s)-1])
	if inner == "" {
		return PathTemplate{}, false, fmt.Errorf("%w: empty reference %q", ErrSyntax, s)
	}
	return ParsePath(inner), true, nil
}
