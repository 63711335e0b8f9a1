package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/ini.v1"
)

// INI section names read by the agent.
const (
	SectionIncludes = "Includes"
	SectionSystem   = "System"
	SectionServices = "Services"
	SectionTrees    = "Trees"
)

var (
	ErrInvalidInclude  = errors.New("invalid entry in Includes section")
	ErrIncludeCycle    = errors.New("include cycle")
	ErrIncludeNotFound = errors.New("included file not found")
)

var loadOptions = ini.LoadOptions{
	KeyValueDelimiters:      "=",
	IgnoreInlineComment:     true,
	PreserveSurroundedQuote: true,
}

// Item is one "name = value" entry and the file it came from.
type Item struct {
	Name   string
	Value  string
	Source string
}

// File is a loaded INI file together with the files it includes.
type File struct {
	path     string
	data     *ini.File
	includes []*File
}

// LoadINI reads path and, recursively, every file named by
// "[Includes] include = a.cfg, conf.d/*.cfg". Relative include patterns are
// resolved against rootDir, or against the including file's directory when
// rootDir is empty. Patterns may use doublestar globs; a pattern without
// glob characters must name an existing file.
func LoadINI(path, rootDir string) (*File, error) {
	return load(path, rootDir, nil)
}

func load(path, rootDir string, stack []string) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	if slices.Contains(stack, abs) {
		return nil, fmt.Errorf("%w: %s", ErrIncludeCycle, strings.Join(append(stack, abs), " -> "))
	}
	stack = append(stack, abs)

	data, err := ini.LoadSources(loadOptions, path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	f := &File{path: path, data: data}

	sec, err := data.GetSection(SectionIncludes)
	if err != nil {
		return f, nil
	}

	base := rootDir
	if base == "" {
		base = filepath.Dir(path)
	}

	for _, key := range sec.Keys() {
		if key.Name() != "include" {
			return nil, fmt.Errorf("%w: %s: %s = %s", ErrInvalidInclude, path, key.Name(), key.Value())
		}
		for _, pattern := range strings.Split(key.Value(), ",") {
			pattern = strings.TrimSpace(pattern)
			if pattern == "" {
				continue
			}
			paths, err := expandInclude(base, pattern)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			for _, p := range paths {
				sub, err := load(p, rootDir, stack)
				if err != nil {
					return nil, err
				}
				f.includes = append(f.includes, sub)
			}
		}
	}

	return f, nil
}

func expandInclude(base, pattern string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(base, pattern)
	}

	if !strings.ContainsAny(pattern, "*?[{") {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil || len(matches) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrIncludeNotFound, pattern)
		}
		return matches, nil
	}

	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("include pattern %s: %w", pattern, err)
	}
	slices.Sort(matches)
	return matches, nil
}

func (f *File) Path() string {
	return f.path
}

// Files lists this file and every included file, depth first.
func (f *File) Files() []string {
	out := []string{f.path}
	for _, inc := range f.includes {
		out = append(out, inc.Files()...)
	}
	return out
}

// Items returns the entries of section: this file's own entries in file order,
// then those of each include in order. The first definition of a name wins.
func (f *File) Items(section string) []Item {
	seen := make(map[string]bool)
	var out []Item
	f.collect(section, seen, &out)
	return out
}

func (f *File) collect(section string, seen map[string]bool, out *[]Item) {
	if sec, err := f.data.GetSection(section); err == nil {
		for _, key := range sec.Keys() {
			if seen[key.Name()] {
				continue
			}
			seen[key.Name()] = true
			*out = append(*out, Item{Name: key.Name(), Value: key.Value(), Source: f.path})
		}
	}
	for _, inc := range f.includes {
		inc.collect(section, seen, out)
	}
}
