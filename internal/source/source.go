// Package source provides the host metric modules exposed to name and value
// templates. Each module contributes Go functions keyed by template name:
// plain metrics are zero-argument functions ({{ cpu }}), parameterised ones
// take arguments ({{ disk_usage_pct("/") }}).
package source

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sort"
)

var (
	ErrUnknownDevice = errors.New("unknown network device")
	ErrNoAddress     = errors.New("no address of requested family")
	ErrUnknownFamily = errors.New("unsupported address family")
	ErrNoData        = errors.New("metric unavailable")
)

// Funcs maps template names to Go functions. A function returns one value,
// optionally followed by an error.
type Funcs map[string]any

// Module is a named group of template functions. Functions built by Funcs
// use ctx for every system call they make.
type Module interface {
	Name() string
	Funcs(ctx context.Context) Funcs
}

// Registry holds modules in registration order. When two modules provide
// the same key, the first one registered wins.
type Registry struct {
	modules []Module
}

func NewRegistry(modules ...Module) *Registry {
	r := &Registry{}
	for _, m := range modules {
		r.Add(m)
	}
	return r
}

func (r *Registry) Add(m Module) {
	r.modules = append(r.modules, m)
}

func (r *Registry) Modules() []Module {
	return slices.Clone(r.modules)
}

// Keys lists every key once, grouped by module in registration order.
func (r *Registry) Keys() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, m := range r.modules {
		for _, k := range sortedFuncs(m.Funcs(context.Background())) {
			if seen[k] {
				continue
			}
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

func (r *Registry) Provides(key string) bool {
	_, ok := r.Lookup(key)
	return ok
}

// Lookup returns the module that serves key.
func (r *Registry) Lookup(key string) (Module, bool) {
	for _, m := range r.modules {
		if _, ok := m.Funcs(context.Background())[key]; ok {
			return m, true
		}
	}
	return nil, false
}

// Funcs merges the functions of all modules, bound to ctx.
func (r *Registry) Funcs(ctx context.Context) Funcs {
	out := make(Funcs)
	for _, m := range r.modules {
		for k, fn := range m.Funcs(ctx) {
			if _, ok := out[k]; !ok {
				out[k] = fn
			}
		}
	}
	return out
}

// Close releases modules holding system connections.
func (r *Registry) Close() error {
	var errs []error
	for _, m := range r.modules {
		if c, ok := m.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

func sortedFuncs(fm Funcs) []string {
	keys := make([]string, 0, len(fm))
	for k := range fm {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Default registers cpu, memory, disk, host, systemd and the text helpers,
// in that order.
func Default(logger *slog.Logger) (*Registry, error) {
	procs, err := NewProcessCache(DefaultProcessCacheSize)
	if err != nil {
		return nil, err
	}
	return NewRegistry(
		NewCPU(),
		NewMemory(),
		NewDisk(),
		NewHost(logger),
		NewSystemd(procs),
		NewText(),
	), nil
}
