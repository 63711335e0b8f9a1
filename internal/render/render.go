// Package render implements treerender: it compiles a tree template and
// renders it against a YAML/JSON document or a key-value store snapshot.
package render

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/goccy/go-yaml"

	"github.com/thingswise/etcdstat/internal/document"
	"github.com/thingswise/etcdstat/internal/kv"
	"github.com/thingswise/etcdstat/internal/literal"
	"github.com/thingswise/etcdstat/internal/ordered"
	"github.com/thingswise/etcdstat/internal/tree"
)

type Renderer struct {
	cfg    Config
	tmpl   *tree.Template
	out    io.Writer
	in     io.Reader
	logger *slog.Logger
	open   func(ctx context.Context, rawURL string, opts ...kv.Option) (kv.Store, error)
}

// New loads and compiles cfg.TemplateFile. in is read when INPUT is "-".
func New(cfg Config, out io.Writer, in io.Reader, logger *slog.Logger) (*Renderer, error) {
	lit, err := literal.Load(cfg.TemplateFile)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	tmpl, err := tree.Compile(lit)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", cfg.TemplateFile, err)
	}

	return &Renderer{cfg: cfg, tmpl: tmpl, out: out, in: in, logger: logger, open: kv.Open}, nil
}

// Run renders once, or with Watch until ctx is cancelled.
func (r *Renderer) Run(ctx context.Context) error {
	if r.cfg.StoreURL == "" {
		doc, err := r.loadInput()
		if err != nil {
			return err
		}
		return r.renderTo(doc)
	}

	store, err := r.open(ctx, r.cfg.StoreURL, kv.WithDialTimeout(r.cfg.DialTimeout))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	if !r.cfg.Watch {
		return r.renderStore(ctx, store)
	}
	return r.watch(ctx, store)
}

func (r *Renderer) loadInput() (document.Document, error) {
	var (
		v   any
		err error
	)
	if r.cfg.InputFile == "-" {
		v, err = literal.Decode(r.in)
	} else {
		v, err = literal.Load(r.cfg.InputFile)
	}
	if err != nil {
		return nil, fmt.Errorf("load input: %w", err)
	}

	if r.cfg.Select != "" {
		v, err = literal.Select(v, r.cfg.Select)
		if err != nil {
			return nil, err
		}
	}
	return document.FromValue(v), nil
}

func (r *Renderer) renderStore(ctx context.Context, store kv.Reader) error {
	entries, err := store.Snapshot(ctx, r.cfg.Prefix)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", r.cfg.Prefix, err)
	}
	return r.renderTo(document.Snapshot(entries, r.cfg.Prefix))
}

// watch renders the current snapshot, then again after every batch of
// change events below the prefix.
func (r *Renderer) watch(ctx context.Context, store kv.Store) error {
	events, err := store.Watch(ctx, r.cfg.Prefix)
	if err != nil {
		return fmt.Errorf("watch %s: %w", r.cfg.Prefix, err)
	}
	if err := r.renderStore(ctx, store); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return ctx.Err()
			}
			r.logger.DebugContext(ctx, "store changed", "type", ev.Type, "key", ev.Key)
			drain(events)
			if err := r.renderStore(ctx, store); err != nil {
				return err
			}
		}
	}
}

// drain discards events already queued so a burst causes one render.
func drain(events <-chan kv.Event) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (r *Renderer) renderTo(doc document.Document) error {
	result, err := r.tmpl.Render(doc)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return r.print(result)
}

func (r *Renderer) print(result any) error {
	if !r.cfg.Quiet {
		if _, err := fmt.Fprintln(r.out, result); err != nil {
			return err
		}
	}

	var (
		payload []byte
		err     error
	)
	switch r.cfg.Format {
	case FormatYAML:
		payload, err = yaml.Marshal(plainNumbers(result))
	default:
		payload, err = json.MarshalIndent(result, "", "  ")
		payload = append(payload, '\n')
	}
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	_, err = r.out.Write(payload)
	return err
}

// plainNumbers converts json.Number leaves so YAML emits them unquoted.
func plainNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case *ordered.Map:
		out := ordered.NewWithCapacity(t.Len())
		for k, item := range t.All() {
			out.Set(k, plainNumbers(item))
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = plainNumbers(item)
		}
		return out
	default:
		return v
	}
}
