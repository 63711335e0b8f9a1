// Package agent periodically renders the configured name/value items and
// tree templates and publishes the results to a key-value store.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/thingswise/etcdstat/internal/clock"
	"github.com/thingswise/etcdstat/internal/config"
	"github.com/thingswise/etcdstat/internal/document"
	"github.com/thingswise/etcdstat/internal/kv"
	"github.com/thingswise/etcdstat/internal/literal"
	"github.com/thingswise/etcdstat/internal/ratelimit"
	"github.com/thingswise/etcdstat/internal/source"
	"github.com/thingswise/etcdstat/internal/tree"
)

var ErrTemplate = errors.New("invalid template")

// Item publishes the rendered Value template under the rendered Name template.
type Item struct {
	Section string
	Source  string
	Name    *source.Template
	Value   *source.Template
}

// Tree publishes the JSON rendering of a tree template under the rendered
// Name template.
type Tree struct {
	Source   string
	File     string
	Name     *source.Template
	Template *tree.Template
}

type Agent struct {
	cfg      *config.Config
	store    kv.Reader
	writer   kv.Writer
	env      *source.Env
	logger   *slog.Logger
	items    []Item
	trees    []Tree
}

// New compiles every item of the System and Services sections and every tree
// of the Trees section of file. Tree template files are resolved relative to
// the configuration file that names them.
func New(cfg *config.Config, file *config.File, store kv.Store, registry *source.Registry, logger *slog.Logger) (*Agent, error) {
	a := &Agent{
		cfg:      cfg,
		store:    store,
		writer:   ratelimit.Writer(store, ratelimit.New(cfg.RateLimit)),
		env:      source.NewEnv(registry),
		logger:   logger,
	}

	for _, section := range []string{config.SectionSystem, config.SectionServices} {
		for _, it := range file.Items(section) {
			name, err := a.parse(it.Name)
			if err != nil {
				return nil, fmt.Errorf("%s [%s]: %w", it.Source, section, err)
			}
			value, err := a.parse(it.Value)
			if err != nil {
				return nil, fmt.Errorf("%s [%s] %s: %w", it.Source, section, it.Name, err)
			}
			a.items = append(a.items, Item{Section: section, Source: it.Source, Name: name, Value: value})
		}
	}

	for _, it := range file.Items(config.SectionTrees) {
		name, err := a.parse(it.Name)
		if err != nil {
			return nil, fmt.Errorf("%s [%s]: %w", it.Source, config.SectionTrees, err)
		}

		path := it.Value
		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(it.Source), path)
		}
		lit, err := literal.Load(path)
		if err != nil {
			return nil, fmt.Errorf("%s [%s] %s: %w", it.Source, config.SectionTrees, it.Name, err)
		}
		tmpl, err := tree.Compile(lit)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		a.trees = append(a.trees, Tree{Source: it.Source, File: path, Name: name, Template: tmpl})
	}

	return a, nil
}

func (a *Agent) parse(text string) (*source.Template, error) {
	t, err := a.env.Parse(text, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplate, err)
	}
	return t, nil
}

func (a *Agent) Items() []Item { return a.items }

func (a *Agent) Trees() []Tree { return a.trees }

// Run updates the store every interval until ctx is cancelled. With Once set
// it runs a single update and reports failure through the exit code.
func (a *Agent) Run(ctx context.Context) int {
	a.logger.InfoContext(ctx, "agent started",
		"items", len(a.items), "trees", len(a.trees), "interval", a.cfg.Interval, "once", a.cfg.Once)

	if a.cfg.Once {
		if err := a.Update(ctx); err != nil {
			return 1
		}
		return 0
	}

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for cycle := 1; ; cycle++ {
		select {
		case <-ctx.Done():
			a.logger.InfoContext(ctx, "agent stopped", "cycles", cycle-1)
			return 0
		default:
		}

		start := clock.Now()
		if err := a.Update(ctx); err != nil {
			a.logger.WarnContext(ctx, "update incomplete", "cycle", cycle, "error", err)
		} else {
			a.logger.DebugContext(ctx, "update complete", "cycle", cycle, "took", clock.Since(start))
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

// Update renders and publishes every item, then every tree. Metrics are read
// at most once per update. A failing entry is logged and skipped; the
// failures are returned joined.
func (a *Agent) Update(ctx context.Context) error {
	a.env.Bind(ctx)
	ttl := a.cfg.TTL()

	var errs []error
	for _, it := range a.items {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := a.publishItem(ctx, it, ttl); err != nil {
			a.logger.ErrorContext(ctx, "item update failed",
				"section", it.Section, "name", it.Name.Source(), "source", it.Source, "error", err)
			errs = append(errs, err)
		}
	}

	if len(a.trees) == 0 {
		return errors.Join(errs...)
	}

	doc := document.Fetch(ctx, a.store, a.cfg.TreeRoot, a.logger)
	for _, tr := range a.trees {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := a.publishTree(ctx, doc, tr, ttl); err != nil {
			a.logger.ErrorContext(ctx, "tree update failed",
				"name", tr.Name.Source(), "file", tr.File, "error", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (a *Agent) publishItem(ctx context.Context, it Item, ttl time.Duration) error {
	key, err := a.env.Render(it.Name)
	if err != nil {
		return fmt.Errorf("render name %q: %w", it.Name.Source(), err)
	}
	value, err := a.env.Render(it.Value)
	if err != nil {
		return fmt.Errorf("render value %q: %w", it.Value.Source(), err)
	}

	if err := a.writer.Put(ctx, key, value, ttl); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	a.logger.DebugContext(ctx, "published", "key", key, "value", value)
	return nil
}

func (a *Agent) publishTree(ctx context.Context, doc document.Document, tr Tree, ttl time.Duration) error {
	key, err := a.env.Render(tr.Name)
	if err != nil {
		return fmt.Errorf("render name %q: %w", tr.Name.Source(), err)
	}

	out, err := tr.Template.Render(doc)
	if err != nil {
		return fmt.Errorf("render tree %s: %w", tr.File, err)
	}
	if out == nil {
		a.logger.DebugContext(ctx, "tree rendered nothing", "key", key, "file", tr.File)
		return nil
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode tree %s: %w", tr.File, err)
	}
	if err := a.writer.Put(ctx, key, string(payload), ttl); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	a.logger.DebugContext(ctx, "published tree", "key", key, "bytes", len(payload))
	return nil
}
