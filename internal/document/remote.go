package document

import (
	"context"
	"iter"
	"log/slog"
	"strings"

	"github.com/thingswise/etcdstat/internal/kv"
)

// Remote is an immutable snapshot of a key-value store subtree. Node names
// are key segments; leaves hold the raw stored string.
type Remote struct {
	node *node
}

type node struct {
	value    *string
	children []*node
	index    map[string]*node
	name     string
}

func newNode(name string) *node {
	return &node{name: name}
}

func (n *node) child(name string) *node {
	if n == nil || n.index == nil {
		return nil
	}
	return n.index[name]
}

func (n *node) ensure(name string) *node {
	if c := n.child(name); c != nil {
		return c
	}
	c := newNode(name)
	if n.index == nil {
		n.index = make(map[string]*node)
	}
	n.index[name] = c
	n.children = append(n.children, c)
	return c
}

// Snapshot builds a document from a flat key listing. prefix is removed from
// every key; keys outside prefix are ignored. Children keep listing order.
func Snapshot(entries []kv.Entry, prefix string) *Remote {
	root := newNode("")
	for _, e := range entries {
		if !kv.HasPrefix(e.Key, prefix) {
			continue
		}
		rel := strings.TrimPrefix(e.Key, strings.TrimSuffix(prefix, "/"))

		n := root
		for _, seg := range strings.Split(rel, "/") {
			if seg == "" {
				continue
			}
			n = n.ensure(seg)
		}
		v := e.Value
		n.value = &v
	}
	return &Remote{node: root}
}

// Fetch reads the whole subtree under prefix once. Read failures are logged
// and produce an empty document so that rendering can continue.
func Fetch(ctx context.Context, r kv.Reader, prefix string, logger *slog.Logger) *Remote {
	entries, err := r.Snapshot(ctx, prefix)
	if err != nil {
		if logger != nil {
			logger.WarnContext(ctx, "document snapshot failed", "prefix", prefix, "error", err)
		}
		return &Remote{}
	}
	return Snapshot(entries, prefix)
}

func (d *Remote) find(path []string) *node {
	n := d.node
	for _, seg := range path {
		if seg == Here {
			continue
		}
		n = n.child(seg)
		if n == nil {
			return nil
		}
	}
	return n
}

// Value returns the raw string stored at path, or nil for directories and
// missing nodes.
func (d *Remote) Value(path []string) any {
	n := d.find(path)
	if n == nil || n.value == nil {
		return nil
	}
	return *n.value
}

func (d *Remote) Subdocument(path []string) Document {
	return &Remote{node: d.find(path)}
}

func (d *Remote) Children() iter.Seq2[string, Document] {
	return func(yield func(string, Document) bool) {
		if d.node == nil {
			return
		}
		for _, c := range d.node.children {
			if !yield(c.name, &Remote{node: c}) {
				return
			}
		}
	}
}

// Len reports the number of direct children.
func (d *Remote) Len() int {
	if d.node == nil {
		return 0
	}
	return len(d.node.children)
}
