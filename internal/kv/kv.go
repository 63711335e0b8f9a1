// Package kv is the key-value store client used to publish rendered values
// and to read document snapshots. Back ends are selected by URL scheme.
package kv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"
)

var (
	// ErrNotSupported is returned by back ends that cannot perform an operation.
	ErrNotSupported = errors.New("kv: operation not supported")

	// ErrUnsupportedScheme is returned by Open for unknown URL schemes.
	ErrUnsupportedScheme = errors.New("kv: unsupported URL scheme")
)

// Entry is one key/value pair of a snapshot.
type Entry struct {
	Key   string
	Value string
}

type EventType uint8

const (
	EventPut EventType = iota + 1
	EventDelete
)

func (t EventType) String() string {
	switch t {
	case EventPut:
		return "put"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is a change notification delivered by Watch.
type Event struct {
	Type  EventType
	Key   string
	Value string
}

type Reader interface {
	// Snapshot lists every key under prefix, ordered by key.
	Snapshot(ctx context.Context, prefix string) ([]Entry, error)
}

type Writer interface {
	// Put writes value at key. A positive ttl expires the key unless it is rewritten.
	Put(ctx context.Context, key, value string, ttl time.Duration) error

	// Append creates a new, time-ordered child key under dir and returns it.
	Append(ctx context.Context, dir, value string, ttl time.Duration) (string, error)
}

type Watcher interface {
	// Watch streams changes under prefix until ctx is done; the channel is then closed.
	Watch(ctx context.Context, prefix string) (<-chan Event, error)
}

type Store interface {
	Reader
	Writer
	Watcher
	io.Closer
}

type options struct {
	dialTimeout time.Duration
	stdout      io.Writer
	clientID    string
}

type Option func(*options)

// WithDialTimeout bounds the initial connection to network back ends.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = d
	}
}

// WithOutput redirects the stdout back end.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.stdout = w
	}
}

// WithClientID sets the client identifier used by the MQTT back end.
func WithClientID(id string) Option {
	return func(o *options) {
		o.clientID = id
	}
}

// DefaultDialTimeout is used when WithDialTimeout is not given.
const DefaultDialTimeout = 5 * time.Second

// Open connects to the store named by rawURL:
//
//	stdout://             print "name = value" lines
//	mem://                in-process store
//	http(s)://host:port   etcd v3 (comma separated hosts allowed)
//	etcd://host:port      etcd v3 over plain http
//	mqtt://, tcp://, ssl:// MQTT broker
func Open(ctx context.Context, rawURL string, opts ...Option) (Store, error) {
	o := options{
		dialTimeout: DefaultDialTimeout,
		stdout:      os.Stdout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("kv: parse URL %q: %w", rawURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "stdout":
		return NewStdout(o.stdout), nil
	case "mem", "memory":
		return NewMemory(), nil
	case "http", "https":
		return DialEtcd(ctx, endpoints(u.Scheme, u.Host), o.dialTimeout)
	case "etcd":
		return DialEtcd(ctx, endpoints("http", u.Host), o.dialTimeout)
	case "mqtt", "tcp", "ssl", "tls", "mqtts":
		return DialMQTT(ctx, brokerURL(u), o.clientID, o.dialTimeout)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

func endpoints(scheme, hosts string) []string {
	var out []string
	for _, h := range strings.Split(hosts, ",") {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		out = append(out, scheme+"://"+h)
	}
	if len(out) == 0 {
		out = append(out, scheme+"://localhost:2379")
	}
	return out
}

func brokerURL(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "mqtt":
		scheme = "tcp"
	case "mqtts", "tls":
		scheme = "ssl"
	}
	host := u.Host
	if host == "" {
		host = "localhost:1883"
	}
	return scheme + "://" + host
}

// JoinKey joins key segments with a single '/' and a leading '/'.
func JoinKey(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(p)
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

// HasPrefix reports whether key lies under prefix, treating both as '/'-separated paths.
func HasPrefix(key, prefix string) bool {
	p := strings.TrimSuffix(prefix, "/")
	if p == "" {
		return true
	}
	return key == p || strings.HasPrefix(key, p+"/")
}
