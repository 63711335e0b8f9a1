package kv

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thingswise/etcdstat/internal/clock"
)

const watchBuffer = 16

// Memory is a thread-safe in-process Store. Expired keys are dropped lazily.
type Memory struct {
	mu       sync.Mutex
	entries  map[string]memoryEntry
	watchers map[int]*memoryWatcher
	nextID   int
	now      func() time.Time
}

type memoryEntry struct {
	value   string
	expires time.Time // zero means no expiry
}

type memoryWatcher struct {
	prefix string
	ch     chan Event
	done   <-chan struct{}
}

func NewMemory() *Memory {
	return &Memory{
		entries:  make(map[string]memoryEntry),
		watchers: make(map[int]*memoryWatcher),
		now:      clock.Now,
	}
}

func (m *Memory) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.putLocked(key, value, ttl)
	return nil
}

func (m *Memory) putLocked(key, value string, ttl time.Duration) {
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.entries[key] = e
	m.notifyLocked(Event{Type: EventPut, Key: key, Value: value})
}

func (m *Memory) Append(ctx context.Context, dir, value string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("kv: generate append key: %w", err)
	}
	key := JoinKey(dir, id.String())

	m.mu.Lock()
	defer m.mu.Unlock()

	m.putLocked(key, value, ttl)
	return key, nil
}

// Delete removes key and reports whether it existed.
func (m *Memory) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.liveLocked(key); !ok {
		return false, nil
	}
	delete(m.entries, key)
	m.notifyLocked(Event{Type: EventDelete, Key: key})
	return true, nil
}

// Get returns the live value stored at key.
func (m *Memory) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.liveLocked(key)
	return e.value, ok
}

func (m *Memory) liveLocked(key string) (memoryEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		m.notifyLocked(Event{Type: EventDelete, Key: key})
		return memoryEntry{}, false
	}
	return e, true
}

func (m *Memory) Snapshot(ctx context.Context, prefix string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		if HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		if e, ok := m.liveLocked(k); ok {
			out = append(out, Entry{Key: k, Value: e.value})
		}
	}
	return out, nil
}

func (m *Memory) Watch(ctx context.Context, prefix string) (<-chan Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w := &memoryWatcher{
		prefix: prefix,
		ch:     make(chan Event, watchBuffer),
		done:   ctx.Done(),
	}

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = w
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.watchers, id)
		close(w.ch)
		m.mu.Unlock()
	}()

	return w.ch, nil
}

// notifyLocked blocks on slow watchers until they read or their context ends.
func (m *Memory) notifyLocked(ev Event) {
	for _, w := range m.watchers {
		if !HasPrefix(ev.Key, w.prefix) {
			continue
		}
		select {
		case w.ch <- ev:
		case <-w.done:
		}
	}
}

func (m *Memory) Close() error {
	return nil
}
