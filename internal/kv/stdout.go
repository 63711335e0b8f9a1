package kv

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Stdout prints every write as "name = value". It cannot be read or watched.
type Stdout struct {
	mu sync.Mutex
	w  io.Writer
}

func NewStdout(w io.Writer) *Stdout {
	return &Stdout{w: w}
}

func (s *Stdout) Put(_ context.Context, key, value string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := fmt.Fprintf(s.w, "%s = %s\n", key, value)
	return err
}

func (s *Stdout) Append(ctx context.Context, dir, value string, ttl time.Duration) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("kv: generate append key: %w", err)
	}
	key := JoinKey(dir, id.String())
	return key, s.Put(ctx, key, value, ttl)
}

func (s *Stdout) Snapshot(context.Context, string) ([]Entry, error) {
	return nil, fmt.Errorf("%w: stdout snapshot", ErrNotSupported)
}

func (s *Stdout) Watch(context.Context, string) (<-chan Event, error) {
	return nil, fmt.Errorf("%w: stdout watch", ErrNotSupported)
}

func (s *Stdout) Close() error {
	return nil
}
