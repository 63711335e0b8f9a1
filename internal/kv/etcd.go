package kv

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thingswise/etcdstat/internal/clock"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// Etcd is a Store backed by an etcd v3 cluster. Keys written with a TTL are
// attached to a lease; one lease per TTL is shared between writes until less
// than half of its lifetime remains.
type Etcd struct {
	client *clientv3.Client

	mu     sync.Mutex
	leases map[int64]etcdLease
	now    func() time.Time
}

type etcdLease struct {
	id      clientv3.LeaseID
	expires time.Time
}

func DialEtcd(_ context.Context, endpoints []string, dialTimeout time.Duration) (*Etcd, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("kv: connect to etcd %v: %w", endpoints, err)
	}

	return &Etcd{
		client: client,
		leases: make(map[int64]etcdLease),
		now:    clock.Now,
	}, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	secs := int64(math.Ceil(ttl.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (e *Etcd) lease(ctx context.Context, ttl time.Duration) (clientv3.LeaseID, error) {
	secs := ttlSeconds(ttl)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if l, ok := e.leases[secs]; ok && l.expires.Sub(now) > time.Duration(secs)*time.Second/2 {
		return l.id, nil
	}

	resp, err := e.client.Grant(ctx, secs)
	if err != nil {
		return 0, fmt.Errorf("kv: grant %ds lease: %w", secs, err)
	}

	e.leases[secs] = etcdLease{id: resp.ID, expires: now.Add(time.Duration(secs) * time.Second)}
	return resp.ID, nil
}

func (e *Etcd) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	var opts []clientv3.OpOption
	if ttl > 0 {
		id, err := e.lease(ctx, ttl)
		if err != nil {
			return err
		}
		opts = append(opts, clientv3.WithLease(id))
	}

	if _, err := e.client.Put(ctx, key, value, opts...); err != nil {
		return fmt.Errorf("kv: put %s: %w", key, err)
	}
	return nil
}

func (e *Etcd) Append(ctx context.Context, dir, value string, ttl time.Duration) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("kv: generate append key: %w", err)
	}
	key := JoinKey(dir, id.String())
	return key, e.Put(ctx, key, value, ttl)
}

func (e *Etcd) Snapshot(ctx context.Context, prefix string) ([]Entry, error) {
	resp, err := e.client.Get(ctx, prefix,
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend),
	)
	if err != nil {
		return nil, fmt.Errorf("kv: read %s: %w", prefix, err)
	}

	out := make([]Entry, 0, len(resp.Kvs))
	for _, item := range resp.Kvs {
		key := string(item.Key)
		// etcd prefixes are byte prefixes; "/a" also matches "/ab".
		if !HasPrefix(key, prefix) {
			continue
		}
		out = append(out, Entry{Key: key, Value: string(item.Value)})
	}
	return out, nil
}

func (e *Etcd) Watch(ctx context.Context, prefix string) (<-chan Event, error) {
	wch := e.client.Watch(ctx, prefix, clientv3.WithPrefix())
	out := make(chan Event, watchBuffer)

	go func() {
		defer close(out)
		for resp := range wch {
			if resp.Err() != nil {
				return
			}
			for _, ev := range resp.Events {
				key := string(ev.Kv.Key)
				if !HasPrefix(key, prefix) {
					continue
				}
				event := Event{Type: EventPut, Key: key, Value: string(ev.Kv.Value)}
				if ev.Type == clientv3.EventTypeDelete {
					event = Event{Type: EventDelete, Key: key}
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (e *Etcd) Close() error {
	return e.client.Close()
}
