package source

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shirou/gopsutil/v4/process"
)

// DefaultProcessCacheSize is the number of process handles kept between samples.
const DefaultProcessCacheSize = 5000

// ProcessHandle is the per-process sampling surface used by CGroup.
type ProcessHandle interface {
	PercentWithContext(ctx context.Context, interval time.Duration) (float64, error)
	MemoryInfoWithContext(ctx context.Context) (*process.MemoryInfoStat, error)
}

// ProcessCache memoises process handles by pid. CPU percentages are computed
// against the previous sample of the same handle, so a handle seen for the
// first time, including one re-opened after eviction, reports 0.
type ProcessCache struct {
	cache *lru.Cache[int32, ProcessHandle]
	open  func(ctx context.Context, pid int32) (ProcessHandle, error)
}

func NewProcessCache(size int) (*ProcessCache, error) {
	if size <= 0 {
		size = DefaultProcessCacheSize
	}
	cache, err := lru.New[int32, ProcessHandle](size)
	if err != nil {
		return nil, err
	}
	return &ProcessCache{cache: cache, open: openProcess}, nil
}

// Get returns the cached handle for pid, opening it on a miss.
func (c *ProcessCache) Get(ctx context.Context, pid int32) (ProcessHandle, error) {
	if h, ok := c.cache.Get(pid); ok {
		return h, nil
	}
	h, err := c.open(ctx, pid)
	if err != nil {
		return nil, err
	}
	c.cache.Add(pid, h)
	return h, nil
}

// Forget drops pid, typically after the process exited.
func (c *ProcessCache) Forget(pid int32) {
	c.cache.Remove(pid)
}

func (c *ProcessCache) Len() int {
	return c.cache.Len()
}

func openProcess(ctx context.Context, pid int32) (ProcessHandle, error) {
	return process.NewProcessWithContext(ctx, pid)
}
