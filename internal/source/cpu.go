package source

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/thingswise/etcdstat/internal/clock"
)

// CPUSampleInterval is the minimum time between two CPU samples.
const CPUSampleInterval = 10 * time.Second

// CPU provides {{cpu}}: overall CPU utilisation as a fraction of 1.
type CPU struct {
	percent func(ctx context.Context) (float64, error)
	now     func() time.Time

	mu      sync.Mutex
	sampled time.Time
	value   float64
	valid   bool
}

func NewCPU() *CPU {
	return &CPU{percent: systemCPUPercent, now: clock.Now}
}

func (*CPU) Name() string { return "cpu" }

func (c *CPU) Funcs(ctx context.Context) Funcs {
	return Funcs{
		"cpu": func() (float64, error) { return c.Usage(ctx) },
	}
}

// Usage returns the cached sample while it is younger than CPUSampleInterval.
func (c *CPU) Usage(ctx context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.valid && now.Sub(c.sampled) <= CPUSampleInterval {
		return c.value, nil
	}

	pct, err := c.percent(ctx)
	if err != nil {
		return 0, err
	}
	c.value = pct / 100
	c.sampled = now
	c.valid = true
	return c.value, nil
}

func systemCPUPercent(ctx context.Context) (float64, error) {
	pcts, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(pcts) == 0 {
		return 0, ErrNoData
	}
	return pcts[0], nil
}
