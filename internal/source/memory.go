package source

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/mem"
)

// Memory provides physical memory metrics.
type Memory struct {
	virtual func(ctx context.Context) (*mem.VirtualMemoryStat, error)
}

func NewMemory() *Memory {
	return &Memory{virtual: mem.VirtualMemoryWithContext}
}

func (*Memory) Name() string { return "memory" }

func (m *Memory) Funcs(ctx context.Context) Funcs {
	return Funcs{
		"memory_usage_pct": func() (float64, error) {
			vm, err := m.stat(ctx)
			if err != nil {
				return 0, err
			}
			return 1 - float64(vm.Available)/float64(vm.Total), nil
		},
		"total_memory": func() (float64, error) {
			vm, err := m.stat(ctx)
			if err != nil {
				return 0, err
			}
			return float64(vm.Total), nil
		},
		"available_memory": func() (float64, error) {
			vm, err := m.stat(ctx)
			if err != nil {
				return 0, err
			}
			return float64(vm.Available), nil
		},
	}
}

func (m *Memory) stat(ctx context.Context) (*mem.VirtualMemoryStat, error) {
	vm, err := m.virtual(ctx)
	if err != nil {
		return nil, fmt.Errorf("virtual memory: %w", err)
	}
	if vm.Total == 0 {
		return nil, fmt.Errorf("%w: total memory is zero", ErrNoData)
	}
	return vm, nil
}
