package source

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"
)

// Disk provides per-mount storage metrics. Every function takes the mount path.
type Disk struct {
	usage func(ctx context.Context, path string) (*disk.UsageStat, error)
}

func NewDisk() *Disk {
	return &Disk{usage: disk.UsageWithContext}
}

func (*Disk) Name() string { return "disk" }

func (d *Disk) Funcs(ctx context.Context) Funcs {
	return Funcs{
		"disk_usage_pct": func(path string) (float64, error) {
			u, err := d.stat(ctx, path)
			if err != nil {
				return 0, err
			}
			return u.UsedPercent / 100, nil
		},
		"available_storage": func(path string) (uint64, error) {
			u, err := d.stat(ctx, path)
			if err != nil {
				return 0, err
			}
			return u.Free, nil
		},
		"total_storage": func(path string) (uint64, error) {
			u, err := d.stat(ctx, path)
			if err != nil {
				return 0, err
			}
			return u.Total, nil
		},
	}
}

func (d *Disk) stat(ctx context.Context, path string) (*disk.UsageStat, error) {
	u, err := d.usage(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("disk usage %s: %w", path, err)
	}
	return u, nil
}
