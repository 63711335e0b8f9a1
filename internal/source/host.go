package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/host"
	psnet "github.com/shirou/gopsutil/v4/net"
	"gopkg.in/ini.v1"

	"github.com/thingswise/etcdstat/internal/clock"
)

const (
	// InterfaceCacheTTL bounds how long the network interface table is reused.
	InterfaceCacheTTL = 300 * time.Second

	osReleasePath = "/etc/os-release"
)

// Host provides host identity: addresses, hostname, boot time and OS name.
type Host struct {
	interfaces func(ctx context.Context) (psnet.InterfaceStatList, error)
	info       func(ctx context.Context) (*host.InfoStat, error)
	bootTime   func(ctx context.Context) (uint64, error)
	osRelease  string
	now        func() time.Time
	logger     *slog.Logger

	mu       sync.Mutex
	ifaces   psnet.InterfaceStatList
	ifacesAt time.Time
}

func NewHost(logger *slog.Logger) *Host {
	return &Host{
		interfaces: psnet.InterfacesWithContext,
		info:       host.InfoWithContext,
		bootTime:   host.BootTimeWithContext,
		osRelease:  osReleasePath,
		now:        clock.Now,
		logger:     logger,
	}
}

func (*Host) Name() string { return "host" }

func (h *Host) Funcs(ctx context.Context) Funcs {
	return Funcs{
		"addr": func(device, family string) (string, error) {
			return h.Addr(ctx, device, family)
		},
		"ip": func(device string) (string, error) {
			return h.Addr(ctx, device, "ip")
		},
		"hostname": func() (string, error) {
			info, err := h.info(ctx)
			if err != nil {
				return "", fmt.Errorf("host info: %w", err)
			}
			return info.Hostname, nil
		},
		"boot_time": func() (uint64, error) {
			return h.bootTime(ctx)
		},
		"os_name": func() string {
			return h.OSName(ctx)
		},
	}
}

// Addr returns the first address of device in family: ip (IPv4), ip6 or link
// (hardware address).
func (h *Host) Addr(ctx context.Context, device, family string) (string, error) {
	switch family {
	case "ip", "ip6", "link":
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFamily, family)
	}

	ifaces, err := h.interfaceTable(ctx)
	if err != nil {
		return "", err
	}

	idx := slices.IndexFunc(ifaces, func(i psnet.InterfaceStat) bool { return i.Name == device })
	if idx < 0 {
		return "", fmt.Errorf("%w: %s", ErrUnknownDevice, device)
	}
	iface := ifaces[idx]

	if family == "link" {
		if iface.HardwareAddr == "" {
			return "", fmt.Errorf("%w: device %s has no link address", ErrNoAddress, device)
		}
		return iface.HardwareAddr, nil
	}

	for _, a := range iface.Addrs {
		addr, ok := parseInterfaceAddr(a.Addr)
		if ok && (family == "ip") == addr.Is4() {
			return addr.String(), nil
		}
	}
	return "", fmt.Errorf("%w: device %s has no %s address", ErrNoAddress, device, family)
}

func (h *Host) interfaceTable(ctx context.Context) (psnet.InterfaceStatList, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	if h.ifaces != nil && now.Sub(h.ifacesAt) <= InterfaceCacheTTL {
		return h.ifaces, nil
	}

	ifaces, err := h.interfaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("network interfaces: %w", err)
	}
	h.ifaces = ifaces
	h.ifacesAt = now
	return ifaces, nil
}

// OSName returns PRETTY_NAME from os-release, falling back to the platform
// reported by the kernel. Failures are logged and yield "".
func (h *Host) OSName(ctx context.Context) string {
	if f, err := ini.Load(h.osRelease); err == nil {
		if name := f.Section(ini.DefaultSection).Key("PRETTY_NAME").String(); name != "" {
			return name
		}
	}

	info, err := h.info(ctx)
	if err != nil {
		if h.logger != nil {
			h.logger.ErrorContext(ctx, "os name unavailable", "error", err)
		}
		return ""
	}
	return strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
}

// parseInterfaceAddr accepts "10.0.0.1/24" as well as a bare address.
func parseInterfaceAddr(s string) (netip.Addr, bool) {
	if p, err := netip.ParsePrefix(s); err == nil {
		return p.Addr(), true
	}
	a, err := netip.ParseAddr(s)
	return a, err == nil
}
