package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/mitsuhiko/minijinja/minijinja-go/v2/value"
)

var (
	ErrUnknownProperty = errors.New("unknown unit property")
	ErrNoControlGroup  = errors.New("unit has no control group")
	ErrUnknownAction   = errors.New("unsupported unit action")
	ErrJobFailed       = errors.New("unit job failed")
)

const defaultCgroupRoot = "/sys/fs/cgroup"

// UnitBus is the subset of the systemd D-Bus API used by units.
type UnitBus interface {
	GetUnitPropertiesContext(ctx context.Context, unit string) (map[string]any, error)
	GetUnitTypePropertiesContext(ctx context.Context, unit, unitType string) (map[string]any, error)
	StartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	StopUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	RestartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	Close()
}

// Systemd provides {{ unit("name.service") }}. The system bus is dialed on
// first use and kept open.
type Systemd struct {
	dial       func(ctx context.Context) (UnitBus, error)
	procs      *ProcessCache
	cgroupRoot string

	mu  sync.Mutex
	bus UnitBus
}

func NewSystemd(procs *ProcessCache) *Systemd {
	return &Systemd{dial: dialSystemBus, procs: procs, cgroupRoot: defaultCgroupRoot}
}

func (*Systemd) Name() string { return "systemd" }

func (s *Systemd) Funcs(ctx context.Context) Funcs {
	return Funcs{
		"unit": func(name string) (*Unit, error) { return s.Unit(ctx, name) },
	}
}

// Unit returns a handle on the named unit. Properties are read on demand.
func (s *Systemd) Unit(ctx context.Context, name string) (*Unit, error) {
	bus, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	return &Unit{ctx: ctx, name: name, bus: bus, sys: s}, nil
}

func (s *Systemd) connect(ctx context.Context) (UnitBus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bus != nil {
		return s.bus, nil
	}
	bus, err := s.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to systemd: %w", err)
	}
	s.bus = bus
	return bus, nil
}

func (s *Systemd) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bus != nil {
		s.bus.Close()
		s.bus = nil
	}
	return nil
}

func dialSystemBus(ctx context.Context) (UnitBus, error) {
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Unit is a systemd unit as seen from a template.
type Unit struct {
	ctx  context.Context
	name string
	bus  UnitBus
	sys  *Systemd
}

func (u *Unit) Name() string {
	return u.name
}

// Properties returns all org.freedesktop.systemd1.Unit properties.
func (u *Unit) Properties() (map[string]any, error) {
	props, err := u.bus.GetUnitPropertiesContext(u.ctx, u.name)
	if err != nil {
		return nil, fmt.Errorf("unit %s properties: %w", u.name, err)
	}
	return props, nil
}

func (u *Unit) Property(name string) (any, error) {
	props, err := u.Properties()
	if err != nil {
		return nil, err
	}
	v, ok := props[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownProperty, u.name, name)
	}
	return v, nil
}

// CGroup returns the control group of a service unit.
func (u *Unit) CGroup() (*CGroup, error) {
	props, err := u.bus.GetUnitTypePropertiesContext(u.ctx, u.name, "Service")
	if err != nil {
		return nil, fmt.Errorf("unit %s service properties: %w", u.name, err)
	}
	path, _ := props["ControlGroup"].(string)
	if path == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoControlGroup, u.name)
	}
	return &CGroup{ctx: u.ctx, path: path, root: u.sys.cgroupRoot, procs: u.sys.procs}, nil
}

// Handle runs start, stop or restart in "replace" mode and waits for the job.
func (u *Unit) Handle(action string) (string, error) {
	var run func(context.Context, string, string, chan<- string) (int, error)
	switch action {
	case "start":
		run = u.bus.StartUnitContext
	case "stop":
		run = u.bus.StopUnitContext
	case "restart":
		run = u.bus.RestartUnitContext
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	done := make(chan string, 1)
	if _, err := run(u.ctx, u.name, "replace", done); err != nil {
		return "", fmt.Errorf("%s %s: %w", action, u.name, err)
	}

	select {
	case result := <-done:
		if result != "done" {
			return result, fmt.Errorf("%w: %s %s: %s", ErrJobFailed, action, u.name, result)
		}
		return result, nil
	case <-u.ctx.Done():
		return "", u.ctx.Err()
	}
}

// GetAttr exposes name, properties and cgroup to templates. Read failures
// are reported to the rendering Env and yield undefined.
func (u *Unit) GetAttr(name string) value.Value {
	switch name {
	case "name":
		return value.FromString(u.name)
	case "properties":
		props, err := u.Properties()
		if err != nil {
			report(u.ctx, err)
			return value.Undefined()
		}
		return value.FromAny(props)
	case "cgroup":
		cg, err := u.CGroup()
		if err != nil {
			report(u.ctx, err)
			return value.Undefined()
		}
		return value.FromObject(cg)
	}
	return value.Undefined()
}

// CallMethod implements unit.handle(action) and unit.property(name).
func (u *Unit) CallMethod(_ value.State, name string, args []value.Value, _ map[string]value.Value) (value.Value, error) {
	var fn any
	switch name {
	case "handle":
		fn = u.Handle
	case "property":
		fn = u.Property
	default:
		return value.Undefined(), value.ErrUnknownMethod
	}
	return invoke(name, reflect.ValueOf(fn), args)
}

// CGroup aggregates resource usage of every process in a control group.
type CGroup struct {
	ctx   context.Context
	path  string
	root  string
	procs *ProcessCache
}

func (c *CGroup) Path() string {
	return c.path
}

// PIDs reads cgroup.procs from the legacy systemd hierarchy, falling back to
// the unified hierarchy.
func (c *CGroup) PIDs() ([]int32, error) {
	candidates := []string{
		filepath.Join(c.root, "systemd", c.path, "cgroup.procs"),
		filepath.Join(c.root, c.path, "cgroup.procs"),
	}

	var lastErr error
	for _, p := range candidates {
		pids, err := readPIDs(p)
		if err == nil {
			return pids, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("cgroup %s: %w", c.path, lastErr)
}

// CPUTimePct is the summed CPU share of the group's processes since their
// previous sample, as a fraction of one core.
func (c *CGroup) CPUTimePct() (float64, error) {
	pids, err := c.PIDs()
	if err != nil {
		return 0, err
	}

	var total float64
	for _, pid := range pids {
		h, err := c.procs.Get(c.ctx, pid)
		if err != nil {
			continue
		}
		pct, err := h.PercentWithContext(c.ctx, 0)
		if err != nil {
			c.procs.Forget(pid)
			continue
		}
		total += pct
	}
	return total / 100, nil
}

// RSS is the summed resident set size of the group's processes in bytes.
func (c *CGroup) RSS() (uint64, error) {
	pids, err := c.PIDs()
	if err != nil {
		return 0, err
	}

	var total uint64
	for _, pid := range pids {
		h, err := c.procs.Get(c.ctx, pid)
		if err != nil {
			continue
		}
		mi, err := h.MemoryInfoWithContext(c.ctx)
		if err != nil {
			c.procs.Forget(pid)
			continue
		}
		total += mi.RSS
	}
	return total, nil
}

func (c *CGroup) GetAttr(name string) value.Value {
	var (
		v   any
		err error
	)
	switch name {
	case "path":
		return value.FromString(c.path)
	case "pids":
		v, err = c.PIDs()
	case "cpu_time_pct":
		v, err = c.CPUTimePct()
	case "rss":
		v, err = c.RSS()
	default:
		return value.Undefined()
	}
	if err != nil {
		report(c.ctx, err)
		return value.Undefined()
	}
	return value.FromAny(v)
}

func readPIDs(path string) ([]int32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pids []int32
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		pid, err := strconv.ParseInt(line, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%s: bad pid %q", path, line)
		}
		pids = append(pids, int32(pid))
	}
	return pids, sc.Err()
}
