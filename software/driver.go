// Package software is a host emulation of a compute device. Kernels are not interpreted, the
// entry point names of a kernel are mapped to Go functions registered on the driver, which the
// device runs once per invocation. Everything else (resource validation, one-time submission,
// fences, timestamp queries) behaves like a real device so the whole pipeline can run without
// a GPU.
package software

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/celer/vkc"
)

// AdapterConfig describes one emulated adapter.
type AdapterConfig struct {
	Name     string
	Families []vkc.QueueFamily
	// TimestampPeriod in nanoseconds, zero disables timestamp queries.
	TimestampPeriod float32
	// MaxBufferSize is the largest buffer the adapter can allocate, zero is unlimited.
	MaxBufferSize uint64
}

// DefaultAdapter is a device with a graphics family and two compute families, only the first
// of which can write timestamps.
func DefaultAdapter() AdapterConfig {
	return AdapterConfig{
		Name: "vkc software device",
		Families: []vkc.QueueFamily{
			{Index: 0, Flags: vkc.QueueGraphics | vkc.QueueTransfer, QueueCount: 1, TimestampValidBits: 64},
			{Index: 1, Flags: vkc.QueueCompute | vkc.QueueTransfer, QueueCount: 4, TimestampValidBits: 64},
			{Index: 2, Flags: vkc.QueueCompute, QueueCount: 2},
		},
		TimestampPeriod: 1,
	}
}

// Options configure a Driver.
type Options struct {
	// Adapters defaults to a single DefaultAdapter. Set it to an empty non nil slice for a
	// driver without adapters.
	Adapters []AdapterConfig
	// Workers is the number of workgroups run concurrently, GOMAXPROCS when zero.
	Workers int
	// Gate, when set, holds back execution of every submission until it is closed.
	Gate <-chan struct{}
}

// Driver is the software driver. Kernel implementations are registered by entry point name.
type Driver struct {
	opts Options

	mu      sync.RWMutex
	kernels map[string]KernelFunc
}

func New(opts Options) *Driver {
	if opts.Adapters == nil {
		opts.Adapters = []AdapterConfig{DefaultAdapter()}
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Driver{opts: opts, kernels: make(map[string]KernelFunc)}
}

// Register makes fn the implementation of every entry point called entry.
func (d *Driver) Register(entry string, fn KernelFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kernels[entry] = fn
}

func (d *Driver) kernel(entry string) (KernelFunc, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn, ok := d.kernels[entry]
	return fn, ok
}

func (d *Driver) Name() string {
	return "software"
}

func (d *Driver) Adapters() ([]vkc.Adapter, error) {
	ret := make([]vkc.Adapter, len(d.opts.Adapters))
	for i, cfg := range d.opts.Adapters {
		ret[i] = &adapter{driver: d, cfg: cfg}
	}
	return ret, nil
}

func (d *Driver) Destroy() {}

type adapter struct {
	driver *Driver
	cfg    AdapterConfig
}

func (a *adapter) Name() string {
	return a.cfg.Name
}

func (a *adapter) QueueFamilies() (vkc.QueueFamilySlice, error) {
	ret := make(vkc.QueueFamilySlice, len(a.cfg.Families))
	for i := range a.cfg.Families {
		f := a.cfg.Families[i]
		ret[i] = &f
	}
	return ret, nil
}

func (a *adapter) TimestampPeriod() float32 {
	return a.cfg.TimestampPeriod
}

func (a *adapter) CreateDevice(family *vkc.QueueFamily) (vkc.Device, error) {
	for _, f := range a.cfg.Families {
		if f.Index != family.Index {
			continue
		}
		if f.QueueCount < 1 {
			return nil, fmt.Errorf("queue family %d has no queues", f.Index)
		}
		dev := newDevice(a, f)
		return dev, nil
	}
	return nil, fmt.Errorf("adapter %s has no queue family %d", a.cfg.Name, family.Index)
}
