//go:build !cgo

// Package wgpu implements the vkc backend interfaces on the gogpu/wgpu hardware abstraction
// layer, a pure Go path to Vulkan. The layer loads Vulkan through goffi, which refuses cgo
// builds, so the package only builds with CGO_ENABLED=0.
//
// The layer exposes a single queue per device, so adapters report one compute family without
// timestamp support and dispatches run untimed. Fences are submission indices polled against
// the queue. Buffers live in host visible memory and are read back through a mapped staging
// copy.
package wgpu

import (
	"fmt"

	"github.com/celer/vkc"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// registers the Vulkan backend
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// Options configures the driver.
type Options struct {
	// PreferGPU lists discrete and integrated GPUs ahead of the other adapters. Off, adapters
	// keep the order the driver enumerates them in.
	PreferGPU bool
}

// Driver is a hal instance of the Vulkan backend.
type Driver struct {
	instance hal.Instance
	opts     Options
}

func New(opts Options) (*Driver, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("wgpu: vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}
	return &Driver{instance: instance, opts: opts}, nil
}

func (d *Driver) Name() string {
	return "wgpu"
}

// Adapters lists the adapters in enumeration order, or GPUs first with Options.PreferGPU.
func (d *Driver) Adapters() ([]vkc.Adapter, error) {
	return adapters(d.instance.EnumerateAdapters(nil), d.opts.PreferGPU), nil
}

func adapters(exposed []hal.ExposedAdapter, preferGPU bool) []vkc.Adapter {
	ret := make([]vkc.Adapter, 0, len(exposed))
	for i := range exposed {
		if !preferGPU || isGPU(exposed[i].Info.DeviceType) {
			ret = append(ret, &Adapter{exposed: exposed[i]})
		}
	}
	if preferGPU {
		for i := range exposed {
			if !isGPU(exposed[i].Info.DeviceType) {
				ret = append(ret, &Adapter{exposed: exposed[i]})
			}
		}
	}
	return ret
}

func isGPU(t gputypes.DeviceType) bool {
	return t == gputypes.DeviceTypeDiscreteGPU || t == gputypes.DeviceTypeIntegratedGPU
}

func (d *Driver) Destroy() {
	d.instance.Destroy()
}

// Adapter is a vkc.Adapter for one exposed hal adapter.
type Adapter struct {
	exposed hal.ExposedAdapter
}

func (a *Adapter) Name() string {
	return a.exposed.Info.Name
}

// DeviceType is the adapter kind as reported by the driver.
func (a *Adapter) DeviceType() string {
	return fmt.Sprint(a.exposed.Info.DeviceType)
}

// computeFamily is the only family a hal device exposes.
var computeFamily = vkc.QueueFamily{
	Index:      0,
	Flags:      vkc.QueueCompute | vkc.QueueTransfer,
	QueueCount: 1,
}

func (a *Adapter) QueueFamilies() (vkc.QueueFamilySlice, error) {
	family := computeFamily
	return vkc.QueueFamilySlice{&family}, nil
}

func (a *Adapter) TimestampPeriod() float32 {
	return 0
}

func (a *Adapter) CreateDevice(family *vkc.QueueFamily) (vkc.Device, error) {
	if family.Index != computeFamily.Index {
		return nil, fmt.Errorf("wgpu: adapter has no queue family %d", family.Index)
	}
	open, err := a.exposed.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return nil, fmt.Errorf("wgpu: open device: %w", err)
	}
	d := &Device{device: open.Device, family: family}
	d.queue = &Queue{device: d, queue: open.Queue}
	vkc.Logger().WithField("adapter", a.Name()).Debug("wgpu device opened")
	return d, nil
}
