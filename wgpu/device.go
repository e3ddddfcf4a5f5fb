//go:build !cgo

package wgpu

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/celer/vkc"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// readbackTimeout bounds the copy into a staging buffer done by Buffer.Read.
const readbackTimeout = 30 * time.Second

// Device is a vkc.Device on a hal device. Encoding and submission are serialized by mu.
type Device struct {
	device hal.Device
	family *vkc.QueueFamily
	queue  *Queue

	mu sync.Mutex
}

func (d *Device) Queue() vkc.Queue {
	return d.queue
}

func (d *Device) Destroy() {
	d.device.Destroy()
}

func bufferUsage(u vkc.BufferUsage) gputypes.BufferUsage {
	// writes go through the queue and reads through a staging copy
	usage := gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	if u&vkc.BufferUsageStorage != 0 {
		usage |= gputypes.BufferUsageStorage
	}
	if u&vkc.BufferUsageUniform != 0 {
		usage |= gputypes.BufferUsageUniform
	}
	return usage
}

// Buffer is a vkc.Buffer. The device copies it to a mappable staging buffer to read it back.
type Buffer struct {
	device *Device
	buffer hal.Buffer
	label  string
	usage  vkc.BufferUsage
	size   uint64
	once   sync.Once
}

func (d *Device) CreateBuffer(desc *vkc.BufferDescriptor) (vkc.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("buffer %q: size is 0", desc.Label)
	}
	if desc.Usage == 0 {
		return nil, fmt.Errorf("buffer %q: no usage", desc.Label)
	}
	if desc.Memory != vkc.MemoryHostVisible {
		return nil, fmt.Errorf("buffer %q: only host visible memory is supported", desc.Label)
	}
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  alignUp4(desc.Size),
		Usage: bufferUsage(desc.Usage),
	})
	if err != nil {
		return nil, fmt.Errorf("buffer %q: %w", desc.Label, err)
	}
	return &Buffer{device: d, buffer: buf, label: desc.Label, usage: desc.Usage, size: desc.Size}, nil
}

func alignUp4(n uint64) uint64 {
	return (n + 3) &^ 3
}

func (b *Buffer) Size() uint64 {
	return b.size
}

func (b *Buffer) bounds(offset uint64, n int) error {
	if offset+uint64(n) > b.size {
		return fmt.Errorf("buffer %q: range [%d, %d) exceeds size %d", b.label, offset, offset+uint64(n), b.size)
	}
	if offset%4 != 0 {
		return fmt.Errorf("buffer %q: offset %d is not 4 byte aligned", b.label, offset)
	}
	return nil
}

func (b *Buffer) Write(offset uint64, data []byte) error {
	if err := b.bounds(offset, len(data)); err != nil {
		return err
	}
	if len(data)%4 != 0 {
		padded := make([]byte, alignUp4(uint64(len(data))))
		copy(padded, data)
		data = padded
	}
	b.device.mu.Lock()
	defer b.device.mu.Unlock()
	if err := b.device.queue.queue.WriteBuffer(b.buffer, offset, data); err != nil {
		return fmt.Errorf("buffer %q: write: %w", b.label, err)
	}
	return nil
}

// Read copies the range into a staging buffer, waits for the copy and maps the staging buffer.
func (b *Buffer) Read(offset uint64, dst []byte) error {
	if err := b.bounds(offset, len(dst)); err != nil {
		return err
	}
	if len(dst) == 0 {
		return nil
	}
	size := alignUp4(uint64(len(dst)))
	d := b.device

	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: b.label + "_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("buffer %q: create staging buffer: %w", b.label, err)
	}
	// a copy that timed out may still write into staging
	pending := false
	defer func() {
		if !pending {
			d.device.DestroyBuffer(staging)
		}
	}()

	cmdBuf, index, err := b.copyTo(staging, offset, size)
	if err != nil {
		return err
	}
	ok, err := d.queue.waitFor(index, readbackTimeout)
	if err != nil {
		return fmt.Errorf("buffer %q: wait for readback: %w", b.label, err)
	}
	if !ok {
		pending = true
		return fmt.Errorf("buffer %q: readback not done after %s", b.label, readbackTimeout)
	}
	d.free(cmdBuf)

	m, err := d.device.MapBuffer(staging, 0, size)
	if err != nil {
		return fmt.Errorf("buffer %q: map staging buffer: %w", b.label, err)
	}
	copy(dst, unsafe.Slice((*byte)(m.Ptr), size))
	if err := d.device.UnmapBuffer(staging); err != nil {
		return fmt.Errorf("buffer %q: unmap staging buffer: %w", b.label, err)
	}
	return nil
}

// copyTo submits a copy of size bytes at offset into staging and returns the command buffer
// with its submission index.
func (b *Buffer) copyTo(staging hal.Buffer, offset, size uint64) (hal.CommandBuffer, uint64, error) {
	d := b.device
	d.mu.Lock()
	defer d.mu.Unlock()

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: b.label + "_readback"})
	if err != nil {
		return nil, 0, fmt.Errorf("buffer %q: create command encoder: %w", b.label, err)
	}
	if err := encoder.BeginEncoding("readback"); err != nil {
		return nil, 0, fmt.Errorf("buffer %q: begin encoding: %w", b.label, err)
	}
	encoder.CopyBufferToBuffer(b.buffer, staging, []hal.BufferCopy{
		{SrcOffset: offset, DstOffset: 0, Size: size},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, 0, fmt.Errorf("buffer %q: end encoding: %w", b.label, err)
	}
	index, err := d.queue.queue.Submit([]hal.CommandBuffer{cmdBuf})
	if err != nil {
		d.device.FreeCommandBuffer(cmdBuf)
		return nil, 0, fmt.Errorf("buffer %q: submit readback: %w", b.label, err)
	}
	return cmdBuf, index, nil
}

func (d *Device) free(cmdBuf hal.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.device.FreeCommandBuffer(cmdBuf)
}

func (b *Buffer) Destroy() {
	b.once.Do(func() {
		b.device.device.DestroyBuffer(b.buffer)
	})
}

func bindingType(k vkc.ResourceKind) (gputypes.BufferBindingType, error) {
	switch k {
	case vkc.KindStorageBuffer:
		return gputypes.BufferBindingTypeStorage, nil
	case vkc.KindUniformBuffer:
		return gputypes.BufferBindingTypeUniform, nil
	default:
		return 0, fmt.Errorf("%s bindings are not supported", k)
	}
}

// Pipeline is a vkc.Pipeline, it owns the shader module and the layouts it was created with.
type Pipeline struct {
	device         *Device
	entry          *vkc.EntryPoint
	layout         vkc.ResourceLayout
	shader         hal.ShaderModule
	groupLayouts   []hal.BindGroupLayout
	pipelineLayout hal.PipelineLayout
	pipeline       hal.ComputePipeline
	once           sync.Once
}

func (d *Device) CreatePipeline(desc *vkc.PipelineDescriptor) (vkc.Pipeline, error) {
	ep := desc.EntryPoint
	if ep == nil || ep.Model != vkc.ExecutionModelGLCompute {
		return nil, fmt.Errorf("pipeline %q: %w", desc.Label, vkc.ErrEntryPointNotFound)
	}
	layout := desc.Layout
	if layout == nil {
		layout = ep.Layout
	}

	p := &Pipeline{device: d, entry: ep, layout: layout}
	fail := func(err error) (vkc.Pipeline, error) {
		p.Destroy()
		return nil, fmt.Errorf("pipeline %q: %w", desc.Label, err)
	}

	var err error
	p.shader, err = d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{SPIRV: desc.Kernel.Words},
	})
	if err != nil {
		return fail(fmt.Errorf("create shader module: %w", err))
	}

	if sets := layout.Sets(); len(sets) > 0 {
		for set := 0; set <= sets[len(sets)-1]; set++ {
			entries := make([]gputypes.BindGroupLayoutEntry, 0)
			for _, slot := range layout.InSet(set) {
				bt, err := bindingType(slot.Kind)
				if err != nil {
					return fail(err)
				}
				entries = append(entries, gputypes.BindGroupLayoutEntry{
					Binding:    uint32(slot.Binding),
					Visibility: gputypes.ShaderStageCompute,
					Buffer:     &gputypes.BufferBindingLayout{Type: bt},
				})
			}
			bgl, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
				Label:   fmt.Sprintf("%s_set%d", desc.Label, set),
				Entries: entries,
			})
			if err != nil {
				return fail(fmt.Errorf("create bind group layout %d: %w", set, err))
			}
			p.groupLayouts = append(p.groupLayouts, bgl)
		}
	}

	p.pipelineLayout, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: p.groupLayouts,
	})
	if err != nil {
		return fail(fmt.Errorf("create pipeline layout: %w", err))
	}

	p.pipeline, err = d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   desc.Label,
		Layout:  p.pipelineLayout,
		Compute: hal.ComputeState{Module: p.shader, EntryPoint: ep.Name},
	})
	if err != nil {
		return fail(fmt.Errorf("create compute pipeline: %w", err))
	}
	return p, nil
}

func (p *Pipeline) EntryPoint() *vkc.EntryPoint {
	return p.entry
}

func (p *Pipeline) Destroy() {
	p.once.Do(func() {
		dev := p.device.device
		if p.pipeline != nil {
			dev.DestroyComputePipeline(p.pipeline)
		}
		if p.pipelineLayout != nil {
			dev.DestroyPipelineLayout(p.pipelineLayout)
		}
		for _, bgl := range p.groupLayouts {
			dev.DestroyBindGroupLayout(bgl)
		}
		if p.shader != nil {
			dev.DestroyShaderModule(p.shader)
		}
	})
}

// ResourceSet is a vkc.ResourceSet backed by a bind group.
type ResourceSet struct {
	device   *Device
	pipeline *Pipeline
	index    int
	group    hal.BindGroup
	once     sync.Once
}

func (d *Device) CreateResourceSet(desc *vkc.ResourceSetDescriptor) (vkc.ResourceSet, error) {
	p, ok := desc.Pipeline.(*Pipeline)
	if !ok || p.device != d {
		return nil, fmt.Errorf("resource set %q: pipeline belongs to another device", desc.Label)
	}
	slots := p.layout.InSet(desc.Set)
	if len(slots) == 0 || desc.Set >= len(p.groupLayouts) {
		return nil, fmt.Errorf("resource set %q: layout has no set %d", desc.Label, desc.Set)
	}
	if len(desc.Buffers) != len(slots) {
		return nil, fmt.Errorf("resource set %q: %d buffers for %d bindings", desc.Label, len(desc.Buffers), len(slots))
	}

	entries := make([]gputypes.BindGroupEntry, 0, len(desc.Buffers))
	for _, bb := range desc.Buffers {
		slot, ok := slots.Lookup(desc.Set, bb.Binding)
		if !ok {
			return nil, fmt.Errorf("resource set %q: layout has no binding %d", desc.Label, bb.Binding)
		}
		if !slot.Kind.IsBuffer() {
			return nil, fmt.Errorf("resource set %q: binding %d is a %s", desc.Label, bb.Binding, slot.Kind)
		}
		buf, ok := bb.Buffer.(*Buffer)
		if !ok || buf.device != d {
			return nil, fmt.Errorf("resource set %q: buffer at binding %d belongs to another device", desc.Label, bb.Binding)
		}
		if slot.Kind == vkc.KindStorageBuffer && buf.usage&vkc.BufferUsageStorage == 0 {
			return nil, fmt.Errorf("resource set %q: buffer %q lacks storage usage", desc.Label, buf.label)
		}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(bb.Binding),
			Resource: gputypes.BufferBinding{Buffer: buf.buffer.NativeHandle(), Offset: 0, Size: alignUp4(buf.size)},
		})
	}

	group, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  p.groupLayouts[desc.Set],
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("resource set %q: %w", desc.Label, err)
	}
	return &ResourceSet{device: d, pipeline: p, index: desc.Set, group: group}, nil
}

func (s *ResourceSet) Index() int {
	return s.index
}

func (s *ResourceSet) Destroy() {
	s.once.Do(func() {
		s.device.device.DestroyBindGroup(s.group)
	})
}

// CreateQueryPool always fails, the hal layer has no timestamp queries.
func (d *Device) CreateQueryPool(count int) (vkc.QueryPool, error) {
	return nil, fmt.Errorf("%w: wgpu backend", vkc.ErrTimestampsUnsupported)
}
