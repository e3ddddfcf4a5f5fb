//go:build cgo

package vulkan

import (
	"fmt"
	"sync"

	"github.com/celer/vkc"
	vk "github.com/vulkan-go/vulkan"
)

// DescriptorSet is a binding of resources to a descriptor, per a specific DescriptorSetLayout.
// As a vkc.ResourceSet it owns the pool it was allocated from.
type DescriptorSet struct {
	Device               *Device
	DescriptorPool       *DescriptorPool
	Pipeline             *ComputePipeline
	Set                  int
	VKDescriptorSet      vk.DescriptorSet
	VKWriteDiscriptorSet []vk.WriteDescriptorSet

	once sync.Once
}

// AddBuffer adds a specific buffer to this descriptor set
func (du *DescriptorSet) AddBuffer(dstBinding int, dtype vk.DescriptorType, b *Buffer, offset int) {
	var writeDescriptorSet = vk.WriteDescriptorSet{}
	writeDescriptorSet.SType = vk.StructureTypeWriteDescriptorSet
	writeDescriptorSet.DstSet = du.VKDescriptorSet
	writeDescriptorSet.DstBinding = uint32(dstBinding)
	writeDescriptorSet.DescriptorCount = 1
	writeDescriptorSet.DescriptorType = dtype
	writeDescriptorSet.PBufferInfo = []vk.DescriptorBufferInfo{b.DSInfo(offset)}

	du.VKWriteDiscriptorSet = append(du.VKWriteDiscriptorSet, writeDescriptorSet)
}

// Write pushes the added descriptors to the device.
func (du *DescriptorSet) Write() {
	vk.UpdateDescriptorSets(du.Device.VKDevice, uint32(len(du.VKWriteDiscriptorSet)), du.VKWriteDiscriptorSet, 0, nil)
}

func (d *Device) CreateResourceSet(desc *vkc.ResourceSetDescriptor) (vkc.ResourceSet, error) {
	p, ok := desc.Pipeline.(*ComputePipeline)
	if !ok || p.Device != d {
		return nil, fmt.Errorf("resource set %q: pipeline belongs to another device", desc.Label)
	}
	slots := p.Layout.InSet(desc.Set)
	if len(slots) == 0 || desc.Set >= len(p.SetLayouts) {
		return nil, fmt.Errorf("resource set %q: layout has no set %d", desc.Label, desc.Set)
	}
	if len(desc.Buffers) != len(slots) {
		return nil, fmt.Errorf("resource set %q: %d buffers for %d bindings", desc.Label, len(desc.Buffers), len(slots))
	}

	type write struct {
		binding int
		dtype   vk.DescriptorType
		buffer  *Buffer
	}
	writes := make([]write, 0, len(desc.Buffers))
	pool := d.NewDescriptorPool()
	for _, bb := range desc.Buffers {
		slot, ok := slots.Lookup(desc.Set, bb.Binding)
		if !ok {
			return nil, fmt.Errorf("resource set %q: layout has no binding %d", desc.Label, bb.Binding)
		}
		if !slot.Kind.IsBuffer() {
			return nil, fmt.Errorf("resource set %q: binding %d is a %s", desc.Label, bb.Binding, slot.Kind)
		}
		buf, ok := bb.Buffer.(*Buffer)
		if !ok || buf.Device != d {
			return nil, fmt.Errorf("resource set %q: buffer at binding %d belongs to another device", desc.Label, bb.Binding)
		}
		if slot.Kind == vkc.KindStorageBuffer && buf.Usage&vkc.BufferUsageStorage == 0 {
			return nil, fmt.Errorf("resource set %q: buffer %q lacks storage usage", desc.Label, buf.Label)
		}
		dtype, err := descriptorType(slot.Kind)
		if err != nil {
			return nil, fmt.Errorf("resource set %q: %w", desc.Label, err)
		}
		pool.AddPoolSize(dtype, 1)
		writes = append(writes, write{binding: bb.Binding, dtype: dtype, buffer: buf})
	}

	if _, err := d.CreateDescriptorPool(pool, 1); err != nil {
		return nil, fmt.Errorf("resource set %q: %w", desc.Label, err)
	}
	ds, err := pool.Allocate(p.SetLayouts[desc.Set])
	if err != nil {
		pool.Destroy()
		return nil, fmt.Errorf("resource set %q: %w", desc.Label, err)
	}
	ds.Pipeline = p
	ds.Set = desc.Set
	for _, w := range writes {
		ds.AddBuffer(w.binding, w.dtype, w.buffer, 0)
	}
	ds.Write()
	return ds, nil
}

func (du *DescriptorSet) Index() int {
	return du.Set
}

// Destroy releases the set together with its pool.
func (du *DescriptorSet) Destroy() {
	du.once.Do(du.DescriptorPool.Destroy)
}
