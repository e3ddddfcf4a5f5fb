//go:build cgo

package vulkan

import (
	"fmt"
	"sync"

	"github.com/celer/vkc"
	vk "github.com/vulkan-go/vulkan"
)

// Buffer is a host visible vkc.Buffer bound to a range of the device's memory arena.
type Buffer struct {
	Device   *Device
	VKBuffer vk.Buffer
	Label    string
	Usage    vkc.BufferUsage

	size   uint64
	memory *MemoryRange
	once   sync.Once
}

func bufferUsage(u vkc.BufferUsage) vk.BufferUsageFlags {
	var flags vk.BufferUsageFlagBits
	if u&vkc.BufferUsageStorage != 0 {
		flags |= vk.BufferUsageStorageBufferBit
	}
	if u&vkc.BufferUsageUniform != 0 {
		flags |= vk.BufferUsageUniformBufferBit
	}
	if u&vkc.BufferUsageTransferSrc != 0 {
		flags |= vk.BufferUsageTransferSrcBit
	}
	if u&vkc.BufferUsageTransferDst != 0 {
		flags |= vk.BufferUsageTransferDstBit
	}
	return vk.BufferUsageFlags(flags)
}

func (d *Device) CreateBuffer(desc *vkc.BufferDescriptor) (vkc.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("buffer %q: size is 0", desc.Label)
	}
	if desc.Usage == 0 {
		return nil, fmt.Errorf("buffer %q: no usage", desc.Label)
	}
	if desc.Memory != vkc.MemoryHostVisible {
		return nil, fmt.Errorf("buffer %q: %s memory is not supported", desc.Label, desc.Memory)
	}

	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       bufferUsage(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}

	var buffer vk.Buffer
	err := vk.Error(vk.CreateBuffer(d.VKDevice, &bufferCreateInfo, nil, &buffer))
	if err != nil {
		return nil, fmt.Errorf("buffer %q: %w", desc.Label, err)
	}

	ret := &Buffer{Device: d, VKBuffer: buffer, Label: desc.Label, Usage: desc.Usage, size: desc.Size}

	ret.memory, err = d.Memory.Allocate(ret.VKMemoryRequirements())
	if err != nil {
		vk.DestroyBuffer(d.VKDevice, buffer, nil)
		return nil, fmt.Errorf("buffer %q: %w", desc.Label, err)
	}
	err = vk.Error(vk.BindBufferMemory(d.VKDevice, buffer, ret.memory.DeviceMemory(), vk.DeviceSize(ret.memory.Offset())))
	if err != nil {
		ret.Destroy()
		return nil, fmt.Errorf("buffer %q: %w", desc.Label, err)
	}
	return ret, nil
}

func (b *Buffer) VKMemoryRequirements() vk.MemoryRequirements {
	var memoryRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.Device.VKDevice, b.VKBuffer, &memoryRequirements)
	memoryRequirements.Deref()
	return memoryRequirements
}

func (b *Buffer) DSInfo(offset int) vk.DescriptorBufferInfo {
	return vk.DescriptorBufferInfo{
		Buffer: b.VKBuffer,
		Offset: vk.DeviceSize(offset),
		Range:  vk.DeviceSize(b.size),
	}
}

func (b *Buffer) Size() uint64 {
	return b.size
}

func (b *Buffer) bounds(offset uint64, n int) error {
	if offset+uint64(n) > b.size {
		return fmt.Errorf("buffer %q: range [%d, %d) exceeds size %d", b.Label, offset, offset+uint64(n), b.size)
	}
	return nil
}

// Write copies data into the mapped memory, the memory is coherent so no flush is needed.
func (b *Buffer) Write(offset uint64, data []byte) error {
	if err := b.bounds(offset, len(data)); err != nil {
		return err
	}
	copy(b.memory.Bytes()[offset:], data)
	return nil
}

func (b *Buffer) Read(offset uint64, dst []byte) error {
	if err := b.bounds(offset, len(dst)); err != nil {
		return err
	}
	copy(dst, b.memory.Bytes()[offset:])
	return nil
}

func (b *Buffer) Destroy() {
	b.once.Do(func() {
		vk.DestroyBuffer(b.Device.VKDevice, b.VKBuffer, nil)
		if b.memory != nil {
			b.Device.Memory.Free(b.memory)
		}
	})
}
