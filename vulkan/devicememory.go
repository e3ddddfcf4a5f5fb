//go:build cgo

package vulkan

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/celer/vkc"
	vk "github.com/vulkan-go/vulkan"
)

// DefaultBlockSize is the size of the blocks small buffers are sub allocated from.
const DefaultBlockSize = 64 << 20

// DeviceMemory maps to Vulkan DeviceMemory and can either be memory on the host or on the device
type DeviceMemory struct {
	Device         *Device
	VKDeviceMemory vk.DeviceMemory
	Size           uint64
	MapCount       int32
	Ptr            unsafe.Pointer
}

// IsMapped returns true if the device memory is currently mapped
func (d *DeviceMemory) IsMapped() bool {
	return atomic.LoadInt32(&d.MapCount) > 0
}

// Destroy frees this memory, unmapping it first if needed
func (d *DeviceMemory) Destroy() {
	if d.IsMapped() {
		d.Unmap()
	}
	vk.FreeMemory(d.Device.VKDevice, d.VKDeviceMemory, nil)
}

// Map will map the entirety of this memory
func (d *DeviceMemory) Map() (unsafe.Pointer, error) {
	var res unsafe.Pointer
	err := vk.Error(vk.MapMemory(d.Device.VKDevice, d.VKDeviceMemory, 0, vk.DeviceSize(d.Size), 0, &res))
	if err != nil {
		return nil, err
	}
	atomic.AddInt32(&d.MapCount, 1)
	d.Ptr = res
	return res, nil
}

// Unmap this memory
func (d *DeviceMemory) Unmap() {
	d.Ptr = nil
	vk.UnmapMemory(d.Device.VKDevice, d.VKDeviceMemory)
	atomic.AddInt32(&d.MapCount, -1)
}

// Bytes returns the mapped range [offset, offset+size).
func (d *DeviceMemory) Bytes(offset, size uint64) []byte {
	return ToBytes(unsafe.Add(d.Ptr, offset), int(size))
}

// memoryBlock is a persistently mapped allocation that buffers are carved out of.
type memoryBlock struct {
	memory    *DeviceMemory
	typeIndex uint32
	allocator LinearAllocator
	dedicated bool
}

// MemoryRange is a buffer's slice of a block.
type MemoryRange struct {
	block      *memoryBlock
	allocation *Allocation
}

func (r *MemoryRange) DeviceMemory() vk.DeviceMemory {
	return r.block.memory.VKDeviceMemory
}

func (r *MemoryRange) Offset() uint64 {
	return r.allocation.Offset
}

// Bytes returns the mapped bytes of the range.
func (r *MemoryRange) Bytes() []byte {
	return r.block.memory.Bytes(r.allocation.Offset, r.allocation.Size)
}

// MemoryArena sub allocates host visible, host coherent memory. Requests larger than the block
// size get a dedicated block which is freed with the range.
type MemoryArena struct {
	device    *Device
	blockSize uint64

	mu     sync.Mutex
	blocks []*memoryBlock
}

func NewMemoryArena(device *Device, blockSize uint64) *MemoryArena {
	return &MemoryArena{device: device, blockSize: blockSize}
}

const hostMemory = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit

// Allocate finds room for a resource with the given requirements.
func (m *MemoryArena) Allocate(req vk.MemoryRequirements) (*MemoryRange, error) {
	typeIndex, err := m.device.PhysicalDevice.FindMemoryType(req.MemoryTypeBits, hostMemory)
	if err != nil {
		return nil, err
	}
	size, align := uint64(req.Size), uint64(req.Alignment)

	m.mu.Lock()
	defer m.mu.Unlock()

	if size <= m.blockSize {
		for _, b := range m.blocks {
			if b.dedicated || b.typeIndex != typeIndex {
				continue
			}
			if a := b.allocator.Allocate(size, align); a != nil {
				return &MemoryRange{block: b, allocation: a}, nil
			}
		}
	}

	blockSize, dedicated := m.blockSize, false
	if size > m.blockSize {
		blockSize, dedicated = size, true
	}
	b, err := m.newBlock(typeIndex, blockSize)
	if err != nil {
		return nil, err
	}
	b.dedicated = dedicated
	a := b.allocator.Allocate(size, align)
	if a == nil {
		b.memory.Destroy()
		return nil, fmt.Errorf("%d bytes do not fit a fresh block of %d", size, blockSize)
	}
	m.blocks = append(m.blocks, b)
	vkc.Logger().WithField("size", blockSize).WithField("dedicated", dedicated).Debug("allocated memory block")
	return &MemoryRange{block: b, allocation: a}, nil
}

func (m *MemoryArena) newBlock(typeIndex uint32, size uint64) (*memoryBlock, error) {
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: typeIndex,
	}

	var deviceMemory vk.DeviceMemory
	err := vk.Error(vk.AllocateMemory(m.device.VKDevice, &allocateInfo, nil, &deviceMemory))
	if err != nil {
		return nil, err
	}

	mem := &DeviceMemory{Device: m.device, VKDeviceMemory: deviceMemory, Size: size}
	if _, err := mem.Map(); err != nil {
		vk.FreeMemory(m.device.VKDevice, deviceMemory, nil)
		return nil, err
	}
	return &memoryBlock{memory: mem, typeIndex: typeIndex, allocator: LinearAllocator{Size: size}}, nil
}

// Free returns r to its block, dedicated blocks are released immediately.
func (m *MemoryArena) Free(r *MemoryRange) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r.block.allocator.Free(r.allocation)
	if !r.block.dedicated || !r.block.allocator.Empty() {
		return
	}
	for i, b := range m.blocks {
		if b == r.block {
			m.blocks = append(m.blocks[:i], m.blocks[i+1:]...)
			break
		}
	}
	r.block.memory.Destroy()
}

// Destroy frees every block, ranges still in use become invalid.
func (m *MemoryArena) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.blocks {
		b.memory.Destroy()
	}
	m.blocks = nil
}
