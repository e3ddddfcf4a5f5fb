//go:build cgo

package vulkan

import (
	"fmt"
	"strings"

	"github.com/celer/vkc"
	vk "github.com/vulkan-go/vulkan"
)

// PhysicalDevice is a vkc.Adapter backed by a Vulkan physical device.
type PhysicalDevice struct {
	DeviceName                 string
	VKPhysicalDevice           vk.PhysicalDevice
	VKPhysicalDeviceProperties vk.PhysicalDeviceProperties
}

func newPhysicalDevice(device vk.PhysicalDevice) *PhysicalDevice {
	p := &PhysicalDevice{VKPhysicalDevice: device}
	vk.GetPhysicalDeviceProperties(device, &p.VKPhysicalDeviceProperties)
	p.VKPhysicalDeviceProperties.Deref()
	p.VKPhysicalDeviceProperties.Limits.Deref()
	p.DeviceName = vk.ToString(p.VKPhysicalDeviceProperties.DeviceName[:])
	return p
}

func (p *PhysicalDevice) String() string {
	return p.DeviceName
}

func (p *PhysicalDevice) Name() string {
	return p.DeviceName
}

// DeviceType names the kind of adapter, for example "discrete-gpu".
func (p *PhysicalDevice) DeviceType() string {
	switch p.VKPhysicalDeviceProperties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return "integrated-gpu"
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return "discrete-gpu"
	case vk.PhysicalDeviceTypeVirtualGpu:
		return "virtual-gpu"
	case vk.PhysicalDeviceTypeCpu:
		return "cpu"
	default:
		return "other"
	}
}

// APIVersion is the highest Vulkan version the adapter supports.
func (p *PhysicalDevice) APIVersion() Version {
	v := p.VKPhysicalDeviceProperties.ApiVersion
	return Version{Major: int(v >> 22), Minor: int(v >> 12 & 0x3ff), Patch: int(v & 0xfff)}
}

func (p *PhysicalDevice) TimestampPeriod() float32 {
	return p.VKPhysicalDeviceProperties.Limits.TimestampPeriod
}

// MaxComputeWorkGroupInvocations is the limit on the product of a workgroup size.
func (p *PhysicalDevice) MaxComputeWorkGroupInvocations() uint32 {
	return p.VKPhysicalDeviceProperties.Limits.MaxComputeWorkGroupInvocations
}

func (p *PhysicalDevice) QueueFamilies() (vkc.QueueFamilySlice, error) {
	var queueFamilyCount uint32

	vk.GetPhysicalDeviceQueueFamilyProperties(p.VKPhysicalDevice, &queueFamilyCount, nil)

	if queueFamilyCount == 0 {
		return nil, nil
	}

	queues := make([]vk.QueueFamilyProperties, queueFamilyCount)

	vk.GetPhysicalDeviceQueueFamilyProperties(p.VKPhysicalDevice, &queueFamilyCount, queues)

	ret := make(vkc.QueueFamilySlice, queueFamilyCount)
	for i, queue := range queues {
		queue.Deref()
		ret[i] = queueFamily(i, queue)
	}

	return ret, nil
}

// CreateDevice creates a logical device with a single queue of family.
func (p *PhysicalDevice) CreateDevice(family *vkc.QueueFamily) (vkc.Device, error) {
	if family.QueueCount < 1 {
		return nil, fmt.Errorf("queue family %d exposes no queues", family.Index)
	}

	queueCreateInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: uint32(family.Index),
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos:    []vk.DeviceQueueCreateInfo{queueCreateInfo},
	}

	var ldevice vk.Device
	err := vk.Error(vk.CreateDevice(p.VKPhysicalDevice, &deviceCreateInfo, nil, &ldevice))
	if err != nil {
		return nil, err
	}

	device := &Device{PhysicalDevice: p, VKDevice: ldevice}
	device.queue = device.GetQueue(family)
	device.Memory = NewMemoryArena(device, DefaultBlockSize)
	device.CommandPool, err = device.CreateCommandPool(family)
	if err != nil {
		device.Destroy()
		return nil, err
	}
	device.PipelineCache, err = device.CreatePipelineCache()
	if err != nil {
		device.Destroy()
		return nil, err
	}
	return device, nil
}

type MemoryTypeSlice []vk.MemoryType

func (m MemoryTypeSlice) Filter(f func(properties vk.MemoryPropertyFlagBits) bool) MemoryTypeSlice {
	res := make(MemoryTypeSlice, 0)
	for i := 0; i < len(m); i++ {
		if f(vk.MemoryPropertyFlagBits(m[i].PropertyFlags)) {
			res = append(res, m[i])
		}
	}
	return res
}

func (m MemoryTypeSlice) NumHostVisibleAndCoherent() int {
	return len(m.Filter(func(properties vk.MemoryPropertyFlagBits) bool {
		return properties&(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit) == vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit
	}))
}

func (m MemoryTypeSlice) NumDeviceLocal() int {
	return len(m.Filter(func(properties vk.MemoryPropertyFlagBits) bool {
		return properties&vk.MemoryPropertyDeviceLocalBit != 0
	}))
}

func (p *PhysicalDevice) MemoryTypes() MemoryTypeSlice {
	mp := p.VKPhysicalDeviceMemoryProperties()

	ret := make(MemoryTypeSlice, 0)
	var i uint32
	for i = 0; i < mp.MemoryTypeCount; i++ {
		mt := mp.MemoryTypes[i]
		mt.Deref()
		ret = append(ret, mt)
	}
	return ret
}

// MemoryHeap is one memory heap of a physical device.
type MemoryHeap struct {
	Size        uint64
	DeviceLocal bool
}

func (p *PhysicalDevice) MemoryHeaps() []MemoryHeap {
	mp := p.VKPhysicalDeviceMemoryProperties()

	ret := make([]MemoryHeap, 0, mp.MemoryHeapCount)
	var i uint32
	for i = 0; i < mp.MemoryHeapCount; i++ {
		heap := mp.MemoryHeaps[i]
		heap.Deref()
		ret = append(ret, MemoryHeap{
			Size:        uint64(heap.Size),
			DeviceLocal: vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0,
		})
	}
	return ret
}

var memoryPropertyNames = []struct {
	bit  vk.MemoryPropertyFlagBits
	name string
}{
	{vk.MemoryPropertyDeviceLocalBit, "device-local"},
	{vk.MemoryPropertyHostVisibleBit, "host-visible"},
	{vk.MemoryPropertyHostCoherentBit, "host-coherent"},
	{vk.MemoryPropertyHostCachedBit, "host-cached"},
	{vk.MemoryPropertyLazilyAllocatedBit, "lazily-allocated"},
	{vk.MemoryPropertyProtectedBit, "protected"},
}

// MemoryPropertyString names the bits of f, for example "host-visible|host-coherent (6)".
func MemoryPropertyString(f vk.MemoryPropertyFlagBits) string {
	var names []string
	for _, p := range memoryPropertyNames {
		if f&p.bit != 0 {
			names = append(names, p.name)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("none (%x)", uint32(f))
	}
	return fmt.Sprintf("%s (%x)", strings.Join(names, "|"), uint32(f))
}

func (p *PhysicalDevice) VKPhysicalDeviceMemoryProperties() vk.PhysicalDeviceMemoryProperties {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(p.VKPhysicalDevice, &memoryProperties)
	memoryProperties.Deref()
	return memoryProperties
}

func (p *PhysicalDevice) FindMemoryType(memoryTypeBits uint32, properties vk.MemoryPropertyFlagBits) (uint32, error) {
	mp := p.VKPhysicalDeviceMemoryProperties()

	// memoryTypeBits has bit i set when memory type i can back the resource
	var i uint32
	for i = 0; i < mp.MemoryTypeCount; i++ {
		mt := mp.MemoryTypes[i]
		mt.Deref()
		if memoryTypeBits&(1<<i) != 0 &&
			vk.MemoryPropertyFlagBits(mt.PropertyFlags)&properties == properties {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no memory type matches bits %b with properties %b", memoryTypeBits, properties)
}
