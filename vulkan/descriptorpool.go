//go:build cgo

package vulkan

import (
	vk "github.com/vulkan-go/vulkan"
)

// DescriptorPool is essentially a resource manager for descriptor pools provided by Vulkan.
type DescriptorPool struct {
	Device               *Device
	VKDescriptorPool     vk.DescriptorPool
	VKDescriptorPoolSize []vk.DescriptorPoolSize
}

func (d *Device) NewDescriptorPool() *DescriptorPool {
	return &DescriptorPool{Device: d}
}

// AddPoolSize informs the descriptor pool how many of a certain descriptortype it will contain
func (d *DescriptorPool) AddPoolSize(dtype vk.DescriptorType, count int) {
	for i := range d.VKDescriptorPoolSize {
		if d.VKDescriptorPoolSize[i].Type == dtype {
			d.VKDescriptorPoolSize[i].DescriptorCount += uint32(count)
			return
		}
	}
	d.VKDescriptorPoolSize = append(d.VKDescriptorPoolSize, vk.DescriptorPoolSize{
		Type:            dtype,
		DescriptorCount: uint32(count),
	})
}

// CreateDescriptorPool creates the descriptor pool
func (d *Device) CreateDescriptorPool(pool *DescriptorPool, maxSets int) (*DescriptorPool, error) {

	var descriptorPoolCreateInfo = vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       uint32(maxSets),
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		PoolSizeCount: uint32(len(pool.VKDescriptorPoolSize)),
		PPoolSizes:    pool.VKDescriptorPoolSize,
	}

	var descriptorPool vk.DescriptorPool
	err := vk.Error(vk.CreateDescriptorPool(d.VKDevice, &descriptorPoolCreateInfo, nil, &descriptorPool))
	if err != nil {
		return nil, err
	}

	pool.Device = d
	pool.VKDescriptorPool = descriptorPool

	return pool, nil
}

// Allocate allocates a descriptor set from the pool given the descriptor set layout
func (d *DescriptorPool) Allocate(layout *DescriptorSetLayout) (*DescriptorSet, error) {

	descriptorSetAllocateInfo := vk.DescriptorSetAllocateInfo{}
	descriptorSetAllocateInfo.SType = vk.StructureTypeDescriptorSetAllocateInfo
	descriptorSetAllocateInfo.DescriptorPool = d.VKDescriptorPool
	descriptorSetAllocateInfo.DescriptorSetCount = 1
	descriptorSetAllocateInfo.PSetLayouts = []vk.DescriptorSetLayout{layout.VKDescriptorSetLayout}

	var descriptorSet vk.DescriptorSet
	err := vk.Error(vk.AllocateDescriptorSets(d.Device.VKDevice, &descriptorSetAllocateInfo, &descriptorSet))
	if err != nil {
		return nil, err
	}

	return &DescriptorSet{Device: d.Device, VKDescriptorSet: descriptorSet, DescriptorPool: d}, nil
}

func (d *DescriptorPool) Destroy() {
	vk.DestroyDescriptorPool(d.Device.VKDevice, d.VKDescriptorPool, nil)
}
