//go:build cgo

package vulkan

import (
	"fmt"

	"github.com/celer/vkc"
	vk "github.com/vulkan-go/vulkan"
)

// DescriptorSetLayout describes the layout of a descriptorset
type DescriptorSetLayout struct {
	Device                        *Device
	VKDescriptorSetLayout         vk.DescriptorSetLayout
	VKDescriptorSetLayoutBindings []vk.DescriptorSetLayoutBinding
}

func (d *Device) NewDescriptorSetLayout() *DescriptorSetLayout {
	return &DescriptorSetLayout{Device: d}
}

func descriptorType(k vkc.ResourceKind) (vk.DescriptorType, error) {
	switch k {
	case vkc.KindStorageBuffer:
		return vk.DescriptorTypeStorageBuffer, nil
	case vkc.KindUniformBuffer:
		return vk.DescriptorTypeUniformBuffer, nil
	case vkc.KindStorageImage:
		return vk.DescriptorTypeStorageImage, nil
	case vkc.KindSampledImage:
		return vk.DescriptorTypeSampledImage, nil
	case vkc.KindSampler:
		return vk.DescriptorTypeSampler, nil
	case vkc.KindCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler, nil
	default:
		return 0, fmt.Errorf("no descriptor type for %s", k)
	}
}

// AddBinding adds a binding to the descriptor set
func (d *DescriptorSetLayout) AddBinding(binding vk.DescriptorSetLayoutBinding) {
	d.VKDescriptorSetLayoutBindings = append(d.VKDescriptorSetLayoutBindings, binding)
}

// AddSlot adds a compute stage binding for slot.
func (d *DescriptorSetLayout) AddSlot(slot vkc.BindingSlot) error {
	dtype, err := descriptorType(slot.Kind)
	if err != nil {
		return err
	}
	d.AddBinding(vk.DescriptorSetLayoutBinding{
		Binding:         uint32(slot.Binding),
		DescriptorType:  dtype,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageComputeBit),
	})
	return nil
}

// Destroy destroys this descriptor set layout
func (d *DescriptorSetLayout) Destroy() {
	vk.DestroyDescriptorSetLayout(d.Device.VKDevice, d.VKDescriptorSetLayout, nil)
}

// CreateDescriptorSetLayout creates this descriptor set layout
func (d *Device) CreateDescriptorSetLayout(layout *DescriptorSetLayout) (*DescriptorSetLayout, error) {
	var descriptorSetLayoutCreateInfo = &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(layout.VKDescriptorSetLayoutBindings)),
		PBindings:    layout.VKDescriptorSetLayoutBindings,
	}

	var descriptorSetLayout vk.DescriptorSetLayout
	err := vk.Error(vk.CreateDescriptorSetLayout(d.VKDevice, descriptorSetLayoutCreateInfo, nil, &descriptorSetLayout))
	if err != nil {
		return nil, err
	}

	layout.Device = d
	layout.VKDescriptorSetLayout = descriptorSetLayout

	return layout, nil
}

// CreateSetLayouts creates one descriptor set layout per set index from 0 to the highest set
// of l, sets l does not mention get an empty layout.
func (d *Device) CreateSetLayouts(l vkc.ResourceLayout) ([]*DescriptorSetLayout, error) {
	sets := l.Sets()
	if len(sets) == 0 {
		return nil, nil
	}
	ret := make([]*DescriptorSetLayout, 0, sets[len(sets)-1]+1)
	destroy := func() {
		for _, dsl := range ret {
			dsl.Destroy()
		}
	}
	for set := 0; set <= sets[len(sets)-1]; set++ {
		dsl := d.NewDescriptorSetLayout()
		for _, slot := range l.InSet(set) {
			if err := dsl.AddSlot(slot); err != nil {
				destroy()
				return nil, err
			}
		}
		if _, err := d.CreateDescriptorSetLayout(dsl); err != nil {
			destroy()
			return nil, err
		}
		ret = append(ret, dsl)
	}
	return ret, nil
}
