//go:build cgo

package vulkan

import (
	"github.com/celer/vkc"
	vk "github.com/vulkan-go/vulkan"
)

func queueFlags(flags vk.QueueFlags) vkc.QueueFlags {
	var ret vkc.QueueFlags
	if flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
		ret |= vkc.QueueGraphics
	}
	if flags&vk.QueueFlags(vk.QueueComputeBit) != 0 {
		ret |= vkc.QueueCompute
	}
	if flags&vk.QueueFlags(vk.QueueTransferBit) != 0 {
		ret |= vkc.QueueTransfer
	}
	return ret
}

// queueFamily converts already dereferenced properties of the family at index.
func queueFamily(index int, props vk.QueueFamilyProperties) *vkc.QueueFamily {
	return &vkc.QueueFamily{
		Index:              index,
		Flags:              queueFlags(props.QueueFlags),
		QueueCount:         int(props.QueueCount),
		TimestampValidBits: props.TimestampValidBits,
	}
}
