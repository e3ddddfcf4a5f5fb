//go:build cgo

package vulkan

import (
	"fmt"

	"github.com/celer/vkc"
	vk "github.com/vulkan-go/vulkan"
)

// Device is a logical device with a single compute queue. Command sequences are allocated from
// one pool, buffers from one memory arena.
type Device struct {
	PhysicalDevice *PhysicalDevice
	VKDevice       vk.Device
	CommandPool    *CommandPool
	PipelineCache  *PipelineCache
	Memory         *MemoryArena

	queue *Queue
}

func (d *Device) Queue() vkc.Queue {
	return d.queue
}

// Destroy waits for the device to go idle and releases everything the device owns.
func (d *Device) Destroy() {
	d.WaitIdle()
	if d.Memory != nil {
		d.Memory.Destroy()
	}
	if d.PipelineCache != nil {
		d.PipelineCache.Destroy()
	}
	if d.CommandPool != nil {
		d.CommandPool.Destroy()
	}
	vk.DestroyDevice(d.VKDevice, nil)
}

func (d *Device) String() string {
	return fmt.Sprintf("{ PhysicalDevice: %s }", d.PhysicalDevice)
}

func (d *Device) WaitIdle() {
	vk.DeviceWaitIdle(d.VKDevice)
}

func (d *Device) GetQueue(qf *vkc.QueueFamily) *Queue {

	var vkq vk.Queue

	vk.GetDeviceQueue(d.VKDevice, uint32(qf.Index), 0, &vkq)

	return &Queue{Device: d, QueueFamily: qf, VKQueue: vkq}
}
