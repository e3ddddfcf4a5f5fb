//go:build cgo

/*
Package vulkan implements the vkc backend interfaces on top of github.com/vulkan-go/vulkan. It
needs cgo.

The wrappers stay thin: every type keeps its native handle (VKInstance, VKDevice, VKBuffer ...)
so callers can drop down to the raw API whenever the abstraction is in the way.

Native Vulkan terms and what they become here:

	Instance		Driver, the loaded Vulkan runtime
	PhysicalDevice		vkc.Adapter
	LogicalDevice		Device, owner of the command pool and the memory arena
	Pipeline		a compute pipeline plus its pipeline layout and shader module
	DescriptorSet		vkc.ResourceSet, allocated from a pool sized for exactly one set
	QueryPool		timestamp queries
	CommandBuffer		vkc.CommandSequence, always begun with ONE_TIME_SUBMIT
	Fence			vkc.Fence
	DeviceMemory		host visible, host coherent blocks, buffers are sub allocated from them

Vulkan must be initialized before anything else, New does that with the default loader:

	drv, err := vulkan.New(vulkan.Options{Validation: true})
	if err != nil {
		return err
	}
	defer drv.Destroy()
	dc, err := vkc.SelectDevice(drv)

Validation layer messages are forwarded to vkc.Logger.
*/
package vulkan
