//go:build cgo

package vulkan

import (
	"sync"
	"time"

	vk "github.com/vulkan-go/vulkan"
)

// Fence is a vkc.Fence.
type Fence struct {
	Device  *Device
	VKFence vk.Fence

	once sync.Once
}

func (d *Device) VKCreateFence(signaled bool) (vk.Fence, error) {
	var fence vk.Fence
	var fenceCreateInfo = vk.FenceCreateInfo{}
	fenceCreateInfo.SType = vk.StructureTypeFenceCreateInfo
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	err := vk.Error(vk.CreateFence(d.VKDevice, &fenceCreateInfo, nil, &fence))
	if err != nil {
		return nil, err
	}
	return fence, nil
}

func (d *Device) CreateFence() (*Fence, error) {
	fence, err := d.VKCreateFence(false)
	if err != nil {
		return nil, err
	}
	return &Fence{Device: d, VKFence: fence}, nil
}

// fenceTimeout converts a vkc wait timeout to the nanoseconds vkWaitForFences expects.
func fenceTimeout(timeout time.Duration) uint64 {
	if timeout < 0 {
		return vk.MaxUint64
	}
	return uint64(timeout.Nanoseconds())
}

// Wait reports false without an error when the timeout expires first.
func (f *Fence) Wait(timeout time.Duration) (bool, error) {
	if timeout == 0 {
		res := vk.GetFenceStatus(f.Device.VKDevice, f.VKFence)
		if res == vk.NotReady {
			return false, nil
		}
		if err := vk.Error(res); err != nil {
			return false, err
		}
		return true, nil
	}

	res := vk.WaitForFences(f.Device.VKDevice, 1, []vk.Fence{f.VKFence}, vk.True, fenceTimeout(timeout))
	if res == vk.Timeout {
		return false, nil
	}
	if err := vk.Error(res); err != nil {
		return false, err
	}
	return true, nil
}

func (f *Fence) Destroy() {
	f.once.Do(func() {
		vk.DestroyFence(f.Device.VKDevice, f.VKFence, nil)
	})
}
