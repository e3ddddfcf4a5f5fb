//go:build cgo

package vulkan

import (
	"fmt"
	"sync"

	"github.com/celer/vkc"
	vk "github.com/vulkan-go/vulkan"
)

// Queue is a vkc.Queue. Submissions are serialized.
type Queue struct {
	Device      *Device
	QueueFamily *vkc.QueueFamily
	VKQueue     vk.Queue

	mu sync.Mutex
}

func (q *Queue) Family() *vkc.QueueFamily {
	return q.QueueFamily
}

func (q *Queue) WaitIdle() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return vk.Error(vk.QueueWaitIdle(q.VKQueue))
}

func (q *Queue) SubmitWithFence(fence *Fence, buffers ...*CommandBuffer) error {
	var submitInfo = vk.SubmitInfo{}
	submitInfo.SType = vk.StructureTypeSubmitInfo
	submitInfo.CommandBufferCount = uint32(len(buffers))

	b := make([]vk.CommandBuffer, len(buffers))
	for i := range buffers {
		b[i] = buffers[i].VKCommandBuffer
	}

	submitInfo.PCommandBuffers = b

	q.mu.Lock()
	defer q.mu.Unlock()
	return vk.Error(vk.QueueSubmit(q.VKQueue, 1, []vk.SubmitInfo{submitInfo}, fence.VKFence))
}

// Submit flushes seq with a fresh fence. The sequence must have been ended and is consumed even
// if the submission fails.
func (q *Queue) Submit(seq vkc.CommandSequence) (vkc.Fence, error) {
	s, ok := seq.(*CommandSequence)
	if !ok || s.Device != q.Device {
		return nil, fmt.Errorf("%w: command sequence belongs to another device", vkc.ErrSubmissionFailed)
	}
	if err := s.consume(); err != nil {
		return nil, err
	}

	fence, err := q.Device.CreateFence()
	if err != nil {
		return nil, err
	}
	if err := q.SubmitWithFence(fence, s.Buffer); err != nil {
		fence.Destroy()
		return nil, err
	}
	return fence, nil
}

func (q *Queue) String() string {
	return fmt.Sprintf("{Device: %s QueueFamily: %s}", q.Device.String(), q.QueueFamily.String())
}
