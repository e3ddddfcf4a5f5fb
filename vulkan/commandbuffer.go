//go:build cgo

package vulkan

import (
	"errors"
	"fmt"
	"sync"

	"github.com/celer/vkc"
	vk "github.com/vulkan-go/vulkan"
)

// CommandBuffers describe a sequence of commands that will be executed
// upon being sent to a device queue. Not all available vulkan commands
// are wrapped by this package. It is expected that the calling application
// must call the native vulkan command APIs.
type CommandBuffer struct {
	VKCommandBuffer vk.CommandBuffer
}

// VK is a utility function for accessing the native vulkan command buffer
func (c *CommandBuffer) VK() vk.CommandBuffer {
	return c.VKCommandBuffer
}

// BeginOneTime begins capturing work for this command buffer, with the stipulation that it will only be used once (instead of put back in the pool of command buffers)
func (c *CommandBuffer) BeginOneTime() error {
	var beginInfo = vk.CommandBufferBeginInfo{}
	beginInfo.SType = vk.StructureTypeCommandBufferBeginInfo
	beginInfo.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	return vk.Error(vk.BeginCommandBuffer(c.VKCommandBuffer, &beginInfo))
}

func (c *CommandBuffer) CmdBindComputePipeline(p *ComputePipeline) {
	vk.CmdBindPipeline(c.VKCommandBuffer, vk.PipelineBindPointCompute, p.VKPipeline)
}

func (c *CommandBuffer) CmdBindDescriptorSets(layout *PipelineLayout, firstSet int, descriptorSets ...*DescriptorSet) {

	sets := make([]vk.DescriptorSet, len(descriptorSets))
	for i := range descriptorSets {
		sets[i] = descriptorSets[i].VKDescriptorSet
	}

	vk.CmdBindDescriptorSets(c.VKCommandBuffer, vk.PipelineBindPointCompute,
		layout.VKPipelineLayout, uint32(firstSet), uint32(len(descriptorSets)), sets, 0, nil)
}

func (c *CommandBuffer) CmdDispatch(x, y, z uint32) {
	vk.CmdDispatch(c.VKCommandBuffer, x, y, z)
}

func (c *CommandBuffer) CmdResetQueryPool(pool *QueryPool, first, count int) {
	vk.CmdResetQueryPool(c.VKCommandBuffer, pool.VKQueryPool, uint32(first), uint32(count))
}

func (c *CommandBuffer) CmdWriteTimestamp(stage vk.PipelineStageFlagBits, pool *QueryPool, slot int) {
	vk.CmdWriteTimestamp(c.VKCommandBuffer, stage, pool.VKQueryPool, uint32(slot))
}

// End describing work for this command buffer
func (c *CommandBuffer) End() error {
	return vk.Error(vk.EndCommandBuffer(c.VKCommandBuffer))
}

func pipelineStage(s vkc.PipelineStage) vk.PipelineStageFlagBits {
	if s == vkc.StageTopOfPipe {
		return vk.PipelineStageTopOfPipeBit
	}
	return vk.PipelineStageBottomOfPipeBit
}

var errNotEnded = errors.New("command sequence was not ended")

// CommandSequence is a vkc.CommandSequence recording into a one time command buffer.
type CommandSequence struct {
	Device *Device
	Buffer *CommandBuffer

	mu        sync.Mutex
	err       error
	pipeline  *ComputePipeline
	ended     bool
	submitted bool
	destroyed bool
}

func (d *Device) CreateCommandSequence() (vkc.CommandSequence, error) {
	cb, err := d.CommandPool.AllocateBuffer()
	if err != nil {
		return nil, err
	}
	if err := cb.BeginOneTime(); err != nil {
		d.CommandPool.FreeBuffer(cb)
		return nil, err
	}
	return &CommandSequence{Device: d, Buffer: cb}, nil
}

func (s *CommandSequence) fail(format string, args ...any) {
	if s.err == nil {
		s.err = fmt.Errorf(format, args...)
	}
}

func (s *CommandSequence) recording() bool {
	if s.ended {
		s.fail("command recorded after End")
		return false
	}
	return s.err == nil
}

func (s *CommandSequence) queryPool(pool vkc.QueryPool, first, count int) (*QueryPool, bool) {
	q, ok := pool.(*QueryPool)
	if !ok || q.Device != s.Device {
		s.fail("query pool belongs to another device")
		return nil, false
	}
	if first < 0 || count < 0 || first+count > q.count {
		s.fail("query range [%d, %d) exceeds pool of %d", first, first+count, q.count)
		return nil, false
	}
	return q, true
}

func (s *CommandSequence) ResetQueryPool(pool vkc.QueryPool, first, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.recording() {
		return
	}
	if q, ok := s.queryPool(pool, first, count); ok {
		s.Buffer.CmdResetQueryPool(q, first, count)
	}
}

func (s *CommandSequence) BindPipeline(p vkc.Pipeline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.recording() {
		return
	}
	cp, ok := p.(*ComputePipeline)
	if !ok || cp.Device != s.Device {
		s.fail("pipeline belongs to another device")
		return
	}
	s.pipeline = cp
	s.Buffer.CmdBindComputePipeline(cp)
}

func (s *CommandSequence) WriteTimestamp(stage vkc.PipelineStage, pool vkc.QueryPool, slot int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.recording() {
		return
	}
	if q, ok := s.queryPool(pool, slot, 1); ok {
		s.Buffer.CmdWriteTimestamp(pipelineStage(stage), q, slot)
	}
}

func (s *CommandSequence) BindResourceSet(p vkc.Pipeline, set vkc.ResourceSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.recording() {
		return
	}
	cp, ok := p.(*ComputePipeline)
	if !ok || cp.Device != s.Device {
		s.fail("pipeline belongs to another device")
		return
	}
	ds, ok := set.(*DescriptorSet)
	if !ok || ds.Device != s.Device {
		s.fail("resource set belongs to another device")
		return
	}
	if ds.Pipeline != cp {
		s.fail("resource set %d was created for another pipeline", ds.Set)
		return
	}
	s.Buffer.CmdBindDescriptorSets(cp.PipelineLayout, ds.Set, ds)
}

func (s *CommandSequence) Dispatch(x, y, z uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.recording() {
		return
	}
	if s.pipeline == nil {
		s.fail("dispatch without a bound pipeline")
		return
	}
	s.Buffer.CmdDispatch(x, y, z)
}

// End finishes recording and reports the first recording error.
func (s *CommandSequence) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return errors.New("command sequence already ended")
	}
	s.ended = true
	if s.err != nil {
		return s.err
	}
	return s.Buffer.End()
}

// consume marks the sequence submitted, a one time sequence can only be consumed once.
func (s *CommandSequence) consume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitted {
		return vkc.ErrSequenceConsumed
	}
	if !s.ended || s.err != nil || s.destroyed {
		return errNotEnded
	}
	s.submitted = true
	return nil
}

func (s *CommandSequence) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	s.destroyed = true
	s.Device.CommandPool.FreeBuffer(s.Buffer)
}
