//go:build !cgo

package wgpu

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/celer/vkc"
	"github.com/gogpu/wgpu/hal"
)

var errNotEnded = errors.New("command sequence was not ended")

type command struct {
	pipeline *Pipeline
	set      *ResourceSet
	groups   [3]uint32
}

// CommandSequence collects commands and encodes them into a single compute pass at End.
type CommandSequence struct {
	device *Device

	mu        sync.Mutex
	err       error
	pipeline  *Pipeline
	commands  []command
	cmdBuf    hal.CommandBuffer
	ended     bool
	submitted bool
	destroyed bool
}

func (d *Device) CreateCommandSequence() (vkc.CommandSequence, error) {
	return &CommandSequence{device: d}, nil
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

// ResetQueryPool fails the recording, no query pool can exist on this backend.
func (s *CommandSequence) ResetQueryPool(pool vkc.QueryPool, first, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recording() {
		s.fail("%w: query pool of another backend", vkc.ErrQueryPoolFailed)
	}
}

func (s *CommandSequence) WriteTimestamp(stage vkc.PipelineStage, pool vkc.QueryPool, slot int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recording() {
		s.fail("%w: %s timestamp on a backend without timestamps", vkc.ErrTimestampsUnsupported, stage)
	}
}

func (s *CommandSequence) BindPipeline(p vkc.Pipeline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.recording() {
		return
	}
	wp, ok := p.(*Pipeline)
	if !ok || wp.device != s.device {
		s.fail("pipeline belongs to another device")
		return
	}
	s.pipeline = wp
	s.commands = append(s.commands, command{pipeline: wp})
}

func (s *CommandSequence) BindResourceSet(p vkc.Pipeline, set vkc.ResourceSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.recording() {
		return
	}
	wp, ok := p.(*Pipeline)
	if !ok || wp.device != s.device {
		s.fail("pipeline belongs to another device")
		return
	}
	rs, ok := set.(*ResourceSet)
	if !ok || rs.device != s.device {
		s.fail("resource set belongs to another device")
		return
	}
	if rs.pipeline != wp {
		s.fail("resource set %d was created for another pipeline", rs.index)
		return
	}
	s.commands = append(s.commands, command{set: rs})
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
	s.commands = append(s.commands, command{groups: [3]uint32{x, y, z}})
}

// End encodes the recorded commands.
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

	d := s.device
	d.mu.Lock()
	defer d.mu.Unlock()

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "vkc_dispatch"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("vkc_dispatch"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "vkc_dispatch"})
	for _, c := range s.commands {
		switch {
		case c.pipeline != nil:
			pass.SetPipeline(c.pipeline.pipeline)
		case c.set != nil:
			pass.SetBindGroup(uint32(c.set.index), c.set.group, nil)
		default:
			pass.Dispatch(c.groups[0], c.groups[1], c.groups[2])
		}
	}
	pass.End()
	s.cmdBuf, err = encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	return nil
}

func (s *CommandSequence) consume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitted {
		return vkc.ErrSequenceConsumed
	}
	if !s.ended || s.cmdBuf == nil || s.destroyed {
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
	if s.cmdBuf != nil {
		s.device.free(s.cmdBuf)
	}
}

// Queue is the device's only queue.
type Queue struct {
	device *Device
	queue  hal.Queue
}

func (q *Queue) Family() *vkc.QueueFamily {
	return q.device.family
}

func (q *Queue) Submit(seq vkc.CommandSequence) (vkc.Fence, error) {
	s, ok := seq.(*CommandSequence)
	if !ok || s.device != q.device {
		return nil, fmt.Errorf("%w: command sequence belongs to another device", vkc.ErrSubmissionFailed)
	}
	if err := s.consume(); err != nil {
		return nil, err
	}

	d := q.device
	d.mu.Lock()
	defer d.mu.Unlock()

	index, err := q.queue.Submit([]hal.CommandBuffer{s.cmdBuf})
	if err != nil {
		return nil, err
	}
	return &Fence{queue: q, index: index}, nil
}

// pollInterval is the sleep between completion checks of a bounded wait.
const pollInterval = 50 * time.Microsecond

// waitFor waits until the queue has completed submission index. A negative timeout waits for
// the device to go idle.
func (q *Queue) waitFor(index uint64, timeout time.Duration) (bool, error) {
	if q.queue.PollCompleted() >= index {
		return true, nil
	}
	if timeout < 0 {
		d := q.device
		d.mu.Lock()
		defer d.mu.Unlock()
		if err := d.device.WaitIdle(); err != nil {
			return false, err
		}
		return true, nil
	}
	deadline := time.Now().Add(timeout)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			return false, nil
		}
		time.Sleep(min(pollInterval, left))
		if q.queue.PollCompleted() >= index {
			return true, nil
		}
	}
}

// Fence is the submission index returned by the hal queue.
type Fence struct {
	queue *Queue
	index uint64
}

func (f *Fence) Wait(timeout time.Duration) (bool, error) {
	return f.queue.waitFor(f.index, timeout)
}

// Destroy does nothing, submission indices own no driver object.
func (f *Fence) Destroy() {}
