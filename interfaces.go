package vkc

import (
	"fmt"
	"strings"
	"time"
)

// BufferUsage describes how a buffer will be bound.
type BufferUsage uint32

const (
	BufferUsageStorage BufferUsage = 1 << iota
	BufferUsageUniform
	BufferUsageTransferSrc
	BufferUsageTransferDst
)

func (u BufferUsage) String() string {
	if u == 0 {
		return "none"
	}
	var names []string
	for _, f := range []struct {
		bit  BufferUsage
		name string
	}{
		{BufferUsageStorage, "storage"},
		{BufferUsageUniform, "uniform"},
		{BufferUsageTransferSrc, "transfer-src"},
		{BufferUsageTransferDst, "transfer-dst"},
	} {
		if u&f.bit != 0 {
			names = append(names, f.name)
		}
	}
	return strings.Join(names, "|")
}

// MemoryKind selects where a buffer's memory lives.
type MemoryKind int

const (
	// MemoryHostVisible memory can be mapped by the host without a staging copy.
	MemoryHostVisible MemoryKind = iota
	// MemoryDeviceLocal memory needs a transfer to reach the host.
	MemoryDeviceLocal
)

func (m MemoryKind) String() string {
	switch m {
	case MemoryHostVisible:
		return "host-visible"
	case MemoryDeviceLocal:
		return "device-local"
	default:
		return fmt.Sprintf("MemoryKind(%d)", int(m))
	}
}

// PipelineStage is where in the pipeline a timestamp is captured.
type PipelineStage int

const (
	// StageTopOfPipe is before any work of the submission has started.
	StageTopOfPipe PipelineStage = iota
	// StageBottomOfPipe is after all prior commands of the submission completed.
	StageBottomOfPipe
)

func (s PipelineStage) String() string {
	if s == StageTopOfPipe {
		return "top-of-pipe"
	}
	return "bottom-of-pipe"
}

// Driver is a graphics API able to enumerate adapters.
type Driver interface {
	Name() string
	Adapters() ([]Adapter, error)
	Destroy()
}

// Adapter is a physical device.
type Adapter interface {
	Name() string
	QueueFamilies() (QueueFamilySlice, error)
	// TimestampPeriod is the number of nanoseconds per timestamp tick, 0 when the adapter
	// cannot write timestamps.
	TimestampPeriod() float32
	// CreateDevice creates a logical device with exactly one queue from family.
	CreateDevice(family *QueueFamily) (Device, error)
}

// Device is a logical device, every other object is created from and owned by it.
type Device interface {
	Queue() Queue
	CreateBuffer(desc *BufferDescriptor) (Buffer, error)
	CreatePipeline(desc *PipelineDescriptor) (Pipeline, error)
	CreateResourceSet(desc *ResourceSetDescriptor) (ResourceSet, error)
	CreateQueryPool(count int) (QueryPool, error)
	CreateCommandSequence() (CommandSequence, error)
	Destroy()
}

// Queue accepts recorded command sequences.
type Queue interface {
	Family() *QueueFamily
	// Submit flushes seq to the device and returns the fence signaled when it completes.
	Submit(seq CommandSequence) (Fence, error)
}

// Fence transitions from pending to signaled exactly once.
type Fence interface {
	// Wait blocks for at most timeout and reports whether the fence is signaled. A negative
	// timeout waits without bound, zero only polls. Wait may be called from any goroutine.
	Wait(timeout time.Duration) (bool, error)
	Destroy()
}

// Buffer is a linear allocation the host can read and write.
type Buffer interface {
	Size() uint64
	Write(offset uint64, data []byte) error
	Read(offset uint64, dst []byte) error
	Destroy()
}

// Pipeline is a compute pipeline for one kernel entry point.
type Pipeline interface {
	EntryPoint() *EntryPoint
	Destroy()
}

// ResourceSet is a set of resources bound against one set index of a pipeline layout.
type ResourceSet interface {
	Index() int
	Destroy()
}

// QueryPool holds timestamp query slots.
type QueryPool interface {
	Count() int
	// Results returns count values starting at first. With wait it blocks until they are
	// available, otherwise unavailable slots fail with ErrQueryResultsUnavailable.
	Results(first, count int, wait bool) ([]uint64, error)
	Destroy()
}

// CommandSequence records commands for one submission. Recording methods do not return
// errors, the first recording error is reported by End.
type CommandSequence interface {
	ResetQueryPool(pool QueryPool, first, count int)
	BindPipeline(p Pipeline)
	WriteTimestamp(stage PipelineStage, pool QueryPool, slot int)
	BindResourceSet(p Pipeline, set ResourceSet)
	Dispatch(x, y, z uint32)
	End() error
	Destroy()
}

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	Label  string
	Size   uint64
	Usage  BufferUsage
	Memory MemoryKind
}

// PipelineDescriptor describes a compute pipeline to create.
type PipelineDescriptor struct {
	Label      string
	Kernel     *Kernel
	EntryPoint *EntryPoint
	// Layout is the layout the pipeline is created with, validated against the entry point.
	Layout ResourceLayout
}

// BufferBinding places a buffer at a binding index.
type BufferBinding struct {
	Binding int
	Buffer  Buffer
}

// ResourceSetDescriptor describes the resources bound into one set of a pipeline's layout.
type ResourceSetDescriptor struct {
	Label    string
	Pipeline Pipeline
	Set      int
	Buffers  []BufferBinding
}
