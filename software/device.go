package software

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/celer/vkc"
	"github.com/sirupsen/logrus"
)

var errDestroyed = errors.New("object already destroyed")

// Device is an emulated logical device with a single queue.
type Device struct {
	adapter *adapter
	family  vkc.QueueFamily
	queue   *queue
	epoch   time.Time

	live      atomic.Int64
	destroyed atomic.Bool
}

func newDevice(a *adapter, family vkc.QueueFamily) *Device {
	d := &Device{adapter: a, family: family, epoch: time.Now()}
	d.queue = &queue{device: d}
	vkc.Logger().WithFields(logrus.Fields{"adapter": a.cfg.Name, "family": family.Index}).Debug("software device created")
	return d
}

// Live is the number of objects created from the device and not destroyed yet.
func (d *Device) Live() int {
	return int(d.live.Load())
}

func (d *Device) Queue() vkc.Queue {
	return d.queue
}

func (d *Device) Destroy() {
	if d.destroyed.Swap(true) {
		return
	}
	if n := d.Live(); n > 0 {
		vkc.Logger().Warnf("software device destroyed with %d live objects", n)
	}
}

func (d *Device) check() error {
	if d.destroyed.Load() {
		return fmt.Errorf("device: %w", errDestroyed)
	}
	return nil
}

// ticks is the current timestamp, in adapter periods since the device was created.
func (d *Device) ticks() uint64 {
	ns := float64(time.Since(d.epoch).Nanoseconds())
	t := uint64(ns / float64(d.adapter.cfg.TimestampPeriod))
	bits := d.family.TimestampValidBits
	if bits < 64 {
		t &= 1<<bits - 1
	}
	return t
}

type object struct {
	device    *Device
	destroyed atomic.Bool
}

func (o *object) init(d *Device) {
	o.device = d
	d.live.Add(1)
}

func (o *object) release() bool {
	if o.destroyed.Swap(true) {
		return false
	}
	o.device.live.Add(-1)
	return true
}

// buffer memory is guarded by mu, execution holds it for writing for the whole dispatch.
type buffer struct {
	object
	label string
	usage vkc.BufferUsage

	mu   sync.RWMutex
	data []byte
}

func (d *Device) CreateBuffer(desc *vkc.BufferDescriptor) (vkc.Buffer, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if desc.Size == 0 {
		return nil, fmt.Errorf("buffer %q: size is 0", desc.Label)
	}
	if desc.Usage == 0 {
		return nil, fmt.Errorf("buffer %q: no usage", desc.Label)
	}
	if desc.Memory != vkc.MemoryHostVisible {
		return nil, fmt.Errorf("buffer %q: only host visible memory is supported", desc.Label)
	}
	if limit := d.adapter.cfg.MaxBufferSize; limit > 0 && desc.Size > limit {
		return nil, fmt.Errorf("buffer %q: out of device memory, %d bytes requested, limit %d", desc.Label, desc.Size, limit)
	}
	b := &buffer{label: desc.Label, usage: desc.Usage, data: make([]byte, desc.Size)}
	b.init(d)
	return b, nil
}

func (b *buffer) Size() uint64 {
	return uint64(len(b.data))
}

func (b *buffer) bounds(offset uint64, n int) error {
	if b.destroyed.Load() {
		return fmt.Errorf("buffer %q: %w", b.label, errDestroyed)
	}
	if offset+uint64(n) > uint64(len(b.data)) {
		return fmt.Errorf("buffer %q: range [%d, %d) exceeds size %d", b.label, offset, offset+uint64(n), len(b.data))
	}
	return nil
}

func (b *buffer) Write(offset uint64, data []byte) error {
	if err := b.bounds(offset, len(data)); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.data[offset:], data)
	return nil
}

func (b *buffer) Read(offset uint64, dst []byte) error {
	if err := b.bounds(offset, len(dst)); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	copy(dst, b.data[offset:])
	return nil
}

func (b *buffer) Destroy() {
	b.release()
}

type pipeline struct {
	object
	entry  *vkc.EntryPoint
	layout vkc.ResourceLayout
	fn     KernelFunc
}

func (d *Device) CreatePipeline(desc *vkc.PipelineDescriptor) (vkc.Pipeline, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	ep := desc.EntryPoint
	if ep == nil || ep.Model != vkc.ExecutionModelGLCompute {
		return nil, fmt.Errorf("pipeline %q: %w", desc.Label, vkc.ErrEntryPointNotFound)
	}
	if ep.Invocations() == 0 {
		return nil, fmt.Errorf("pipeline %q: workgroup size %v is empty", desc.Label, ep.WorkgroupSize)
	}
	fn, ok := d.adapter.driver.kernel(ep.Name)
	if !ok {
		return nil, fmt.Errorf("pipeline %q: no software implementation registered for entry point %s", desc.Label, ep.Name)
	}
	p := &pipeline{entry: ep, layout: desc.Layout, fn: fn}
	p.init(d)
	return p, nil
}

func (p *pipeline) EntryPoint() *vkc.EntryPoint {
	return p.entry
}

func (p *pipeline) Destroy() {
	p.release()
}

type resourceSet struct {
	object
	index    int
	pipeline *pipeline
	buffers  map[int]*buffer
}

func (d *Device) CreateResourceSet(desc *vkc.ResourceSetDescriptor) (vkc.ResourceSet, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	p, ok := desc.Pipeline.(*pipeline)
	if !ok || p.device != d {
		return nil, fmt.Errorf("resource set %q: pipeline belongs to another device", desc.Label)
	}
	slots := p.layout.InSet(desc.Set)
	if len(slots) == 0 {
		return nil, fmt.Errorf("resource set %q: layout has no set %d", desc.Label, desc.Set)
	}
	if len(desc.Buffers) != len(slots) {
		return nil, fmt.Errorf("resource set %q: %d buffers for %d bindings", desc.Label, len(desc.Buffers), len(slots))
	}

	set := &resourceSet{index: desc.Set, pipeline: p, buffers: make(map[int]*buffer)}
	for _, bb := range desc.Buffers {
		slot, ok := slots.Lookup(desc.Set, bb.Binding)
		if !ok {
			return nil, fmt.Errorf("resource set %q: layout has no binding %d", desc.Label, bb.Binding)
		}
		if !slot.Kind.IsBuffer() {
			return nil, fmt.Errorf("resource set %q: binding %d is a %s", desc.Label, bb.Binding, slot.Kind)
		}
		buf, ok := bb.Buffer.(*buffer)
		if !ok || buf.device != d {
			return nil, fmt.Errorf("resource set %q: buffer at binding %d belongs to another device", desc.Label, bb.Binding)
		}
		if slot.Kind == vkc.KindStorageBuffer && buf.usage&vkc.BufferUsageStorage == 0 {
			return nil, fmt.Errorf("resource set %q: buffer %q lacks storage usage", desc.Label, buf.label)
		}
		set.buffers[bb.Binding] = buf
	}
	set.init(d)
	return set, nil
}

func (s *resourceSet) Index() int {
	return s.index
}

func (s *resourceSet) Destroy() {
	s.release()
}

// queryPool values become available when the timestamp command writing them executes.
type queryPool struct {
	object

	mu        sync.Mutex
	cond      *sync.Cond
	values    []uint64
	available []bool
	// inflight counts submitted sequences writing to the pool which have not finished.
	inflight int
}

func (d *Device) CreateQueryPool(count int) (vkc.QueryPool, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if d.adapter.cfg.TimestampPeriod <= 0 || d.family.TimestampValidBits == 0 {
		return nil, fmt.Errorf("%w: family %d of %s", vkc.ErrTimestampsUnsupported, d.family.Index, d.adapter.cfg.Name)
	}
	if count <= 0 {
		return nil, fmt.Errorf("query pool: count %d", count)
	}
	q := &queryPool{values: make([]uint64, count), available: make([]bool, count)}
	q.cond = sync.NewCond(&q.mu)
	q.init(d)
	return q, nil
}

func (q *queryPool) Count() int {
	return len(q.values)
}

func (q *queryPool) Results(first, count int, wait bool) ([]uint64, error) {
	if first < 0 || count < 0 || first+count > len(q.values) {
		return nil, fmt.Errorf("query range [%d, %d) exceeds pool of %d", first, first+count, len(q.values))
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		ready := true
		for i := first; i < first+count; i++ {
			ready = ready && q.available[i]
		}
		if ready {
			return append([]uint64(nil), q.values[first:first+count]...), nil
		}
		if !wait || q.inflight == 0 {
			return nil, fmt.Errorf("%w: queries [%d, %d)", vkc.ErrQueryResultsUnavailable, first, first+count)
		}
		q.cond.Wait()
	}
}

func (q *queryPool) reset(first, count int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := first; i < first+count; i++ {
		q.available[i] = false
	}
}

func (q *queryPool) write(slot int, v uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.values[slot] = v
	q.available[slot] = true
	q.cond.Broadcast()
}

func (q *queryPool) track(delta int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inflight += delta
	q.cond.Broadcast()
}

func (q *queryPool) Destroy() {
	q.release()
}
