package software

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/celer/vkc"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrDeviceLost is returned by fence waits when executing a submission failed.
var ErrDeviceLost = errors.New("software: device lost")

type opcode int

const (
	cmdResetQueries opcode = iota
	cmdBindPipeline
	cmdTimestamp
	cmdBindSet
	cmdDispatch
)

type command struct {
	op       opcode
	pool     *queryPool
	first    int
	count    int
	pipeline *pipeline
	set      *resourceSet
	groups   [3]uint32
}

// sequence is a one-time-submit command sequence.
type sequence struct {
	object
	commands  []command
	err       error
	ended     bool
	submitted bool
}

func (d *Device) CreateCommandSequence() (vkc.CommandSequence, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	s := &sequence{}
	s.init(d)
	return s, nil
}

func (s *sequence) record(c command) {
	if s.err != nil {
		return
	}
	if s.ended {
		s.err = fmt.Errorf("%w: sequence already ended", vkc.ErrRecordingFailed)
		return
	}
	s.commands = append(s.commands, c)
}

func (s *sequence) fail(format string, args ...any) {
	if s.err == nil {
		s.err = fmt.Errorf("%w: "+format, append([]any{vkc.ErrRecordingFailed}, args...)...)
	}
}

func (s *sequence) pool(p vkc.QueryPool) *queryPool {
	q, ok := p.(*queryPool)
	if !ok || q.device != s.device {
		s.fail("query pool belongs to another device")
		return nil
	}
	return q
}

func (s *sequence) ResetQueryPool(p vkc.QueryPool, first, count int) {
	q := s.pool(p)
	if q == nil {
		return
	}
	if first < 0 || count < 0 || first+count > len(q.values) {
		s.fail("reset of queries [%d, %d) exceeds pool of %d", first, first+count, len(q.values))
		return
	}
	s.record(command{op: cmdResetQueries, pool: q, first: first, count: count})
}

func (s *sequence) BindPipeline(p vkc.Pipeline) {
	pl, ok := p.(*pipeline)
	if !ok || pl.device != s.device {
		s.fail("pipeline belongs to another device")
		return
	}
	s.record(command{op: cmdBindPipeline, pipeline: pl})
}

func (s *sequence) WriteTimestamp(stage vkc.PipelineStage, p vkc.QueryPool, slot int) {
	q := s.pool(p)
	if q == nil {
		return
	}
	if slot < 0 || slot >= len(q.values) {
		s.fail("timestamp slot %d exceeds pool of %d", slot, len(q.values))
		return
	}
	s.record(command{op: cmdTimestamp, pool: q, first: slot})
}

func (s *sequence) BindResourceSet(p vkc.Pipeline, set vkc.ResourceSet) {
	rs, ok := set.(*resourceSet)
	if !ok || rs.device != s.device {
		s.fail("resource set belongs to another device")
		return
	}
	pl, ok := p.(*pipeline)
	if !ok || rs.pipeline != pl {
		s.fail("resource set %d was created for another pipeline", rs.index)
		return
	}
	s.record(command{op: cmdBindSet, set: rs})
}

func (s *sequence) Dispatch(x, y, z uint32) {
	if x == 0 || y == 0 || z == 0 {
		s.fail("dispatch of (%d, %d, %d) groups", x, y, z)
		return
	}
	s.record(command{op: cmdDispatch, groups: [3]uint32{x, y, z}})
}

func (s *sequence) End() error {
	if s.err != nil {
		return s.err
	}
	if s.ended {
		return fmt.Errorf("%w: sequence already ended", vkc.ErrRecordingFailed)
	}
	// Dispatch state is validated here, a real device would reject the sequence at this point.
	var bound *pipeline
	sets := map[int]*resourceSet{}
	for _, c := range s.commands {
		switch c.op {
		case cmdBindPipeline:
			bound = c.pipeline
		case cmdBindSet:
			sets[c.set.index] = c.set
		case cmdDispatch:
			if bound == nil {
				return fmt.Errorf("%w: dispatch without a bound pipeline", vkc.ErrRecordingFailed)
			}
			for _, set := range bound.layout.Sets() {
				if sets[set] == nil {
					return fmt.Errorf("%w: dispatch without resource set %d", vkc.ErrRecordingFailed, set)
				}
			}
		}
	}
	s.ended = true
	return nil
}

func (s *sequence) Destroy() {
	s.release()
}

type queue struct {
	device *Device
}

func (q *queue) Family() *vkc.QueueFamily {
	f := q.device.family
	return &f
}

func (q *queue) Submit(cs vkc.CommandSequence) (vkc.Fence, error) {
	d := q.device
	if err := d.check(); err != nil {
		return nil, err
	}
	s, ok := cs.(*sequence)
	if !ok || s.device != d {
		return nil, fmt.Errorf("%w: sequence belongs to another device", vkc.ErrSubmissionFailed)
	}
	if s.destroyed.Load() {
		return nil, fmt.Errorf("%w: sequence %w", vkc.ErrSubmissionFailed, errDestroyed)
	}
	if !s.ended {
		return nil, fmt.Errorf("%w: sequence was not ended", vkc.ErrSubmissionFailed)
	}
	if s.submitted {
		return nil, vkc.ErrSequenceConsumed
	}
	s.submitted = true

	pools := map[*queryPool]bool{}
	for _, c := range s.commands {
		if c.op == cmdTimestamp {
			pools[c.pool] = true
		}
	}
	for p := range pools {
		p.track(1)
	}

	f := &fence{done: make(chan struct{})}
	f.init(d)
	go func() {
		defer close(f.done)
		defer func() {
			for p := range pools {
				p.track(-1)
			}
		}()
		if gate := d.adapter.driver.opts.Gate; gate != nil {
			<-gate
		}
		if err := d.execute(s.commands); err != nil {
			vkc.Logger().WithError(err).Error("software device lost")
			f.err = fmt.Errorf("%w: %v", ErrDeviceLost, err)
		}
	}()
	return f, nil
}

func (d *Device) execute(commands []command) error {
	var bound *pipeline
	sets := map[int]*resourceSet{}
	for _, c := range commands {
		switch c.op {
		case cmdResetQueries:
			c.pool.reset(c.first, c.count)
		case cmdBindPipeline:
			bound = c.pipeline
		case cmdTimestamp:
			c.pool.write(c.first, d.ticks())
		case cmdBindSet:
			sets[c.set.index] = c.set
		case cmdDispatch:
			if err := d.dispatch(bound, sets, c.groups); err != nil {
				return err
			}
		}
	}
	return nil
}

// dispatch runs every workgroup, up to Workers at a time. Buffers are locked for the whole
// dispatch so the host cannot observe partial results.
func (d *Device) dispatch(p *pipeline, sets map[int]*resourceSet, groups [3]uint32) (err error) {
	start := time.Now()
	bindings := Bindings{}
	locked := map[*buffer]bool{}
	for idx, set := range sets {
		for binding, buf := range set.buffers {
			if !locked[buf] {
				buf.mu.Lock()
				defer buf.mu.Unlock()
				locked[buf] = true
			}
			bindings[[2]int{idx, binding}] = &Storage{data: buf.data}
		}
	}

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(d.adapter.driver.opts.Workers)
	wg := p.entry.WorkgroupSize
	for z := uint32(0); z < groups[2]; z++ {
		for y := uint32(0); y < groups[1]; y++ {
			for x := uint32(0); x < groups[0]; x++ {
				id := [3]uint32{x, y, z}
				g.Go(func() error {
					if ctx.Err() != nil {
						return nil
					}
					return runWorkgroup(p, bindings, id, wg)
				})
			}
		}
	}
	err = g.Wait()
	vkc.Logger().WithFields(logrus.Fields{
		"entry":  p.entry.Name,
		"groups": groups,
	}).Debugf("software dispatch took %s", time.Since(start))
	return err
}

func runWorkgroup(p *pipeline, b Bindings, group, wg [3]uint32) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("kernel %s panicked in workgroup %v: %v", p.entry.Name, group, r)
		}
	}()
	var inv Invocation
	inv.WorkgroupID = group
	for lz := uint32(0); lz < wg[2]; lz++ {
		for ly := uint32(0); ly < wg[1]; ly++ {
			for lx := uint32(0); lx < wg[0]; lx++ {
				inv.LocalID = [3]uint32{lx, ly, lz}
				inv.GlobalID = [3]uint32{group[0]*wg[0] + lx, group[1]*wg[1] + ly, group[2]*wg[2] + lz}
				p.fn(inv, b)
			}
		}
	}
	return nil
}

type fence struct {
	object
	done chan struct{}
	err  error
}

func (f *fence) Wait(timeout time.Duration) (bool, error) {
	switch {
	case timeout < 0:
		<-f.done
	case timeout == 0:
		select {
		case <-f.done:
		default:
			return false, nil
		}
	default:
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-f.done:
		case <-t.C:
			return false, nil
		}
	}
	if f.err != nil {
		return false, f.err
	}
	return true, nil
}

func (f *fence) Destroy() {
	f.release()
}
