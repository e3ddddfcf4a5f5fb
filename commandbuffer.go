package vkc

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// RecordOptions are the inputs of Record.
type RecordOptions struct {
	Pipeline *ComputePipeline
	Set      ResourceSet
	Buffer   *ElementBuffer
	// Queries receives the start and end timestamps in slots 0 and 1. Nil records no timestamps.
	Queries QueryPool
	// Groups fixes the workgroup count instead of deriving it from the buffer length.
	Groups uint32
	// Strict fails recording when the dispatch leaves elements unvisited.
	Strict bool
	// TimeDispatch writes the end timestamp after the dispatch instead of before it, so the
	// measured interval contains the kernel.
	TimeDispatch bool
}

// Record records the one-time command sequence of the pipeline:
//
//	reset queries 0..1
//	bind pipeline
//	timestamp 0, top of pipe
//	bind resource set 0
//	timestamp 1, bottom of pipe
//	dispatch (groups, 1, 1)
//
// The query steps are skipped without a query pool. With TimeDispatch the second timestamp
// follows the dispatch.
func Record(dc *DeviceContext, opts RecordOptions) (CommandSequence, Dispatch, error) {
	p := opts.Pipeline
	wg := p.WorkgroupSize()
	d := Dispatch{WorkgroupSize: wg, Groups: [3]uint32{GroupCount(opts.Buffer.Len, wg), 1, 1}}
	if opts.Groups != 0 {
		d.Groups[0] = opts.Groups
		d.Fixed = true
	}
	d.Coverage = NewCoverage(opts.Buffer.Len, wg, d.Groups[0])

	log := Logger().WithFields(logrus.Fields{"groups": d.Groups[0], "workgroup": wg})
	if !d.Coverage.Complete() {
		if opts.Strict {
			return nil, d, fmt.Errorf("%w: %s", ErrIncompleteCoverage, d.Coverage)
		}
		log.Warnf("dispatch leaves %d of %d elements unvisited", d.Coverage.Unvisited, d.Coverage.Elements)
	}
	if opts.Queries != nil && opts.Queries.Count() < QuerySlots {
		return nil, d, fmt.Errorf("%w: pool has %d slots, need %d", ErrQueryPoolFailed, opts.Queries.Count(), QuerySlots)
	}

	seq, err := dc.Device.CreateCommandSequence()
	if err != nil {
		return nil, d, fmt.Errorf("%w: %v", ErrRecordingFailed, err)
	}

	q := opts.Queries
	if q != nil {
		seq.ResetQueryPool(q, 0, QuerySlots)
	}
	seq.BindPipeline(p.Pipeline)
	if q != nil {
		seq.WriteTimestamp(StageTopOfPipe, q, 0)
	}
	seq.BindResourceSet(p.Pipeline, opts.Set)
	if q != nil && !opts.TimeDispatch {
		seq.WriteTimestamp(StageBottomOfPipe, q, 1)
	}
	seq.Dispatch(d.Groups[0], d.Groups[1], d.Groups[2])
	if q != nil && opts.TimeDispatch {
		seq.WriteTimestamp(StageBottomOfPipe, q, 1)
	}

	if err := seq.End(); err != nil {
		seq.Destroy()
		if errors.Is(err, ErrRecordingFailed) {
			return nil, d, err
		}
		return nil, d, fmt.Errorf("%w: %v", ErrRecordingFailed, err)
	}
	log.Debugf("recorded dispatch, %s", d.Coverage)
	return seq, d, nil
}
