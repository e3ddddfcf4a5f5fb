package vkc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Job is one dispatch of a kernel over a buffer.
type Job struct {
	Kernel *Kernel
	Entry  string
	// Schema, when set, is validated against the entry point's resources.
	Schema ResourceLayout
	// Elements is the buffer length, the buffer starts as 0..Elements-1. Values replaces that
	// initial content when set.
	Elements int
	Values   []uint32

	Groups       uint32
	Strict       bool
	TimeDispatch bool
	// Untimed skips the timestamp queries.
	Untimed bool
	// Reuse keeps the resources in the runner's cache for the next job with the same kernel,
	// entry point and length.
	Reuse bool
}

func (j *Job) length() int {
	if j.Values != nil {
		return len(j.Values)
	}
	return j.Elements
}

func (j *Job) initial() []uint32 {
	if j.Values != nil {
		return j.Values
	}
	values := make([]uint32, j.Elements)
	for i := range values {
		values[i] = uint32(i)
	}
	return values
}

// Result is what a job produced. Timing is nil for untimed jobs.
type Result struct {
	Values   []uint32
	Timing   *Timing
	Dispatch Dispatch
	Cached   bool
}

// RunnerOptions configure a Runner.
type RunnerOptions struct {
	// WaitTimeout bounds the wait for completion, zero waits without bound.
	WaitTimeout time.Duration
}

// Runner runs the whole pipeline for a job: allocate, build, bind, record, submit, wait and read
// back. It is not safe for concurrent use.
type Runner struct {
	dc    *DeviceContext
	opts  RunnerOptions
	cache *Cache
}

func NewRunner(dc *DeviceContext, opts RunnerOptions) *Runner {
	return &Runner{dc: dc, opts: opts, cache: NewCache()}
}

// Cache returns the cache used for jobs with Reuse set.
func (r *Runner) Cache() *Cache {
	return r.cache
}

// Close destroys the cached resources. The device context is left to the caller.
func (r *Runner) Close() {
	r.cache.Close()
}

// Run executes job.
func (r *Runner) Run(ctx context.Context, job Job) (*Result, error) {
	if job.Kernel == nil {
		return nil, fmt.Errorf("%w: job has no kernel", ErrMalformedKernelBinary)
	}
	if job.Entry == "" {
		job.Entry = PrimeEntryPoint
	}
	key := CacheKey{KernelID: job.Kernel.ID, Entry: job.Entry, Elements: job.length()}
	log := Logger().WithFields(logrus.Fields{"entry": job.Entry, "elements": key.Elements})

	res, cached, err := r.acquire(key, &job)
	if err != nil {
		return nil, err
	}
	// Nothing the device may still be using is destroyed when the wait is abandoned.
	pending := false
	if !job.Reuse {
		defer func() {
			if !pending {
				res.Destroy()
			}
		}()
	}

	queries := res.Queries
	if job.Untimed {
		queries = nil
	}
	seq, d, err := Record(r.dc, RecordOptions{
		Pipeline:     res.Pipeline,
		Set:          res.Set,
		Buffer:       res.Buffer,
		Queries:      queries,
		Groups:       job.Groups,
		Strict:       job.Strict,
		TimeDispatch: job.TimeDispatch,
	})
	if err != nil {
		return nil, err
	}

	completion, err := Submit(r.dc, seq)
	if err != nil {
		seq.Destroy()
		return nil, err
	}
	if r.opts.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.WaitTimeout)
		defer cancel()
	}
	if err := completion.Wait(ctx); err != nil {
		pending = true
		if job.Reuse {
			r.cache.Forget(key)
		}
		return nil, err
	}
	completion.Destroy()
	seq.Destroy()

	result := &Result{Dispatch: d, Cached: cached}
	if queries != nil {
		t, err := ReadTimestamps(r.dc, queries)
		if err != nil {
			return nil, err
		}
		result.Timing = &t
		log.Infof("dispatch took %s", t)
	}
	if result.Values, err = ReadElements(res.Buffer); err != nil {
		return nil, err
	}
	log.WithField("cached", cached).Infof("completed %s", d)
	return result, nil
}

// acquire returns the resources for job, from the cache when job.Reuse is set.
func (r *Runner) acquire(key CacheKey, job *Job) (*Resources, bool, error) {
	if job.Reuse {
		if res, ok := r.cache.Get(key); ok {
			if job.Schema != nil {
				if err := job.Schema.Validate(res.Pipeline.EntryPoint.Layout); err != nil {
					return nil, false, fmt.Errorf("entry point %s: %w", job.Entry, err)
				}
			}
			if err := res.Buffer.Fill(job.initial()); err != nil {
				return nil, false, err
			}
			if res.Queries == nil && !job.Untimed && r.dc.SupportsTimestamps() {
				q, err := CreateTimestampQueries(r.dc)
				if err != nil {
					return nil, false, err
				}
				res.Queries = q
			}
			return res, true, nil
		}
	}
	res, err := r.prepare(job)
	if err != nil {
		return nil, false, err
	}
	if job.Reuse {
		r.cache.Put(key, res)
	}
	return res, false, nil
}

func (r *Runner) prepare(job *Job) (res *Resources, err error) {
	if err := checkElements(job.length()); err != nil {
		return nil, err
	}
	res = &Resources{}
	defer func() {
		if err != nil {
			res.Destroy()
		}
	}()

	if res.Buffer, err = AllocateElements(r.dc, job.initial()); err != nil {
		return res, err
	}
	if res.Pipeline, err = BuildPipeline(r.dc, job.Kernel, job.Entry, job.Schema); err != nil {
		return res, err
	}
	if res.Set, err = BindResources(r.dc, res.Pipeline, res.Buffer); err != nil {
		return res, err
	}
	if !job.Untimed {
		res.Queries, err = CreateTimestampQueries(r.dc)
		if errors.Is(err, ErrTimestampsUnsupported) {
			Logger().Warn("timestamps are not supported, running untimed")
			err = nil
		}
		if err != nil {
			return res, err
		}
	}
	return res, nil
}
