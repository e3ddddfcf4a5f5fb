package vkc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// pollInterval bounds a single fence wait when the caller can cancel.
const pollInterval = 5 * time.Millisecond

// Submit submits seq to the selected queue. The returned Completion is signaled once the device
// finished executing it.
func Submit(dc *DeviceContext, seq CommandSequence) (*Completion, error) {
	fence, err := dc.Queue.Submit(seq)
	if err != nil {
		if errors.Is(err, ErrSequenceConsumed) || errors.Is(err, ErrSubmissionFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	Logger().WithField("family", dc.Family.Index).Debug("submitted command sequence")
	return &Completion{fence: fence, done: make(chan struct{})}, nil
}

// Completion is the awaitable completion signal of a submission. It goes from pending to
// signaled once. Abandoning a wait does not cancel the work on the device.
type Completion struct {
	fence    Fence
	signaled atomic.Bool

	once sync.Once
	done chan struct{}
	err  error
}

// Wait blocks until the submission completed or ctx ends. With a context that can never end
// the wait is unbounded.
func (c *Completion) Wait(ctx context.Context) error {
	if c.signaled.Load() {
		return nil
	}
	if ctx.Done() == nil {
		_, err := c.check(-1)
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrWaitFailed, err)
		}
		ok, err := c.check(pollInterval)
		if err != nil || ok {
			return err
		}
	}
}

// Poll reports whether the submission completed without blocking.
func (c *Completion) Poll() (bool, error) {
	if c.signaled.Load() {
		return true, nil
	}
	return c.check(0)
}

// Done returns a channel closed once the submission completed or waiting on it failed, Err
// tells which. The first call starts a goroutine watching the fence.
func (c *Completion) Done() <-chan struct{} {
	c.once.Do(func() {
		go func() {
			defer close(c.done)
			for {
				ok, err := c.check(pollInterval)
				if err != nil {
					c.err = err
					return
				}
				if ok {
					return
				}
			}
		}()
	})
	return c.done
}

// Err is the error that closed Done, nil if the submission completed.
func (c *Completion) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Completion) check(timeout time.Duration) (bool, error) {
	ok, err := c.fence.Wait(timeout)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrWaitFailed, err)
	}
	if ok {
		c.signaled.Store(true)
	}
	return ok, nil
}

// Destroy releases the fence. Only call it once the completion is signaled.
func (c *Completion) Destroy() {
	if c.fence != nil {
		c.fence.Destroy()
		c.fence = nil
	}
}
