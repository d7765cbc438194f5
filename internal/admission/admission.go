// Package admission bounds how many requests a worker processes at once.
//
// DESIGN: A weighted semaphore (FIFO) holds the active slots. Requests that
// cannot get a slot wait in arrival order; once QueuedLimit of them are
// waiting, further requests are rejected with ErrQueueFull instead of queueing.
package admission

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Unbounded disables the queue limit.
const Unbounded = -1

// ErrQueueFull is returned when the wait queue is at its limit.
var ErrQueueFull = errors.New("admission queue full")

// Controller admits requests into a fixed number of active slots.
type Controller struct {
	sem         *semaphore.Weighted
	activeLimit int
	queuedLimit int

	active atomic.Int64
	queued atomic.Int64
}

// New creates a Controller. queuedLimit == Unbounded lets every request wait.
// activeLimit must be at least 1; config.AdmissionConfig.Validate rejects
// smaller values and New raises them to 1. A nil *Controller admits everything.
func New(activeLimit, queuedLimit int) *Controller {
	if activeLimit < 1 {
		activeLimit = 1
	}
	return &Controller{
		sem:         semaphore.NewWeighted(int64(activeLimit)),
		activeLimit: activeLimit,
		queuedLimit: queuedLimit,
	}
}

// Acquire waits for an active slot. The returned release must be called
// exactly once when the request is done.
func (c *Controller) Acquire(ctx context.Context) (func(), error) {
	if c == nil {
		return func() {}, nil
	}

	if !c.sem.TryAcquire(1) {
		if c.queuedLimit != Unbounded {
			if c.queued.Add(1) > int64(c.queuedLimit) {
				c.queued.Add(-1)
				return nil, ErrQueueFull
			}
		} else {
			c.queued.Add(1)
		}
		err := c.sem.Acquire(ctx, 1)
		c.queued.Add(-1)
		if err != nil {
			return nil, err
		}
	}

	c.active.Add(1)
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			c.active.Add(-1)
			c.sem.Release(1)
		}
	}, nil
}

// Active returns the number of requests holding a slot.
func (c *Controller) Active() int {
	if c == nil {
		return 0
	}
	return int(c.active.Load())
}

// Queued returns the number of requests waiting for a slot.
func (c *Controller) Queued() int {
	if c == nil {
		return 0
	}
	return int(c.queued.Load())
}

// ActiveLimit returns the number of slots.
func (c *Controller) ActiveLimit() int {
	if c == nil {
		return 0
	}
	return c.activeLimit
}
