package reclaim

import (
	"sync/atomic"
	"time"
)

// IdleTracker records when the worker last admitted a request.
// Safe for concurrent use.
type IdleTracker struct {
	last atomic.Int64 // unix nanoseconds
	now  func() time.Time
}

// NewIdleTracker creates a tracker that starts as just touched.
// now == nil uses time.Now.
func NewIdleTracker(now func() time.Time) *IdleTracker {
	if now == nil {
		now = time.Now
	}
	t := &IdleTracker{now: now}
	t.Touch()
	return t
}

// Touch marks the worker as busy now.
func (t *IdleTracker) Touch() {
	t.last.Store(t.now().UnixNano())
}

// Idle returns the time since the last Touch.
func (t *IdleTracker) Idle() time.Duration {
	return t.now().Sub(time.Unix(0, t.last.Load()))
}
