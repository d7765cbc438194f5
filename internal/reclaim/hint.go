package reclaim

import (
	"runtime/debug"
	"sync/atomic"
)

// Hinter asks the runtime to give memory back to the OS.
type Hinter interface {
	Hint() bool
}

// MemoryHinter runs the release on a background goroutine. Hints arriving
// while one is still running are dropped.
type MemoryHinter struct {
	running atomic.Bool
	release func()
}

// NewHinter creates a MemoryHinter. release == nil uses debug.FreeOSMemory.
func NewHinter(release func()) *MemoryHinter {
	if release == nil {
		release = debug.FreeOSMemory
	}
	return &MemoryHinter{release: release}
}

// Hint starts a release unless one is in flight. It never blocks and
// reports whether a release was started.
func (h *MemoryHinter) Hint() bool {
	if !h.running.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer h.running.Store(false)
		h.release()
	}()
	return true
}
