// Pool configuration - worker processes, admission queue, idle reclamation.
package config

import (
	"fmt"
	"runtime"
	"time"
)

const (
	// DefaultMaxClusterSize caps the auto-detected worker count.
	DefaultMaxClusterSize = 8

	// UnboundedQueue disables the queued request limit.
	UnboundedQueue = -1
)

// ClusterConfig controls the worker process pool.
type ClusterConfig struct {
	Size    int `yaml:"size"`     // Explicit worker count, 0 = auto
	MaxSize int `yaml:"max_size"` // Cap for the auto-detected count
}

// Validate checks cluster settings.
func (c ClusterConfig) Validate() error {
	if c.Size < 0 {
		return fmt.Errorf("cluster.size must be >= 0")
	}
	if c.MaxSize < 1 {
		return fmt.Errorf("cluster.max_size must be >= 1")
	}
	return nil
}

// Workers returns the effective pool size: Size when set, else min(NumCPU, MaxSize).
func (c ClusterConfig) Workers() int {
	if c.Size > 0 {
		return c.Size
	}
	return min(runtime.NumCPU(), c.MaxSize)
}

// AdmissionConfig bounds in-flight requests per worker.
// A nil ActiveLimit turns admission control off.
type AdmissionConfig struct {
	ActiveLimit *int `yaml:"active_limit"` // Concurrently processed requests
	QueuedLimit int  `yaml:"queued_limit"` // Waiting requests, -1 = unbounded
}

// Enabled reports whether admission control is on.
func (a AdmissionConfig) Enabled() bool {
	return a.ActiveLimit != nil
}

// Validate checks admission settings.
func (a AdmissionConfig) Validate() error {
	// Leave active_limit unset to turn admission off; zero would admit nothing.
	if a.ActiveLimit != nil && *a.ActiveLimit < 1 {
		return fmt.Errorf("admission.active_limit must be >= 1 (unset disables admission), got %d", *a.ActiveLimit)
	}
	if a.QueuedLimit < UnboundedQueue {
		return fmt.Errorf("admission.queued_limit must be >= -1")
	}
	return nil
}

// ReclaimConfig controls the idle memory reclaimer.
type ReclaimConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"` // Poll period
	MinIdle  time.Duration `yaml:"min_idle"` // Exclusive lower bound of the idle window
	MaxIdle  time.Duration `yaml:"max_idle"` // Exclusive upper bound of the idle window
}

// Validate checks reclaimer settings.
func (r ReclaimConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	if r.Interval <= 0 {
		return fmt.Errorf("reclaim.interval must be positive")
	}
	if r.MinIdle < 0 || r.MaxIdle <= r.MinIdle {
		return fmt.Errorf("reclaim window invalid: min_idle=%s max_idle=%s", r.MinIdle, r.MaxIdle)
	}
	return nil
}
