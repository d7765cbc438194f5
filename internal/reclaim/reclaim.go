// Package reclaim returns memory to the OS while a worker sits idle.
//
// DESIGN: Every Interval the reclaimer compares the time since the last
// admitted request with a window. Strictly inside (MinIdle, MaxIdle) one hint
// is issued per poll; a busy worker or one idle for long is left alone, since
// a long-idle worker has already been reclaimed.
package reclaim

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/Rushs321/suko/internal/config"
)

// Reclaimer polls an IdleTracker and fires a Hinter inside the idle window.
type Reclaimer struct {
	tracker *IdleTracker
	hinter  Hinter
	cfg     config.ReclaimConfig
	cron    *cron.Cron
}

// New creates a Reclaimer. Call Start to begin polling.
func New(tracker *IdleTracker, hinter Hinter, cfg config.ReclaimConfig) *Reclaimer {
	return &Reclaimer{
		tracker: tracker,
		hinter:  hinter,
		cfg:     cfg,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Check runs one poll and reports whether a hint was issued.
func (r *Reclaimer) Check() bool {
	idle := r.tracker.Idle()
	if idle <= r.cfg.MinIdle || idle >= r.cfg.MaxIdle {
		return false
	}
	started := r.hinter.Hint()
	log.Debug().
		Dur("idle", idle).
		Bool("started", started).
		Msg("idle memory reclamation")
	return true
}

// Start schedules Check every cfg.Interval. A disabled reclaimer does nothing.
func (r *Reclaimer) Start() error {
	if !r.cfg.Enabled {
		return nil
	}
	spec := fmt.Sprintf("@every %s", r.cfg.Interval)
	if _, err := r.cron.AddFunc(spec, func() { r.Check() }); err != nil {
		return fmt.Errorf("schedule reclaimer %q: %w", spec, err)
	}
	r.cron.Start()
	return nil
}

// Stop halts polling and waits for a running poll to finish.
func (r *Reclaimer) Stop() {
	<-r.cron.Stop().Done()
}
