// Package cluster keeps a fixed number of worker processes running.
//
// DESIGN: The supervisor never serves requests. It starts Size workers and
// waits; whenever one exits, for any reason, a replacement is spawned into the
// same slot immediately. There is no restart limit. On shutdown every worker
// gets SIGTERM, and workers still alive after the shutdown timeout are killed.
package cluster

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultShutdownTimeout = 30 * time.Second
	defaultSpawnRetryDelay = time.Second
)

type exit struct {
	id   int
	proc Process // nil when the spawn itself failed
	err  error
}

// Supervisor runs and restarts worker processes.
type Supervisor struct {
	size            int
	spawner         Spawner
	shutdownTimeout time.Duration
	spawnRetryDelay time.Duration

	mu       sync.Mutex
	procs    map[int]Process
	spawned  atomic.Int64
	restarts atomic.Int64

	exits   chan exit
	stopped chan struct{}
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithShutdownTimeout bounds how long Run waits for workers after SIGTERM.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Supervisor) { s.shutdownTimeout = d }
}

// WithSpawnRetryDelay sets the pause before retrying a slot whose spawn failed.
// Exits of running workers are always replaced immediately.
func WithSpawnRetryDelay(d time.Duration) Option {
	return func(s *Supervisor) { s.spawnRetryDelay = d }
}

// NewSupervisor creates a supervisor for size workers.
func NewSupervisor(size int, spawner Spawner, opts ...Option) *Supervisor {
	if size < 1 {
		size = 1
	}
	s := &Supervisor{
		size:            size,
		spawner:         spawner,
		shutdownTimeout: defaultShutdownTimeout,
		spawnRetryDelay: defaultSpawnRetryDelay,
		procs:           make(map[int]Process, size),
		exits:           make(chan exit),
		stopped:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run starts the workers and keeps the pool full until ctx is canceled.
func (s *Supervisor) Run(ctx context.Context) error {
	log.Info().Int("workers", s.size).Int("pid", os.Getpid()).Msg("supervisor started")
	for id := 1; id <= s.size; id++ {
		s.start(id)
	}

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case e := <-s.exits:
			if e.proc == nil {
				s.start(e.id)
				continue
			}
			s.forget(e.id, e.proc)
			log.Warn().
				Err(e.err).
				Int("worker", e.id).
				Int("pid", e.proc.Pid()).
				Msg("worker exited, respawning")
			s.start(e.id)
			s.restarts.Add(1)
		}
	}
}

// Live returns the number of running workers.
func (s *Supervisor) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}

// Spawned returns how many workers were started in total.
func (s *Supervisor) Spawned() int { return int(s.spawned.Load()) }

// Restarts returns how many worker exits were replaced.
func (s *Supervisor) Restarts() int { return int(s.restarts.Load()) }

func (s *Supervisor) start(id int) {
	proc, err := s.spawner.Spawn(id)
	if err != nil {
		log.Error().Err(err).Int("worker", id).Dur("retry_in", s.spawnRetryDelay).Msg("failed to spawn worker")
		time.AfterFunc(s.spawnRetryDelay, func() { s.report(exit{id: id, err: err}) })
		return
	}

	s.spawned.Add(1)
	s.mu.Lock()
	s.procs[id] = proc
	s.mu.Unlock()
	log.Info().Int("worker", id).Int("pid", proc.Pid()).Msg("worker started")

	go func() {
		err := proc.Wait()
		s.report(exit{id: id, proc: proc, err: err})
	}()
}

// report delivers an exit to Run, or drops it once the supervisor has stopped.
func (s *Supervisor) report(e exit) {
	select {
	case s.exits <- e:
	case <-s.stopped:
	}
}

func (s *Supervisor) forget(id int, proc Process) {
	s.mu.Lock()
	if s.procs[id] == proc {
		delete(s.procs, id)
	}
	s.mu.Unlock()
}

func (s *Supervisor) shutdown() {
	defer close(s.stopped)

	s.mu.Lock()
	live := make(map[int]Process, len(s.procs))
	for id, p := range s.procs {
		live[id] = p
	}
	s.mu.Unlock()

	log.Info().Int("workers", len(live)).Msg("stopping workers")
	for id, p := range live {
		if err := p.Signal(syscall.SIGTERM); err != nil {
			log.Warn().Err(err).Int("worker", id).Msg("failed to signal worker")
		}
	}

	timer := time.NewTimer(s.shutdownTimeout)
	defer timer.Stop()
	for len(live) > 0 {
		select {
		case e := <-s.exits:
			if e.proc != nil && live[e.id] == e.proc {
				delete(live, e.id)
				s.forget(e.id, e.proc)
			}
		case <-timer.C:
			for id, p := range live {
				log.Warn().Int("worker", id).Int("pid", p.Pid()).Msg("worker did not stop in time, killing")
				_ = p.Signal(os.Kill)
				s.forget(id, p)
			}
			return
		}
	}
	log.Info().Msg("all workers stopped")
}
