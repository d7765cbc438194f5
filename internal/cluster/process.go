package cluster

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// WorkerIDEnv carries the worker slot number into a spawned worker.
const WorkerIDEnv = "SUKO_WORKER_ID"

// Process is a running worker.
type Process interface {
	Pid() int
	Wait() error
	Signal(sig os.Signal) error
}

// Spawner starts the worker for slot id.
type Spawner interface {
	Spawn(id int) (Process, error)
}

// ExecSpawner re-executes a binary (normally the running one) as a worker.
type ExecSpawner struct {
	Path string   // executable, defaults to os.Executable()
	Args []string // arguments after the program name, e.g. {"worker", "--config", path}
	Env  []string // extra environment on top of os.Environ()
}

// Spawn starts one worker process sharing the supervisor's stdout and stderr.
func (s ExecSpawner) Spawn(id int) (Process, error) {
	path := s.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		path = exe
	}

	cmd := exec.Command(path, s.Args...)
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.Env = append(cmd.Env, WorkerIDEnv+"="+strconv.Itoa(id))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = workerSysProcAttr()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %d: %w", id, err)
	}
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Pid() int                   { return p.cmd.Process.Pid }
func (p *execProcess) Wait() error                { return p.cmd.Wait() }
func (p *execProcess) Signal(sig os.Signal) error { return p.cmd.Process.Signal(sig) }

// WorkerID returns the slot number of this process, 0 for the supervisor or a
// standalone worker.
func WorkerID() int {
	id, err := strconv.Atoi(os.Getenv(WorkerIDEnv))
	if err != nil {
		return 0
	}
	return id
}
