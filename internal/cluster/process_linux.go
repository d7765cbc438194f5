//go:build linux

package cluster

import "syscall"

// workerSysProcAttr makes the kernel send SIGTERM to a worker whose
// supervisor dies without reaping it.
func workerSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Pdeathsig: syscall.SIGTERM}
}
