//go:build !linux

package cluster

import "syscall"

// workerSysProcAttr has no parent-death signal off Linux; orphaned workers
// keep running until stopped.
func workerSysProcAttr() *syscall.SysProcAttr { return nil }
