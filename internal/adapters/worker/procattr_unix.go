//go:build unix

package worker

import "syscall"

// sysProcAttr puts the worker in its own process group so signals aimed at the
// server's group do not reach it.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
