//go:build unix

package engine

import (
	"os"
	"syscall"
)

// sysProcAttr starts the engine as the leader of a new process group, so
// anything it spawns can be signalled together with it.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// killGroup sends SIGKILL to the engine's whole process group.
func killGroup(p *os.Process) error {
	err := syscall.Kill(-p.Pid, syscall.SIGKILL)
	if err == syscall.ESRCH {
		return os.ErrProcessDone
	}
	return err
}
