//go:build !windows

package process

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup puts the child in its own session so the whole tree
// can be signaled as a unit on stop (spec.md §4.4.1 "kill the entire
// process tree").
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// requestGracefulShutdown asks the process group to terminate. SIGTERM
// stands in for the platform "close main window" signal spec.md §4.4.1
// describes for the graceful path.
func requestGracefulShutdown(pid int) {
	_ = unix.Kill(-pid, unix.SIGTERM)
}

// killProcessTree forcibly terminates the process group.
func killProcessTree(pid int) error {
	return unix.Kill(-pid, unix.SIGKILL)
}
