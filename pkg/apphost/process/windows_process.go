//go:build windows

package process

import (
	"os/exec"

	"golang.org/x/sys/windows"
)

// setProcessGroup is a no-op placeholder on Windows; process-tree
// control there goes through a job object (see pkg/reslimit), not a
// process group.
func setProcessGroup(cmd *exec.Cmd) {}

// requestGracefulShutdown has no portable equivalent of SIGTERM on
// Windows; this build relies on the resource-limiter job object's
// KILL_ON_JOB_CLOSE to tear the tree down once the graceful window
// elapses.
func requestGracefulShutdown(pid int) {}

func killProcessTree(pid int) error {
	proc, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		return err
	}
	defer windows.CloseHandle(proc)
	return windows.TerminateProcess(proc, 1)
}
