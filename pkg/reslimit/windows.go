//go:build windows

package reslimit

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// jobHandle is the Windows job-object-style implementation: a job
// configured with KILL_ON_JOB_CLOSE, a memory ceiling, and an
// active-process limit, with the child process assigned into it.
// Dispose closes the job handle, which tears down every process still
// assigned to it.
type jobHandle struct {
	handle windows.Handle
}

func acquirePlatform(name string, limits Limits) (Handle, error) {
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: CreateJobObject: %v", ErrUnsupported, err)
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	if limits.MemoryLimitBytes > 0 {
		info.BasicLimitInformation.LimitFlags |= windows.JOB_OBJECT_LIMIT_PROCESS_MEMORY
		info.ProcessMemoryLimit = uintptr(limits.MemoryLimitBytes)
	}
	if limits.MaxProcesses > 0 {
		info.BasicLimitInformation.LimitFlags |= windows.JOB_OBJECT_LIMIT_ACTIVE_PROCESS
		info.BasicLimitInformation.ActiveProcessLimit = uint32(limits.MaxProcesses)
	}

	if err := windows.SetInformationJobObject(
		job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	); err != nil {
		windows.CloseHandle(job)
		return nil, fmt.Errorf("%w: SetInformationJobObject: %v", ErrUnsupported, err)
	}

	return &jobHandle{handle: job}, nil
}

func (h *jobHandle) AddProcess(pid int) error {
	proc, err := windows.OpenProcess(windows.PROCESS_ALL_ACCESS, false, uint32(pid))
	if err != nil {
		return fmt.Errorf("opening pid %d: %w", pid, err)
	}
	defer windows.CloseHandle(proc)
	return windows.AssignProcessToJobObject(h.handle, proc)
}

func (h *jobHandle) Dispose() error {
	if h.handle == 0 {
		return nil
	}
	err := windows.CloseHandle(h.handle)
	h.handle = 0
	return err
}
