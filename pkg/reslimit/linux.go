//go:build linux

package reslimit

import (
	"fmt"

	cgroupsv1 "github.com/containerd/cgroups"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/ecomter/estarter/pkg/log"
)

// cgroupHandle is the Linux control-group-style implementation: a
// per-app cgroup v1 group carrying a memory limit, a pids limit, and a
// CFS quota/period pair.
type cgroupHandle struct {
	cg cgroupsv1.Cgroup
}

const cpuPeriodUs = uint64(100_000)

func acquirePlatform(name string, limits Limits) (Handle, error) {
	resources := &specs.LinuxResources{}

	if limits.MemoryLimitBytes > 0 {
		mem := limits.MemoryLimitBytes
		resources.Memory = &specs.LinuxMemory{Limit: &mem}
	}
	if limits.MaxProcesses > 0 {
		pids := int64(limits.MaxProcesses)
		resources.Pids = &specs.LinuxPids{Limit: pids}
	}
	if limits.CPUQuotaPercent > 0 {
		quota := int64(uint64(limits.CPUQuotaPercent) * cpuPeriodUs / 100)
		period := cpuPeriodUs
		resources.CPU = &specs.LinuxCPU{Quota: &quota, Period: &period}
	}

	path := cgroupsv1.StaticPath("/estarter/" + name)
	cg, err := cgroupsv1.New(cgroupsv1.V1, path, resources)
	if err != nil {
		log.Warningf("reslimit: cgroup creation failed for %s, proceeding without OS-level limits: %v", name, err)
		return nil, ErrUnsupported
	}
	return &cgroupHandle{cg: cg}, nil
}

func (h *cgroupHandle) AddProcess(pid int) error {
	if err := h.cg.Add(cgroupsv1.Process{Pid: pid}); err != nil {
		return fmt.Errorf("adding pid %d to cgroup: %w", pid, err)
	}
	return nil
}

func (h *cgroupHandle) Dispose() error {
	if h.cg == nil {
		return nil
	}
	err := h.cg.Delete()
	h.cg = nil
	return err
}
