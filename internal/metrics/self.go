package metrics

import (
	"os"

	"github.com/shirou/gopsutil/v4/process"
)

// SelfUsage is a snapshot of the daemon's own resource use.
type SelfUsage struct {
	PID        int32   `json:"pid"`
	CPUPercent float64 `json:"cpu_percent"`
	MemoryMB   float64 `json:"memory_mb"`
	NumThreads int32   `json:"num_threads"`
}

// Self samples the current process. Fields that cannot be read stay zero.
func Self() (SelfUsage, error) {
	pid := int32(os.Getpid())
	p, err := process.NewProcess(pid)
	if err != nil {
		return SelfUsage{PID: pid}, err
	}
	u := SelfUsage{PID: pid}
	if cpu, err := p.CPUPercent(); err == nil {
		u.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		u.MemoryMB = float64(mem.RSS) / 1024 / 1024
	}
	if n, err := p.NumThreads(); err == nil {
		u.NumThreads = n
	}
	return u, nil
}
