package sandbox

import (
	"fmt"

	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// ResourceLimits bounds a containerised invocation. Process isolation ignores them.
type ResourceLimits struct {
	CPUShares int64 `yaml:"cpu_shares"` // 1024 = 1 CPU core
	MemoryMB  int64 `yaml:"memory_mb"`  // Hard memory limit
	PidsLimit int64 `yaml:"pids_limit"` // Max processes (fork bomb protection)
	DiskMB    int64 `yaml:"disk_mb"`    // Tmpfs size for /tmp
}

// DefaultLimits fits a compiler plus a short student program. The JVM needs
// more threads than the pid limit of a plain interpreter would allow.
func DefaultLimits() ResourceLimits {
	return ResourceLimits{
		CPUShares: 1024,
		MemoryMB:  512,
		PidsLimit: 128,
		DiskMB:    64,
	}
}

func (rl ResourceLimits) Validate() error {
	if rl.CPUShares < 2 || rl.CPUShares > 8192 {
		return fmt.Errorf("%w: cpu_shares must be 2-8192, got %d", ErrInvalidLimits, rl.CPUShares)
	}
	if rl.MemoryMB < 32 || rl.MemoryMB > 8192 {
		return fmt.Errorf("%w: memory_mb must be 32-8192, got %d", ErrInvalidLimits, rl.MemoryMB)
	}
	if rl.PidsLimit < 8 || rl.PidsLimit > 1024 {
		return fmt.Errorf("%w: pids_limit must be 8-1024, got %d", ErrInvalidLimits, rl.PidsLimit)
	}
	if rl.DiskMB < 1 || rl.DiskMB > 2048 {
		return fmt.Errorf("%w: disk_mb must be 1-2048, got %d", ErrInvalidLimits, rl.DiskMB)
	}
	return nil
}

// DockerArgs renders the limits as docker run flags.
func (rl ResourceLimits) DockerArgs() []string {
	return []string{
		"--memory", fmt.Sprintf("%dm", rl.MemoryMB),
		"--memory-swap", fmt.Sprintf("%dm", rl.MemoryMB),
		"--pids-limit", fmt.Sprintf("%d", rl.PidsLimit),
		"--cpus", fmt.Sprintf("%.2f", float64(rl.CPUShares)/1024.0),
		"--tmpfs", fmt.Sprintf("/tmp:rw,nosuid,nodev,size=%dm", rl.DiskMB),
	}
}

// ApplyResourceLimits writes the limits into an OCI spec as a CFS quota,
// memory, pids and rlimits.
func ApplyResourceLimits(spec *specs.Spec, limits ResourceLimits) {
	if spec.Linux == nil {
		spec.Linux = &specs.Linux{}
	}
	if spec.Linux.Resources == nil {
		spec.Linux.Resources = &specs.LinuxResources{}
	}

	period := uint64(100000) // 100ms in microseconds
	quota := int64(float64(limits.CPUShares) / 1024.0 * float64(period))
	if quota < 1000 {
		quota = 1000
	}
	spec.Linux.Resources.CPU = &specs.LinuxCPU{
		Period: &period,
		Quota:  &quota,
	}

	memoryBytes := limits.MemoryMB * 1024 * 1024
	spec.Linux.Resources.Memory = &specs.LinuxMemory{
		Limit: &memoryBytes,
		Swap:  &memoryBytes,
	}

	spec.Linux.Resources.Pids = &specs.LinuxPids{
		Limit: limits.PidsLimit,
	}

	tmpfsBytes := limits.DiskMB * 1024 * 1024
	spec.Mounts = appendIfNotExists(spec.Mounts, specs.Mount{
		Destination: "/tmp",
		Type:        "tmpfs",
		Source:      "tmpfs",
		Options: []string{
			"nosuid", "nodev",
			fmt.Sprintf("size=%d", tmpfsBytes),
			"mode=1777",
		},
	})

	if spec.Process == nil {
		spec.Process = &specs.Process{}
	}
	spec.Process.Rlimits = []specs.POSIXRlimit{
		{Type: "RLIMIT_NOFILE", Hard: 1024, Soft: 1024},
		{Type: "RLIMIT_NPROC", Hard: safeUint64(limits.PidsLimit), Soft: safeUint64(limits.PidsLimit)},
		{Type: "RLIMIT_CORE", Hard: 0, Soft: 0},
	}
}

func safeUint64(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

func appendIfNotExists(mounts []specs.Mount, m specs.Mount) []specs.Mount {
	for _, existing := range mounts {
		if existing.Destination == m.Destination {
			return mounts
		}
	}
	return append(mounts, m)
}
