package sandbox

import (
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"submission-grader/pkg/seccomp"
)

// SecurityProfile is the hardening applied to every containerised invocation.
type SecurityProfile struct {
	Seccomp       *specs.LinuxSeccomp
	Namespaces    []specs.LinuxNamespace
	MaskedPaths   []string
	ReadonlyPaths []string
	UID, GID      uint32
}

// SubmissionSecurityProfile drops all capabilities, isolates the network and
// filters syscalls with a profile broad enough for compilers and the JVM.
func SubmissionSecurityProfile() SecurityProfile {
	return SecurityProfile{
		Seccomp: seccomp.ToolchainProfile(),
		Namespaces: []specs.LinuxNamespace{
			{Type: specs.PIDNamespace},
			{Type: specs.NetworkNamespace},
			{Type: specs.MountNamespace},
			{Type: specs.UTSNamespace},
			{Type: specs.IPCNamespace},
		},
		MaskedPaths: []string{
			"/proc/acpi",
			"/proc/kcore",
			"/proc/keys",
			"/proc/timer_list",
			"/proc/sched_debug",
			"/sys/firmware",
		},
		ReadonlyPaths: []string{
			"/proc/bus",
			"/proc/fs",
			"/proc/irq",
			"/proc/sys",
			"/proc/sysrq-trigger",
		},
		UID: 65534,
		GID: 65534,
	}
}

// ApplySecurityProfile writes profile into spec. The root filesystem becomes
// read-only; only the bind-mounted work dir and /tmp are writable.
func ApplySecurityProfile(spec *specs.Spec, profile SecurityProfile) {
	if spec.Linux == nil {
		spec.Linux = &specs.Linux{}
	}
	if spec.Process == nil {
		spec.Process = &specs.Process{}
	}

	spec.Linux.Seccomp = profile.Seccomp
	spec.Process.Capabilities = &specs.LinuxCapabilities{}
	spec.Linux.Namespaces = profile.Namespaces
	spec.Linux.MaskedPaths = profile.MaskedPaths
	spec.Linux.ReadonlyPaths = profile.ReadonlyPaths

	spec.Process.NoNewPrivileges = true
	spec.Process.User = specs.User{UID: profile.UID, GID: profile.GID}

	if spec.Root != nil {
		spec.Root.Readonly = true
	}
}
