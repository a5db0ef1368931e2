package seccomp

import (
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

func fileSyscalls(b *Builder) *Builder {
	return b.Allow(
		"read", "write", "readv", "writev", "pread64", "pwrite64",
		"open", "openat", "openat2", "close", "close_range", "lseek",
		"stat", "fstat", "lstat", "newfstatat", "statx", "statfs", "fstatfs",
		"access", "faccessat", "faccessat2",
		"dup", "dup2", "dup3", "fcntl", "flock",
		"pipe", "pipe2",
		"readlink", "readlinkat", "getdents", "getdents64",
		"chdir", "fchdir", "getcwd", "umask",
		"chmod", "fchmod", "fchmodat",
		"rename", "renameat", "renameat2",
		"unlink", "unlinkat", "mkdir", "mkdirat", "rmdir",
		"symlink", "symlinkat", "link", "linkat",
		"ftruncate", "fallocate", "fsync", "fdatasync",
		"utimensat", "copy_file_range", "sendfile",
		"poll", "ppoll", "select", "pselect6",
		"epoll_create", "epoll_create1", "epoll_ctl", "epoll_wait", "epoll_pwait",
		"eventfd2", "ioctl",
	)
}

// Compilers fork helper processes (cc1, as, ld) and the JVM spins up many
// threads, so process and thread management is broad.
func processSyscalls(b *Builder) *Builder {
	return b.Allow(
		"brk", "mmap", "munmap", "mprotect", "mremap", "madvise", "membarrier",
		"execve", "execveat", "exit", "exit_group",
		"clone", "clone3", "fork", "vfork", "wait4", "waitid", "kill", "tgkill",
		"set_tid_address", "set_robust_list", "get_robust_list", "rseq",
		"futex", "futex_waitv", "gettid", "sched_yield",
		"sched_getaffinity", "sched_setaffinity", "sched_getparam", "sched_getscheduler",
		"rt_sigaction", "rt_sigprocmask", "rt_sigreturn", "rt_sigtimedwait", "sigaltstack",
		"getpid", "getppid", "getpgrp", "getuid", "geteuid", "getgid", "getegid", "getgroups",
		"getresuid", "getresgid", "uname", "sysinfo",
		"getrlimit", "setrlimit", "prlimit64", "getrusage", "times",
		"arch_prctl", "prctl", "getrandom", "memfd_create",
		"clock_gettime", "clock_getres", "gettimeofday", "time",
		"nanosleep", "clock_nanosleep",
	)
}

func forbiddenSyscalls(b *Builder) *Builder {
	return b.
		Kill(
			"ptrace", "process_vm_readv", "process_vm_writev",
			"bpf", "perf_event_open", "userfaultfd",
			"kexec_load", "kexec_file_load",
			"init_module", "finit_module", "delete_module",
		).
		Deny(
			"socket", "socketpair", "connect", "bind", "listen", "accept", "accept4",
			"mount", "umount2", "pivot_root", "chroot",
			"setns", "unshare", "reboot", "swapon", "swapoff",
			"sethostname", "setdomainname", "settimeofday", "adjtimex", "clock_adjtime",
			"keyctl", "add_key", "request_key", "acct", "iopl", "ioperm",
		)
}

// ToolchainProfile returns the filter used for compilers, interpreters and
// the analysis tools that inspect submissions. Networking is refused.
func ToolchainProfile() *specs.LinuxSeccomp {
	b := NewBuilder()
	b = fileSyscalls(b)
	b = processSyscalls(b)
	b = forbiddenSyscalls(b)
	return b.Build()
}
