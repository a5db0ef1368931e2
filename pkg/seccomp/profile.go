// Package seccomp builds the syscall filters applied to sandboxed toolchains.
package seccomp

import (
	"encoding/json"
	"fmt"

	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Builder assembles a deny-by-default seccomp filter.
type Builder struct {
	profile *specs.LinuxSeccomp
}

func NewBuilder() *Builder {
	return &Builder{
		profile: &specs.LinuxSeccomp{
			DefaultAction: specs.ActErrno,
			Architectures: []specs.Arch{
				specs.ArchX86_64,
				specs.ArchX86,
				specs.ArchAARCH64,
			},
		},
	}
}

func (b *Builder) rule(action specs.LinuxSeccompAction, names []string) *Builder {
	if len(names) == 0 {
		return b
	}
	b.profile.Syscalls = append(b.profile.Syscalls, specs.LinuxSyscall{
		Names:  names,
		Action: action,
	})
	return b
}

// Allow permits the named syscalls.
func (b *Builder) Allow(names ...string) *Builder { return b.rule(specs.ActAllow, names) }

// Deny makes the named syscalls fail with EPERM.
func (b *Builder) Deny(names ...string) *Builder { return b.rule(specs.ActErrno, names) }

// Kill terminates the process on any of the named syscalls.
func (b *Builder) Kill(names ...string) *Builder { return b.rule(specs.ActKillProcess, names) }

func (b *Builder) Build() *specs.LinuxSeccomp {
	return b.profile
}

// Allowed reports whether p lets name through unconditionally.
func Allowed(p *specs.LinuxSeccomp, name string) bool {
	for _, rule := range p.Syscalls {
		if rule.Action != specs.ActAllow || len(rule.Args) > 0 {
			continue
		}
		for _, n := range rule.Names {
			if n == name {
				return true
			}
		}
	}
	return p.DefaultAction == specs.ActAllow
}

type dockerArg struct {
	Index    uint   `json:"index"`
	Value    uint64 `json:"value"`
	ValueTwo uint64 `json:"valueTwo"`
	Op       string `json:"op"`
}

type dockerSyscall struct {
	Names  []string    `json:"names"`
	Action string      `json:"action"`
	Args   []dockerArg `json:"args,omitempty"`
}

type dockerProfile struct {
	DefaultAction string          `json:"defaultAction"`
	Architectures []string        `json:"architectures"`
	Syscalls      []dockerSyscall `json:"syscalls"`
}

// DockerJSON renders p in the format accepted by
// `docker run --security-opt seccomp=<file>`.
func DockerJSON(p *specs.LinuxSeccomp) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("seccomp: nil profile")
	}
	out := dockerProfile{
		DefaultAction: string(p.DefaultAction),
		Syscalls:      make([]dockerSyscall, 0, len(p.Syscalls)),
	}
	for _, a := range p.Architectures {
		out.Architectures = append(out.Architectures, string(a))
	}
	for _, s := range p.Syscalls {
		ds := dockerSyscall{Names: s.Names, Action: string(s.Action)}
		for _, a := range s.Args {
			ds.Args = append(ds.Args, dockerArg{Index: a.Index, Value: a.Value, ValueTwo: a.ValueTwo, Op: string(a.Op)})
		}
		out.Syscalls = append(out.Syscalls, ds)
	}
	return json.MarshalIndent(out, "", "  ")
}
