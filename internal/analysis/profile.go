// Package analysis runs configured format and lint tools against a
// submission and interprets their output.
package analysis

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"submission-grader/internal/config"
	"submission-grader/internal/sandbox"
)

var (
	ErrUnknownProfile       = errors.New("unknown analysis profile")
	ErrIncompatibleLanguage = errors.New("profile not applicable to language")
	ErrBadArguments         = errors.New("unparsable extra arguments")
	ErrInvalidProfile       = errors.New("invalid analysis profile")
)

// Stream selects which captured output an EmptyOutput rule inspects.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Rule decides whether a finished tool run found no problems.
type Rule interface {
	Succeeded(res *sandbox.Result) bool
	validate() error
}

// EmptyOutput succeeds when the tool printed nothing relevant. On Stdout
// any output counts; on Stderr only lines carrying "warning:" or "error:".
type EmptyOutput struct {
	Stream Stream
}

func (r EmptyOutput) Succeeded(res *sandbox.Result) bool {
	if r.Stream == Stderr {
		return !hasDiagnostics(res.Stderr)
	}
	return strings.TrimSpace(res.Stdout) == ""
}

func (r EmptyOutput) validate() error {
	if r.Stream != Stdout && r.Stream != Stderr {
		return fmt.Errorf("stream must be stdout or stderr, got %q", r.Stream)
	}
	return nil
}

// ExitCodeIn succeeds when the exit code is whitelisted.
type ExitCodeIn struct {
	Codes mapset.Set[int]
}

func (r ExitCodeIn) Succeeded(res *sandbox.Result) bool {
	return r.Codes.Contains(res.ExitCode)
}

func (r ExitCodeIn) validate() error {
	if r.Codes == nil || r.Codes.Cardinality() == 0 {
		return fmt.Errorf("exit code whitelist is empty")
	}
	return nil
}

// Profile is a named tool invocation with its success rule.
type Profile struct {
	Name     string
	Command  string
	BaseArgs []string
	Suffix   string
	Rule     Rule
}

func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidProfile)
	}
	if strings.TrimSpace(p.Command) == "" {
		return fmt.Errorf("%w: %s: empty command", ErrInvalidProfile, p.Name)
	}
	if !strings.HasPrefix(p.Suffix, ".") {
		return fmt.Errorf("%w: %s: suffix must start with '.', got %q", ErrInvalidProfile, p.Name, p.Suffix)
	}
	if p.Rule == nil {
		return fmt.Errorf("%w: %s: no success rule", ErrInvalidProfile, p.Name)
	}
	if err := p.Rule.validate(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidProfile, p.Name, err)
	}
	return nil
}

func exitZero() ExitCodeIn { return ExitCodeIn{Codes: mapset.NewSet(0)} }

// DefaultProfiles returns the built-in Python and C profiles.
func DefaultProfiles() []Profile {
	return []Profile{
		{
			Name:     "flake8",
			Command:  "flake8",
			BaseArgs: []string{"--select=E,W", "--max-line-length=120", "--format=default", "--exit-zero"},
			Suffix:   ".py",
			Rule:     EmptyOutput{Stream: Stdout},
		},
		{
			Name:     "pylint",
			Command:  "pylint",
			BaseArgs: []string{"--output-format=text"},
			Suffix:   ".py",
			Rule:     exitZero(),
		},
		{
			Name:     "black-check",
			Command:  "black",
			BaseArgs: []string{"--check", "--diff"},
			Suffix:   ".py",
			Rule:     exitZero(),
		},
		{
			Name:     "clang-format-google",
			Command:  "clang-format",
			BaseArgs: []string{"-style=google", "--dry-run", "-Werror"},
			Suffix:   ".c",
			Rule:     exitZero(),
		},
		{
			Name:     "clang-format-llvm",
			Command:  "clang-format",
			BaseArgs: []string{"-style=llvm", "--dry-run", "-Werror"},
			Suffix:   ".c",
			Rule:     exitZero(),
		},
		{
			Name:     "clang-format-webkit",
			Command:  "clang-format",
			BaseArgs: []string{"-style=webkit", "--dry-run", "-Werror"},
			Suffix:   ".c",
			Rule:     exitZero(),
		},
	}
}

// FromConfig converts a configured profile.
func FromConfig(pc config.ProfileConfig) (Profile, error) {
	p := Profile{
		Name:     pc.Name,
		Command:  pc.Command,
		BaseArgs: pc.BaseArgs,
		Suffix:   pc.Suffix,
	}
	switch pc.Rule {
	case "empty_output":
		stream := Stream(pc.Stream)
		if stream == "" {
			stream = Stdout
		}
		p.Rule = EmptyOutput{Stream: stream}
	case "exit_code", "":
		codes := pc.ExitCodes
		if len(codes) == 0 {
			codes = []int{0}
		}
		p.Rule = ExitCodeIn{Codes: mapset.NewSet(codes...)}
	default:
		return Profile{}, fmt.Errorf("%w: %s: rule must be empty_output or exit_code, got %q", ErrInvalidProfile, pc.Name, pc.Rule)
	}
	return p, p.Validate()
}

// Registry holds validated profiles keyed by name.
type Registry struct {
	profiles map[string]Profile
}

// NewRegistry validates every profile. Later entries replace earlier ones
// with the same name.
func NewRegistry(profiles ...Profile) (*Registry, error) {
	r := &Registry{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		r.profiles[p.Name] = p
	}
	return r, nil
}

// NewRegistryFromConfig loads the built-ins overlaid with configured profiles.
func NewRegistryFromConfig(cfgs []config.ProfileConfig) (*Registry, error) {
	profiles := DefaultProfiles()
	for _, pc := range cfgs {
		p, err := FromConfig(pc)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return NewRegistry(profiles...)
}

func (r *Registry) Get(name string) (Profile, error) {
	p, ok := r.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return p, nil
}

// Profiles returns all profiles sorted by name.
func (r *Registry) Profiles() []Profile {
	out := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RuleName returns the configuration spelling of the profile's rule.
func (p Profile) RuleName() string {
	switch r := p.Rule.(type) {
	case EmptyOutput:
		return "empty_output(" + string(r.Stream) + ")"
	case ExitCodeIn:
		codes := r.Codes.ToSlice()
		sort.Ints(codes)
		parts := make([]string, len(codes))
		for i, c := range codes {
			parts[i] = fmt.Sprint(c)
		}
		return "exit_code{" + strings.Join(parts, ",") + "}"
	}
	return "unknown"
}
