package monitor

import (
	"cmp"
	"regexp"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
)

// RiskScanner flags constructs in submitted code and program output that
// are worth an instructor's attention. Findings are advisory: they never
// block or fail an evaluation.
type RiskScanner struct {
	patterns []DetectionPattern
}

// DetectionPattern defines a suspicious pattern to match.
type DetectionPattern struct {
	Name        string
	Description string
	Regex       *regexp.Regexp
	Severity    Severity
}

// Severity levels for detected constructs.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Finding is one pattern's matches within a single submission.
type Finding struct {
	Pattern  string `json:"pattern"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
	// Lines are 1-based source lines; Cases are 1-based positions of the
	// test cases whose output matched.
	Lines []int `json:"lines,omitempty"`
	Cases []int `json:"cases,omitempty"`
}

// NewRiskScanner creates a scanner with default patterns.
func NewRiskScanner() *RiskScanner {
	return &RiskScanner{
		patterns: defaultPatterns(),
	}
}

type outputPattern struct {
	name   string
	substr string
	sev    Severity
}

var outputPatterns = []outputPattern{
	{"kernel_leak", "Linux version", SeverityHigh},
	{"passwd_leak", "root:x:0:0", SeverityCritical},
	{"docker_socket", "docker.sock", SeverityCritical},
	{"containerd_socket", "containerd.sock", SeverityCritical},
}

// Scan checks the source line by line and every case output, and returns
// one finding per matched pattern, most severe first.
func (d *RiskScanner) Scan(submissionID, code string, outputs []string) []Finding {
	var (
		findings []*Finding
		byName   = make(map[string]*Finding)
		level    = make(map[string]Severity)
	)
	hit := func(name, detail string, sev Severity) *Finding {
		if f, ok := byName[name]; ok {
			return f
		}
		f := &Finding{Pattern: name, Severity: sev.String(), Detail: detail}
		byName[name] = f
		level[name] = sev
		findings = append(findings, f)
		return f
	}

	for i, line := range strings.Split(code, "\n") {
		for _, p := range d.patterns {
			if p.Regex.MatchString(line) {
				f := hit(p.Name, p.Description, p.Severity)
				f.Lines = append(f.Lines, i+1)
			}
		}
	}
	for i, out := range outputs {
		for _, p := range outputPatterns {
			if strings.Contains(out, p.substr) {
				f := hit(p.name, "suspicious content in output: "+p.name, p.sev)
				f.Cases = append(f.Cases, i+1)
			}
		}
	}
	if len(findings) == 0 {
		return nil
	}

	slices.SortFunc(findings, func(a, b *Finding) int {
		if c := cmp.Compare(level[b.Pattern], level[a.Pattern]); c != 0 {
			return c
		}
		return strings.Compare(a.Pattern, b.Pattern)
	})
	out := make([]Finding, len(findings))
	names := make([]string, len(findings))
	for i, f := range findings {
		out[i] = *f
		names[i] = f.Pattern
	}

	log.Warn().
		Str("submission_id", submissionID).
		Str("highest", out[0].Severity).
		Strs("patterns", names).
		Msg("risky constructs in submission")
	return out
}

func defaultPatterns() []DetectionPattern {
	return []DetectionPattern{
		{
			Name:        "shell_exec",
			Description: "Spawns a shell or external command",
			Regex:       regexp.MustCompile(`\bos\.system\s*\(|\bsubprocess\b|\bpopen\s*\(|Runtime\.getRuntime\(\)\.exec|\bexecv?p?e?\s*\(|(^|[^.\w])system\s*\(`),
			Severity:    SeverityHigh,
		},
		{
			Name:        "fork_bomb",
			Description: "Creates processes, possibly without bound",
			Regex:       regexp.MustCompile(`\bos\.fork\s*\(|\bfork\s*\(\s*\)|:\(\)\s*\{\s*:\|:&\s*\};:`),
			Severity:    SeverityHigh,
		},
		{
			Name:        "network_access",
			Description: "Opens network connections",
			Regex:       regexp.MustCompile(`\bimport\s+(socket|requests|urllib|http\.client)\b|\bsocket\s*\(|java\.net\.|<sys/socket\.h>`),
			Severity:    SeverityMedium,
		},
		{
			Name:        "file_deletion",
			Description: "Deletes files or directories",
			Regex:       regexp.MustCompile(`shutil\.rmtree|\bos\.(remove|unlink|rmdir)\s*\(|\bunlink\s*\(|rm\s+-rf`),
			Severity:    SeverityMedium,
		},
		{
			Name:        "proc_self_access",
			Description: "Accessing /proc/self for process info",
			Regex:       regexp.MustCompile(`/proc/self/(root|exe|fd|ns|maps|status)`),
			Severity:    SeverityHigh,
		},
		{
			Name:        "container_breakout",
			Description: "Touches cgroup release hooks",
			Regex:       regexp.MustCompile(`/sys/fs/cgroup|notify_on_release|release_agent`),
			Severity:    SeverityCritical,
		},
		{
			Name:        "host_mount_access",
			Description: "Attempting to access host runtime sockets",
			Regex:       regexp.MustCompile(`/var/run/docker|/var/run/containerd`),
			Severity:    SeverityCritical,
		},
		{
			Name:        "metadata_service",
			Description: "Attempting to reach cloud metadata service",
			Regex:       regexp.MustCompile(`169\.254\.169\.254|metadata\.google|metadata\.aws`),
			Severity:    SeverityHigh,
		},
		{
			Name:        "reverse_shell",
			Description: "Potential reverse shell command",
			Regex:       regexp.MustCompile(`(?i)\b(nc|ncat|netcat|socat)\s+.*-[elp]|/dev/tcp/|bash\s+-i\s+>&`),
			Severity:    SeverityCritical,
		},
		{
			Name:        "ptrace_attempt",
			Description: "Uses ptrace or cross-process memory access",
			Regex:       regexp.MustCompile(`(?i)(ptrace|process_vm_readv|process_vm_writev)`),
			Severity:    SeverityCritical,
		},
	}
}
