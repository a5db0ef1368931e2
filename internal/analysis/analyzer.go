package analysis

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/rs/zerolog/log"

	"submission-grader/internal/runtime"
	"submission-grader/internal/sandbox"
)

const DefaultTimeout = 30 * time.Second

var (
	diagnosticRe = regexp.MustCompile(`(?im)(warning|error):`)
	toolErrorRe  = regexp.MustCompile(`(?i)error:|exception`)
)

// Outcome is the interpreted result of one tool run. ToolError is set when
// the tool itself misbehaved, as opposed to finding problems in the code.
type Outcome struct {
	Tool      string
	Success   bool
	Report    string
	ToolError string
}

// Analyzer runs profiles from a Registry through an Invoker.
type Analyzer struct {
	registry *Registry
	invoker  sandbox.Invoker
	timeout  time.Duration
}

func NewAnalyzer(registry *Registry, invoker sandbox.Invoker, timeout time.Duration) *Analyzer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Analyzer{registry: registry, invoker: invoker, timeout: timeout}
}

func (a *Analyzer) Registry() *Registry { return a.registry }

// Run analyses source with the named profile. Configuration problems
// (unknown profile, bad extra args, language mismatch) are returned as
// errors before any process starts; tool failures end up in the Outcome.
func (a *Analyzer) Run(ctx context.Context, profileName, extraArgs, source, language string) (*Outcome, error) {
	profile, err := a.registry.Get(profileName)
	if err != nil {
		return nil, err
	}

	extra, err := ParseExtraArgs(extraArgs)
	if err != nil {
		return nil, err
	}

	if !runtime.Compatible(language, profile.Suffix) {
		return nil, fmt.Errorf("%w: profile %q (%s) vs language %q (accepts %v)",
			ErrIncompatibleLanguage, profile.Name, profile.Suffix, language, runtime.CompatibleSuffixes(language))
	}

	logger := log.With().Str("profile", profile.Name).Str("language", language).Logger()

	var outcome *Outcome
	err = sandbox.WithTempFile(source, profile.Suffix, func(path string) error {
		argv := make([]string, 0, 2+len(profile.BaseArgs)+len(extra))
		argv = append(argv, profile.Command)
		argv = append(argv, profile.BaseArgs...)
		argv = append(argv, extra...)
		argv = append(argv, path)

		logger.Debug().Strs("argv", argv).Msg("running analysis tool")
		res, runErr := a.invoker.Run(ctx, sandbox.Command{
			Args:    argv,
			Timeout: a.timeout,
			Dir:     filepath.Dir(path),
		})
		outcome = interpret(profile, res, runErr, path, a.timeout)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if outcome.ToolError != "" {
		logger.Warn().Str("tool_error", outcome.ToolError).Msg("analysis tool failed")
	} else {
		logger.Debug().Bool("success", outcome.Success).Msg("analysis finished")
	}
	return outcome, nil
}

// ParseExtraArgs splits s into shell words. A "#" starting a word opens a
// comment running to the end of the line; inside quotes or a word it is literal.
func ParseExtraArgs(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	args, err := shlex.Split(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArguments, err)
	}
	args = slices.DeleteFunc(args, func(a string) bool { return a == "" })
	if len(args) == 0 {
		return nil, nil
	}
	return args, nil
}

func interpret(p Profile, res *sandbox.Result, err error, path string, timeout time.Duration) *Outcome {
	out := &Outcome{Tool: p.Name}
	switch {
	case sandbox.IsToolNotFound(err):
		out.ToolError = fmt.Sprintf("command %q not found; make sure it is installed and on PATH", p.Command)
		out.Report = out.ToolError
		return out
	case sandbox.IsTimeout(err):
		out.ToolError = fmt.Sprintf("timed out after %s running %s", timeout, p.Command)
		out.Report = out.ToolError
		return out
	case err != nil:
		out.ToolError = fmt.Sprintf("unexpected failure running %s: %v", p.Command, err)
		out.Report = out.ToolError
		return out
	}

	stdout := strings.TrimSpace(res.Stdout)
	stderr := strings.TrimSpace(res.Stderr)
	out.Success = p.Rule.Succeeded(res)

	switch rule := p.Rule.(type) {
	case EmptyOutput:
		if out.Success {
			out.Report = p.Name + ": no relevant issues found."
		} else if rule.Stream == Stderr {
			out.Report = stderr
		} else {
			out.Report = stdout
		}
		crashed := isToolCrash(stderr, path) && (rule.Stream == Stderr || res.ExitCode != 0)
		if crashed {
			out.ToolError = "possible internal error in " + p.Command + ": " + Sanitize(stderr, path)
			if rule.Stream == Stdout {
				out.Success = false
				out.Report = stderr
			}
		}
	default:
		if out.Success {
			out.Report = p.Name + ": check completed, no issues detected."
			if stdout != "" {
				out.Report += "\nOutput:\n" + stdout
			}
		} else {
			out.Report = stdout
			if out.Report == "" {
				out.Report = stderr
			}
			if isToolCrash(stderr, path) {
				out.ToolError = "possible internal error in " + p.Command + ": " + Sanitize(stderr, path)
			}
		}
	}

	out.Report = strings.TrimSpace(Sanitize(out.Report, path))
	if !out.Success && out.Report == "" {
		out.Report = p.Name + ": issues detected (no detailed output)."
	}
	return out
}

func hasDiagnostics(s string) bool {
	return diagnosticRe.MatchString(s)
}

// isToolCrash reports stderr that mentions an error or exception without
// pointing at the analysed file; diagnostics about the code always do.
func isToolCrash(stderr, path string) bool {
	if stderr == "" || !toolErrorRe.MatchString(stderr) {
		return false
	}
	return !strings.Contains(stderr, path) && !strings.Contains(stderr, filepath.Base(path))
}

// Sanitize hides the temporary path: "<path>:L:C:" becomes "Line L:C:" and
// other mentions become "[file]".
func Sanitize(report, path string) string {
	if path == "" {
		return report
	}
	located := regexp.MustCompile(regexp.QuoteMeta(path) + `:?(\d+:?\d*:?\s*)`)
	report = located.ReplaceAllString(report, "Line ${1}")
	return strings.ReplaceAll(report, path, "[file]")
}
