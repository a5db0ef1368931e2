package judge

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"submission-grader/internal/runtime"
	"submission-grader/internal/sandbox"
)

const (
	DefaultCaseTimeout    = 120 * time.Second
	DefaultCompileTimeout = 60 * time.Second
)

type Options struct {
	CaseTimeout     time.Duration
	CompileTimeout  time.Duration
	MaxDiffLines    int
	CaseInsensitive bool
}

func DefaultOptions() Options {
	return Options{
		CaseTimeout:     DefaultCaseTimeout,
		CompileTimeout:  DefaultCompileTimeout,
		MaxDiffLines:    DefaultMaxDiffLines,
		CaseInsensitive: true,
	}
}

// Runner executes submissions against test cases through an Invoker.
type Runner struct {
	invoker sandbox.Invoker
	opts    Options
}

func NewRunner(invoker sandbox.Invoker, opts Options) *Runner {
	def := DefaultOptions()
	if opts.CaseTimeout <= 0 {
		opts.CaseTimeout = def.CaseTimeout
	}
	if opts.CompileTimeout <= 0 {
		opts.CompileTimeout = def.CompileTimeout
	}
	if opts.MaxDiffLines < 1 {
		opts.MaxDiffLines = def.MaxDiffLines
	}
	return &Runner{invoker: invoker, opts: opts}
}

// Run builds source with rt and executes every case in order. A failed
// build returns a *CompileError and no results. A case that times out or
// errors does not stop the remaining cases; cancelling ctx does.
func (r *Runner) Run(ctx context.Context, rt runtime.Runtime, source string, cases []TestCase) ([]CaseResult, error) {
	for _, tc := range cases {
		if err := tc.Validate(); err != nil {
			return nil, err
		}
	}
	if err := rt.Validate(source); err != nil {
		return nil, fmt.Errorf("invalid %s source: %w", rt.Name(), err)
	}

	var results []CaseResult
	err := sandbox.WithTempDir("judge", func(dir string) error {
		srcPath, err := sandbox.WriteSource(dir, rt.SourceFileName(source), source)
		if err != nil {
			return err
		}

		if err := r.compile(ctx, rt, srcPath, dir); err != nil {
			return err
		}

		base := rt.Command(srcPath)
		results = make([]CaseResult, 0, len(cases))
		for _, tc := range cases {
			if err := ctx.Err(); err != nil {
				return err
			}
			results = append(results, r.runCase(ctx, rt, base, dir, tc))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Runner) compile(ctx context.Context, rt runtime.Runtime, srcPath, dir string) error {
	argv := rt.CompileCommand(srcPath)
	if argv == nil {
		return nil
	}

	logger := log.With().Str("language", rt.Name()).Logger()
	logger.Debug().Strs("argv", argv).Msg("compiling submission")

	res, err := r.invoker.Run(ctx, sandbox.Command{
		Args:    argv,
		Timeout: r.opts.CompileTimeout,
		Dir:     dir,
		Image:   rt.Image(),
	})
	switch {
	case sandbox.IsTimeout(err):
		return &CompileError{Output: fmt.Sprintf("compiler did not finish within %s", r.opts.CompileTimeout)}
	case err != nil:
		return fmt.Errorf("compiling %s submission: %w", rt.Name(), err)
	case res.ExitCode != 0:
		logger.Info().Int("exit_code", res.ExitCode).Msg("compilation failed")
		return &CompileError{Output: relativePaths(res.Stderr, dir)}
	}
	return nil
}

func (r *Runner) runCase(ctx context.Context, rt runtime.Runtime, base []string, dir string, tc TestCase) CaseResult {
	result := CaseResult{
		CaseID:      tc.ID,
		Description: tc.Description,
		Hidden:      tc.Hidden,
		State:       StateExecuting,
	}
	logger := log.With().Str("case_id", tc.ID).Logger()

	res, err := r.invoker.Run(ctx, sandbox.Command{
		Args:    append(slices.Clone(base), tc.Args...),
		Stdin:   NormalizeLineEndings(tc.Stdin),
		Timeout: r.opts.CaseTimeout,
		Dir:     dir,
		Image:   rt.Image(),
	})
	if res != nil {
		result.Duration = res.Duration
	}

	switch {
	case sandbox.IsTimeout(err):
		logger.Warn().Dur("timeout", r.opts.CaseTimeout).Msg("test case timed out")
		result.State = StateTimeout
		result.Stdout = TimeoutMarker
		if res != nil {
			result.Stderr = res.Stderr
		}
		return result

	case err != nil:
		logger.Error().Err(err).Msg("test case could not be executed")
		result.State = StateErrorInternal
		result.Stdout = fmt.Sprintf(internalErrorFormat, err)
		result.Stderr = err.Error()
		return result
	}

	code := res.ExitCode
	result.ExitCode = &code
	result.Stdout = res.Stdout
	result.Stderr = res.Stderr
	if code == 0 {
		result.State = StateCompleted
	} else {
		result.State = ExitCodeState(code)
		logger.Debug().Int("exit_code", code).Msg("submission exited non-zero")
	}

	// Exit status does not affect the verdict; only output is compared.
	result.Passed = Equal(tc.ExpectedStdout, res.Stdout, r.opts.CaseInsensitive)
	if result.Passed {
		result.PointsAwarded = tc.Points
	} else {
		result.DiffSummary = DiffSummary(tc.ExpectedStdout, res.Stdout, r.opts.MaxDiffLines, r.opts.CaseInsensitive)
	}

	logger.Debug().
		Bool("passed", result.Passed).
		Dur("duration", result.Duration).
		Msg("test case finished")
	return result
}

// relativePaths rewrites paths under the private work dir relative to it,
// so "/tmp/judge-123/main.c:1:11:" reads "main.c:1:11:".
func relativePaths(out, dir string) string {
	if dir == "" {
		return out
	}
	dir = filepath.Clean(dir)
	out = strings.ReplaceAll(out, dir+string(filepath.Separator), "")
	return strings.ReplaceAll(out, dir, ".")
}

// IsCompileError unwraps err to a *CompileError.
func IsCompileError(err error) (*CompileError, bool) {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
