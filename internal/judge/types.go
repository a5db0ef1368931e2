// Package judge compiles a submission once and runs it against each test
// case, comparing normalised output.
package judge

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrCompile marks a submission whose build step failed. No case runs.
var ErrCompile = errors.New("compilation failed")

// State is the lifecycle position of one case execution.
type State string

const (
	StatePreparing     State = "preparing"
	StateCompiling     State = "compiling"
	StateExecuting     State = "executing"
	StateCompleted     State = "completed"
	StateTimeout       State = "timeout"
	StateErrorInternal State = "error_internal"
)

const exitCodePrefix = "error_exitcode_"

// ExitCodeState is the terminal state of a process that exited non-zero.
func ExitCodeState(code int) State {
	return State(fmt.Sprintf("%s%d", exitCodePrefix, code))
}

// IsError reports whether s is one of the error states.
func (s State) IsError() bool {
	return s == StateErrorInternal || strings.HasPrefix(string(s), exitCodePrefix)
}

// Markers substituted for stdout when there is no real output to show.
const (
	TimeoutMarker       = "<TIMEOUT>"
	internalErrorFormat = "<INTERNAL EVALUATOR ERROR: %v>"
)

// TestCase is one instructor-defined input/expected-output pair.
type TestCase struct {
	ID             string   `toml:"id" json:"id"`
	Description    string   `toml:"description" json:"description,omitempty"`
	Args           []string `toml:"args" json:"args,omitempty"` // passed verbatim, never re-split
	Stdin          string   `toml:"stdin" json:"stdin,omitempty"`
	ExpectedStdout string   `toml:"expected_stdout" json:"expected_stdout"`
	Points         float64  `toml:"points" json:"points"`
	Hidden         bool     `toml:"hidden" json:"hidden,omitempty"`
}

func (tc TestCase) Validate() error {
	if tc.Points < 0 || math.IsNaN(tc.Points) {
		return fmt.Errorf("test case %q: points must be >= 0, got %g", tc.ID, tc.Points)
	}
	return nil
}

// CaseResult is the immutable outcome of running one TestCase.
type CaseResult struct {
	CaseID        string
	Description   string
	Hidden        bool
	Passed        bool
	Stdout        string
	Stderr        string
	ExitCode      *int // nil when the process never exited on its own
	Duration      time.Duration
	State         State
	DiffSummary   string
	PointsAwarded float64
}

// CompileError carries the compiler diagnostics of a failed build.
type CompileError struct {
	Output string
}

func (e *CompileError) Error() string {
	return "Compilation error:\n" + e.Output
}

func (e *CompileError) Unwrap() error {
	return ErrCompile
}

// Score sums awarded points rounded to two decimals.
func Score(results []CaseResult) float64 {
	var sum float64
	for _, r := range results {
		sum += r.PointsAwarded
	}
	return math.Round(sum*100) / 100
}

// Passed counts the passing results.
func Passed(results []CaseResult) int {
	n := 0
	for _, r := range results {
		if r.Passed {
			n++
		}
	}
	return n
}
