package judge

import (
	"fmt"
	"strings"
)

const feedbackHeader = "--- Functional tests ---"

// CaseFeedback renders a pass summary followed by one entry per failing case.
// Hidden cases are listed without their diff.
func CaseFeedback(results []CaseResult) string {
	if len(results) == 0 {
		return feedbackHeader + "\n(No test case results)"
	}

	var b strings.Builder
	b.WriteString(feedbackHeader)
	fmt.Fprintf(&b, "\nSummary: %d of %d passed.", Passed(results), len(results))

	if Passed(results) == len(results) {
		return b.String()
	}

	b.WriteString("\n\nFailed cases:")
	for i, r := range results {
		if r.Passed {
			continue
		}
		label := fmt.Sprintf("Case %d", i+1)
		if r.Description != "" && !r.Hidden {
			label += ": " + r.Description
		}
		fmt.Fprintf(&b, "\n- %s: %s", label, stateLabel(r.State))
		if r.DiffSummary != "" && !r.Hidden {
			b.WriteString("\n  Diff:\n  ")
			b.WriteString(strings.ReplaceAll(r.DiffSummary, "\n", "\n  "))
		}
	}
	return b.String()
}

// CompileFeedback is the functional section shown when the build fails.
func CompileFeedback(err *CompileError) string {
	return "--- Compilation and functional tests ---\n" + err.Error()
}

func stateLabel(s State) string {
	switch {
	case s == StateTimeout:
		return "Timeout"
	case s.IsError():
		return "Error"
	default:
		return "Failed"
	}
}
