package judge

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// DefaultMaxDiffLines bounds a diff summary unless configured otherwise.
const DefaultMaxDiffLines = 20

// DiffSummary explains why actual does not match expected. It returns ""
// when the raw texts are identical.
func DiffSummary(expected, actual string, maxLines int, caseInsensitive bool) string {
	if maxLines < 1 {
		maxLines = DefaultMaxDiffLines
	}
	if expected == actual {
		return ""
	}

	normExp := Normalize(expected, caseInsensitive)
	normAct := Normalize(actual, caseInsensitive)
	if normExp == normAct {
		return minorDifferences(expected, actual)
	}

	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(normExp),
		B:        difflib.SplitLines(normAct),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  3,
	})
	if err != nil || text == "" {
		return minorDifferences(expected, actual)
	}

	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) <= maxLines {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[:maxLines], "\n") + fmt.Sprintf("\n... (diff truncated to %d lines)", maxLines)
}

func minorDifferences(expected, actual string) string {
	return fmt.Sprintf("Minor differences detected (whitespace, case or float formatting). Representation:\nExpected: %q\nActual: %q",
		expected, actual)
}
