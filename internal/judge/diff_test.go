package judge

import (
	"fmt"
	"strings"
	"testing"
)

func TestDiffSummary_Identical(t *testing.T) {
	if got := DiffSummary("same\n", "same\n", 20, true); got != "" {
		t.Errorf("DiffSummary(identical) = %q, want empty", got)
	}
}

func TestDiffSummary_MinorDifferences(t *testing.T) {
	got := DiffSummary("Hello World", "hello   world\n", 20, true)
	if !strings.HasPrefix(got, "Minor differences detected") {
		t.Fatalf("got %q, want minor differences message", got)
	}
	if !strings.Contains(got, `"Hello World"`) || !strings.Contains(got, `"hello   world\n"`) {
		t.Errorf("message should quote raw forms, got %q", got)
	}
}

func TestDiffSummary_UnifiedDiff(t *testing.T) {
	got := DiffSummary("a\nb\nc", "a\nX\nc", 20, true)
	for _, want := range []string{"--- expected", "+++ actual", "-b", "+x"} {
		if !strings.Contains(got, want) {
			t.Errorf("diff missing %q:\n%s", want, got)
		}
	}
}

func TestDiffSummary_Truncated(t *testing.T) {
	var exp, act []string
	for i := 0; i < 50; i++ {
		exp = append(exp, fmt.Sprintf("line %d", i))
		act = append(act, fmt.Sprintf("other %d", i))
	}
	got := DiffSummary(strings.Join(exp, "\n"), strings.Join(act, "\n"), 5, true)
	lines := strings.Split(got, "\n")
	if len(lines) != 6 {
		t.Fatalf("got %d lines, want 5 diff lines plus marker:\n%s", len(lines), got)
	}
	if lines[5] != "... (diff truncated to 5 lines)" {
		t.Errorf("marker = %q", lines[5])
	}
}
