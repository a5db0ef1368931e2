package perf

import (
	"fmt"
	"strings"

	"submission-grader/internal/format"
)

// Render produces the plain-text performance report.
func Render(r *Result) string {
	var b strings.Builder
	b.WriteString("=== ALGORITHMIC PERFORMANCE ANALYSIS ===\n\n")
	fmt.Fprintf(&b, "Entry point: %s\n\n", r.Entry)

	tb := format.NewTable(format.ASCII)
	tb.Header("Size", "Time", "Memory", "Status")
	tb.Columns(
		format.Column{Number: 1, Align: format.AlignRight},
		format.Column{Number: 2, Align: format.AlignRight},
		format.Column{Number: 3, Align: format.AlignRight},
	)
	for _, s := range r.Samples {
		memory := "-"
		if s.MemoryKB != nil && *s.MemoryKB > 0 {
			memory = fmt.Sprintf("%.2f MB", *s.MemoryKB/1024)
		}
		switch {
		case s.Err != "":
			tb.Row(s.Size, "-", "-", "error: "+format.Truncate(s.Err, 60, "..."))
		case s.TimedOut:
			tb.Row(s.Size, fmt.Sprintf("> %.1f s", s.TimeMS/1000), "-", "timeout")
		default:
			tb.Row(s.Size, fmt.Sprintf("%.2f ms", s.TimeMS), memory, "ok")
		}
	}
	b.WriteString(tb.String())
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Estimated complexity: %s\n", r.Estimate.Model)
	fmt.Fprintf(&b, "Description: %s\n", r.Estimate.Model.Description())
	fmt.Fprintf(&b, "Confidence: %.2f (%s)\n", r.Estimate.Confidence, r.Estimate.Level())

	if len(r.Static) > 0 {
		b.WriteString("\n--- Static complexity ---\n")
		st := format.NewTable(format.ASCII)
		st.Header("Function", "Complexity", "Rank")
		st.Columns(format.Column{Number: 2, Align: format.AlignRight})
		for _, f := range r.Static {
			st.Row(f.Name, f.Complexity, f.Rank)
		}
		b.WriteString(st.String())
		b.WriteString("\n")
	}

	if s, ok := profiled(r.Samples); ok {
		fmt.Fprintf(&b, "\n--- Profile at n=%d ---\n%s\n", s.Size, s.Profile)
	}
	return strings.TrimRight(b.String(), "\n")
}

// profiled picks the largest valid sample that carries a profile.
func profiled(samples []Sample) (Sample, bool) {
	for i := len(samples) - 1; i >= 0; i-- {
		if s := samples[i]; s.Valid() && s.Profile != "" {
			return s, true
		}
	}
	return Sample{}, false
}
