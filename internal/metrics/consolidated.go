package metrics

import (
	"fmt"
	"strings"

	"submission-grader/internal/analysis"
	"submission-grader/internal/format"
)

const rule = "========================================"

// Consolidated merges a format analysis outcome and a metrics report into
// one document with indicators and recommendations. Either input may be nil.
func Consolidated(fmtOutcome *analysis.Outcome, r *Report) string {
	parts := []string{
		rule,
		"          CODE ANALYSIS REPORT          ",
		rule,
		"\n\n## FORMAT ANALYSIS",
	}

	if fmtOutcome != nil {
		if fmtOutcome.Success {
			parts = append(parts, "✅ Formatting is correct")
		} else {
			parts = append(parts, "❌ Formatting problems detected")
		}
		if fmtOutcome.Report != "" {
			parts = append(parts, "\nDetails:", fmtOutcome.Report)
		}
	} else {
		parts = append(parts, "⚠️ Format analysis not run or not configured")
	}

	parts = append(parts, "\n\n## METRICS ANALYSIS")
	if r != nil {
		parts = append(parts, indicators(r)...)
		if r.Rendered != "" {
			parts = append(parts, "\nDetails:", r.Rendered)
		}
	} else {
		parts = append(parts, "⚠️ Metrics analysis not run")
	}

	parts = append(parts, "\n\n## RECOMMENDATIONS", strings.Join(Recommendations(fmtOutcome, r), "\n"))
	return strings.Join(parts, "\n")
}

func indicators(r *Report) []string {
	complexity := float64(r.MaxComplexity())
	lines := r.Counter("total_lines")
	out := []string{
		fmt.Sprintf("\nMax cyclomatic complexity: %s %s", format.LowerIsBetter(complexity, 8, 15).Mark(), format.Num(complexity)),
		fmt.Sprintf("Total lines: %s %s", format.LowerIsBetter(lines, 200, 500).Mark(), format.Num(lines)),
	}

	switch family(r.Language) {
	case familyPython:
		funcs := r.Counter("total_functions") + r.Counter("total_methods")
		doc := r.Counter("docstring_percentage")
		out = append(out,
			fmt.Sprintf("Functions/methods: %s %s", format.LowerIsBetter(funcs, 10, 20).Mark(), format.Num(funcs)),
			fmt.Sprintf("Documentation (docstrings): %s %s%%", format.HigherIsBetter(doc, 80, 50).Mark(), format.Num(doc)),
		)
	case familyC:
		funcs := r.Counter("function_count")
		ratio := commentRatio(r)
		out = append(out,
			fmt.Sprintf("Functions: %s %s", format.LowerIsBetter(funcs, 10, 20).Mark(), format.Num(funcs)),
			fmt.Sprintf("Comment ratio: %s %s%%", format.HigherIsBetter(ratio, 20, 10).Mark(), format.Num(round1(ratio))),
		)
	}
	return out
}

// Recommendations lists follow-up suggestions, never empty.
func Recommendations(fmtOutcome *analysis.Outcome, r *Report) []string {
	var recs []string
	if fmtOutcome != nil && !fmtOutcome.Success {
		recs = append(recs, "• Fix the formatting problems listed above.")
	}
	if r != nil && r.Err == "" {
		switch family(r.Language) {
		case familyPython:
			if _, ok := r.Counters["docstring_percentage"]; ok && r.Counter("docstring_percentage") < 70 {
				recs = append(recs, "• Improve documentation by adding docstrings to functions.")
			}
			if n := int(r.Counter("complex_functions")); n > 0 {
				recs = append(recs, fmt.Sprintf("• Refactor the %d complex functions into smaller helpers.", n))
			}
			if r.Counter("max_line_length") > 100 {
				recs = append(recs, "• Improve readability by shortening very long lines.")
			}
		case familyC:
			if commentRatio(r) < 15 {
				recs = append(recs, "• Add comments explaining the logic of the code.")
			}
			if r.Counter("estimated_cyclomatic") > 10 {
				recs = append(recs, "• Refactor the code to reduce cyclomatic complexity.")
			}
		}
	}
	if len(recs) == 0 {
		recs = append(recs, "• The code looks in good shape. Well done!")
	}
	return recs
}

func commentRatio(r *Report) float64 {
	return r.Counter("comment_lines") / max(r.Counter("code_lines"), 1) * 100
}
