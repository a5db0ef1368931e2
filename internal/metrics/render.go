package metrics

import (
	"fmt"
	"strings"

	"submission-grader/internal/format"
)

// Render produces the plain-text metrics report.
func Render(r *Report) string {
	if r.Err != "" {
		return "Metrics analysis error: " + r.Err
	}

	var b strings.Builder
	b.WriteString("=== METRICS REPORT ===\n")

	language := r.Language
	if language == "" {
		language = "unknown"
	}
	fmt.Fprintf(&b, "\n--- Basic metrics (%s) ---\n", language)
	fmt.Fprintf(&b, "Total lines: %s\n", format.Num(r.Counter("total_lines")))
	fmt.Fprintf(&b, "Non-empty lines: %s\n", format.Num(r.Counter("non_empty_lines")))
	fmt.Fprintf(&b, "Average line length: %s\n", format.Num(r.Counter("avg_line_length")))
	fmt.Fprintf(&b, "Max line length: %s\n", format.Num(r.Counter("max_line_length")))

	switch family(r.Language) {
	case familyPython:
		if _, ok := r.Counters["total_functions"]; !ok {
			break
		}
		b.WriteString("\n--- Structure (Python) ---\n")
		writeCounters(&b, r, []counterLabel{
			{"Classes", "total_classes"}, {"Functions", "total_functions"}, {"Methods", "total_methods"},
			{"Imports", "total_imports"}, {"Comments", "comment_count"},
		})
		b.WriteString("\n--- Complexity ---\n")
		writeCounters(&b, r, []counterLabel{
			{"Average cyclomatic complexity", "avg_complexity"}, {"Max complexity", "max_complexity"},
			{"Complex functions (>10)", "complex_functions"},
		})
		fmt.Fprintf(&b, "Documented functions: %s%%\n", format.Num(r.Counter("docstring_percentage")))
		b.WriteString("\n--- Control flow ---\n")
		writeCounters(&b, r, []counterLabel{
			{"if/elif statements", "if_count"}, {"for loops", "for_count"}, {"while loops", "while_count"},
		})
		writeFunctions(&b, r, true)

	case familyC:
		b.WriteString("\n--- Structure (C/C++) ---\n")
		writeCounters(&b, r, []counterLabel{
			{"Functions", "function_count"}, {"#include directives", "include_count"},
			{"Other # directives", "preprocessor_count"}, {"Code lines", "code_lines"},
			{"Comment lines", "comment_lines"},
		})
		b.WriteString("\n--- Complexity ---\n")
		writeCounters(&b, r, []counterLabel{{"Estimated cyclomatic complexity", "estimated_cyclomatic"}})
		b.WriteString("\n--- Control flow ---\n")
		writeCounters(&b, r, []counterLabel{
			{"if statements", "if_count"}, {"for loops", "for_count"},
			{"while loops", "while_count"}, {"switch statements", "switch_count"},
		})
		writeFunctions(&b, r, false)
	}

	return strings.TrimRight(b.String(), "\n")
}

type counterLabel struct {
	label, key string
}

func writeCounters(b *strings.Builder, r *Report, labels []counterLabel) {
	for _, l := range labels {
		fmt.Fprintf(b, "%s: %s\n", l.label, format.Num(r.Counter(l.key)))
	}
}

// writeFunctions lists every function up to detailThreshold, otherwise
// only the topComplex most complex ones.
func writeFunctions(b *strings.Builder, r *Report, withDocstring bool) {
	if len(r.Functions) == 0 {
		return
	}
	funcs := r.Functions
	if len(funcs) <= detailThreshold {
		b.WriteString("\n--- Per-function detail ---\n")
	} else {
		b.WriteString("\n--- Most complex functions ---\n")
		funcs = r.SortedByComplexity()[:topComplex]
	}

	tb := format.NewTable(format.ASCII)
	if withDocstring {
		tb.Header("Function", "Line", "Lines", "Complexity", "Docstring")
	} else {
		tb.Header("Function", "Line", "Lines", "Complexity")
	}
	tb.Columns(
		format.Column{Number: 2, Align: format.AlignRight},
		format.Column{Number: 3, Align: format.AlignRight},
		format.Column{Number: 4, Align: format.AlignRight},
	)
	for _, f := range funcs {
		if withDocstring {
			tb.Row(f.Name, f.StartLine, f.Lines, f.Complexity, format.YesNo(f.HasDocstring))
		} else {
			tb.Row(f.Name, f.StartLine, f.Lines, f.Complexity)
		}
	}
	b.WriteString(tb.String())
	b.WriteString("\n")
}
