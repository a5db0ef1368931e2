package grader

import (
	"strings"

	"submission-grader/internal/format"
	"submission-grader/internal/judge"
	"submission-grader/internal/metrics"
)

const (
	formatHeader      = "--- Format analysis ---"
	metricsHeader     = "--- Code metrics ---"
	performanceHeader = "--- Performance analysis ---"
	noCasesMessage    = "--- Functional tests ---\n(No test cases defined)"
	defaultFeedback   = "(Evaluation completed, no additional feedback generated)"
	truncatedMarker   = "\n... (report truncated)"
)

// feedback joins the quality, functional and performance sections with
// blank lines.
func (g *Grader) feedback(ev *Evaluation, q *Question) string {
	var parts []string

	if q.Features.Format && q.Features.Metrics {
		parts = append(parts, metrics.Consolidated(ev.Format, ev.Metrics))
	} else {
		parts = append(parts, g.formatSection(ev, q), metricsSection(ev, q))
	}

	switch {
	case ev.CompileError != "":
		parts = append(parts, judge.CompileFeedback(&judge.CompileError{Output: ev.CompileError}))
	case len(q.Cases) == 0:
		parts = append(parts, noCasesMessage)
	default:
		parts = append(parts, judge.CaseFeedback(ev.Cases))
	}

	if q.Features.Performance {
		switch {
		case ev.Performance != nil:
			parts = append(parts, ev.Performance.Report)
		case ev.PerfError != "":
			parts = append(parts, performanceHeader+"\nNot available: "+ev.PerfError)
		}
	}

	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return defaultFeedback
	}
	return strings.Join(kept, "\n\n")
}

func (g *Grader) formatSection(ev *Evaluation, q *Question) string {
	switch {
	case !q.Features.Format:
		return formatHeader + "\n(Format analysis disabled)"
	case q.Format == nil || ev.Format == nil:
		return formatHeader + "\n(No format profile configured)"
	}
	out := ev.Format
	header := "--- Format analysis (" + out.Tool + ") ---\n"
	switch {
	case out.ToolError != "":
		return header + "Tool error: " + out.ToolError
	case !out.Success:
		return header + "Issues found:\n" + format.Truncate(out.Report, g.opts.FormatReportLimit, truncatedMarker)
	default:
		return header + out.Report
	}
}

func metricsSection(ev *Evaluation, q *Question) string {
	if !q.Features.Metrics {
		return metricsHeader + "\n(Metrics analysis disabled)"
	}
	if ev.Metrics == nil {
		return metricsHeader + "\n(Metrics engine not configured)"
	}
	return ev.Metrics.Rendered
}
