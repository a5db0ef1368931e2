// Package metrics computes structural and complexity metrics for a
// submission and renders them as text.
package metrics

import (
	"fmt"
	"math"
	"sort"
)

// Display limits for the per-function section of a rendered report.
const (
	detailThreshold = 10
	topComplex      = 5

	// ComplexFunction is the McCabe score above which a function is flagged.
	ComplexFunction = 10
)

// FunctionMetrics describes one function or method.
type FunctionMetrics struct {
	Name         string `json:"name"`
	StartLine    int    `json:"line"`
	Lines        int    `json:"lines"`
	Complexity   int    `json:"complexity"`
	HasDocstring bool   `json:"has_docstring"`
	IsMethod     bool   `json:"is_method"`
}

// Report is a language-tagged bag of counters plus per-function detail.
type Report struct {
	Language  string             `json:"language"`
	Counters  map[string]float64 `json:"counters"`
	Functions []FunctionMetrics  `json:"functions,omitempty"`
	Classes   int                `json:"classes"`
	Imports   []string           `json:"imports,omitempty"`
	Rendered  string             `json:"rendered"`
	Err       string             `json:"error,omitempty"`
}

func newReport(language string) *Report {
	return &Report{Language: language, Counters: make(map[string]float64)}
}

// Counter returns a counter or zero.
func (r *Report) Counter(name string) float64 {
	return r.Counters[name]
}

// MaxComplexity is the headline complexity: the worst function for Python,
// the global estimate for C.
func (r *Report) MaxComplexity() int {
	switch family(r.Language) {
	case familyPython:
		return int(r.Counter("max_complexity"))
	case familyC:
		return int(r.Counter("estimated_cyclomatic"))
	}
	return 0
}

// SortedByComplexity returns functions ordered by descending complexity,
// ties broken by position.
func (r *Report) SortedByComplexity() []FunctionMetrics {
	out := append([]FunctionMetrics(nil), r.Functions...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Complexity > out[j].Complexity })
	return out
}

// SyntaxError is a parse failure in the analysed source.
type SyntaxError struct {
	Line int
	Col  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at line %d, column %d: %s", e.Line, e.Col, e.Msg)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

type languageFamily int

const (
	familyOther languageFamily = iota
	familyPython
	familyC
)

func family(language string) languageFamily {
	switch language {
	case "python":
		return familyPython
	case "c", "cpp", "c++":
		return familyC
	}
	return familyOther
}
