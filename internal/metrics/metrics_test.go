package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"

	"submission-grader/internal/analysis"
	"submission-grader/internal/sandbox"
)

type fakeInvoker struct {
	stdout string
	exit   int
	err    error
	args   []string
}

func (f *fakeInvoker) Run(_ context.Context, c sandbox.Command) (*sandbox.Result, error) {
	f.args = c.Args
	if f.err != nil {
		return nil, f.err
	}
	return &sandbox.Result{Stdout: f.stdout, ExitCode: f.exit}, nil
}

const helperJSON = `{"functions":[
 {"name":"solve","line":1,"lines":7,"complexity":3,"has_docstring":true,"is_method":false},
 {"name":"run","line":10,"lines":4,"complexity":12,"has_docstring":false,"is_method":true}],
 "classes":1,"imports":["os"],"if_count":2,"for_count":1,"while_count":0}`

func TestAnalyzePython(t *testing.T) {
	inv := &fakeInvoker{stdout: helperJSON}
	eng := NewEngine(NewPythonAnalyzer(inv, 0))

	code := "# header\nimport os\n\ndef solve(x):\n    return x\n"
	r, err := eng.Analyze(context.Background(), code, "Python")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(inv.args) != 3 || inv.args[0] != "python3" {
		t.Errorf("helper argv = %v", inv.args)
	}

	want := map[string]float64{
		"total_functions":      1,
		"total_methods":        1,
		"total_classes":        1,
		"total_imports":        1,
		"comment_count":        1,
		"max_complexity":       12,
		"complex_functions":    1,
		"docstring_percentage": 50,
		"avg_function_lines":   5.5,
		"avg_complexity":       7.5,
		"total_lines":          6,
		"non_empty_lines":      4,
	}
	for k, v := range want {
		if got := r.Counter(k); got != v {
			t.Errorf("%s = %g, want %g", k, got, v)
		}
	}
	if r.MaxComplexity() != 12 {
		t.Errorf("MaxComplexity = %d, want 12", r.MaxComplexity())
	}
	for _, s := range []string{"=== METRICS REPORT ===", "Per-function detail", "solve", "Documented functions: 50%"} {
		if !strings.Contains(r.Rendered, s) {
			t.Errorf("rendered report missing %q:\n%s", s, r.Rendered)
		}
	}
}

func TestAnalyzePython_SyntaxError(t *testing.T) {
	inv := &fakeInvoker{stdout: `{"syntax_error":{"line":2,"col":5,"msg":"invalid syntax"}}`}
	r, err := NewEngine(NewPythonAnalyzer(inv, 0)).Analyze(context.Background(), "def f(:\n  pass\n", "python")

	var se *SyntaxError
	if !errors.As(err, &se) || se.Line != 2 {
		t.Fatalf("err = %v, want SyntaxError at line 2", err)
	}
	if r == nil || r.Counter("total_lines") != 3 {
		t.Fatalf("generic metrics missing from report: %+v", r)
	}
	if !strings.HasPrefix(r.Rendered, "Metrics analysis error: syntax error at line 2") {
		t.Errorf("Rendered = %q", r.Rendered)
	}
}

func TestAnalyzePython_HelperFailure(t *testing.T) {
	inv := &fakeInvoker{err: sandbox.ErrToolNotFound}
	r, err := NewEngine(NewPythonAnalyzer(inv, 0)).Analyze(context.Background(), "x = 1\n", "python")
	if !errors.Is(err, sandbox.ErrToolNotFound) {
		t.Fatalf("err = %v, want ErrToolNotFound", err)
	}
	if r.Err == "" {
		t.Error("report error not recorded")
	}
}

func TestAnalyzeC(t *testing.T) {
	code := `#include <stdio.h>
#define N 10

/* block
   comment */
static int sum(int *a, int n) {
    int s = 0; // running total
    for (int i = 0; i < n; i++) {
        if (a[i] > 0) {
            s += a[i];
        }
    }
    return s;
}

int main(void)
{
    printf("// not a comment %d\n", sum(NULL, 0));
    return 0;
}
`
	r, err := NewEngine(nil).Analyze(context.Background(), code, "c")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	want := map[string]float64{
		"include_count":        1,
		"preprocessor_count":   1,
		"comment_lines":        3,
		"for_count":            1,
		"if_count":             1,
		"estimated_cyclomatic": 2,
		"function_count":       1,
	}
	for k, v := range want {
		if got := r.Counter(k); got != v {
			t.Errorf("%s = %g, want %g", k, got, v)
		}
	}
	if len(r.Functions) != 1 {
		t.Fatalf("functions = %+v, want only sum (main's brace is on the next line)", r.Functions)
	}
	f := r.Functions[0]
	if f.Name != "sum" || f.StartLine != 6 || f.Lines != 9 || f.Complexity != 3 {
		t.Errorf("sum = %+v, want line 6, 9 lines, complexity 3", f)
	}
}

func TestAnalyzeC_ElseIfIsNotAFunction(t *testing.T) {
	code := "int f(int x) {\n  if (x) {\n    return 1;\n  } else if (x > 2) {\n    return 2;\n  }\n  return 0;\n}\n"
	r, _ := NewEngine(nil).Analyze(context.Background(), code, "c")
	if len(r.Functions) != 1 || r.Functions[0].Name != "f" {
		t.Fatalf("functions = %+v, want only f", r.Functions)
	}
	if r.Functions[0].Lines != 8 {
		t.Errorf("f spans %d lines, want 8", r.Functions[0].Lines)
	}
}

func TestAnalyzeGenericOnly(t *testing.T) {
	r, err := NewEngine(nil).Analyze(context.Background(), "a\n\nbbbb\n", "rust")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if r.Counter("max_line_length") != 4 || r.Counter("avg_line_length") != 2.5 {
		t.Errorf("counters = %v", r.Counters)
	}
	if strings.Contains(r.Rendered, "Structure") {
		t.Errorf("unexpected language section:\n%s", r.Rendered)
	}
}

func TestRender_TopComplexWhenMany(t *testing.T) {
	r := newReport("c")
	for i := 0; i < 12; i++ {
		r.Functions = append(r.Functions, FunctionMetrics{Name: "fn" + string(rune('a'+i)), StartLine: i + 1, Complexity: i})
	}
	out := Render(r)
	if !strings.Contains(out, "Most complex functions") {
		t.Fatalf("expected top-N section:\n%s", out)
	}
	if !strings.Contains(out, "fnl") || strings.Contains(out, "fna ") {
		t.Errorf("top section should hold the most complex functions only:\n%s", out)
	}
}

func TestConsolidated(t *testing.T) {
	r := newReport("c")
	r.Counters["total_lines"] = 40
	r.Counters["function_count"] = 2
	r.Counters["code_lines"] = 30
	r.Counters["comment_lines"] = 0
	r.Counters["estimated_cyclomatic"] = 12
	r.Rendered = "=== METRICS REPORT ==="

	out := Consolidated(&analysis.Outcome{Tool: "clang-format-google", Success: false, Report: "bad indent"}, r)
	for _, s := range []string{
		"## FORMAT ANALYSIS",
		"❌ Formatting problems detected",
		"bad indent",
		"Max cyclomatic complexity: 🟡 12",
		"Comment ratio: 🔴 0%",
		"Fix the formatting problems",
		"Add comments",
		"reduce cyclomatic complexity",
	} {
		if !strings.Contains(out, s) {
			t.Errorf("report missing %q:\n%s", s, out)
		}
	}
}

func TestConsolidated_NothingRun(t *testing.T) {
	out := Consolidated(nil, nil)
	if !strings.Contains(out, "Format analysis not run") || !strings.Contains(out, "Metrics analysis not run") {
		t.Errorf("missing placeholders:\n%s", out)
	}
	if !strings.Contains(out, "good shape") {
		t.Errorf("expected default recommendation:\n%s", out)
	}
}
