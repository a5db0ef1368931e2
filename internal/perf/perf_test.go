package perf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"submission-grader/internal/judge"
	"submission-grader/internal/metrics"
	"submission-grader/internal/runtime"
	"submission-grader/internal/sandbox"
)

func samplesFor(sizes []int, f func(n float64) float64) []Sample {
	out := make([]Sample, len(sizes))
	for i, s := range sizes {
		out[i] = Sample{Size: s, TimeMS: f(float64(s))}
	}
	return out
}

var defaultSizes = []int{10, 100, 1000, 10000}

func TestFit(t *testing.T) {
	tests := []struct {
		name    string
		samples []Sample
		want    Model
		minConf float64
	}{
		{"linear", samplesFor(defaultSizes, func(n float64) float64 { return 0.003 * n }), Linear, 0.8},
		{"quadratic", samplesFor(defaultSizes, func(n float64) float64 { return 1e-5 * n * n }), Quadratic, 0.8},
		{"constant", samplesFor(defaultSizes, func(float64) float64 { return 4 }), Constant, 0.8},
		{"too few", samplesFor([]int{10, 100}, func(n float64) float64 { return n }), Indeterminate, 0},
		{"errors and timeouts excluded", []Sample{
			{Size: 10, TimeMS: 1},
			{Size: 100, Err: "boom"},
			{Size: 1000, TimeMS: 30000, TimedOut: true},
		}, Indeterminate, 0},
		{"zero times excluded", samplesFor(defaultSizes, func(float64) float64 { return 0 }), Indeterminate, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fit(tt.samples, 3)
			if got.Model != tt.want {
				t.Fatalf("Model = %s, want %s", got.Model, tt.want)
			}
			if got.Confidence < tt.minConf {
				t.Errorf("Confidence = %g, want >= %g", got.Confidence, tt.minConf)
			}
			if tt.want == Indeterminate && got.Confidence != 0 {
				t.Errorf("Confidence = %g, want 0", got.Confidence)
			}
		})
	}
}

func TestEstimateLevel(t *testing.T) {
	tests := []struct {
		conf float64
		want string
	}{{0.95, "High"}, {0.9, "High"}, {0.75, "Medium"}, {0.2, "Low"}}
	for _, tt := range tests {
		if got := (Estimate{Model: Linear, Confidence: tt.conf}).Level(); got != tt.want {
			t.Errorf("Level(%g) = %s, want %s", tt.conf, got, tt.want)
		}
	}
}

func TestTimeoutFor(t *testing.T) {
	o := DefaultOptions()
	tests := []struct {
		size int
		want time.Duration
	}{
		{10, 30 * time.Second},
		{10000, 100 * time.Second},
		{100000, 300 * time.Second},
	}
	for _, tt := range tests {
		if got := o.TimeoutFor(tt.size); got != tt.want {
			t.Errorf("TimeoutFor(%d) = %s, want %s", tt.size, got, tt.want)
		}
	}
}

func TestVerbHeuristic(t *testing.T) {
	tests := []struct {
		name     string
		language string
		source   string
		want     string
		wantErr  error
	}{
		{"python verb", "python", "def helper(x):\n    pass\n\ndef merge_sort(xs):\n    return xs\n", "merge_sort", nil},
		{"python verb priority", "python", "def merge(a):\n    pass\ndef quick_sort(a):\n    pass\n", "quick_sort", nil},
		{"python fallback", "python", "def first(x):\n    pass\ndef second(y):\n    pass\n", "first", nil},
		{"python method", "python", "class S:\n    def solve(self, x):\n        pass\n", "solve", nil},
		{"c skips main", "c", "int main(void) {\n  return 0;\n}\nint total(int *a, int n) {\n  return 0;\n}\n", "total", nil},
		{"c verb", "c", "int helper(int x) {\n}\nvoid binary_search(int *a, int n) {\n}\n", "binary_search", nil},
		{"c else if", "c", "int main(void) {\n  if (x) {\n  } else if (y) {\n  }\n}\n", "", ErrNoEntryPoint},
		{"none", "python", "print(1)\n", "", ErrNoEntryPoint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := VerbHeuristic{}.Detect(tt.source, tt.language)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Detect = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRank(t *testing.T) {
	for c, want := range map[int]string{1: "A", 5: "A", 6: "B", 10: "B", 11: "C"} {
		if got := Rank(c); got != want {
			t.Errorf("Rank(%d) = %s, want %s", c, got, want)
		}
	}
}

// scriptedInvoker answers compile calls with compileExit and run calls
// through respond, keyed by the size argument.
type scriptedInvoker struct {
	compileExit int
	respond     func(size int, timeout time.Duration) (*sandbox.Result, error)
	harness     string
	calls       []string
}

func (s *scriptedInvoker) Run(_ context.Context, c sandbox.Command) (*sandbox.Result, error) {
	s.calls = append(s.calls, strings.Join(c.Args, " "))
	if c.Args[0] == "gcc" {
		return &sandbox.Result{ExitCode: s.compileExit, Stderr: "harness.c:3: error: expected ';'"}, nil
	}
	if data, err := os.ReadFile(c.Args[len(c.Args)-2]); err == nil {
		s.harness = string(data)
	}
	size, _ := strconv.Atoi(c.Args[len(c.Args)-1])
	return s.respond(size, c.Timeout)
}

func linearOutput(size int, _ time.Duration) (*sandbox.Result, error) {
	return &sandbox.Result{Stdout: fmt.Sprintf("noise from the submission\n{\"time_ms\": %g, \"memory_kb\": 12}\n", 0.002*float64(size))}, nil
}

const pySort = "def sort_numbers(xs):\n    return sorted(xs)\n"

func TestEstimator_Python(t *testing.T) {
	inv := &scriptedInvoker{respond: linearOutput}
	est := NewEstimator(inv, nil, nil, Options{})

	res, err := est.Run(context.Background(), "python", pySort)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Entry != "sort_numbers" {
		t.Errorf("Entry = %q", res.Entry)
	}
	if len(res.Samples) != 4 {
		t.Fatalf("got %d samples, want 4", len(res.Samples))
	}
	if m := res.Samples[0].MemoryKB; m == nil || *m != 12 {
		t.Errorf("MemoryKB = %v, want 12", m)
	}
	if res.Estimate.Model != Linear || res.Estimate.Confidence <= 0.8 {
		t.Errorf("Estimate = %+v, want O(n) with confidence > 0.8", res.Estimate)
	}
	if !strings.Contains(inv.harness, `"sort_numbers"`) || !strings.Contains(inv.harness, "runpy.run_path") {
		t.Errorf("harness not rendered with entry point:\n%s", inv.harness)
	}
	for _, s := range []string{"Estimated complexity: O(n)", "Confidence: 1.00 (High)", "10000"} {
		if !strings.Contains(res.Report, s) {
			t.Errorf("report missing %q:\n%s", s, res.Report)
		}
	}
}

func TestEstimator_PythonProfile(t *testing.T) {
	inv := &scriptedInvoker{respond: func(size int, _ time.Duration) (*sandbox.Result, error) {
		prof := fmt.Sprintf("%d function calls in 0.004 seconds\n  1  0.001  0.004 submission.py:1(sort_numbers)", size+2)
		if size == 10000 {
			return &sandbox.Result{ExitCode: 1, Stderr: `{"error": "MemoryError"}`}, nil
		}
		return &sandbox.Result{Stdout: fmt.Sprintf(`{"time_ms": %g, "memory_kb": 4, "profile": %q}`+"\n", 0.002*float64(size), prof+"\n")}, nil
	}}
	res, err := NewEstimator(inv, nil, nil, Options{}).Run(context.Background(), "python", pySort)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(inv.harness, "cProfile.Profile()") || !strings.Contains(inv.harness, `sort_stats("cumulative")`) {
		t.Errorf("harness does not profile the entry point:\n%s", inv.harness)
	}
	if got := res.Samples[0].Profile; !strings.HasPrefix(got, "12 function calls") || strings.HasSuffix(got, "\n") {
		t.Errorf("Samples[0].Profile = %q", got)
	}
	// The failed largest size carries no profile, so the report shows n=1000.
	if !strings.Contains(res.Report, "--- Profile at n=1000 ---\n1002 function calls") {
		t.Errorf("report missing profile of the largest good sample:\n%s", res.Report)
	}
}

func TestEstimator_TimeoutStopsLargerSizes(t *testing.T) {
	inv := &scriptedInvoker{respond: func(size int, timeout time.Duration) (*sandbox.Result, error) {
		if size >= 1000 {
			return &sandbox.Result{ExitCode: -1}, fmt.Errorf("run: %w", sandbox.ErrTimeout)
		}
		return linearOutput(size, timeout)
	}}
	res, err := NewEstimator(inv, nil, nil, Options{}).Run(context.Background(), "python", pySort)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Samples) != 3 {
		t.Fatalf("got %d samples, want 3 (10000 skipped)", len(res.Samples))
	}
	last := res.Samples[2]
	if !last.TimedOut || last.TimeMS != 30000 {
		t.Errorf("last sample = %+v, want timeout at 30000 ms", last)
	}
	if res.Estimate.Model != Indeterminate {
		t.Errorf("Model = %s, want Indeterminate with two valid samples", res.Estimate.Model)
	}
}

func TestEstimator_SampleErrorContinues(t *testing.T) {
	inv := &scriptedInvoker{respond: func(size int, timeout time.Duration) (*sandbox.Result, error) {
		if size == 100 {
			return &sandbox.Result{ExitCode: 1, Stderr: `{"error": "list index out of range", "traceback": "..."}`}, nil
		}
		return linearOutput(size, timeout)
	}}
	res, err := NewEstimator(inv, nil, nil, Options{}).Run(context.Background(), "python", pySort)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Samples) != 4 || res.Samples[1].Err != "list index out of range" {
		t.Fatalf("samples = %+v", res.Samples)
	}
	if res.Estimate.Model != Linear {
		t.Errorf("Model = %s, want O(n) from the three good samples", res.Estimate.Model)
	}
}

func TestEstimator_CCompileError(t *testing.T) {
	inv := &scriptedInvoker{compileExit: 1, respond: linearOutput}
	_, err := NewEstimator(inv, nil, nil, Options{}).Run(context.Background(), "c", "int sort_it(int *a, int n) {\n  return n\n}\n")
	if !errors.Is(err, judge.ErrCompile) {
		t.Fatalf("err = %v, want compile error", err)
	}
	if len(inv.calls) != 1 {
		t.Errorf("calls = %v, want only the compile step", inv.calls)
	}
}

func TestEstimator_CStaticRanks(t *testing.T) {
	inv := &scriptedInvoker{respond: linearOutput}
	code := "void sort_it(int *a, int n) {\n  for (int i = 0; i < n; i++) {\n    if (a[i]) {\n    }\n  }\n}\n"
	res, err := NewEstimator(inv, nil, metrics.NewEngine(nil), Options{Sizes: []int{10, 100, 1000}}).
		Run(context.Background(), "c", code)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.HasPrefix(inv.calls[0], "gcc -Wall -O0 ") {
		t.Errorf("first call = %q, want gcc compile", inv.calls[0])
	}
	if len(res.Static) != 1 || res.Static[0].Name != "sort_it" || res.Static[0].Complexity != 3 || res.Static[0].Rank != "A" {
		t.Errorf("Static = %+v", res.Static)
	}
	if !strings.Contains(res.Report, "Static complexity") {
		t.Errorf("report missing static section:\n%s", res.Report)
	}
}

func TestEstimator_Rejects(t *testing.T) {
	est := NewEstimator(&scriptedInvoker{respond: linearOutput}, nil, nil, Options{})
	if _, err := est.Run(context.Background(), "java", "class Main {}"); !errors.Is(err, runtime.ErrUnsupportedLanguage) {
		t.Errorf("java: err = %v, want ErrUnsupportedLanguage", err)
	}
	if _, err := est.Run(context.Background(), "python", "print(1)\n"); !errors.Is(err, ErrNoEntryPoint) {
		t.Errorf("no function: err = %v, want ErrNoEntryPoint", err)
	}
	if _, err := est.Run(context.Background(), "python", "  "); err == nil {
		t.Error("empty source accepted")
	}
}

func TestEstimator_MissingInterpreter(t *testing.T) {
	inv := &scriptedInvoker{respond: func(int, time.Duration) (*sandbox.Result, error) {
		return nil, fmt.Errorf("lookup: %w", sandbox.ErrToolNotFound)
	}}
	_, err := NewEstimator(inv, nil, nil, Options{}).Run(context.Background(), "python", pySort)
	if !sandbox.IsToolNotFound(err) {
		t.Errorf("err = %v, want ErrToolNotFound", err)
	}
}
