package judge

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"testing"
	"time"

	"submission-grader/internal/runtime"
	"submission-grader/internal/sandbox"
)

// fakeInvoker records calls and answers them with handle.
type fakeInvoker struct {
	calls  []sandbox.Command
	handle func(cmd sandbox.Command) (*sandbox.Result, error)
}

func (f *fakeInvoker) Run(_ context.Context, cmd sandbox.Command) (*sandbox.Result, error) {
	f.calls = append(f.calls, cmd)
	return f.handle(cmd)
}

func timeoutErr() error {
	return &sandbox.ExecutionError{ExecID: "x", Op: "run", Err: fmt.Errorf("%w after 1s", sandbox.ErrTimeout)}
}

func TestRunner_CompileErrorRunsNoCases(t *testing.T) {
	inv := &fakeInvoker{handle: func(cmd sandbox.Command) (*sandbox.Result, error) {
		if cmd.Args[0] == "gcc" {
			return &sandbox.Result{ExitCode: 1, Stderr: "main.c:1: error: expected ';'"}, nil
		}
		t.Fatalf("unexpected run of %v after failed compile", cmd.Args)
		return nil, nil
	}}
	r := NewRunner(inv, DefaultOptions())

	results, err := r.Run(context.Background(), &runtime.CRuntime{}, "int main(){", []TestCase{{ID: "1", Points: 1}})
	ce, ok := IsCompileError(err)
	if !ok {
		t.Fatalf("err = %v, want *CompileError", err)
	}
	if !errors.Is(err, ErrCompile) {
		t.Error("CompileError should match ErrCompile")
	}
	if !strings.HasPrefix(ce.Error(), "Compilation error:\n") || !strings.Contains(ce.Error(), "expected ';'") {
		t.Errorf("CompileError = %q", ce.Error())
	}
	if results != nil {
		t.Errorf("results = %v, want none", results)
	}
}

func TestRunner_CompileErrorHidesWorkDir(t *testing.T) {
	var workDir string
	inv := &fakeInvoker{handle: func(cmd sandbox.Command) (*sandbox.Result, error) {
		workDir = cmd.Dir
		src := cmd.Args[4]
		return &sandbox.Result{ExitCode: 1, Stderr: src + ":1:11: error: expected ';'\n" +
			"collect2: cannot write " + cmd.Dir + "/main\nIn directory " + cmd.Dir + "\n"}, nil
	}}
	r := NewRunner(inv, DefaultOptions())

	_, err := r.Run(context.Background(), &runtime.CRuntime{}, "int main(){", []TestCase{{ID: "1", Points: 1}})
	ce, ok := IsCompileError(err)
	if !ok {
		t.Fatalf("err = %v, want *CompileError", err)
	}
	if workDir == "" || strings.Contains(ce.Output, workDir) {
		t.Errorf("compiler output leaks work dir %q:\n%s", workDir, ce.Output)
	}
	want := "main.c:1:11: error: expected ';'\ncollect2: cannot write main\nIn directory .\n"
	if ce.Output != want {
		t.Errorf("Output = %q, want %q", ce.Output, want)
	}
}

func TestRunner_CaseOutcomes(t *testing.T) {
	inv := &fakeInvoker{handle: func(cmd sandbox.Command) (*sandbox.Result, error) {
		switch cmd.Args[len(cmd.Args)-1] {
		case "pass":
			return &sandbox.Result{Stdout: "Result: 3.1416\n", Duration: time.Millisecond}, nil
		case "fail":
			return &sandbox.Result{Stdout: "wrong\n", ExitCode: 2}, nil
		case "slow":
			return &sandbox.Result{Stdout: "partial", ExitCode: -1, Duration: time.Second}, timeoutErr()
		case "broken":
			return nil, &sandbox.ExecutionError{Op: "lookup", Err: sandbox.ErrToolNotFound}
		}
		return nil, errors.New("unexpected")
	}}
	r := NewRunner(inv, DefaultOptions())

	cases := []TestCase{
		{ID: "pass", Args: []string{"pass"}, ExpectedStdout: "result:   3.14159", Points: 2.5},
		{ID: "slow", Args: []string{"slow"}, ExpectedStdout: "x", Points: 1},
		{ID: "fail", Args: []string{"fail"}, ExpectedStdout: "right", Points: 1},
		{ID: "broken", Args: []string{"broken"}, ExpectedStdout: "x", Points: 1},
	}
	results, err := r.Run(context.Background(), &runtime.PythonRuntime{}, "print(1)", cases)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4 (timeouts must not stop later cases)", len(results))
	}

	pass, slow, fail, broken := results[0], results[1], results[2], results[3]
	if !pass.Passed || pass.PointsAwarded != 2.5 || pass.State != StateCompleted {
		t.Errorf("pass = %+v", pass)
	}
	if slow.State != StateTimeout || slow.Passed || slow.Stdout != TimeoutMarker || slow.ExitCode != nil {
		t.Errorf("slow = %+v", slow)
	}
	if slow.Duration != time.Second {
		t.Errorf("timeout duration = %s, want 1s", slow.Duration)
	}
	if fail.State != ExitCodeState(2) || fail.Passed || fail.DiffSummary == "" || *fail.ExitCode != 2 {
		t.Errorf("fail = %+v", fail)
	}
	if broken.State != StateErrorInternal || !strings.HasPrefix(broken.Stdout, "<INTERNAL EVALUATOR ERROR:") {
		t.Errorf("broken = %+v", broken)
	}
	if got := Score(results); got != 2.5 {
		t.Errorf("Score = %g, want 2.5", got)
	}
}

func TestRunner_ArgsAndStdinPassedVerbatim(t *testing.T) {
	inv := &fakeInvoker{handle: func(cmd sandbox.Command) (*sandbox.Result, error) {
		return &sandbox.Result{Stdout: "ok"}, nil
	}}
	r := NewRunner(inv, DefaultOptions())
	_, err := r.Run(context.Background(), &runtime.PythonRuntime{}, "print(1)", []TestCase{
		{ID: "1", Args: []string{"two words", "--flag"}, Stdin: "a\r\nb\r\n", ExpectedStdout: "ok"},
	})
	if err != nil {
		t.Fatal(err)
	}
	got := inv.calls[0]
	if n := len(got.Args); n != 4 || got.Args[2] != "two words" || got.Args[3] != "--flag" {
		t.Errorf("Args = %q", got.Args)
	}
	if got.Stdin != "a\nb\n" {
		t.Errorf("Stdin = %q, want normalised line endings", got.Stdin)
	}
	if got.Timeout != DefaultCaseTimeout {
		t.Errorf("Timeout = %s, want %s", got.Timeout, DefaultCaseTimeout)
	}
}

func TestRunner_NegativePointsRejected(t *testing.T) {
	r := NewRunner(&fakeInvoker{}, DefaultOptions())
	if _, err := r.Run(context.Background(), &runtime.PythonRuntime{}, "x", []TestCase{{ID: "1", Points: -1}}); err == nil {
		t.Error("expected validation error for negative points")
	}
}

func TestScore_Rounding(t *testing.T) {
	results := []CaseResult{{PointsAwarded: 0.1}, {PointsAwarded: 0.2}, {PointsAwarded: 0.333}}
	if got := Score(results); got != 0.63 {
		t.Errorf("Score = %v, want 0.63", got)
	}
}

func TestCaseFeedback(t *testing.T) {
	results := []CaseResult{
		{CaseID: "1", Passed: true, State: StateCompleted},
		{CaseID: "2", Description: "negatives", State: StateCompleted, DiffSummary: "--- expected\n+++ actual"},
		{CaseID: "3", Hidden: true, Description: "secret", State: StateTimeout, DiffSummary: "leak"},
		{CaseID: "4", State: ExitCodeState(139)},
	}
	got := CaseFeedback(results)
	for _, want := range []string{
		"--- Functional tests ---",
		"Summary: 1 of 4 passed.",
		"- Case 2: negatives: Failed",
		"  --- expected\n  +++ actual",
		"- Case 3: Timeout",
		"- Case 4: Error",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("feedback missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "leak") || strings.Contains(got, "secret") {
		t.Errorf("hidden case details leaked:\n%s", got)
	}
}

// TestRunner_RealPython exercises the process invoker end to end.
func TestRunner_RealPython(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	r := NewRunner(sandbox.NewProcessInvoker(2, 0), DefaultOptions())
	src := "import sys\nprint('Sum:', sum(int(x) for x in sys.argv[1:]))\n"
	results, err := r.Run(context.Background(), &runtime.PythonRuntime{}, src, []TestCase{
		{ID: "1", Args: []string{"1", "2"}, ExpectedStdout: "sum: 3", Points: 1},
		{ID: "2", Args: []string{"5"}, ExpectedStdout: "sum: 6", Points: 1},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !results[0].Passed || results[1].Passed {
		t.Errorf("results = %+v", results)
	}
}
