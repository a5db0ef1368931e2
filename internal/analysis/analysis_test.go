package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/go-cmp/cmp"

	"submission-grader/internal/config"
	"submission-grader/internal/sandbox"
)

type fakeInvoker struct {
	calls  []sandbox.Command
	handle func(cmd sandbox.Command) (*sandbox.Result, error)
}

func (f *fakeInvoker) Run(_ context.Context, cmd sandbox.Command) (*sandbox.Result, error) {
	f.calls = append(f.calls, cmd)
	return f.handle(cmd)
}

func newAnalyzer(t *testing.T, handle func(sandbox.Command) (*sandbox.Result, error)) (*Analyzer, *fakeInvoker) {
	t.Helper()
	reg, err := NewRegistry(DefaultProfiles()...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	inv := &fakeInvoker{handle: handle}
	return NewAnalyzer(reg, inv, 0), inv
}

func TestParseExtraArgs(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{"", nil, false},
		{"   # only a comment", nil, false},
		{"--max-line-length=100 --ignore=E501", []string{"--max-line-length=100", "--ignore=E501"}, false},
		{`--ignore "E1 E2" # trailing`, []string{"--ignore", "E1 E2"}, false},
		{`--ignore-names="a#b" --x=c#d`, []string{"--ignore-names=a#b", "--x=c#d"}, false},
		{"--max-line-length=100 # wide\n--ignore=E501", []string{"--max-line-length=100", "--ignore=E501"}, false},
		{`--ignore "unterminated`, nil, true},
	}
	for _, tt := range tests {
		got, err := ParseExtraArgs(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseExtraArgs(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			if !errors.Is(err, ErrBadArguments) {
				t.Errorf("err = %v, want ErrBadArguments", err)
			}
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("ParseExtraArgs(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestProfileValidate(t *testing.T) {
	tests := []struct {
		name string
		p    Profile
	}{
		{"empty command", Profile{Name: "x", Suffix: ".py", Rule: exitZero()}},
		{"suffix without dot", Profile{Name: "x", Command: "x", Suffix: "py", Rule: exitZero()}},
		{"empty whitelist", Profile{Name: "x", Command: "x", Suffix: ".py", Rule: ExitCodeIn{Codes: mapset.NewSet[int]()}}},
		{"bad stream", Profile{Name: "x", Command: "x", Suffix: ".py", Rule: EmptyOutput{Stream: "stdin"}}},
		{"no rule", Profile{Name: "x", Command: "x", Suffix: ".py"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistry(tt.p); !errors.Is(err, ErrInvalidProfile) {
				t.Errorf("NewRegistry() err = %v, want ErrInvalidProfile", err)
			}
		})
	}
}

func TestNewRegistryFromConfig_Overrides(t *testing.T) {
	reg, err := NewRegistryFromConfig([]config.ProfileConfig{
		{Name: "flake8", Command: "flake8", BaseArgs: []string{"--select=E"}, Suffix: ".py", Rule: "empty_output"},
		{Name: "ruff", Command: "ruff", BaseArgs: []string{"check"}, Suffix: ".py", Rule: "exit_code", ExitCodes: []int{0, 1}},
	})
	if err != nil {
		t.Fatalf("NewRegistryFromConfig: %v", err)
	}
	p, _ := reg.Get("flake8")
	if diff := cmp.Diff([]string{"--select=E"}, p.BaseArgs); diff != "" {
		t.Errorf("flake8 not overridden (-want +got):\n%s", diff)
	}
	ruff, err := reg.Get("ruff")
	if err != nil {
		t.Fatal(err)
	}
	if got := ruff.RuleName(); got != "exit_code{0,1}" {
		t.Errorf("RuleName = %q", got)
	}
	if n := len(reg.Profiles()); n != 7 {
		t.Errorf("got %d profiles, want 7", n)
	}

	if _, err := NewRegistryFromConfig([]config.ProfileConfig{{Name: "x", Command: "x", Suffix: ".py", Rule: "regex"}}); err == nil {
		t.Error("unknown rule should be rejected")
	}
}

func TestRun_ConfigErrorsStartNoProcess(t *testing.T) {
	a, inv := newAnalyzer(t, func(sandbox.Command) (*sandbox.Result, error) {
		return &sandbox.Result{}, nil
	})
	ctx := context.Background()

	if _, err := a.Run(ctx, "nope", "", "x = 1\n", "python"); !errors.Is(err, ErrUnknownProfile) {
		t.Errorf("unknown profile err = %v", err)
	}
	if _, err := a.Run(ctx, "flake8", "", "int x;", "c"); !errors.Is(err, ErrIncompatibleLanguage) {
		t.Errorf("incompatible err = %v", err)
	}
	if _, err := a.Run(ctx, "flake8", `"open`, "x = 1\n", "python"); !errors.Is(err, ErrBadArguments) {
		t.Errorf("bad args err = %v", err)
	}
	if len(inv.calls) != 0 {
		t.Errorf("invoker called %d times, want 0", len(inv.calls))
	}
}

func TestRun_Flake8Findings(t *testing.T) {
	a, inv := newAnalyzer(t, func(cmd sandbox.Command) (*sandbox.Result, error) {
		path := cmd.Args[len(cmd.Args)-1]
		return &sandbox.Result{Stdout: path + ":1:10: E225 missing whitespace around operator\n"}, nil
	})

	out, err := a.Run(context.Background(), "flake8", "--ignore=W291 # keep quiet", "x=1\n", "python")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Success {
		t.Error("Success = true, want false")
	}
	if out.Report != "Line 1:10: E225 missing whitespace around operator" {
		t.Errorf("Report = %q", out.Report)
	}

	argv := inv.calls[0].Args
	if argv[0] != "flake8" || !strings.HasSuffix(argv[len(argv)-1], ".py") {
		t.Errorf("argv = %q", argv)
	}
	if argv[len(argv)-2] != "--ignore=W291" {
		t.Errorf("extra arg not placed before path: %q", argv)
	}
	if inv.calls[0].Timeout != DefaultTimeout {
		t.Errorf("Timeout = %s, want %s", inv.calls[0].Timeout, DefaultTimeout)
	}
}

func TestRun_ExitCodeRule(t *testing.T) {
	tests := []struct {
		name        string
		res         *sandbox.Result
		err         error
		wantSuccess bool
		wantTool    bool
		wantReport  string
	}{
		{
			name:        "formatted",
			res:         &sandbox.Result{ExitCode: 0},
			wantSuccess: true,
			wantReport:  "clang-format-google: check completed, no issues detected.",
		},
		{
			name:       "needs formatting",
			res:        &sandbox.Result{ExitCode: 1, Stderr: "{path}:3:5: error: code should be clang-formatted"},
			wantReport: "Line 3:5: error: code should be clang-formatted",
		},
		{
			name:     "tool crash",
			res:      &sandbox.Result{ExitCode: 2, Stderr: "error: unknown style 'gogle'"},
			wantTool: true,
		},
		{
			name:     "missing tool",
			err:      &sandbox.ExecutionError{Op: "lookup", Err: sandbox.ErrToolNotFound},
			wantTool: true,
		},
		{
			name:     "timeout",
			err:      fmt.Errorf("%w after 30s", sandbox.ErrTimeout),
			wantTool: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newAnalyzer(t, func(cmd sandbox.Command) (*sandbox.Result, error) {
				if tt.res == nil {
					return nil, tt.err
				}
				res := *tt.res
				res.Stderr = strings.ReplaceAll(res.Stderr, "{path}", cmd.Args[len(cmd.Args)-1])
				return &res, tt.err
			})
			out, err := a.Run(context.Background(), "clang-format-google", "", "int main(){}", "c")
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if out.Success != tt.wantSuccess {
				t.Errorf("Success = %v, want %v", out.Success, tt.wantSuccess)
			}
			if (out.ToolError != "") != tt.wantTool {
				t.Errorf("ToolError = %q, wantTool %v", out.ToolError, tt.wantTool)
			}
			if tt.wantReport != "" && out.Report != tt.wantReport {
				t.Errorf("Report = %q, want %q", out.Report, tt.wantReport)
			}
		})
	}
}

func TestEmptyOutputStderr(t *testing.T) {
	rule := EmptyOutput{Stream: Stderr}
	if !rule.Succeeded(&sandbox.Result{Stderr: "note: all good\n"}) {
		t.Error("notes alone should not fail the rule")
	}
	if rule.Succeeded(&sandbox.Result{Stderr: "a.c:1:1: warning: unused variable"}) {
		t.Error("warning line should fail the rule")
	}
}

func TestSanitize(t *testing.T) {
	path := "/tmp/grader-1/src-abcd.py"
	in := path + ":12:4: E111 indentation\n--- " + path + "\nsee " + path
	want := "Line 12:4: E111 indentation\n--- [file]\nsee [file]"
	if got := Sanitize(in, path); got != want {
		t.Errorf("Sanitize = %q, want %q", got, want)
	}
}
