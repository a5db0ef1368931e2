package metrics

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"submission-grader/internal/sandbox"
)

//go:embed pyast.py
var pyastHelper string

const defaultPythonTimeout = 20 * time.Second

// PythonAnalyzer parses sources with the interpreter's own ast module by
// running an embedded helper through the invoker.
type PythonAnalyzer struct {
	invoker     sandbox.Invoker
	interpreter string
	timeout     time.Duration
}

func NewPythonAnalyzer(invoker sandbox.Invoker, timeout time.Duration) *PythonAnalyzer {
	if timeout <= 0 {
		timeout = defaultPythonTimeout
	}
	return &PythonAnalyzer{invoker: invoker, interpreter: "python3", timeout: timeout}
}

type pyFunction struct {
	Name         string `json:"name"`
	Line         int    `json:"line"`
	Lines        int    `json:"lines"`
	Complexity   int    `json:"complexity"`
	HasDocstring bool   `json:"has_docstring"`
	IsMethod     bool   `json:"is_method"`
}

type pyOutput struct {
	Functions   []pyFunction `json:"functions"`
	Classes     int          `json:"classes"`
	Imports     []string     `json:"imports"`
	IfCount     int          `json:"if_count"`
	ForCount    int          `json:"for_count"`
	WhileCount  int          `json:"while_count"`
	SyntaxError *struct {
		Line int    `json:"line"`
		Col  int    `json:"col"`
		Msg  string `json:"msg"`
	} `json:"syntax_error"`
}

func (p *PythonAnalyzer) parse(ctx context.Context, code string) (*pyOutput, error) {
	var out pyOutput
	err := sandbox.WithTempDir("pymetrics", func(dir string) error {
		helper, err := sandbox.WriteSource(dir, "pyast_helper.py", pyastHelper)
		if err != nil {
			return err
		}
		src, err := sandbox.WriteSource(dir, "submission.py", code)
		if err != nil {
			return err
		}

		res, err := p.invoker.Run(ctx, sandbox.Command{
			Args:    []string{p.interpreter, helper, src},
			Timeout: p.timeout,
			Dir:     dir,
		})
		if err != nil {
			return fmt.Errorf("running python metrics helper: %w", err)
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("python metrics helper exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
		}
		if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
			return fmt.Errorf("decoding python metrics: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// addPython fills r from parsed helper output. Comments are counted from
// the raw text because the AST drops them.
func addPython(r *Report, code string, out *pyOutput) {
	var functions, methods, documented, totalLines, totalComplexity, maxComplexity, complex int
	for _, f := range out.Functions {
		r.Functions = append(r.Functions, FunctionMetrics{
			Name:         f.Name,
			StartLine:    f.Line,
			Lines:        f.Lines,
			Complexity:   f.Complexity,
			HasDocstring: f.HasDocstring,
			IsMethod:     f.IsMethod,
		})
		if f.IsMethod {
			methods++
		} else {
			functions++
		}
		if f.HasDocstring {
			documented++
		}
		totalLines += f.Lines
		totalComplexity += f.Complexity
		maxComplexity = max(maxComplexity, f.Complexity)
		if f.Complexity > ComplexFunction {
			complex++
		}
	}

	var comments int
	for _, line := range strings.Split(code, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			comments++
		}
	}

	r.Classes = out.Classes
	r.Imports = out.Imports
	c := r.Counters
	c["total_classes"] = float64(out.Classes)
	c["total_functions"] = float64(functions)
	c["total_methods"] = float64(methods)
	c["total_imports"] = float64(len(out.Imports))
	c["comment_count"] = float64(comments)
	c["if_count"] = float64(out.IfCount)
	c["for_count"] = float64(out.ForCount)
	c["while_count"] = float64(out.WhileCount)
	c["max_complexity"] = float64(maxComplexity)
	c["complex_functions"] = float64(complex)

	if n := len(out.Functions); n > 0 {
		c["docstring_percentage"] = round1(float64(documented) / float64(n) * 100)
		c["avg_function_lines"] = round1(float64(totalLines) / float64(n))
		c["avg_complexity"] = round1(float64(totalComplexity) / float64(n))
	} else {
		c["docstring_percentage"] = 0
		c["avg_function_lines"] = 0
		c["avg_complexity"] = 0
	}
}
