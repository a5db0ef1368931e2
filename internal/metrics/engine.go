package metrics

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
)

// ToolName identifies the metrics engine in stored analysis results.
const ToolName = "basic-metrics"

// Engine dispatches to the language-specific analysers.
type Engine struct {
	python *PythonAnalyzer
}

// NewEngine builds an engine. A nil python analyser limits Python
// submissions to generic metrics.
func NewEngine(python *PythonAnalyzer) *Engine {
	return &Engine{python: python}
}

// Analyze always returns a report. For a Python syntax error the report
// carries generic metrics and the error is a *SyntaxError.
func (e *Engine) Analyze(ctx context.Context, code, language string) (*Report, error) {
	language = strings.ToLower(language)
	r := newReport(language)
	addGeneric(r, code)

	var err error
	switch family(language) {
	case familyPython:
		err = e.analyzePython(ctx, r, code)
	case familyC:
		addC(r, code)
	}

	if err != nil {
		r.Err = err.Error()
		var se *SyntaxError
		if !errors.As(err, &se) {
			log.Warn().Err(err).Str("language", language).Msg("language metrics unavailable")
		}
	}
	r.Rendered = Render(r)
	return r, err
}

func (e *Engine) analyzePython(ctx context.Context, r *Report, code string) error {
	if e.python == nil {
		return nil
	}
	out, err := e.python.parse(ctx, code)
	if err != nil {
		return err
	}
	if se := out.SyntaxError; se != nil {
		return &SyntaxError{Line: se.Line, Col: se.Col, Msg: se.Msg}
	}
	addPython(r, code, out)
	return nil
}
