// Package grader sequences the checks for one submission and assembles the
// score and feedback shown to the student.
package grader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"submission-grader/internal/analysis"
	"submission-grader/internal/judge"
	"submission-grader/internal/metrics"
	"submission-grader/internal/monitor"
	"submission-grader/internal/perf"
	"submission-grader/internal/runtime"
	"submission-grader/internal/similarity"
)

var (
	ErrEmptySource     = errors.New("submission has no source code")
	ErrMissingLanguage = errors.New("submission has no language")
)

// Status is the overall outcome of an evaluation.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Submission is one student's code for a question.
type Submission struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	Source   string `json:"source"`
}

// Evaluation is everything produced while grading a submission.
type Evaluation struct {
	ID           uuid.UUID          `json:"id"`
	SubmissionID string             `json:"submission_id"`
	QuestionID   string             `json:"question_id"`
	Language     string             `json:"language"`
	Status       Status             `json:"status"`
	Score        float64            `json:"score"`
	MaxScore     float64            `json:"max_score"`
	Cases        []judge.CaseResult `json:"cases"`
	Format       *analysis.Outcome  `json:"format,omitempty"`
	Metrics      *metrics.Report    `json:"metrics,omitempty"`
	Performance  *perf.Result       `json:"performance,omitempty"`
	PerfError    string             `json:"performance_error,omitempty"`
	Risks        []monitor.Finding  `json:"risks,omitempty"`
	CompileError string             `json:"compile_error,omitempty"`
	Error        string             `json:"error,omitempty"`
	Feedback     string             `json:"feedback"`
	Started      time.Time          `json:"started_at"`
	Finished     time.Time          `json:"finished_at"`
}

// Duration is the wall-clock time the evaluation took.
func (e *Evaluation) Duration() time.Duration {
	return e.Finished.Sub(e.Started)
}

// Deps are the components a Grader drives. Recorder, Estimator and
// Similarity may be nil.
type Deps struct {
	Runtimes  *runtime.Registry
	Runner    *judge.Runner
	Analyzer  *analysis.Analyzer
	Metrics   *metrics.Engine
	Scanner   *monitor.RiskScanner
	Recorder  *monitor.Metrics
	Estimator *perf.Estimator
	// Similarity compares the submissions of a batch when the question asks for it.
	Similarity *similarity.Detector
}

type Options struct {
	FormatReportLimit int
	Parallel          int
}

// Grader evaluates submissions against questions.
type Grader struct {
	deps   Deps
	opts   Options
	tracer *monitor.Tracer
}

func New(deps Deps, opts Options) *Grader {
	if opts.FormatReportLimit <= 0 {
		opts.FormatReportLimit = 1000
	}
	if opts.Parallel < 1 {
		opts.Parallel = 4
	}
	if deps.Scanner == nil {
		deps.Scanner = monitor.NewRiskScanner()
	}
	return &Grader{deps: deps, opts: opts, tracer: monitor.NewTracer()}
}

// Evaluate grades one submission. Invalid input and configuration problems
// (unknown language, unknown format profile) are returned as errors; a
// build failure is a completed call with Status error and zero score.
func (g *Grader) Evaluate(ctx context.Context, sub Submission, q *Question) (*Evaluation, error) {
	if strings.TrimSpace(sub.Source) == "" {
		return nil, ErrEmptySource
	}
	language := strings.ToLower(strings.TrimSpace(sub.Language))
	if language == "" {
		language = q.Language
	}
	if language == "" {
		return nil, ErrMissingLanguage
	}
	rt, err := g.deps.Runtimes.Get(language)
	if err != nil {
		return nil, err
	}

	ctx, span := g.tracer.StartSpan(ctx, "evaluate",
		monitor.AttrSubmissionID.String(sub.ID),
		monitor.AttrLanguage.String(language),
		monitor.AttrCodeHash.String(monitor.CodeHash(sub.Source)),
		monitor.AttrCaseCount.Int(len(q.Cases)),
	)
	defer span.End()

	logger := log.With().
		Str("submission_id", sub.ID).
		Str("question_id", q.ID).
		Str("language", language).
		Logger()

	if g.deps.Recorder != nil {
		g.deps.Recorder.ActiveEvaluations.Inc()
		defer g.deps.Recorder.ActiveEvaluations.Dec()
	}

	ev := &Evaluation{
		ID:           uuid.New(),
		SubmissionID: sub.ID,
		QuestionID:   q.ID,
		Language:     language,
		Status:       StatusCompleted,
		MaxScore:     q.MaxScore(),
		Started:      time.Now(),
	}
	if err := g.quality(ctx, ev, sub.Source, language, q); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var outputs []string
	cases, err := g.deps.Runner.Run(ctx, rt, sub.Source, q.Cases)
	if ce, ok := judge.IsCompileError(err); ok {
		logger.Info().Msg("submission failed to compile")
		ev.Status = StatusError
		ev.CompileError = ce.Output
		ev.Cases = nil
	} else if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("running test cases: %w", err)
	} else {
		ev.Cases = cases
		for _, c := range cases {
			outputs = append(outputs, c.Stdout)
		}
	}
	ev.Risks = g.deps.Scanner.Scan(sub.ID, sub.Source, outputs)
	ev.Score = judge.Score(ev.Cases)

	if q.Features.Performance && ev.Status == StatusCompleted && g.deps.Estimator != nil {
		g.performance(ctx, ev, sub.Source, language)
	}

	ev.Feedback = g.feedback(ev, q)
	ev.Finished = time.Now()
	g.record(ev, len(sub.Source))

	span.SetAttributes(monitor.AttrScore.Float64(ev.Score))
	logger.Info().
		Str("status", string(ev.Status)).
		Float64("score", ev.Score).
		Float64("max_score", ev.MaxScore).
		Int("passed", judge.Passed(ev.Cases)).
		Dur("duration", ev.Duration()).
		Msg("evaluation completed")
	return ev, nil
}

// quality runs format analysis and metrics concurrently. Only a format
// configuration error aborts the evaluation.
func (g *Grader) quality(ctx context.Context, ev *Evaluation, source, language string, q *Question) error {
	eg, egCtx := errgroup.WithContext(ctx)

	if q.Features.Format && q.Format != nil && g.deps.Analyzer != nil {
		eg.Go(func() error {
			out, err := g.deps.Analyzer.Run(egCtx, q.Format.Profile, q.Format.ExtraArgs, source, language)
			if err != nil {
				return fmt.Errorf("format analysis: %w", err)
			}
			ev.Format = out
			return nil
		})
	}
	if q.Features.Metrics && g.deps.Metrics != nil {
		eg.Go(func() error {
			// A failed analysis still returns a report carrying the error.
			r, _ := g.deps.Metrics.Analyze(egCtx, source, language)
			ev.Metrics = r
			return nil
		})
	}
	return eg.Wait()
}

func (g *Grader) performance(ctx context.Context, ev *Evaluation, source, language string) {
	res, err := g.deps.Estimator.Run(ctx, language, source)
	if err != nil {
		log.Warn().Err(err).Str("submission_id", ev.SubmissionID).Msg("performance estimate failed")
		ev.PerfError = err.Error()
		return
	}
	ev.Performance = res
	if g.deps.Recorder != nil {
		g.deps.Recorder.RecordEstimate(string(res.Estimate.Model))
	}
}

func (g *Grader) record(ev *Evaluation, codeSize int) {
	rec := g.deps.Recorder
	if rec == nil {
		return
	}
	rec.RecordEvaluation(ev.Language, string(ev.Status), ev.Duration(), codeSize)
	for _, c := range ev.Cases {
		rec.RecordCase(string(c.State))
	}
	if ev.Format != nil {
		status := "success"
		switch {
		case ev.Format.ToolError != "":
			status = "tool_error"
		case !ev.Format.Success:
			status = "issues"
		}
		rec.RecordAnalysis(ev.Format.Tool, status)
	}
	for _, d := range ev.Risks {
		rec.RecordRiskyConstruct(d.Pattern)
	}
}
