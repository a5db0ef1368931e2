package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"submission-grader/internal/grader"
	"submission-grader/internal/judge"
	"submission-grader/internal/metrics"
	"submission-grader/internal/monitor"
	"submission-grader/internal/perf"
	"submission-grader/internal/similarity"
)

// EvaluationRecord is one stored evaluation with its case and analysis rows.
type EvaluationRecord struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	SubmissionID string     `json:"submission_id" db:"submission_id"`
	QuestionID   string     `json:"question_id" db:"question_id"`
	Language     string     `json:"language" db:"language"`
	CodeHash     string     `json:"code_hash" db:"code_hash"`
	Status       string     `json:"status" db:"status"` // completed, error
	Score        float64    `json:"score" db:"score"`
	MaxScore     float64    `json:"max_score" db:"max_score"`
	Feedback     string     `json:"feedback" db:"feedback"`
	RiskCount    int        `json:"risk_count" db:"risk_count"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	Cases    []CaseRecord     `json:"cases,omitempty" db:"-"`
	Analyses []AnalysisRecord `json:"analyses,omitempty" db:"-"`
}

// CaseRecord stores one case result. The *Repr fields hold Go-quoted text so
// that whitespace differences stay visible when auditing.
type CaseRecord struct {
	EvaluationID uuid.UUID `json:"evaluation_id" db:"evaluation_id"`
	CaseID       string    `json:"case_id" db:"case_id"`
	Passed       bool      `json:"passed" db:"passed"`
	State        string    `json:"state" db:"state"`
	ExitCode     *int      `json:"exit_code,omitempty" db:"exit_code"`
	DurationMS   int64     `json:"duration_ms" db:"duration_ms"`
	Points       float64   `json:"points" db:"points"`
	StdoutRepr   string    `json:"stdout_repr" db:"stdout_repr"`
	ExpectedRepr string    `json:"expected_repr" db:"expected_repr"`
	StdinRepr    string    `json:"stdin_repr" db:"stdin_repr"`
	ArgsRepr     string    `json:"args_repr" db:"args_repr"`
	Stderr       string    `json:"stderr" db:"stderr"`
	DiffSummary  string    `json:"diff_summary" db:"diff_summary"`
}

// AnalysisRecord is the outcome of one quality tool (format profile or
// metrics engine) for an evaluation.
type AnalysisRecord struct {
	EvaluationID uuid.UUID       `json:"evaluation_id" db:"evaluation_id"`
	Tool         string          `json:"tool" db:"tool"`
	Success      bool            `json:"success" db:"success"`
	Report       string          `json:"report" db:"report"`
	ToolError    string          `json:"tool_error,omitempty" db:"tool_error"`
	Data         json.RawMessage `json:"data,omitempty" db:"data"`
}

// SimilarityRun is one batch comparison. Saving a run for a scope and method
// replaces the previous one.
type SimilarityRun struct {
	ID        uuid.UUID         `json:"id" db:"id"`
	Scope     string            `json:"scope" db:"scope"`
	Method    string            `json:"method" db:"method"`
	Threshold float64           `json:"threshold" db:"threshold"`
	Pairs     []similarity.Pair `json:"pairs" db:"-"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

// PerfRun stores one performance estimate.
type PerfRun struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	SubmissionID string          `json:"submission_id" db:"submission_id"`
	Language     string          `json:"language" db:"language"`
	EntryPoint   string          `json:"entry_point" db:"entry_point"`
	Model        string          `json:"model" db:"model"`
	Confidence   float64         `json:"confidence" db:"confidence"`
	Samples      json.RawMessage `json:"samples" db:"samples"`
	Report       string          `json:"report" db:"report"`
	Error        string          `json:"error,omitempty" db:"error"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// EvaluationFilter provides criteria for querying evaluations.
type EvaluationFilter struct {
	QuestionID   string
	SubmissionID string
	Status       string
	Limit        int
	Offset       int
}

// NewEvaluationRecord flattens an evaluation into storable rows.
func NewEvaluationRecord(ev *grader.Evaluation, source string, cases []judge.TestCase) *EvaluationRecord {
	finished := ev.Finished
	rec := &EvaluationRecord{
		ID:           ev.ID,
		SubmissionID: ev.SubmissionID,
		QuestionID:   ev.QuestionID,
		Language:     ev.Language,
		CodeHash:     monitor.CodeHash(source),
		Status:       string(ev.Status),
		Score:        ev.Score,
		MaxScore:     ev.MaxScore,
		Feedback:     ev.Feedback,
		RiskCount:    len(ev.Risks),
		CreatedAt:    ev.Started,
		CompletedAt:  &finished,
	}

	byID := make(map[string]judge.TestCase, len(cases))
	for _, tc := range cases {
		byID[tc.ID] = tc
	}
	for _, r := range ev.Cases {
		tc := byID[r.CaseID]
		rec.Cases = append(rec.Cases, CaseRecord{
			EvaluationID: ev.ID,
			CaseID:       r.CaseID,
			Passed:       r.Passed,
			State:        string(r.State),
			ExitCode:     r.ExitCode,
			DurationMS:   r.Duration.Milliseconds(),
			Points:       r.PointsAwarded,
			StdoutRepr:   fmt.Sprintf("%q", r.Stdout),
			ExpectedRepr: fmt.Sprintf("%q", tc.ExpectedStdout),
			StdinRepr:    fmt.Sprintf("%q", tc.Stdin),
			ArgsRepr:     argsRepr(tc.Args),
			Stderr:       truncateForDB(r.Stderr, 65535),
			DiffSummary:  r.DiffSummary,
		})
	}

	if f := ev.Format; f != nil {
		rec.Analyses = append(rec.Analyses, AnalysisRecord{
			EvaluationID: ev.ID,
			Tool:         f.Tool,
			Success:      f.Success,
			Report:       f.Report,
			ToolError:    f.ToolError,
		})
	}
	if m := ev.Metrics; m != nil {
		data, _ := json.Marshal(m.Counters)
		rec.Analyses = append(rec.Analyses, AnalysisRecord{
			EvaluationID: ev.ID,
			Tool:         metrics.ToolName,
			Success:      m.Err == "",
			Report:       m.Rendered,
			ToolError:    m.Err,
			Data:         data,
		})
	}
	return rec
}

// NewPerfRun converts an estimator result, or the error that prevented one.
func NewPerfRun(submissionID, language string, res *perf.Result, runErr error) (*PerfRun, error) {
	run := &PerfRun{
		ID:           uuid.New(),
		SubmissionID: submissionID,
		Language:     language,
		Samples:      json.RawMessage("[]"),
		CreatedAt:    time.Now(),
	}
	if runErr != nil {
		run.Model = string(perf.Indeterminate)
		run.Error = runErr.Error()
		return run, nil
	}
	samples, err := json.Marshal(res.Samples)
	if err != nil {
		return nil, fmt.Errorf("encoding samples: %w", err)
	}
	run.EntryPoint = res.Entry
	run.Model = string(res.Estimate.Model)
	run.Confidence = res.Estimate.Confidence
	run.Samples = samples
	run.Report = res.Report
	return run, nil
}

func argsRepr(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = fmt.Sprintf("%q", a)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
