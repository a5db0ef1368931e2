// Package worker drains the grading job queue: it claims jobs, runs the
// grader, similarity detector or performance estimator, and stores results.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"submission-grader/internal/grader"
	"submission-grader/internal/monitor"
	"submission-grader/internal/perf"
	"submission-grader/internal/similarity"
	"submission-grader/internal/storage"
)

// ErrMalformedJob marks a payload that can never succeed; such jobs fail
// without retry.
var ErrMalformedJob = errors.New("malformed job payload")

// EvaluatePayload grades a batch of submissions for one question.
type EvaluatePayload struct {
	Question    grader.Question     `json:"question"`
	Submissions []grader.Submission `json:"submissions"`
}

// SimilarityPayload compares a batch. Scope names what a stored run
// replaces, usually the question id.
type SimilarityPayload struct {
	Scope  string             `json:"scope"`
	Method similarity.Method  `json:"method"`
	Inputs []similarity.Input `json:"inputs"`
}

// PerfPayload estimates the complexity of one submission.
type PerfPayload struct {
	SubmissionID string `json:"submission_id"`
	Language     string `json:"language"`
	Source       string `json:"source"`
}

// Queue is the job source. *storage.DB implements it.
type Queue interface {
	ClaimJobs(ctx context.Context, limit int) ([]storage.Job, error)
	FinishJob(ctx context.Context, id uuid.UUID, jobErr error, maxAttempts int) error
}

// Results stores batch outputs. *storage.DB implements it.
type Results interface {
	ReplaceSimilarityRun(ctx context.Context, run *storage.SimilarityRun) error
	SavePerfRun(ctx context.Context, run *storage.PerfRun) error
}

// Evaluations receives finished evaluation records. *storage.ResultWriter implements it.
type Evaluations interface {
	Write(rec *storage.EvaluationRecord) bool
}

type Options struct {
	PollInterval       time.Duration
	BatchSize          int
	MaxAttempts        int
	SyntacticThreshold float64
	SemanticThreshold  float64
}

// Worker processes claimed jobs one at a time; an evaluate job grades its
// submissions in parallel.
type Worker struct {
	queue       Queue
	results     Results
	evaluations Evaluations
	grader      *grader.Grader
	similarity  *similarity.Detector
	estimator   *perf.Estimator
	metrics     *monitor.Metrics
	opts        Options
}

// New builds a worker. similarity, estimator and metrics may be nil; jobs
// needing a missing component fail.
func New(q Queue, results Results, evaluations Evaluations, g *grader.Grader, sim *similarity.Detector, est *perf.Estimator, m *monitor.Metrics, opts Options) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 8
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	return &Worker{
		queue:       q,
		results:     results,
		evaluations: evaluations,
		grader:      g,
		similarity:  sim,
		estimator:   est,
		metrics:     m,
		opts:        opts,
	}
}

// Run polls until ctx is cancelled. The job in progress at cancellation is
// finished with the cancellation error and returns to the queue.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	log.Info().Dur("poll_interval", w.opts.PollInterval).Int("batch_size", w.opts.BatchSize).Msg("worker started")
	for {
		n, err := w.Poll(ctx)
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("polling job queue failed")
		}
		if n == w.opts.BatchSize && ctx.Err() == nil {
			// The queue may hold more; poll again without waiting.
			continue
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Poll claims one batch of jobs and processes it, returning how many jobs
// were claimed.
func (w *Worker) Poll(ctx context.Context) (int, error) {
	jobs, err := w.queue.ClaimJobs(ctx, w.opts.BatchSize)
	if err != nil {
		return 0, err
	}
	for _, job := range jobs {
		jobErr := w.Process(ctx, job)

		attempts := w.opts.MaxAttempts
		status := "done"
		if jobErr != nil {
			status = "failed"
			if errors.Is(jobErr, ErrMalformedJob) {
				attempts = 0
			}
			log.Warn().Err(jobErr).Str("job_id", job.ID.String()).Str("kind", string(job.Kind)).
				Int("attempt", job.Attempts).Msg("job failed")
		}
		if w.metrics != nil {
			w.metrics.RecordJob(string(job.Kind), status)
		}

		// Record the outcome even when ctx is being cancelled.
		finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := w.queue.FinishJob(finishCtx, job.ID, jobErr, attempts); err != nil {
			log.Error().Err(err).Str("job_id", job.ID.String()).Msg("recording job outcome failed")
		}
		cancel()
	}
	return len(jobs), nil
}

// Process runs a single job.
func (w *Worker) Process(ctx context.Context, job storage.Job) error {
	logger := log.With().Str("job_id", job.ID.String()).Str("kind", string(job.Kind)).Logger()
	start := time.Now()

	var err error
	switch job.Kind {
	case storage.JobEvaluate:
		var p EvaluatePayload
		if err = decode(job.Payload, &p); err == nil {
			err = w.evaluate(ctx, p)
		}
	case storage.JobSimilarity:
		var p SimilarityPayload
		if err = decode(job.Payload, &p); err == nil {
			err = w.compare(ctx, p)
		}
	case storage.JobPerf:
		var p PerfPayload
		if err = decode(job.Payload, &p); err == nil {
			err = w.estimate(ctx, p)
		}
	default:
		err = fmt.Errorf("%w: unknown job kind %q", ErrMalformedJob, job.Kind)
	}

	if err == nil {
		logger.Info().Dur("duration", time.Since(start)).Msg("job completed")
	}
	return err
}

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	return nil
}

func (w *Worker) evaluate(ctx context.Context, p EvaluatePayload) error {
	q := p.Question
	if err := q.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	res, err := w.grader.EvaluateBatch(ctx, p.Submissions, &q)
	if err != nil {
		return err
	}

	sources := make(map[string]string, len(p.Submissions))
	for _, s := range p.Submissions {
		sources[s.ID] = s.Source
	}
	for _, it := range res.Items {
		if it.Evaluation == nil {
			log.Warn().Err(it.Err).Str("submission_id", it.Submission.ID).Msg("submission not graded")
			continue
		}
		w.evaluations.Write(storage.NewEvaluationRecord(it.Evaluation, sources[it.Submission.ID], q.Cases))
	}

	if q.Features.Similarity && res.Similarity == "" {
		run := &storage.SimilarityRun{
			ID:        uuid.New(),
			Scope:     q.ID,
			Method:    string(similarity.Syntactic),
			Threshold: w.opts.SyntacticThreshold,
			Pairs:     res.Similar,
			CreatedAt: time.Now(),
		}
		if err := w.results.ReplaceSimilarityRun(ctx, run); err != nil {
			return err
		}
	}

	if n := len(res.Items) - res.Succeeded(); n > 0 {
		log.Warn().Int("failed", n).Int("total", len(res.Items)).Str("question_id", q.ID).Msg("batch partially graded")
	}
	return nil
}

func (w *Worker) compare(ctx context.Context, p SimilarityPayload) error {
	if w.similarity == nil {
		return errors.New("similarity detector not configured")
	}
	if p.Scope == "" {
		return fmt.Errorf("%w: similarity job needs a scope", ErrMalformedJob)
	}
	method := p.Method
	if method == "" {
		method = similarity.Syntactic
	}

	start := time.Now()
	pairs, err := w.similarity.Run(ctx, method, p.Inputs)
	if err != nil {
		return err
	}
	if w.metrics != nil {
		w.metrics.RecordSimilarity(string(method), len(pairs), time.Since(start))
	}

	threshold := w.opts.SyntacticThreshold
	if method == similarity.Semantic {
		threshold = w.opts.SemanticThreshold
	}
	return w.results.ReplaceSimilarityRun(ctx, &storage.SimilarityRun{
		ID:        uuid.New(),
		Scope:     p.Scope,
		Method:    string(method),
		Threshold: threshold,
		Pairs:     pairs,
		CreatedAt: time.Now(),
	})
}

func (w *Worker) estimate(ctx context.Context, p PerfPayload) error {
	if w.estimator == nil {
		return errors.New("performance estimator not configured")
	}
	res, runErr := w.estimator.Run(ctx, p.Language, p.Source)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if runErr == nil && w.metrics != nil {
		w.metrics.RecordEstimate(string(res.Estimate.Model))
	}
	// A submission that cannot be measured is stored with its reason.
	run, err := storage.NewPerfRun(p.SubmissionID, p.Language, res, runErr)
	if err != nil {
		return err
	}
	return w.results.SavePerfRun(ctx, run)
}
