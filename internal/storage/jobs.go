package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// JobKind selects what the worker does with a job's payload.
type JobKind string

const (
	JobEvaluate   JobKind = "evaluate"
	JobSimilarity JobKind = "similarity"
	JobPerf       JobKind = "perf"
)

// Job statuses.
const (
	JobQueued  = "queued"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

// Job is a queued unit of grading work.
type Job struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Kind      JobKind         `json:"kind" db:"kind"`
	Payload   json.RawMessage `json:"payload" db:"payload"`
	Status    string          `json:"status" db:"status"`
	Attempts  int             `json:"attempts" db:"attempts"`
	LastError *string         `json:"last_error,omitempty" db:"last_error"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Enqueue adds a job with a JSON-encoded payload.
func (db *DB) Enqueue(ctx context.Context, kind JobKind, payload any) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encoding %s payload: %w", kind, err)
	}
	id := uuid.New()
	_, err = db.pool.Exec(ctx, `
		INSERT INTO grading_jobs (id, kind, payload, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, now(), now())`,
		id, kind, data, JobQueued)
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueueing %s job: %w", kind, err)
	}
	return id, nil
}

// ClaimJobs marks up to limit queued jobs as running and returns them.
// Concurrent workers never claim the same job.
func (db *DB) ClaimJobs(ctx context.Context, limit int) ([]Job, error) {
	rows, err := db.pool.Query(ctx, `
		UPDATE grading_jobs SET status = $1, attempts = attempts + 1, updated_at = now()
		WHERE id IN (
			SELECT id FROM grading_jobs
			WHERE status = $2
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, kind, payload, status, attempts, last_error, created_at, updated_at`,
		JobRunning, JobQueued, limit)
	if err != nil {
		return nil, fmt.Errorf("claiming jobs: %w", err)
	}
	jobs, err := pgx.CollectRows(rows, pgx.RowToStructByName[Job])
	if err != nil {
		return nil, fmt.Errorf("scanning claimed jobs: %w", err)
	}
	return jobs, nil
}

// FinishJob records the terminal state of a claimed job. A failed job with
// attempts left goes back to the queue.
func (db *DB) FinishJob(ctx context.Context, id uuid.UUID, jobErr error, maxAttempts int) error {
	if jobErr == nil {
		_, err := db.pool.Exec(ctx,
			`UPDATE grading_jobs SET status = $2, last_error = NULL, updated_at = now() WHERE id = $1`,
			id, JobDone)
		if err != nil {
			return fmt.Errorf("completing job %s: %w", id, err)
		}
		return nil
	}

	_, err := db.pool.Exec(ctx, `
		UPDATE grading_jobs
		SET status = CASE WHEN attempts < $3 THEN $4 ELSE $5 END,
			last_error = $2, updated_at = now()
		WHERE id = $1`,
		id, jobErr.Error(), maxAttempts, JobQueued, JobFailed)
	if err != nil {
		return fmt.Errorf("failing job %s: %w", id, err)
	}
	return nil
}

// RequeueStale returns running jobs untouched for longer than age to the
// queue, covering workers that died mid-job.
func (db *DB) RequeueStale(ctx context.Context, age time.Duration) (int64, error) {
	tag, err := db.pool.Exec(ctx, `
		UPDATE grading_jobs SET status = $1, updated_at = now()
		WHERE status = $2 AND updated_at < now() - make_interval(secs => $3)`,
		JobQueued, JobRunning, age.Seconds())
	if err != nil {
		return 0, fmt.Errorf("requeueing stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}
