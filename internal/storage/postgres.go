package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"submission-grader/internal/config"
)

var ErrNotFound = errors.New("record not found")

// DB wraps a PostgreSQL connection pool holding grading results and the job queue.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing database DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxOpenConns) // #nosec G115 -- small config value
	}
	if cfg.MaxIdleConns > 0 {
		pcfg.MinConns = int32(min(cfg.MaxIdleConns, cfg.MaxOpenConns)) // #nosec G115 -- small config value
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.Info().Int32("max_conns", pcfg.MaxConns).Msg("connected to PostgreSQL")
	return &DB{pool: pool}, nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Healthy checks database connectivity.
func (db *DB) Healthy(ctx context.Context) bool {
	return db.pool.Ping(ctx) == nil
}

// SaveEvaluation writes an evaluation with its case and analysis rows in one
// transaction.
func (db *DB) SaveEvaluation(ctx context.Context, rec *EvaluationRecord) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO evaluations (id, submission_id, question_id, language, code_hash, status,
			score, max_score, feedback, risk_count, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, rec.SubmissionID, rec.QuestionID, rec.Language, rec.CodeHash, rec.Status,
		rec.Score, rec.MaxScore, truncateForDB(rec.Feedback, 65535), rec.RiskCount,
		rec.CreatedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting evaluation: %w", err)
	}

	if len(rec.Cases) > 0 {
		_, err = tx.CopyFrom(ctx, pgx.Identifier{"case_results"},
			[]string{"evaluation_id", "case_id", "passed", "state", "exit_code", "duration_ms", "points",
				"stdout_repr", "expected_repr", "stdin_repr", "args_repr", "stderr", "diff_summary"},
			pgx.CopyFromSlice(len(rec.Cases), func(i int) ([]any, error) {
				c := rec.Cases[i]
				return []any{c.EvaluationID, c.CaseID, c.Passed, c.State, c.ExitCode, c.DurationMS, c.Points,
					truncateForDB(c.StdoutRepr, 65535), c.ExpectedRepr, c.StdinRepr, c.ArgsRepr, c.Stderr, c.DiffSummary}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copying case results: %w", err)
		}
	}

	batch := &pgx.Batch{}
	for _, a := range rec.Analyses {
		batch.Queue(`
			INSERT INTO analysis_results (evaluation_id, tool, success, report, tool_error, data)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			a.EvaluationID, a.Tool, a.Success, truncateForDB(a.Report, 65535), a.ToolError, nullJSON(a.Data))
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting analysis results: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing evaluation %s: %w", rec.ID, err)
	}
	return nil
}

// GetEvaluation retrieves one evaluation with its case rows.
func (db *DB) GetEvaluation(ctx context.Context, id uuid.UUID) (*EvaluationRecord, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT id, submission_id, question_id, language, code_hash, status,
			score, max_score, feedback, risk_count, created_at, completed_at
		FROM evaluations WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("querying evaluation %s: %w", id, err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByNameLax[EvaluationRecord])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: evaluation %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning evaluation %s: %w", id, err)
	}

	rows, err = db.pool.Query(ctx, `
		SELECT evaluation_id, case_id, passed, state, exit_code, duration_ms, points,
			stdout_repr, expected_repr, stdin_repr, args_repr, stderr, diff_summary
		FROM case_results WHERE evaluation_id = $1 ORDER BY case_id`, id)
	if err != nil {
		return nil, fmt.Errorf("querying case results: %w", err)
	}
	rec.Cases, err = pgx.CollectRows(rows, pgx.RowToStructByName[CaseRecord])
	if err != nil {
		return nil, fmt.Errorf("scanning case results: %w", err)
	}
	return rec, nil
}

// ListEvaluations queries evaluations with optional filters, newest first.
func (db *DB) ListEvaluations(ctx context.Context, filter EvaluationFilter) ([]EvaluationRecord, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := db.pool.Query(ctx, `
		SELECT id, submission_id, question_id, language, code_hash, status,
			score, max_score, feedback, risk_count, created_at, completed_at
		FROM evaluations
		WHERE ($1 = '' OR question_id = $1)
		  AND ($2 = '' OR submission_id = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`,
		filter.QuestionID, filter.SubmissionID, filter.Status, limit, filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying evaluations: %w", err)
	}
	results, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[EvaluationRecord])
	if err != nil {
		return nil, fmt.Errorf("scanning evaluation rows: %w", err)
	}
	return results, nil
}

// ReplaceSimilarityRun deletes earlier runs for the same scope and method
// and stores run with its pairs.
func (db *DB) ReplaceSimilarityRun(ctx context.Context, run *SimilarityRun) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM similarity_runs WHERE scope = $1 AND method = $2`, run.Scope, run.Method)
	if err != nil {
		return fmt.Errorf("deleting previous similarity runs: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		log.Debug().Str("scope", run.Scope).Int64("replaced", n).Msg("superseding similarity run")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO similarity_runs (id, scope, method, threshold, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.Scope, run.Method, run.Threshold, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting similarity run: %w", err)
	}

	if len(run.Pairs) > 0 {
		_, err = tx.CopyFrom(ctx, pgx.Identifier{"similarity_pairs"},
			[]string{"run_id", "id_a", "id_b", "percent"},
			pgx.CopyFromSlice(len(run.Pairs), func(i int) ([]any, error) {
				p := run.Pairs[i]
				return []any{run.ID, p.IDA, p.IDB, p.Percent}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copying similarity pairs: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing similarity run: %w", err)
	}
	return nil
}

// SavePerfRun inserts a performance estimate.
func (db *DB) SavePerfRun(ctx context.Context, run *PerfRun) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO perf_runs (id, submission_id, language, entry_point, model, confidence,
			samples, report, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.SubmissionID, run.Language, run.EntryPoint, run.Model, run.Confidence,
		run.Samples, run.Report, run.Error, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting perf run: %w", err)
	}
	return nil
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func truncateForDB(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
