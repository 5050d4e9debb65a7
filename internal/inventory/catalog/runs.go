package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/huangc28/kikichoice-be/internal/inventory/schema"
)

// StartRun records a new pipeline run in status running.
func (db *DB) StartRun(ctx context.Context, run schema.RunRecord) error {
	_, err := db.exec(ctx, `
	INSERT INTO sync_runs (id, pipeline, status, attempts, started_at)
	VALUES (?, ?, ?, ?, ?)
	`, run.ID, run.Pipeline, run.Status, run.Attempts, formatTime(run.StartedAt))
	if err != nil {
		return fmt.Errorf("failed to start run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun stores the final status, attempt count and result of a run.
func (db *DB) FinishRun(ctx context.Context, run schema.RunRecord) error {
	finished := db.now()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	res, err := db.exec(ctx, `
	UPDATE sync_runs
	SET status = ?, attempts = ?, inserted = ?, updated = ?, total = ?, skipped = ?,
	    error = ?, finished_at = ?
	WHERE id = ?
	`, run.Status, run.Attempts, run.Result.Inserted, run.Result.Updated, run.Result.Total,
		run.Result.Skipped, run.Error, formatTime(finished), run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", run.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

// SaveStep appends a step outcome to a run's history.
func (db *DB) SaveStep(ctx context.Context, step schema.StepRecord) error {
	_, err := db.exec(ctx, `
	INSERT INTO sync_steps (run_id, attempt, name, status, output, error, started_at, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, step.RunID, step.Attempt, step.Name, step.Status, step.Output, step.Error,
		formatTime(step.StartedAt), step.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to save step %s of run %s: %w", step.Name, step.RunID, err)
	}
	return nil
}

// ListRunsOptions configures ListRuns.
type ListRunsOptions struct {
	// Since restricts results to runs started at or after this time (zero = all)
	Since time.Time
	// Pipeline filters by pipeline name (empty = all)
	Pipeline string
	// Limit restricts the number of results (0 = no limit)
	Limit int
}

// ListRuns returns runs newest first.
func (db *DB) ListRuns(ctx context.Context, opts ListRunsOptions) ([]schema.RunRecord, error) {
	query := `
	SELECT id, pipeline, status, attempts, inserted, updated, total, skipped,
	       error, started_at, finished_at
	FROM sync_runs
	WHERE 1 = 1`
	var args []any
	if !opts.Since.IsZero() {
		query += " AND started_at >= ?"
		args = append(args, formatTime(opts.Since))
	}
	if opts.Pipeline != "" {
		query += " AND pipeline = ?"
		args = append(args, opts.Pipeline)
	}
	query += " ORDER BY started_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []schema.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// GetRun retrieves a run by id. Returns ErrNotFound if it does not exist.
func (db *DB) GetRun(ctx context.Context, id string) (*schema.RunRecord, error) {
	row := db.queryRow(ctx, `
	SELECT id, pipeline, status, attempts, inserted, updated, total, skipped,
	       error, started_at, finished_at
	FROM sync_runs
	WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

// ListSteps returns the steps of a run in execution order.
func (db *DB) ListSteps(ctx context.Context, runID string) ([]schema.StepRecord, error) {
	rows, err := db.query(ctx, `
	SELECT run_id, attempt, name, status, output, error, started_at, duration_ms
	FROM sync_steps
	WHERE run_id = ?
	ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps of run %s: %w", runID, err)
	}
	defer rows.Close()

	var steps []schema.StepRecord
	for rows.Next() {
		var s schema.StepRecord
		var startedAt string
		var durationMS int64
		if err := rows.Scan(&s.RunID, &s.Attempt, &s.Name, &s.Status, &s.Output, &s.Error, &startedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		s.StartedAt = parseTime(startedAt)
		s.Duration = time.Duration(durationMS) * time.Millisecond
		steps = append(steps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}
	return steps, nil
}

// PruneRuns deletes runs that started before cutoff, with their steps.
func (db *DB) PruneRuns(ctx context.Context, cutoff time.Time) (int, error) {
	ts := formatTime(cutoff)
	_, err := db.exec(ctx, `
	DELETE FROM sync_steps
	WHERE run_id IN (SELECT id FROM sync_runs WHERE started_at < ?)
	`, ts)
	if err != nil {
		return 0, fmt.Errorf("failed to prune steps: %w", err)
	}
	res, err := db.exec(ctx, `DELETE FROM sync_runs WHERE started_at < ?`, ts)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*schema.RunRecord, error) {
	var run schema.RunRecord
	var startedAt string
	var finishedAt sql.NullString
	err := row.Scan(&run.ID, &run.Pipeline, &run.Status, &run.Attempts,
		&run.Result.Inserted, &run.Result.Updated, &run.Result.Total, &run.Result.Skipped,
		&run.Error, &startedAt, &finishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.StartedAt = parseTime(startedAt)
	if finishedAt.Valid {
		t := parseTime(finishedAt.String)
		run.FinishedAt = &t
	}
	return &run, nil
}
