package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/evantahler/botholomew-sub001/pkg/schema"
)

// --- Runs ---

func (s *LibSQLStore) CreateRun(ctx context.Context, r *WorkflowRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_runs (id, workflow_id, status, input, output, error, current_step, started_at, completed_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.WorkflowID, string(r.Status), nullStr(r.Input), nullStr(r.Output), nullStr(r.Error),
		r.CurrentStep, nullTime(r.StartedAt), nullTime(r.CompletedAt),
		timeOrNow(r.CreatedAt), timeOrNow(r.UpdatedAt),
	)
	return err
}

const runColumns = `id, workflow_id, status, input, output, error, current_step, started_at, completed_at, created_at, updated_at`

func scanRun(scan func(...any) error) (*WorkflowRun, error) {
	r := &WorkflowRun{}
	var status string
	var input, output, errText sql.NullString
	var startedAt, completedAt sql.NullTime
	if err := scan(&r.ID, &r.WorkflowID, &status, &input, &output, &errText,
		&r.CurrentStep, &startedAt, &completedAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = schema.RunStatus(status)
	r.Input = input.String
	r.Output = output.String
	r.Error = errText.String
	if startedAt.Valid {
		r.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	return r, nil
}

// GetRun loads a run scoped to its owning workflow.
func (s *LibSQLStore) GetRun(ctx context.Context, runID, workflowID string) (*WorkflowRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM workflow_runs WHERE id = ? AND workflow_id = ?`, runID, workflowID)
	r, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow_run", runID)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *LibSQLStore) UpdateRun(ctx context.Context, id string, update RunUpdate) error {
	sets, args := runUpdateClauses(update)
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE workflow_runs SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow_run", id)
}

func runUpdateClauses(update RunUpdate) ([]string, []any) {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Output != nil {
		sets = append(sets, "output = ?")
		args = append(args, *update.Output)
	}
	if update.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *update.Error)
	}
	if update.CurrentStep != nil {
		sets = append(sets, "current_step = ?")
		args = append(args, *update.CurrentStep)
	}
	if update.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, *update.StartedAt)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	return sets, args
}

func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*WorkflowRun, error) {
	var where []string
	var args []any

	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}

	query := `SELECT ` + runColumns + ` FROM workflow_runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRuns(rows)
}

// ListActiveRuns returns every run that still needs ticks.
func (s *LibSQLStore) ListActiveRuns(ctx context.Context) ([]*WorkflowRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM workflow_runs
		 WHERE status IN ('pending', 'running') ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRuns(rows)
}

func collectRuns(rows *sql.Rows) ([]*WorkflowRun, error) {
	var runs []*WorkflowRun
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CreateScheduledRun inserts a pending run and advances the workflow's
// watermark in one transaction, so a crash between the two writes cannot
// produce a duplicate run on the next scan.
func (s *LibSQLStore) CreateScheduledRun(ctx context.Context, r *WorkflowRun, scheduledAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO workflow_runs (id, workflow_id, status, input, current_step, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.WorkflowID, string(r.Status), nullStr(r.Input), r.CurrentStep,
		timeOrNow(r.CreatedAt), timeOrNow(r.UpdatedAt),
	); err != nil {
		return fmt.Errorf("insert scheduled run: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE workflows SET last_scheduled_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		scheduledAt, r.WorkflowID,
	)
	if err != nil {
		return fmt.Errorf("advance watermark: %w", err)
	}
	if err := checkRowsAffected(res, "workflow", r.WorkflowID); err != nil {
		return err
	}

	return tx.Commit()
}

// --- Run steps ---

// ReplaceRunStep deletes any stale record for the (run, step) pair and
// inserts the fresh one in a single transaction, keeping retried ticks of the
// same step idempotent.
func (s *LibSQLStore) ReplaceRunStep(ctx context.Context, rs *WorkflowRunStep) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM workflow_run_steps WHERE workflow_run_id = ? AND workflow_step_id = ?`,
		rs.WorkflowRunID, rs.WorkflowStepID,
	); err != nil {
		return fmt.Errorf("delete stale run step: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO workflow_run_steps (id, workflow_run_id, workflow_step_id, workflow_id, system_prompt, user_prompt, input, output, rationale, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rs.ID, rs.WorkflowRunID, rs.WorkflowStepID, rs.WorkflowID,
		nullStr(rs.SystemPrompt), nullStr(rs.UserPrompt), nullStr(rs.Input),
		nullStr(rs.Output), nullStr(rs.Rationale), string(rs.Status),
		timeOrNow(rs.CreatedAt), timeOrNow(rs.UpdatedAt),
	); err != nil {
		return fmt.Errorf("insert run step: %w", err)
	}

	return tx.Commit()
}

const runStepColumns = `id, workflow_run_id, workflow_step_id, workflow_id, system_prompt, user_prompt, input, output, rationale, status, created_at, updated_at`

func scanRunStep(scan func(...any) error) (*WorkflowRunStep, error) {
	rs := &WorkflowRunStep{}
	var status string
	var sysPrompt, userPrompt, input, output, rationale sql.NullString
	if err := scan(&rs.ID, &rs.WorkflowRunID, &rs.WorkflowStepID, &rs.WorkflowID,
		&sysPrompt, &userPrompt, &input, &output, &rationale, &status,
		&rs.CreatedAt, &rs.UpdatedAt); err != nil {
		return nil, err
	}
	rs.SystemPrompt = sysPrompt.String
	rs.UserPrompt = userPrompt.String
	rs.Input = input.String
	rs.Output = output.String
	rs.Rationale = rationale.String
	rs.Status = schema.RunStepStatus(status)
	return rs, nil
}

func (s *LibSQLStore) GetRunStepForStep(ctx context.Context, runID, stepID string) (*WorkflowRunStep, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runStepColumns+` FROM workflow_run_steps
		 WHERE workflow_run_id = ? AND workflow_step_id = ?`, runID, stepID)
	rs, err := scanRunStep(row.Scan)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow_run_step", runID+"/"+stepID)
	}
	if err != nil {
		return nil, err
	}
	return rs, nil
}

func (s *LibSQLStore) UpdateRunStep(ctx context.Context, id string, update RunStepUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Output != nil {
		sets = append(sets, "output = ?")
		args = append(args, *update.Output)
	}
	if update.Rationale != nil {
		sets = append(sets, "rationale = ?")
		args = append(args, *update.Rationale)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE workflow_run_steps SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow_run_step", id)
}

func (s *LibSQLStore) ListRunSteps(ctx context.Context, runID string) ([]*WorkflowRunStep, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runStepColumns+` FROM workflow_run_steps
		 WHERE workflow_run_id = ? ORDER BY created_at ASC, id ASC`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*WorkflowRunStep
	for rows.Next() {
		rs, err := scanRunStep(rows.Scan)
		if err != nil {
			return nil, err
		}
		steps = append(steps, rs)
	}
	return steps, rows.Err()
}

// FailRun records a step failure on both the run and the run step in one
// transaction.
func (s *LibSQLStore) FailRun(ctx context.Context, runID, runStepID, errText string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE workflow_runs SET status = 'failed', error = ?, completed_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		errText, now, runID,
	)
	if err != nil {
		return fmt.Errorf("fail run: %w", err)
	}
	if err := checkRowsAffected(res, "workflow_run", runID); err != nil {
		return err
	}

	if runStepID != "" {
		res, err = tx.ExecContext(ctx,
			`UPDATE workflow_run_steps SET status = 'failed', output = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			errText, runStepID,
		)
		if err != nil {
			return fmt.Errorf("fail run step: %w", err)
		}
		if err := checkRowsAffected(res, "workflow_run_step", runStepID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// --- Task queue ---

func (s *LibSQLStore) EnqueueJob(ctx context.Context, j *QueuedJob) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO queued_jobs (queue, action, params, status, enqueued_at) VALUES (?, ?, ?, ?, ?)`,
		j.Queue, j.Action, nullStr(j.Params), string(schema.JobStatusQueued), timeOrNow(j.EnqueuedAt),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	j.ID = id
	j.Status = schema.JobStatusQueued
	return nil
}

// ClaimJob atomically takes the oldest queued job off the named queue.
// Returns (nil, nil) when the queue is empty.
func (s *LibSQLStore) ClaimJob(ctx context.Context, queue string) (*QueuedJob, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	j := &QueuedJob{}
	var params sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT id, queue, action, params, enqueued_at FROM queued_jobs
		 WHERE queue = ? AND status = 'queued' ORDER BY id ASC LIMIT 1`, queue,
	).Scan(&j.ID, &j.Queue, &j.Action, &params, &j.EnqueuedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	j.Params = params.String

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE queued_jobs SET status = 'running', started_at = ? WHERE id = ?`, now, j.ID,
	); err != nil {
		return nil, fmt.Errorf("claim job %d: %w", j.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	j.Status = schema.JobStatusRunning
	j.StartedAt = &now
	return j, nil
}

func (s *LibSQLStore) FinishJob(ctx context.Context, id int64, status string, errText string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE queued_jobs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, nullStr(errText), time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "queued_job", fmt.Sprintf("%d", id))
}

func (s *LibSQLStore) GetJob(ctx context.Context, id int64) (*QueuedJob, error) {
	j := &QueuedJob{}
	var params, errText sql.NullString
	var status string
	var startedAt, finishedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, queue, action, params, status, error, enqueued_at, started_at, finished_at
		 FROM queued_jobs WHERE id = ?`, id,
	).Scan(&j.ID, &j.Queue, &j.Action, &params, &status, &errText,
		&j.EnqueuedAt, &startedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("queued_job", fmt.Sprintf("%d", id))
	}
	if err != nil {
		return nil, err
	}
	j.Params = params.String
	j.Status = schema.JobStatus(status)
	j.Error = errText.String
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		j.FinishedAt = &finishedAt.Time
	}
	return j, nil
}

func (s *LibSQLStore) ListQueuedJobs(ctx context.Context, queue string, offset, limit int) ([]*QueuedJob, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, queue, action, params, status, error, enqueued_at, started_at, finished_at
		 FROM queued_jobs WHERE queue = ? AND status = 'queued'
		 ORDER BY id ASC LIMIT ? OFFSET ?`, queue, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*QueuedJob
	for rows.Next() {
		j := &QueuedJob{}
		var params, errText sql.NullString
		var status string
		var startedAt, finishedAt sql.NullTime
		if err := rows.Scan(&j.ID, &j.Queue, &j.Action, &params, &status, &errText,
			&j.EnqueuedAt, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		j.Params = params.String
		j.Status = schema.JobStatus(status)
		j.Error = errText.String
		if startedAt.Valid {
			j.StartedAt = &startedAt.Time
		}
		if finishedAt.Valid {
			j.FinishedAt = &finishedAt.Time
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
