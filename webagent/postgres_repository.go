// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package webagent

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"webagent/platform/webagent/workflow"
)

// PostgresRepository persists tasks, runs and step traces in PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a repository backed by the given database.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the backing tables if they do not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id                  TEXT PRIMARY KEY,
			prompt              TEXT NOT NULL,
			model               TEXT NOT NULL,
			provider            TEXT NOT NULL,
			webhook_url         TEXT,
			response_format     TEXT NOT NULL DEFAULT 'text',
			json_schema         TEXT,
			use_cached_workflow BOOLEAN NOT NULL DEFAULT TRUE,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS task_runs (
			id                         TEXT PRIMARY KEY,
			task_id                    TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			prompt                     TEXT NOT NULL,
			model                      TEXT NOT NULL,
			provider                   TEXT NOT NULL,
			webhook_url                TEXT,
			status                     TEXT NOT NULL DEFAULT 'in_progress',
			result                     TEXT,
			error                      TEXT,
			is_done                    BOOLEAN NOT NULL DEFAULT FALSE,
			is_successful              BOOLEAN,
			escalated                  BOOLEAN NOT NULL DEFAULT FALSE,
			cache_saved                BOOLEAN NOT NULL DEFAULT FALSE,
			webhook_result_success     BOOLEAN,
			webhook_result_status_code INTEGER,
			webhook_result_message     TEXT,
			started_at                 TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at               TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS run_steps (
			run_id      TEXT NOT NULL REFERENCES task_runs(id) ON DELETE CASCADE,
			step_number INTEGER NOT NULL,
			attempt     INTEGER NOT NULL DEFAULT 1,
			description TEXT,
			mode        TEXT NOT NULL,
			screenshot  TEXT,
			PRIMARY KEY (run_id, step_number, attempt)
		)`,
		`CREATE TABLE IF NOT EXISTS run_actions (
			run_id            TEXT NOT NULL,
			step_number       INTEGER NOT NULL,
			attempt           INTEGER NOT NULL DEFAULT 1,
			action_number     INTEGER NOT NULL,
			name              TEXT NOT NULL,
			params            JSONB,
			success           BOOLEAN NOT NULL DEFAULT FALSE,
			extracted_content TEXT,
			error             TEXT,
			is_done           BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (run_id, step_number, attempt, action_number),
			FOREIGN KEY (run_id, step_number, attempt) REFERENCES run_steps(run_id, step_number, attempt) ON DELETE CASCADE
		)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// CreateTask inserts a new task.
func (r *PostgresRepository) CreateTask(ctx context.Context, task *Task) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks (id, prompt, model, provider, webhook_url, response_format, json_schema, use_cached_workflow, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		task.ID, task.Prompt, task.Model, task.Provider,
		nullString(task.WebhookURL), task.ResponseFormat, nullString(task.JSONSchema),
		task.UseCachedWorkflow, task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetTask returns a task by ID.
func (r *PostgresRepository) GetTask(ctx context.Context, id string) (*Task, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, prompt, model, provider, webhook_url, response_format, json_schema, use_cached_workflow, created_at
		FROM tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return task, nil
}

// ListTasks returns all tasks, newest first.
func (r *PostgresRepository) ListTasks(ctx context.Context) ([]Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, prompt, model, provider, webhook_url, response_format, json_schema, use_cached_workflow, created_at
		FROM tasks ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// CreateRun inserts a new task run.
func (r *PostgresRepository) CreateRun(ctx context.Context, run *TaskRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = workflow.StatusInProgress
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO task_runs (id, task_id, prompt, model, provider, webhook_url, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.TaskID, run.Prompt, run.Model, run.Provider,
		nullString(run.WebhookURL), string(run.Status), run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task run: %w", err)
	}
	return nil
}

// GetRun returns a run by ID.
func (r *PostgresRepository) GetRun(ctx context.Context, id string) (*TaskRun, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, task_id, prompt, model, provider, webhook_url, status, result, error,
		       is_done, is_successful, escalated, cache_saved,
		       webhook_result_success, webhook_result_status_code, webhook_result_message,
		       started_at, completed_at
		FROM task_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns all runs of a task, newest first.
func (r *PostgresRepository) ListRuns(ctx context.Context, taskID string) ([]TaskRun, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, task_id, prompt, model, provider, webhook_url, status, result, error,
		       is_done, is_successful, escalated, cache_saved,
		       webhook_result_success, webhook_result_status_code, webhook_result_message,
		       started_at, completed_at
		FROM task_runs WHERE task_id = $1 ORDER BY started_at DESC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs for task %s: %w", taskID, err)
	}
	defer func() { _ = rows.Close() }()

	var runs []TaskRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs for task %s: %w", taskID, err)
	}
	return runs, nil
}

// UpdateRun updates a run's outcome fields.
func (r *PostgresRepository) UpdateRun(ctx context.Context, run *TaskRun) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE task_runs
		SET status = $2, result = $3, error = $4, is_done = $5, is_successful = $6,
		    escalated = $7, cache_saved = $8,
		    webhook_result_success = $9, webhook_result_status_code = $10, webhook_result_message = $11,
		    completed_at = $12
		WHERE id = $1`,
		run.ID, string(run.Status), nullString(run.Result), nullString(run.Error),
		run.IsDone, nullBool(run.IsSuccessful), run.Escalated, run.CacheSaved,
		nullBool(run.WebhookResultSuccess), nullInt(run.WebhookResultStatusCode),
		nullString(run.WebhookResultMessage), nullTime(run.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update task run %s: %w", run.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return ErrRunNotFound
	}
	return nil
}

// SaveRunSteps persists the full step trace of a run.
func (r *PostgresRepository) SaveRunSteps(ctx context.Context, runID string, steps []RunStep) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, step := range steps {
		attempt := step.Attempt
		if attempt == 0 {
			attempt = 1
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_steps (run_id, step_number, attempt, description, mode, screenshot)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			runID, step.StepNumber, attempt, nullString(step.Description),
			string(step.Mode), nullString(step.Screenshot),
		); err != nil {
			return fmt.Errorf("failed to save run step %d: %w", step.StepNumber, err)
		}
		for _, act := range step.Actions {
			params, err := json.Marshal(act.Params)
			if err != nil {
				return fmt.Errorf("failed to marshal action params: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO run_actions (run_id, step_number, attempt, action_number, name, params, success, extracted_content, error, is_done)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				runID, step.StepNumber, attempt, act.ActionNumber, act.Name, params,
				act.Success, nullString(act.ExtractedContent), nullString(act.Error), act.IsDone,
			); err != nil {
				return fmt.Errorf("failed to save run action %d.%d: %w", step.StepNumber, act.ActionNumber, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run steps: %w", err)
	}
	return nil
}

// GetRunSteps returns the step trace of a run with its actions, in order.
func (r *PostgresRepository) GetRunSteps(ctx context.Context, runID string) ([]RunStep, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, step_number, attempt, description, mode, screenshot
		FROM run_steps WHERE run_id = $1 ORDER BY step_number, attempt`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run steps for %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var steps []RunStep
	index := make(map[[2]int]int)
	for rows.Next() {
		var (
			step        RunStep
			description sql.NullString
			screenshot  sql.NullString
			mode        string
		)
		if err := rows.Scan(&step.RunID, &step.StepNumber, &step.Attempt, &description, &mode, &screenshot); err != nil {
			return nil, fmt.Errorf("failed to scan run step: %w", err)
		}
		step.Description = description.String
		step.Mode = workflow.StepMode(mode)
		step.Screenshot = screenshot.String
		index[[2]int{step.StepNumber, step.Attempt}] = len(steps)
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load run steps for %s: %w", runID, err)
	}

	actionRows, err := r.db.QueryContext(ctx, `
		SELECT run_id, step_number, attempt, action_number, name, params, success, extracted_content, error, is_done
		FROM run_actions WHERE run_id = $1 ORDER BY step_number, attempt, action_number`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run actions for %s: %w", runID, err)
	}
	defer func() { _ = actionRows.Close() }()

	for actionRows.Next() {
		var (
			act       RunAction
			params    []byte
			extracted sql.NullString
			actErr    sql.NullString
		)
		if err := actionRows.Scan(&act.RunID, &act.StepNumber, &act.Attempt, &act.ActionNumber, &act.Name,
			&params, &act.Success, &extracted, &actErr, &act.IsDone); err != nil {
			return nil, fmt.Errorf("failed to scan run action: %w", err)
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &act.Params); err != nil {
				return nil, fmt.Errorf("stored action params are corrupt: %w", err)
			}
		}
		act.ExtractedContent = extracted.String
		act.Error = actErr.String
		if i, ok := index[[2]int{act.StepNumber, act.Attempt}]; ok {
			steps[i].Actions = append(steps[i].Actions, act)
		}
	}
	if err := actionRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load run actions for %s: %w", runID, err)
	}
	return steps, nil
}

// Ping checks database connectivity.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		task       Task
		webhookURL sql.NullString
		jsonSchema sql.NullString
	)
	err := row.Scan(&task.ID, &task.Prompt, &task.Model, &task.Provider,
		&webhookURL, &task.ResponseFormat, &jsonSchema, &task.UseCachedWorkflow, &task.CreatedAt)
	if err != nil {
		return nil, err
	}
	task.WebhookURL = webhookURL.String
	task.JSONSchema = jsonSchema.String
	return &task, nil
}

func scanRun(row rowScanner) (*TaskRun, error) {
	var (
		run            TaskRun
		webhookURL     sql.NullString
		result         sql.NullString
		runErr         sql.NullString
		status         string
		isSuccessful   sql.NullBool
		webhookSuccess sql.NullBool
		webhookStatus  sql.NullInt64
		webhookMessage sql.NullString
		completedAt    sql.NullTime
	)
	err := row.Scan(&run.ID, &run.TaskID, &run.Prompt, &run.Model, &run.Provider,
		&webhookURL, &status, &result, &runErr,
		&run.IsDone, &isSuccessful, &run.Escalated, &run.CacheSaved,
		&webhookSuccess, &webhookStatus, &webhookMessage,
		&run.StartedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	run.WebhookURL = webhookURL.String
	run.Status = workflow.RunStatus(status)
	run.Result = result.String
	run.Error = runErr.String
	if isSuccessful.Valid {
		v := isSuccessful.Bool
		run.IsSuccessful = &v
	}
	if webhookSuccess.Valid {
		v := webhookSuccess.Bool
		run.WebhookResultSuccess = &v
	}
	run.WebhookResultStatusCode = int(webhookStatus.Int64)
	run.WebhookResultMessage = webhookMessage.String
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
