// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore persists cached workflows in PostgreSQL. The document is
// stored as JSONB next to a version counter; Save bumps the counter only
// when the caller saw the current value, which is what turns a concurrent
// repair into ErrPersistenceConflict instead of a silent overwrite.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store backed by the given database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the backing table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS cached_workflows (
			task_id    TEXT PRIMARY KEY,
			document   JSONB NOT NULL,
			version    INTEGER NOT NULL DEFAULT 1,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create cached_workflows table: %w", err)
	}
	return nil
}

// Load returns the cached workflow for a task.
func (s *PostgresStore) Load(ctx context.Context, taskID string) (*Workflow, error) {
	var (
		document []byte
		version  int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT document, version FROM cached_workflows WHERE task_id = $1`,
		taskID,
	).Scan(&document, &version)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow for task %s: %w", taskID, err)
	}

	var wf Workflow
	if err := json.Unmarshal(document, &wf); err != nil {
		return nil, fmt.Errorf("stored workflow for task %s is corrupt: %w", taskID, err)
	}
	wf.Version = version
	return &wf, nil
}

// Save upserts the workflow with a version compare-and-set. wf.Version must
// be the version the caller loaded (0 for a fresh workflow).
func (s *PostgresStore) Save(ctx context.Context, taskID string, wf *Workflow) error {
	document, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}

	var newVersion int
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO cached_workflows (task_id, document, version, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (task_id) DO UPDATE
		SET document   = EXCLUDED.document,
		    version    = cached_workflows.version + 1,
		    updated_at = NOW()
		WHERE cached_workflows.version = $3
		RETURNING version`,
		taskID, document, wf.Version,
	).Scan(&newVersion)
	if err == sql.ErrNoRows {
		return ErrPersistenceConflict
	}
	if err != nil {
		return fmt.Errorf("failed to save workflow for task %s: %w", taskID, err)
	}
	return nil
}

// Delete removes the cached workflow of a task.
func (s *PostgresStore) Delete(ctx context.Context, taskID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM cached_workflows WHERE task_id = $1`, taskID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow for task %s: %w", taskID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
