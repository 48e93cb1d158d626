// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package workflow

import "context"

// Store persists the cached workflow of a task.
type Store interface {
	// Load returns the cached workflow for a task, or ErrNotFound.
	Load(ctx context.Context, taskID string) (*Workflow, error)

	// Save writes the workflow, expecting the stored version to still
	// equal wf.Version. On success the stored version is bumped. A lost
	// race returns ErrPersistenceConflict.
	Save(ctx context.Context, taskID string, wf *Workflow) error

	// Delete removes the cached workflow. Deleting a missing workflow
	// returns ErrNotFound.
	Delete(ctx context.Context, taskID string) error
}

// Locker grants the task-scoped right to mutate the cached workflow.
// A mutating run acquires it before recording a repair, so at most one run
// per task folds changes back at a time. Pure replays never need it.
type Locker interface {
	// Acquire takes the lock for a task and returns a release function.
	// Returns ErrRunInProgress when another run holds it.
	Acquire(ctx context.Context, taskID string) (release func(), err error)
}

// NoopLocker always grants the lock. Used when no Redis is configured and
// the store's version compare-and-set is the only guard.
type NoopLocker struct{}

func (NoopLocker) Acquire(ctx context.Context, taskID string) (func(), error) {
	return func() {}, nil
}
