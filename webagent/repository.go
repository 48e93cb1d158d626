// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package webagent

import (
	"context"
	"errors"
)

// ErrTaskNotFound is returned when a task does not exist.
var ErrTaskNotFound = errors.New("task not found")

// ErrRunNotFound is returned when a task run does not exist.
var ErrRunNotFound = errors.New("task run not found")

// Repository persists tasks, runs and their step traces.
type Repository interface {
	CreateTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context) ([]Task, error)

	CreateRun(ctx context.Context, run *TaskRun) error
	GetRun(ctx context.Context, id string) (*TaskRun, error)
	ListRuns(ctx context.Context, taskID string) ([]TaskRun, error)
	UpdateRun(ctx context.Context, run *TaskRun) error

	SaveRunSteps(ctx context.Context, runID string, steps []RunStep) error
	GetRunSteps(ctx context.Context, runID string) ([]RunStep, error)
}
