// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package webagent

import (
	"context"
	"sort"
	"sync"
	"time"

	"webagent/platform/webagent/workflow"
)

// MockRepository is an in-memory Repository for tests and local development.
// The error fields, when set, are returned by the corresponding methods.
type MockRepository struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	runs  map[string]*TaskRun
	steps map[string][]RunStep

	CreateTaskErr error
	CreateRunErr  error
	UpdateRunErr  error
	SaveStepsErr  error
}

var _ Repository = (*MockRepository)(nil)

// NewMockRepository creates an empty mock repository.
func NewMockRepository() *MockRepository {
	return &MockRepository{
		tasks: make(map[string]*Task),
		runs:  make(map[string]*TaskRun),
		steps: make(map[string][]RunStep),
	}
}

func (m *MockRepository) CreateTask(ctx context.Context, task *Task) error {
	if m.CreateTaskErr != nil {
		return m.CreateTaskErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	copied := *task
	m.tasks[task.ID] = &copied
	return nil
}

func (m *MockRepository) GetTask(ctx context.Context, id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	copied := *task
	return &copied, nil
}

func (m *MockRepository) ListTasks(ctx context.Context) ([]Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tasks := make([]Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		tasks = append(tasks, *task)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })
	return tasks, nil
}

func (m *MockRepository) CreateRun(ctx context.Context, run *TaskRun) error {
	if m.CreateRunErr != nil {
		return m.CreateRunErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = workflow.StatusInProgress
	}
	copied := *run
	m.runs[run.ID] = &copied
	return nil
}

func (m *MockRepository) GetRun(ctx context.Context, id string) (*TaskRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	copied := *run
	return &copied, nil
}

func (m *MockRepository) ListRuns(ctx context.Context, taskID string) ([]TaskRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var runs []TaskRun
	for _, run := range m.runs {
		if run.TaskID == taskID {
			runs = append(runs, *run)
		}
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return runs, nil
}

func (m *MockRepository) UpdateRun(ctx context.Context, run *TaskRun) error {
	if m.UpdateRunErr != nil {
		return m.UpdateRunErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return ErrRunNotFound
	}
	copied := *run
	m.runs[run.ID] = &copied
	return nil
}

func (m *MockRepository) SaveRunSteps(ctx context.Context, runID string, steps []RunStep) error {
	if m.SaveStepsErr != nil {
		return m.SaveStepsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[runID] = append([]RunStep(nil), steps...)
	return nil
}

func (m *MockRepository) GetRunSteps(ctx context.Context, runID string) ([]RunStep, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RunStep(nil), m.steps[runID]...), nil
}
