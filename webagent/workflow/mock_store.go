// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package workflow

import (
	"context"
	"sync"
)

// MockStore is an in-memory Store for testing. Error fields let tests
// inject failures per operation.
type MockStore struct {
	mu        sync.RWMutex
	workflows map[string]*Workflow

	LoadErr   error
	SaveErr   error
	DeleteErr error
}

var _ Store = (*MockStore)(nil)

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{workflows: make(map[string]*Workflow)}
}

func (m *MockStore) Load(ctx context.Context, taskID string) (*Workflow, error) {
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	wf, ok := m.workflows[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	return wf.Clone(), nil
}

func (m *MockStore) Save(ctx context.Context, taskID string, wf *Workflow) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current := 0
	if existing, ok := m.workflows[taskID]; ok {
		current = existing.Version
	}
	if wf.Version != current {
		return ErrPersistenceConflict
	}
	saved := wf.Clone()
	saved.Version = current + 1
	m.workflows[taskID] = saved
	return nil
}

func (m *MockStore) Delete(ctx context.Context, taskID string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[taskID]; !ok {
		return ErrNotFound
	}
	delete(m.workflows, taskID)
	return nil
}

// Put seeds a workflow directly, bypassing the version check. Test helper.
func (m *MockStore) Put(taskID string, wf *Workflow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows[taskID] = wf.Clone()
}

// Get returns the stored workflow without copying. Test helper.
func (m *MockStore) Get(taskID string) *Workflow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.workflows[taskID]
}
