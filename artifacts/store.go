// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

// Package artifacts stores run artifacts, today per-step screenshots. The
// run records keep only the artifact URL; bytes live in the store.
package artifacts

import (
	"context"
	"fmt"
	"sync"
)

// Store persists run artifacts and returns a stable URL for each.
type Store interface {
	// PutScreenshot stores a PNG for one step of a run and returns its URL.
	PutScreenshot(ctx context.Context, runID string, stepNumber int, png []byte) (string, error)
}

// screenshotKey is the canonical object key layout for step screenshots.
func screenshotKey(runID string, stepNumber int) string {
	return fmt.Sprintf("runs/%s/steps/%03d.png", runID, stepNumber)
}

// MemoryStore keeps artifacts in memory. Used in tests and when no bucket
// is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (m *MemoryStore) PutScreenshot(ctx context.Context, runID string, stepNumber int, png []byte) (string, error) {
	key := screenshotKey(runID, stepNumber)
	m.mu.Lock()
	m.objects[key] = append([]byte(nil), png...)
	m.mu.Unlock()
	return "memory://" + key, nil
}

// Get returns a stored object. Test helper.
func (m *MemoryStore) Get(runID string, stepNumber int) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[screenshotKey(runID, stepNumber)]
}
