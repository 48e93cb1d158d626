// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPostgresStoreLoad(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	document, _ := json.Marshal(twoStepWorkflow())
	mock.ExpectQuery("SELECT document, version FROM cached_workflows").
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"document", "version"}).AddRow(document, 3))

	store := NewPostgresStore(db)
	wf, err := store.Load(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if wf.Version != 3 {
		t.Errorf("expected version 3, got %d", wf.Version)
	}
	if len(wf.Steps) != 2 {
		t.Errorf("expected 2 steps, got %d", len(wf.Steps))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreLoadNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT document, version FROM cached_workflows").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"document", "version"}))

	store := NewPostgresStore(db)
	_, err = store.Load(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStoreLoadCorruptDocument(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT document, version FROM cached_workflows").
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"document", "version"}).AddRow([]byte("{not json"), 1))

	store := NewPostgresStore(db)
	_, err = store.Load(context.Background(), "task-1")
	if err == nil {
		t.Fatal("expected error for corrupt document")
	}
}

func TestPostgresStoreSaveBumpsVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("INSERT INTO cached_workflows").
		WithArgs("task-1", sqlmock.AnyArg(), 2).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(3))

	store := NewPostgresStore(db)
	wf := twoStepWorkflow()
	wf.Version = 2
	if err := store.Save(context.Background(), "task-1", wf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreSaveConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	// The version guard filters out the upsert, so no row comes back.
	mock.ExpectQuery("INSERT INTO cached_workflows").
		WithArgs("task-1", sqlmock.AnyArg(), 1).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))

	store := NewPostgresStore(db)
	wf := twoStepWorkflow()
	wf.Version = 1
	err = store.Save(context.Background(), "task-1", wf)
	if !errors.Is(err, ErrPersistenceConflict) {
		t.Fatalf("expected ErrPersistenceConflict, got %v", err)
	}
}

func TestPostgresStoreDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("DELETE FROM cached_workflows").
		WithArgs("task-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPostgresStore(db)
	if err := store.Delete(context.Background(), "task-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
}

func TestPostgresStoreDeleteMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("DELETE FROM cached_workflows").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewPostgresStore(db)
	err = store.Delete(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
