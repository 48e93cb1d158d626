// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package workflow

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
)

func newTestHandler(store Store) *mux.Router {
	r := mux.NewRouter()
	NewHandler(store, discardLogger()).RegisterRoutes(r, nil)
	return r
}

// Mutating routes go through the protect middleware; reads stay open.
func TestHandlerProtectsMutatingRoutes(t *testing.T) {
	store := NewMockStore()
	store.Put("task-1", twoStepWorkflow())

	deny := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				writeAPIError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	router := mux.NewRouter()
	NewHandler(store, discardLogger()).RegisterRoutes(router, deny)

	doc := `{"steps": [{"step_number": 1, "actions": [
		{"action_number": 1, "name": "done", "params": {}}]}]}`

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("PUT", "/api/v1/tasks/task-1/workflow", strings.NewReader(doc)))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on unauthenticated PUT, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("DELETE", "/api/v1/tasks/task-1/workflow", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on unauthenticated DELETE, got %d", w.Code)
	}
	if store.Get("task-1") == nil {
		t.Fatal("unauthenticated delete went through")
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/tasks/task-1/workflow", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected open GET, got %d", w.Code)
	}

	req := httptest.NewRequest("PUT", "/api/v1/tasks/task-1/workflow", strings.NewReader(doc))
	req.Header.Set("Authorization", "Bearer token")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected authenticated PUT to pass, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandlerGetWorkflow(t *testing.T) {
	store := NewMockStore()
	store.Put("task-1", twoStepWorkflow())
	router := newTestHandler(store)

	req := httptest.NewRequest("GET", "/api/v1/tasks/task-1/workflow", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var wf Workflow
	if err := json.NewDecoder(w.Body).Decode(&wf); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(wf.Steps) != 2 {
		t.Errorf("expected 2 steps, got %d", len(wf.Steps))
	}
}

func TestHandlerGetWorkflowNotFound(t *testing.T) {
	router := newTestHandler(NewMockStore())

	req := httptest.NewRequest("GET", "/api/v1/tasks/missing/workflow", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	var apiErr APIError
	if err := json.NewDecoder(w.Body).Decode(&apiErr); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if apiErr.Code != "not_found" {
		t.Errorf("expected not_found code, got %q", apiErr.Code)
	}
}

func TestHandlerPutWorkflow(t *testing.T) {
	store := NewMockStore()
	store.Put("task-1", twoStepWorkflow())
	router := newTestHandler(store)

	doc := `{
		"parameters": [{"name": "city", "type": "string"}],
		"steps": [
			{"step_number": 1, "actions": [
				{"action_number": 1, "name": "navigate", "params": {"url": "https://v2.example/{{ city }}"}},
				{"action_number": 2, "name": "done", "params": {}}
			]}
		]
	}`

	req := httptest.NewRequest("PUT", "/api/v1/tasks/task-1/workflow", strings.NewReader(doc))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	saved := store.Get("task-1")
	if len(saved.Steps) != 1 {
		t.Errorf("expected replacement workflow, got %d steps", len(saved.Steps))
	}
	if saved.Version != 1 {
		t.Errorf("expected version bump to 1, got %d", saved.Version)
	}
}

func TestHandlerPutInvalidWorkflow(t *testing.T) {
	store := NewMockStore()
	router := newTestHandler(store)

	doc := `{"steps": [{"step_number": 1, "actions": [
		{"action_number": 1, "name": "teleport", "params": {}}]}]}`

	req := httptest.NewRequest("PUT", "/api/v1/tasks/task-1/workflow", strings.NewReader(doc))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var apiErr APIError
	json.NewDecoder(w.Body).Decode(&apiErr)
	if apiErr.Code != "invalid_workflow" {
		t.Errorf("expected invalid_workflow code, got %q", apiErr.Code)
	}
	if !strings.Contains(apiErr.Message, "teleport") {
		t.Errorf("expected the offending kind in the message, got %q", apiErr.Message)
	}
	if store.Get("task-1") != nil {
		t.Error("invalid document must not be stored")
	}
}

func TestHandlerPutConflict(t *testing.T) {
	store := NewMockStore()
	store.Put("task-1", twoStepWorkflow())
	store.SaveErr = ErrPersistenceConflict
	router := newTestHandler(store)

	doc := `{"steps": [{"step_number": 1, "actions": [
		{"action_number": 1, "name": "done", "params": {}}]}]}`

	req := httptest.NewRequest("PUT", "/api/v1/tasks/task-1/workflow", strings.NewReader(doc))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestHandlerDeleteWorkflow(t *testing.T) {
	store := NewMockStore()
	store.Put("task-1", twoStepWorkflow())
	router := newTestHandler(store)

	req := httptest.NewRequest("DELETE", "/api/v1/tasks/task-1/workflow", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if store.Get("task-1") != nil {
		t.Error("workflow still stored after delete")
	}

	// Deleting again is a 404.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("DELETE", "/api/v1/tasks/task-1/workflow", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", w.Code)
	}
}
