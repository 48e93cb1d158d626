// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package webagent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"webagent/platform/webagent/workflow"
)

// maxRequestBytes bounds API request bodies.
const maxRequestBytes = 1 << 20

// Handler exposes the task API.
type Handler struct {
	service *TaskService
	repo    Repository
}

// NewHandler creates the API handler.
func NewHandler(service *TaskService, repo Repository) *Handler {
	return &Handler{service: service, repo: repo}
}

// RegisterRoutes mounts the task API on the router. Mutating routes go
// through auth when it is enabled.
func (h *Handler) RegisterRoutes(r *mux.Router, auth *AuthMiddleware) {
	if auth == nil {
		auth = NewAuthMiddleware("")
	}
	r.Handle("/api/v1/tasks", auth.Wrap(http.HandlerFunc(h.handleCreateTask))).Methods("POST")
	r.HandleFunc("/api/v1/tasks", h.handleListTasks).Methods("GET")
	r.HandleFunc("/api/v1/tasks/{taskID}", h.handleGetTask).Methods("GET")
	r.Handle("/api/v1/tasks/{taskID}/runs", auth.Wrap(http.HandlerFunc(h.handleRunTask))).Methods("POST")
	r.HandleFunc("/api/v1/tasks/{taskID}/runs", h.handleListRuns).Methods("GET")
	r.HandleFunc("/api/v1/runs/{runID}", h.handleGetRun).Methods("GET")
}

// handleCreateTask creates a task and executes its first run. With
// wait_for_completion=false the run executes in the background and the
// response carries only the IDs.
func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.JSONSchema != "" && !json.Valid([]byte(req.JSONSchema)) {
		writeError(w, http.StatusBadRequest, "invalid_request", "json_schema is not valid JSON")
		return
	}

	task, err := h.service.CreateTask(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	run, err := h.service.StartRun(r.Context(), task, RunOverrides{Parameters: req.Parameters})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	overrides := RunOverrides{Parameters: req.Parameters}
	if req.WaitForCompletion != nil && !*req.WaitForCompletion {
		go h.executeDetached(task, run, overrides)
		writeJSON(w, http.StatusAccepted, &RunResponse{
			TaskID: task.ID,
			RunID:  run.ID,
			Status: workflow.StatusInProgress,
		})
		return
	}
	writeJSON(w, http.StatusOK, h.service.ExecuteRun(r.Context(), task, run, overrides))
}

// handleRunTask executes an existing task again, with optional overrides.
func (h *Handler) handleRunTask(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["taskID"]

	task, err := h.repo.GetTask(r.Context(), taskID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var overrides RunOverrides
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &overrides); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}

	run, err := h.service.StartRun(r.Context(), task, overrides)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if overrides.WaitForCompletion != nil && !*overrides.WaitForCompletion {
		go h.executeDetached(task, run, overrides)
		writeJSON(w, http.StatusAccepted, &RunResponse{
			TaskID: task.ID,
			RunID:  run.ID,
			Status: workflow.StatusInProgress,
		})
		return
	}
	writeJSON(w, http.StatusOK, h.service.ExecuteRun(r.Context(), task, run, overrides))
}

// executeDetached runs a task outside the request lifecycle.
func (h *Handler) executeDetached(task *Task, run *TaskRun, overrides RunOverrides) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[API] panic in background run %s: %v", run.ID, rec)
		}
	}()
	h.service.ExecuteRun(context.Background(), task, run, overrides)
}

func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.repo.ListTasks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list tasks")
		return
	}
	if tasks == nil {
		tasks = []Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.repo.GetTask(r.Context(), mux.Vars(r)["taskID"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["taskID"]
	if _, err := h.repo.GetTask(r.Context(), taskID); err != nil {
		writeServiceError(w, err)
		return
	}
	runs, err := h.repo.ListRuns(r.Context(), taskID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list runs")
		return
	}
	if runs == nil {
		runs = []TaskRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleGetRun returns a run with its full step trace.
func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runID"]
	run, err := h.repo.GetRun(r.Context(), runID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	steps, err := h.repo.GetRunSteps(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load run steps")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run":   run,
		"steps": steps,
	})
}

// ErrorResponse is the API error envelope.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[API] failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: true, Code: code, Message: message})
}

// writeServiceError maps service and repository errors to API responses.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *workflow.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "validation_error", verr.Error())
	case errors.Is(err, ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "not_found", "task not found")
	case errors.Is(err, ErrRunNotFound):
		writeError(w, http.StatusNotFound, "not_found", "task run not found")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
