// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package webagent

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webagent/platform/webagent/workflow"
)

func newTestRouter(f *serviceFixture) *mux.Router {
	router := mux.NewRouter()
	NewHandler(f.service, f.repo).RegisterRoutes(router, nil)
	return router
}

func postJSON(t *testing.T, router *mux.Router, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleCreateTaskSynchronous(t *testing.T) {
	f := newServiceFixture(t)
	f.runner.result = &workflow.AgentResult{
		Steps:      agentSteps(),
		Done:       true,
		Successful: true,
		Result:     "in stock",
	}
	router := newTestRouter(f)

	rec := postJSON(t, router, "/api/v1/tasks", CreateTaskRequest{
		Prompt:   "check stock for the blue bike",
		Model:    "gpt-4o",
		Provider: ProviderOpenAI,
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp RunResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, workflow.StatusSuccess, resp.Status)
	assert.Equal(t, "in stock", resp.Result)
	assert.NotEmpty(t, resp.TaskID)
	assert.NotEmpty(t, resp.RunID)
	assert.Len(t, resp.Steps, 2)
}

func TestHandleCreateTaskAsync(t *testing.T) {
	f := newServiceFixture(t)
	f.runner.result = &workflow.AgentResult{
		Steps:      agentSteps(),
		Done:       true,
		Successful: true,
		Result:     "done",
	}
	router := newTestRouter(f)

	wait := false
	rec := postJSON(t, router, "/api/v1/tasks", CreateTaskRequest{
		Prompt:            "check stock for the blue bike",
		Provider:          ProviderOpenAI,
		WaitForCompletion: &wait,
	})

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resp RunResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, workflow.StatusInProgress, resp.Status)
	assert.Empty(t, resp.Result)

	// The background run eventually lands on the run row.
	require.Eventually(t, func() bool {
		run, err := f.repo.GetRun(context.Background(), resp.RunID)
		return err == nil && run.Status == workflow.StatusSuccess
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandleCreateTaskValidation(t *testing.T) {
	f := newServiceFixture(t)
	router := newTestRouter(f)

	tests := []struct {
		name string
		req  CreateTaskRequest
		code string
	}{
		{
			name: "prompt too short",
			req:  CreateTaskRequest{Prompt: "hi", Provider: ProviderOpenAI},
			code: "validation_error",
		},
		{
			name: "unknown provider",
			req:  CreateTaskRequest{Prompt: "check the order", Provider: "skynet"},
			code: "validation_error",
		},
		{
			name: "invalid json schema",
			req:  CreateTaskRequest{Prompt: "check the order", Provider: ProviderOpenAI, JSONSchema: "{broken"},
			code: "invalid_request",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, router, "/api/v1/tasks", tt.req)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			var apiErr ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&apiErr))
			assert.Equal(t, tt.code, apiErr.Code)
		})
	}
}

func TestHandleGetTaskNotFound(t *testing.T) {
	f := newServiceFixture(t)
	router := newTestRouter(f)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var apiErr ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&apiErr))
	assert.Equal(t, "not_found", apiErr.Code)
}

func TestHandleRunExistingTaskWithOverrides(t *testing.T) {
	f := newServiceFixture(t)
	f.runner.result = &workflow.AgentResult{
		Steps:      agentSteps(),
		Done:       true,
		Successful: true,
		Result:     "rerun ok",
	}
	router := newTestRouter(f)

	task, err := f.service.CreateTask(context.Background(), CreateTaskRequest{
		Prompt:   "check stock for the blue bike",
		Provider: ProviderOpenAI,
	})
	require.NoError(t, err)

	rec := postJSON(t, router, "/api/v1/tasks/"+task.ID+"/runs", RunOverrides{
		Prompt: "check stock for the red bike instead",
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp RunResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, workflow.StatusSuccess, resp.Status)

	// The override prompt reached the agent.
	assert.Equal(t, "check stock for the red bike instead", f.runner.last.TaskDescription)

	run, err := f.repo.GetRun(context.Background(), resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, "check stock for the red bike instead", run.Prompt)
}

func TestHandleListTasksAndRuns(t *testing.T) {
	f := newServiceFixture(t)
	f.runner.result = &workflow.AgentResult{Steps: agentSteps(), Done: true, Successful: true}
	router := newTestRouter(f)

	task, run := f.createTaskAndRun(t, "")
	f.service.ExecuteRun(context.Background(), task, run, RunOverrides{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var taskList struct {
		Tasks []Task `json:"tasks"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&taskList))
	require.Len(t, taskList.Tasks, 1)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+task.ID+"/runs", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var runList struct {
		Runs []TaskRun `json:"runs"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&runList))
	require.Len(t, runList.Runs, 1)
	assert.Equal(t, workflow.StatusSuccess, runList.Runs[0].Status)
}

func TestHandleGetRunWithSteps(t *testing.T) {
	f := newServiceFixture(t)
	f.runner.result = &workflow.AgentResult{Steps: agentSteps(), Done: true, Successful: true, Result: "ok"}
	router := newTestRouter(f)

	task, run := f.createTaskAndRun(t, "")
	f.service.ExecuteRun(context.Background(), task, run, RunOverrides{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+run.ID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Run   TaskRun   `json:"run"`
		Steps []RunStep `json:"steps"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, run.ID, resp.Run.ID)
	require.Len(t, resp.Steps, 2)
	assert.Equal(t, workflow.ModeAgent, resp.Steps[0].Mode)
}
