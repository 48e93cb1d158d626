// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package webagent

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"webagent/platform/artifacts"
	"webagent/platform/browser"
	"webagent/platform/llm"
	"webagent/platform/shared/logger"
	"webagent/platform/webagent/workflow"
)

// AgentRunner is the engine sidecar surface the service needs: an agent run
// pinned to an existing browser session.
type AgentRunner interface {
	RunFromSession(ctx context.Context, req workflow.AgentRequest, sessionID string) (*workflow.AgentResult, error)
}

// sessionAgent binds an AgentRunner to one browser session, satisfying the
// replay engine's Agent interface.
type sessionAgent struct {
	runner    AgentRunner
	sessionID string
}

func (a sessionAgent) RunFrom(ctx context.Context, req workflow.AgentRequest) (*workflow.AgentResult, error) {
	return a.runner.RunFromSession(ctx, req, a.sessionID)
}

// TaskService runs browser tasks end to end: open a session, replay or
// drive the task through the agent, persist the step trace and screenshots,
// and deliver the webhook.
type TaskService struct {
	repo      Repository
	store     workflow.Store
	locker    workflow.Locker
	driver    browser.Driver
	agent     AgentRunner
	artifacts artifacts.Store
	webhooks  *WebhookNotifier
	logger    *logger.Logger

	// extractor, when set, derives parameter bindings from the run prompt
	// before a cached replay. Without it runs use explicit bindings only.
	extractor llm.Provider

	sessionOpts browser.SessionOptions
	engineLog   *log.Logger
}

// TaskServiceOptions wires the service's collaborators.
type TaskServiceOptions struct {
	Repo        Repository
	Store       workflow.Store
	Locker      workflow.Locker
	Driver      browser.Driver
	Agent       AgentRunner
	Artifacts   artifacts.Store
	Webhooks    *WebhookNotifier
	Extractor   llm.Provider
	SessionOpts browser.SessionOptions
	Logger      *logger.Logger
	EngineLog   *log.Logger
}

// NewTaskService creates the service.
func NewTaskService(opts TaskServiceOptions) *TaskService {
	if opts.Logger == nil {
		opts.Logger = logger.New("webagent")
	}
	if opts.EngineLog == nil {
		opts.EngineLog = log.Default()
	}
	if opts.Webhooks == nil {
		opts.Webhooks = NewWebhookNotifier(nil, opts.Logger)
	}
	return &TaskService{
		repo:        opts.Repo,
		store:       opts.Store,
		locker:      opts.Locker,
		driver:      opts.Driver,
		agent:       opts.Agent,
		artifacts:   opts.Artifacts,
		webhooks:    opts.Webhooks,
		extractor:   opts.Extractor,
		sessionOpts: opts.SessionOpts,
		logger:      opts.Logger,
		engineLog:   opts.EngineLog,
	}
}

// CreateTaskRequest is the payload for creating a task.
type CreateTaskRequest struct {
	Prompt            string            `json:"prompt"`
	Model             string            `json:"model"`
	Provider          string            `json:"provider"`
	WebhookURL        string            `json:"webhook_url"`
	ResponseFormat    string            `json:"response_format"`
	JSONSchema        string            `json:"json_schema"`
	UseCachedWorkflow *bool             `json:"use_cached_workflow"`
	WaitForCompletion *bool             `json:"wait_for_completion"`
	Parameters        map[string]string `json:"parameters"`
}

// RunOverrides carries per-run overrides for an existing task.
type RunOverrides struct {
	Prompt            string            `json:"prompt"`
	Model             string            `json:"model"`
	Provider          string            `json:"provider"`
	WebhookURL        string            `json:"webhook_url"`
	UseCachedWorkflow *bool             `json:"use_cached_workflow"`
	WaitForCompletion *bool             `json:"wait_for_completion"`
	Parameters        map[string]string `json:"parameters"`
}

// RunResponse is the API and webhook payload for a finished (or started)
// run.
type RunResponse struct {
	TaskID       string                    `json:"task_id"`
	RunID        string                    `json:"run_id"`
	Status       workflow.RunStatus        `json:"status"`
	Result       string                    `json:"result,omitempty"`
	Error        string                    `json:"error,omitempty"`
	IsDone       bool                      `json:"is_done"`
	IsSuccessful *bool                     `json:"is_successful,omitempty"`
	Escalated    bool                      `json:"escalated"`
	CacheSaved   bool                      `json:"cache_saved"`
	ModeTrace    []workflow.ModeTraceEntry `json:"mode_trace,omitempty"`
	Steps        []RunStep                 `json:"steps,omitempty"`
}

// CreateTask validates and persists a new task.
func (s *TaskService) CreateTask(ctx context.Context, req CreateTaskRequest) (*Task, error) {
	if len(req.Prompt) < 3 {
		return nil, &workflow.ValidationError{Field: "prompt", Reason: "must be at least 3 characters"}
	}
	if req.Provider == "" {
		req.Provider = ProviderOpenAI
	}
	if !ValidProvider(req.Provider) {
		return nil, &workflow.ValidationError{Field: "provider", Reason: fmt.Sprintf("unknown provider %q", req.Provider)}
	}
	if req.ResponseFormat == "" {
		req.ResponseFormat = FormatText
	}
	if req.ResponseFormat != FormatText && req.ResponseFormat != FormatJSON {
		return nil, &workflow.ValidationError{Field: "response_format", Reason: "must be text or json"}
	}

	useCached := true
	if req.UseCachedWorkflow != nil {
		useCached = *req.UseCachedWorkflow
	}
	task := &Task{
		ID:                uuid.NewString(),
		Prompt:            req.Prompt,
		Model:             req.Model,
		Provider:          req.Provider,
		WebhookURL:        req.WebhookURL,
		ResponseFormat:    req.ResponseFormat,
		JSONSchema:        req.JSONSchema,
		UseCachedWorkflow: useCached,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// StartRun creates a run row for a task, applying overrides.
func (s *TaskService) StartRun(ctx context.Context, task *Task, overrides RunOverrides) (*TaskRun, error) {
	run := &TaskRun{
		ID:         uuid.NewString(),
		TaskID:     task.ID,
		Prompt:     task.Prompt,
		Model:      task.Model,
		Provider:   task.Provider,
		WebhookURL: task.WebhookURL,
		Status:     workflow.StatusInProgress,
		StartedAt:  time.Now().UTC(),
	}
	if overrides.Prompt != "" {
		run.Prompt = overrides.Prompt
	}
	if overrides.Model != "" {
		run.Model = overrides.Model
	}
	if overrides.Provider != "" {
		if !ValidProvider(overrides.Provider) {
			return nil, &workflow.ValidationError{Field: "provider", Reason: fmt.Sprintf("unknown provider %q", overrides.Provider)}
		}
		run.Provider = overrides.Provider
	}
	if overrides.WebhookURL != "" {
		run.WebhookURL = overrides.WebhookURL
	}
	if err := s.repo.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// ExecuteRun drives a run to completion and persists everything about it.
// It never returns an error to the HTTP layer: all failures end up on the
// run row and in the returned response.
func (s *TaskService) ExecuteRun(ctx context.Context, task *Task, run *TaskRun, overrides RunOverrides) *RunResponse {
	started := time.Now()

	replayEnabled := task.UseCachedWorkflow
	if overrides.UseCachedWorkflow != nil {
		replayEnabled = *overrides.UseCachedWorkflow
	}

	session, err := s.driver.CreateSession(ctx, s.sessionOpts)
	if err != nil {
		s.logger.ErrorWithErr(task.ID, run.ID, "Failed to open browser session", err, nil)
		return s.finishRun(ctx, task, run, nil, fmt.Errorf("failed to open browser session: %w", err), started, "agent")
	}
	defer func() {
		if err := s.driver.CloseSession(context.WithoutCancel(ctx), session.ID); err != nil {
			s.logger.Warn(task.ID, run.ID, "Failed to close browser session", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	bindings := overrides.Parameters
	if len(bindings) == 0 {
		bindings = s.extractBindings(ctx, task, run)
	}

	eng := workflow.NewEngine(s.store, s.locker, nil, s.engineLog)
	eng.OnStep = func(stepCtx context.Context, rec *workflow.StepRecord) {
		rec.Screenshot = s.captureScreenshot(stepCtx, run, session.ID, rec.Number)
	}

	result, err := eng.RunTask(ctx, workflow.RunRequest{
		TaskID:          task.ID,
		TaskDescription: run.Prompt,
		Bindings:        bindings,
		ReplayEnabled:   replayEnabled,
		Executor:        browser.NewSessionExecutor(s.driver, session.ID),
		Agent:           sessionAgent{runner: s.agent, sessionID: session.ID},
	})
	if err != nil {
		s.logger.ErrorWithErr(task.ID, run.ID, "Run rejected before execution", err, nil)
		return s.finishRun(ctx, task, run, nil, err, started, "agent")
	}
	return s.finishRun(ctx, task, run, result, nil, started, runMode(result.Escalated, replayEnabled))
}

// extractBindings asks the LLM for parameter values when the cached
// workflow declares parameters and no explicit bindings were given.
// Extraction is best effort: on any failure the run proceeds without
// bindings and the engine reports the missing ones.
func (s *TaskService) extractBindings(ctx context.Context, task *Task, run *TaskRun) map[string]string {
	if s.extractor == nil {
		return nil
	}
	stored, err := s.store.Load(ctx, task.ID)
	if err != nil || len(stored.Parameters) == 0 {
		return nil
	}
	bindings, err := llm.ExtractParameters(ctx, s.extractor, run.Prompt, stored)
	if err != nil {
		s.logger.Warn(task.ID, run.ID, "Parameter extraction failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	return bindings
}

// captureScreenshot stores a step screenshot and returns its artifact URL,
// or "" when anything goes wrong.
func (s *TaskService) captureScreenshot(ctx context.Context, run *TaskRun, sessionID string, stepNumber int) string {
	if s.artifacts == nil {
		return ""
	}
	png, err := s.driver.Screenshot(ctx, sessionID)
	if err != nil {
		s.logger.Warn(run.TaskID, run.ID, "Screenshot capture failed", map[string]interface{}{
			"step":  stepNumber,
			"error": err.Error(),
		})
		return ""
	}
	url, err := s.artifacts.PutScreenshot(ctx, run.ID, stepNumber, png)
	if err != nil {
		s.logger.Warn(run.TaskID, run.ID, "Screenshot upload failed", map[string]interface{}{
			"step":  stepNumber,
			"error": err.Error(),
		})
		return ""
	}
	return url
}

// finishRun stamps the outcome on the run row, persists the step trace,
// delivers the webhook and records metrics.
func (s *TaskService) finishRun(ctx context.Context, task *Task, run *TaskRun, result *workflow.RunResult, runErr error, started time.Time, mode string) *RunResponse {
	// Persistence and webhook delivery must survive a canceled run context.
	ctx = context.WithoutCancel(ctx)

	now := time.Now().UTC()
	run.IsDone = true
	run.CompletedAt = &now

	var steps []RunStep
	if runErr != nil {
		run.Status = workflow.StatusFailure
		run.Error = runErr.Error()
		failed := false
		run.IsSuccessful = &failed
	} else {
		run.Status = result.FinalStatus
		run.Result = result.Result
		run.Error = result.Error
		run.Escalated = result.Escalated
		run.CacheSaved = result.CacheSaved
		ok := result.FinalStatus == workflow.StatusSuccess
		run.IsSuccessful = &ok
		steps = runStepsFromRecords(run.ID, result.Steps)
		if err := s.repo.SaveRunSteps(ctx, run.ID, steps); err != nil {
			s.logger.ErrorWithErr(task.ID, run.ID, "Failed to persist run steps", err, nil)
		}
	}

	promRunsTotal.WithLabelValues(mode, string(run.Status)).Inc()
	promRunDuration.WithLabelValues(mode).Observe(time.Since(started).Seconds())
	if run.Escalated {
		promEscalationsTotal.Inc()
	}
	if run.CacheSaved {
		promCacheSavesTotal.Inc()
	}

	resp := &RunResponse{
		TaskID:       task.ID,
		RunID:        run.ID,
		Status:       run.Status,
		Result:       run.Result,
		Error:        run.Error,
		IsDone:       run.IsDone,
		IsSuccessful: run.IsSuccessful,
		Escalated:    run.Escalated,
		CacheSaved:   run.CacheSaved,
		Steps:        steps,
	}
	if result != nil {
		resp.ModeTrace = result.ModeTrace
	}

	if run.WebhookURL != "" {
		s.webhooks.Notify(ctx, run.WebhookURL, resp, run)
		outcome := "failure"
		if run.WebhookResultSuccess != nil && *run.WebhookResultSuccess {
			outcome = "success"
		}
		promWebhookDeliveries.WithLabelValues(outcome).Inc()
	}

	if err := s.repo.UpdateRun(ctx, run); err != nil {
		s.logger.ErrorWithErr(task.ID, run.ID, "Failed to persist run outcome", err, nil)
	}

	s.logger.InfoWithDuration(task.ID, run.ID, "Run finished",
		float64(time.Since(started).Milliseconds()), map[string]interface{}{
			"status":      string(run.Status),
			"mode":        mode,
			"escalated":   run.Escalated,
			"cache_saved": run.CacheSaved,
		})
	return resp
}
