// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package workflow

import (
	"context"
	"errors"
	"log"
	"time"
)

// Engine runs tasks: replay the cached workflow when one exists, escalate
// to the agent on drift, and fold successful repairs back into the cache.
// One engine serves all tasks; the browser executor and agent are supplied
// per run because they are bound to a live browser session.
type Engine struct {
	store    Store
	locker   Locker
	recorder *Recorder
	logger   *log.Logger

	// OnStep, when set, is forwarded to every replay pass.
	OnStep func(ctx context.Context, rec *StepRecord)
}

// NewEngine creates an engine. A nil locker means the store's version
// compare-and-set is the only mutation guard; a nil policy records with
// exact-match parameterization; a nil logger falls back to the default
// logger.
func NewEngine(store Store, locker Locker, policy ParamPolicy, logger *log.Logger) *Engine {
	if locker == nil {
		locker = NoopLocker{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		store:    store,
		locker:   locker,
		recorder: NewRecorder(policy),
		logger:   logger,
	}
}

// RunRequest describes one task run.
type RunRequest struct {
	TaskID          string
	TaskDescription string
	Bindings        map[string]string
	ReplayEnabled   bool

	// Executor and Agent are bound to the browser session opened for this
	// run.
	Executor Executor
	Agent    Agent
}

// RunTask executes a task. Only pre-execution problems return a call
// error: an invalid cached workflow, an unresolvable placeholder, or a
// store outage. Everything that happens once the browser starts moving is
// reported through the RunResult.
func (e *Engine) RunTask(ctx context.Context, req RunRequest) (*RunResult, error) {
	started := time.Now().UTC()

	stored, err := e.store.Load(ctx, req.TaskID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		stored = nil
	}
	if stored != nil {
		if err := stored.Validate(); err != nil {
			return nil, err
		}
	}

	if req.ReplayEnabled && stored != nil {
		return e.runCached(ctx, req, stored, started)
	}
	return e.runAgentOnly(ctx, req, stored, started)
}

// runCached replays the stored workflow and escalates on failure.
func (e *Engine) runCached(ctx context.Context, req RunRequest, stored *Workflow, started time.Time) (*RunResult, error) {
	resolved, err := Resolve(stored, req.Bindings)
	if err != nil {
		return nil, err
	}

	rc := NewReplayController(req.Executor, e.logger)
	rc.OnStep = e.OnStep

	e.logger.Printf("[Engine] task %s: replaying %d cached steps", req.TaskID, len(resolved))
	outcome := rc.Run(ctx, resolved)
	if outcome.State == StateCompleted {
		return &RunResult{
			Steps:       outcome.Steps,
			FinalStatus: StatusSuccess,
			Result:      outcome.Result,
			ModeTrace:   modeTrace(outcome.Steps),
			StartedAt:   started,
			CompletedAt: time.Now().UTC(),
		}, nil
	}

	ec := NewEscalationController(rc, req.Agent, e.logger)
	res := ec.Resolve(ctx, resolved, req.TaskDescription, req.Bindings, outcome)

	result := &RunResult{
		Steps:       res.Steps,
		ModeTrace:   modeTrace(res.Steps),
		Escalated:   res.Escalated,
		StartedAt:   started,
		CompletedAt: time.Now().UTC(),
	}
	if !res.Done {
		result.FinalStatus = StatusFailure
		if res.Err != nil {
			result.Error = res.Err.Error()
		}
		return result, nil
	}

	result.FinalStatus = StatusSuccess
	result.Result = res.Result
	e.saveRepair(ctx, req, stored, res, result)
	return result, nil
}

// runAgentOnly drives the whole run through the agent, then records a
// fresh workflow so the next run can replay. ReplayEnabled only disables
// replay: a successful agent-driven run is recorded either way.
func (e *Engine) runAgentOnly(ctx context.Context, req RunRequest, stored *Workflow, started time.Time) (*RunResult, error) {
	e.logger.Printf("[Engine] task %s: agent-driven run (no cache replay)", req.TaskID)
	res, err := req.Agent.RunFrom(ctx, AgentRequest{
		TaskDescription: req.TaskDescription,
		Bindings:        req.Bindings,
	})

	result := &RunResult{
		Escalated:   false,
		StartedAt:   started,
		CompletedAt: time.Now().UTC(),
	}
	if err != nil {
		result.FinalStatus = StatusFailure
		result.Error = (&EscalationExhaustedError{Step: 1, Reason: "agent invocation failed", Err: err}).Error()
		return result, nil
	}

	steps := renumberRecords(res.Steps, 0)
	result.Steps = steps
	result.ModeTrace = modeTrace(steps)

	if !res.Done || !res.Successful {
		result.FinalStatus = StatusFailure
		result.Error = (&EscalationExhaustedError{Step: 1, Reason: "agent ended without completing the task"}).Error()
		return result, nil
	}

	result.FinalStatus = StatusSuccess
	result.Result = res.Result
	e.saveFresh(ctx, req, stored, steps, result)
	return result, nil
}

// saveRepair folds a successful agent repair into the cached workflow. A
// canceled run discards the suffix; a held lock or a lost version race
// leaves the cache untouched and the run result still succeeds.
func (e *Engine) saveRepair(ctx context.Context, req RunRequest, stored *Workflow, res *EscalationOutcome, result *RunResult) {
	if !res.Escalated {
		return
	}
	if ctx.Err() != nil {
		e.logger.Printf("[Engine] task %s: run canceled, discarding agent suffix", req.TaskID)
		return
	}

	release, err := e.locker.Acquire(ctx, req.TaskID)
	if err != nil {
		e.logger.Printf("[Engine] task %s: cache mutation skipped: %v", req.TaskID, err)
		return
	}
	defer release()

	suffix := e.recorder.Record(res.AgentSteps, req.Bindings)
	wf, err := Materialize(stored, res.PrefixLen, suffix, req.Bindings)
	if err != nil {
		e.logger.Printf("[Engine] task %s: materialized repair invalid, not saved: %v", req.TaskID, err)
		return
	}
	if err := e.store.Save(ctx, req.TaskID, wf); err != nil {
		e.logger.Printf("[Engine] task %s: repair not saved: %v", req.TaskID, err)
		return
	}
	e.logger.Printf("[Engine] task %s: cached workflow repaired (%d preserved + %d recorded steps)",
		req.TaskID, res.PrefixLen, len(suffix))
	result.CacheSaved = true
}

// saveFresh records the workflow of a complete agent run.
func (e *Engine) saveFresh(ctx context.Context, req RunRequest, stored *Workflow, steps []StepRecord, result *RunResult) {
	if ctx.Err() != nil {
		return
	}

	release, err := e.locker.Acquire(ctx, req.TaskID)
	if err != nil {
		e.logger.Printf("[Engine] task %s: cache recording skipped: %v", req.TaskID, err)
		return
	}
	defer release()

	recorded := e.recorder.Record(steps, req.Bindings)
	wf, err := Materialize(stored, 0, recorded, req.Bindings)
	if err != nil {
		e.logger.Printf("[Engine] task %s: recorded workflow invalid, not saved: %v", req.TaskID, err)
		return
	}
	if err := e.store.Save(ctx, req.TaskID, wf); err != nil {
		e.logger.Printf("[Engine] task %s: recorded workflow not saved: %v", req.TaskID, err)
		return
	}
	e.logger.Printf("[Engine] task %s: recorded workflow with %d steps", req.TaskID, len(recorded))
	result.CacheSaved = true
}
