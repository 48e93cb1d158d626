// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package workflow

import (
	"context"
	"fmt"
	"log"
)

// Executor runs a single browser action. Implementations classify their
// failures: infrastructure trouble (timeouts, 5xx) surfaces as a
// TransientExecutionError-compatible error, page drift (missing element,
// lost session, 4xx) as structural. A nil error with Success=false means
// the browser accepted the action but it did not take effect, which is
// treated as page drift too.
type Executor interface {
	Execute(ctx context.Context, kind ActionKind, args map[string]any) (*ExecResult, error)
}

// ReplayState is the phase of a replay pass.
type ReplayState int

const (
	StateNotStarted ReplayState = iota
	StateRunning
	StateStepFailed
	StateCompleted
)

func (s ReplayState) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateStepFailed:
		return "step_failed"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Position addresses an action inside a step sequence, 1-based on both
// axes.
type Position struct {
	Step   int
	Action int
}

// ReplayOutcome is the result of one replay pass over resolved steps.
type ReplayOutcome struct {
	State  ReplayState
	Steps  []StepRecord // fully completed steps, in order
	Failed Position     // set when State is StateStepFailed
	Err    error        // typed transient or structural failure
	Done   bool         // a done action was reached
	Result string       // payload of the done action
}

// ReplayController executes resolved steps strictly in order, one action at
// a time, stopping at the first failure. It never retries and never skips:
// retry and escalation policy belong to the EscalationController.
type ReplayController struct {
	exec   Executor
	logger *log.Logger

	// OnStep, when set, is called after each step record is finalized,
	// successful or not. The service layer uses it to attach screenshots.
	OnStep func(ctx context.Context, rec *StepRecord)
}

// NewReplayController creates a controller. A nil logger falls back to the
// default logger.
func NewReplayController(exec Executor, logger *log.Logger) *ReplayController {
	if logger == nil {
		logger = log.Default()
	}
	return &ReplayController{exec: exec, logger: logger}
}

// Run replays all steps from the beginning.
func (c *ReplayController) Run(ctx context.Context, steps []Step) *ReplayOutcome {
	return c.RunFrom(ctx, steps, Position{Step: 1, Action: 1}, nil)
}

// RunFrom replays steps starting at pos, prepending prefix to the outcome.
// The EscalationController uses it to resume at the failed action after a
// transient failure.
func (c *ReplayController) RunFrom(ctx context.Context, steps []Step, pos Position, prefix []StepRecord) *ReplayOutcome {
	out := &ReplayOutcome{
		State: StateRunning,
		Steps: append([]StepRecord(nil), prefix...),
	}

	for si := pos.Step - 1; si < len(steps); si++ {
		step := steps[si]
		rec := StepRecord{
			Number:      step.Number,
			Description: step.Description,
			Mode:        ModeReplayed,
		}

		startAction := 1
		if si == pos.Step-1 {
			startAction = pos.Action
		}

		for ai := startAction - 1; ai < len(step.Actions); ai++ {
			action := step.Actions[ai]

			// Cancellation is honored between actions, never mid-action.
			if err := ctx.Err(); err != nil {
				if len(rec.Actions) > 0 {
					c.finishStep(ctx, out, rec)
				}
				out.State = StateStepFailed
				out.Failed = Position{Step: step.Number, Action: action.Number}
				out.Err = err
				return out
			}

			result, err := c.exec.Execute(ctx, action.Kind, action.Args)
			if err != nil {
				rec.Actions = append(rec.Actions, failedAction(action, err.Error()))
				c.finishStep(ctx, out, rec)
				out.State = StateStepFailed
				out.Failed = Position{Step: step.Number, Action: action.Number}
				out.Err = classify(step.Number, action.Number, err)
				c.logger.Printf("[Replay] step %d action %d (%s) failed: %v",
					step.Number, action.Number, action.Kind, err)
				return out
			}
			if !result.Success {
				rec.Actions = append(rec.Actions, failedAction(action, result.Error))
				c.finishStep(ctx, out, rec)
				out.State = StateStepFailed
				out.Failed = Position{Step: step.Number, Action: action.Number}
				out.Err = &StructuralExecutionError{
					Step:   step.Number,
					Action: action.Number,
					Reason: result.Error,
				}
				c.logger.Printf("[Replay] step %d action %d (%s) rejected: %s",
					step.Number, action.Number, action.Kind, result.Error)
				return out
			}

			rec.Actions = append(rec.Actions, ActionRecord{
				Number:           action.Number,
				Kind:             action.Kind,
				Args:             action.Args,
				Success:          true,
				ExtractedContent: result.ExtractedContent,
				IsDone:           action.Kind == ActionDone,
			})

			if action.Kind == ActionDone {
				c.finishStep(ctx, out, rec)
				out.State = StateCompleted
				out.Done = true
				out.Result = doneResult(action, result)
				return out
			}
		}

		c.finishStep(ctx, out, rec)
	}

	out.State = StateCompleted
	return out
}

func (c *ReplayController) finishStep(ctx context.Context, out *ReplayOutcome, rec StepRecord) {
	if c.OnStep != nil {
		c.OnStep(ctx, &rec)
	}
	out.Steps = append(out.Steps, rec)
}

// classify preserves an already-typed execution error and defaults anything
// untyped to structural, since an unnameable failure during replay is a
// staleness signal.
func classify(step, action int, err error) error {
	var te *TransientExecutionError
	var se *StructuralExecutionError
	switch {
	case asError(err, &te):
		return &TransientExecutionError{Step: step, Action: action, Reason: te.Reason, Err: err}
	case asError(err, &se):
		return &StructuralExecutionError{Step: step, Action: action, Reason: se.Reason, Err: err}
	default:
		return &StructuralExecutionError{Step: step, Action: action, Reason: err.Error(), Err: err}
	}
}

func failedAction(a Action, reason string) ActionRecord {
	return ActionRecord{
		Number: a.Number,
		Kind:   a.Kind,
		Args:   a.Args,
		Error:  reason,
	}
}

// doneResult prefers the driver's extracted content and falls back to the
// done action's text argument.
func doneResult(a Action, r *ExecResult) string {
	if r.ExtractedContent != "" {
		return r.ExtractedContent
	}
	if text, ok := a.Args["text"].(string); ok {
		return text
	}
	return ""
}
