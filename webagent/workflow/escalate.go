// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package workflow

import (
	"context"
	"log"
)

// Agent is the AI engine capability: given the task, the bindings, and the
// steps already completed by replay, it drives the browser itself until a
// done action or its own budget. The returned steps carry the outcomes of
// every action the agent executed.
type Agent interface {
	RunFrom(ctx context.Context, req AgentRequest) (*AgentResult, error)
}

// AgentRequest is the handoff payload from replay to the agent.
type AgentRequest struct {
	TaskDescription string            `json:"task"`
	Bindings        map[string]string `json:"parameter_bindings,omitempty"`
	CompletedSteps  []StepRecord      `json:"completed_steps,omitempty"`
}

// AgentResult is what the agent produced past the handoff point.
type AgentResult struct {
	Steps      []StepRecord `json:"steps"`
	Done       bool         `json:"is_done"`
	Successful bool         `json:"is_successful"`
	Result     string       `json:"result,omitempty"`
}

// EscalationOutcome is the resolution of a failed replay pass.
type EscalationOutcome struct {
	Steps      []StepRecord // full run trace, attempts included
	AgentSteps []StepRecord // the agent-driven suffix, renumbered
	PrefixLen  int          // stored steps preserved ahead of the repair
	Escalated  bool
	Done       bool
	Result     string
	Err        error
}

// EscalationController decides what a failed replay step means. A
// transient failure earns exactly one in-place retry; a structural failure,
// or a retry that fails again, hands the run to the agent. The agent is
// invoked at most once per run.
type EscalationController struct {
	replay *ReplayController
	agent  Agent
	logger *log.Logger
}

// NewEscalationController creates a controller. A nil logger falls back to
// the default logger.
func NewEscalationController(replay *ReplayController, agent Agent, logger *log.Logger) *EscalationController {
	if logger == nil {
		logger = log.Default()
	}
	return &EscalationController{replay: replay, agent: agent, logger: logger}
}

// Resolve takes the outcome of a failed replay pass and drives it to a
// terminal state. The run trace keeps every attempt, so a retried step can
// appear twice with the same step number.
func (c *EscalationController) Resolve(ctx context.Context, steps []Step, taskDescription string, bindings map[string]string, first *ReplayOutcome) *EscalationOutcome {
	out := first

	if IsTransient(first.Err) && ctx.Err() == nil {
		c.logger.Printf("[Escalation] transient failure at step %d action %d, retrying once",
			first.Failed.Step, first.Failed.Action)
		retry := c.replay.RunFrom(ctx, steps, first.Failed, first.Steps)
		if retry.State == StateCompleted {
			return &EscalationOutcome{
				Steps:  retry.Steps,
				Done:   retry.Done,
				Result: retry.Result,
			}
		}
		out = retry
	}

	// Cancellation discards the run without consulting the agent.
	if err := ctx.Err(); err != nil {
		return &EscalationOutcome{Steps: out.Steps, Err: err}
	}

	failedStep := out.Failed.Step
	completed := completedPrefix(out.Steps, failedStep)
	c.logger.Printf("[Escalation] escalating at step %d with %d completed steps",
		failedStep, len(completed))

	result, err := c.agent.RunFrom(ctx, AgentRequest{
		TaskDescription: taskDescription,
		Bindings:        bindings,
		CompletedSteps:  completed,
	})
	if err != nil {
		return &EscalationOutcome{
			Steps:     out.Steps,
			PrefixLen: failedStep - 1,
			Escalated: true,
			Err:       &EscalationExhaustedError{Step: failedStep, Reason: "agent invocation failed", Err: err},
		}
	}
	if !result.Done || !result.Successful {
		return &EscalationOutcome{
			Steps:     append(out.Steps, renumberRecords(result.Steps, lastNumber(out.Steps))...),
			PrefixLen: failedStep - 1,
			Escalated: true,
			Err:       &EscalationExhaustedError{Step: failedStep, Reason: "agent ended without completing the task"},
		}
	}

	suffix := renumberRecords(result.Steps, lastNumber(out.Steps))
	return &EscalationOutcome{
		Steps:      append(out.Steps, suffix...),
		AgentSteps: suffix,
		PrefixLen:  failedStep - 1,
		Escalated:  true,
		Done:       true,
		Result:     result.Result,
	}
}

// completedPrefix returns the fully successful step records ahead of the
// failed step.
func completedPrefix(records []StepRecord, failedStep int) []StepRecord {
	var prefix []StepRecord
	for _, rec := range records {
		if rec.Number >= failedStep {
			continue
		}
		ok := true
		for _, a := range rec.Actions {
			if !a.Success {
				ok = false
				break
			}
		}
		if ok {
			prefix = append(prefix, rec)
		}
	}
	return prefix
}

// renumberRecords rebases agent-produced records to continue after the run
// trace and stamps them as agent-driven.
func renumberRecords(records []StepRecord, after int) []StepRecord {
	out := make([]StepRecord, len(records))
	for i, rec := range records {
		rec.Mode = ModeAgent
		rec.Number = after + i + 1
		actions := make([]ActionRecord, len(rec.Actions))
		copy(actions, rec.Actions)
		for j := range actions {
			actions[j].Number = j + 1
		}
		rec.Actions = actions
		out[i] = rec
	}
	return out
}

func lastNumber(records []StepRecord) int {
	if len(records) == 0 {
		return 0
	}
	return records[len(records)-1].Number
}
