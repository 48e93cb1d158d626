// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

// Package workflow implements cached-workflow replay for browser automation
// tasks. A successful agent run is recorded as a parameterized sequence of
// steps; later runs of the same task replay the sequence deterministically,
// escalate to the agent when the page has drifted, and fold the agent's
// repair back into the cached workflow.
package workflow

import (
	"encoding/json"
	"time"
)

// ActionKind identifies one of the supported browser actions. The set is
// closed: validation rejects any document that names a kind outside it.
type ActionKind string

const (
	ActionNavigate   ActionKind = "navigate"
	ActionClick      ActionKind = "click"
	ActionInput      ActionKind = "input"
	ActionScroll     ActionKind = "scroll"
	ActionWait       ActionKind = "wait"
	ActionExtract    ActionKind = "extract"
	ActionScreenshot ActionKind = "screenshot"
	ActionDone       ActionKind = "done"
)

// requiredArgs maps each kind to the argument names that must be present.
// Arguments beyond the required set are allowed and passed through to the
// browser driver untouched.
var requiredArgs = map[ActionKind][]string{
	ActionNavigate:   {"url"},
	ActionClick:      {"selector"},
	ActionInput:      {"selector", "text"},
	ActionScroll:     {},
	ActionWait:       {"seconds"},
	ActionExtract:    {},
	ActionScreenshot: {},
	ActionDone:       {},
}

// Valid reports whether k is one of the supported action kinds.
func (k ActionKind) Valid() bool {
	_, ok := requiredArgs[k]
	return ok
}

// RequiredArgs returns the argument names an action of kind k must carry.
func RequiredArgs(k ActionKind) []string {
	return requiredArgs[k]
}

// Parameter declares a named input of a workflow. Placeholders of the form
// {{ name }} inside string action arguments refer to parameters by name.
type Parameter struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Type         string `json:"type"`
	ExampleValue string `json:"exampleValue,omitempty"`
}

// Action is a single browser instruction inside a step. Args values are
// JSON scalars; placeholder substitution applies to string values only.
type Action struct {
	Number int            `json:"action_number"`
	Kind   ActionKind     `json:"name"`
	Args   map[string]any `json:"params"`
}

// Step groups the actions the agent emitted for one reasoning step.
type Step struct {
	Number      int      `json:"step_number"`
	Description string   `json:"description,omitempty"`
	Actions     []Action `json:"actions"`
}

// Workflow is the cached, parameterized action sequence for a task.
// Version implements compare-and-set persistence: Save succeeds only when
// the stored version still matches, so concurrent repairs cannot silently
// overwrite each other.
type Workflow struct {
	Parameters []Parameter `json:"parameters"`
	Steps      []Step      `json:"steps"`
	Version    int         `json:"version"`
}

// Clone returns a deep copy of the workflow.
func (w *Workflow) Clone() *Workflow {
	c := &Workflow{
		Parameters: append([]Parameter(nil), w.Parameters...),
		Steps:      make([]Step, len(w.Steps)),
		Version:    w.Version,
	}
	for i, s := range w.Steps {
		cs := s
		cs.Actions = make([]Action, len(s.Actions))
		for j, a := range s.Actions {
			ca := a
			ca.Args = make(map[string]any, len(a.Args))
			for k, v := range a.Args {
				ca.Args[k] = v
			}
			cs.Actions[j] = ca
		}
		c.Steps[i] = cs
	}
	return c
}

// HasParameter reports whether a parameter with the given name is declared.
func (w *Workflow) HasParameter(name string) bool {
	for _, p := range w.Parameters {
		if p.Name == name {
			return true
		}
	}
	return false
}

// StepMode records how a step of a run was produced.
type StepMode string

const (
	ModeReplayed StepMode = "replayed"
	ModeAgent    StepMode = "agent"
)

// RunStatus is the terminal status of a run.
type RunStatus string

const (
	StatusSuccess    RunStatus = "success"
	StatusFailure    RunStatus = "failure"
	StatusInProgress RunStatus = "in_progress"
)

// ExecResult is the browser driver's outcome for a single action.
type ExecResult struct {
	Success          bool   `json:"success"`
	ExtractedContent string `json:"extracted_content,omitempty"`
	Error            string `json:"error,omitempty"`
}

// ActionRecord is one executed action with its outcome.
type ActionRecord struct {
	Number           int            `json:"action_number"`
	Kind             ActionKind     `json:"name"`
	Args             map[string]any `json:"params"`
	Success          bool           `json:"success"`
	ExtractedContent string         `json:"extracted_content,omitempty"`
	Error            string         `json:"error,omitempty"`
	IsDone           bool           `json:"is_done"`
}

// StepRecord is one executed step of a run, replayed or agent-driven.
type StepRecord struct {
	Number      int            `json:"step_number"`
	Description string         `json:"description,omitempty"`
	Mode        StepMode       `json:"mode"`
	Actions     []ActionRecord `json:"actions"`
	Screenshot  string         `json:"screenshot,omitempty"`
}

// ModeTraceEntry pairs a step number with how that step was produced. A
// retried step appears twice with the same number, so the pairing is
// explicit rather than positional.
type ModeTraceEntry struct {
	Number int      `json:"step_number"`
	Mode   StepMode `json:"mode"`
}

// RunResult is the outcome of Engine.RunTask. Execution failures are
// reported here, not as call errors: FinalStatus, Error and the per-action
// outcomes carry everything the caller needs.
type RunResult struct {
	Steps       []StepRecord     `json:"steps"`
	FinalStatus RunStatus        `json:"final_status"`
	Result      string           `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
	ModeTrace   []ModeTraceEntry `json:"mode_trace"`
	Escalated   bool             `json:"escalated"`
	CacheSaved  bool             `json:"cache_saved"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
}

// modeTrace derives the trace from the recorded steps.
func modeTrace(steps []StepRecord) []ModeTraceEntry {
	trace := make([]ModeTraceEntry, len(steps))
	for i, s := range steps {
		trace[i] = ModeTraceEntry{Number: s.Number, Mode: s.Mode}
	}
	return trace
}

// MarshalIndent renders the workflow as indented JSON, the storage and API
// wire form.
func (w *Workflow) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(w, "", "  ")
}
