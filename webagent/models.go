// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package webagent

import (
	"time"

	"webagent/platform/webagent/workflow"
)

// Supported LLM providers for agent-driven runs.
const (
	ProviderOpenAI    = "openai"
	ProviderDeepSeek  = "deepseek"
	ProviderAnthropic = "anthropic"
	ProviderGroq      = "groq"
	ProviderMistral   = "mistral"
	ProviderTogether  = "together"
	ProviderBedrock   = "bedrock"
)

var validProviders = map[string]bool{
	ProviderOpenAI:    true,
	ProviderDeepSeek:  true,
	ProviderAnthropic: true,
	ProviderGroq:      true,
	ProviderMistral:   true,
	ProviderTogether:  true,
	ProviderBedrock:   true,
}

// ValidProvider reports whether name is a supported provider.
func ValidProvider(name string) bool {
	return validProviders[name]
}

// Response formats for the final task result.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Task is a reusable browser task definition. Each execution of a task is a
// TaskRun; successful runs cache a replayable workflow keyed by the task ID.
type Task struct {
	ID                string    `json:"id"`
	Prompt            string    `json:"prompt"`
	Model             string    `json:"model"`
	Provider          string    `json:"provider"`
	WebhookURL        string    `json:"webhook_url,omitempty"`
	ResponseFormat    string    `json:"response_format"`
	JSONSchema        string    `json:"json_schema,omitempty"`
	UseCachedWorkflow bool      `json:"use_cached_workflow"`
	CreatedAt         time.Time `json:"created_at"`
}

// TaskRun is one execution of a task.
type TaskRun struct {
	ID         string `json:"id"`
	TaskID     string `json:"task_id"`
	Prompt     string `json:"prompt"`
	Model      string `json:"model"`
	Provider   string `json:"provider"`
	WebhookURL string `json:"webhook_url,omitempty"`

	Status       workflow.RunStatus `json:"status"`
	Result       string             `json:"result,omitempty"`
	Error        string             `json:"error,omitempty"`
	IsDone       bool               `json:"is_done"`
	IsSuccessful *bool              `json:"is_successful,omitempty"`
	Escalated    bool               `json:"escalated"`
	CacheSaved   bool               `json:"cache_saved"`

	WebhookResultSuccess    *bool  `json:"webhook_result_success,omitempty"`
	WebhookResultStatusCode int    `json:"webhook_result_status_code,omitempty"`
	WebhookResultMessage    string `json:"webhook_result_message,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RunStep is one persisted step of a run, replayed or agent-driven, with its
// actions and an optional screenshot artifact URL. A transiently failed step
// that was retried in place appears once per attempt, same step number,
// attempt 1, 2, ...
type RunStep struct {
	RunID       string            `json:"run_id"`
	StepNumber  int               `json:"step_number"`
	Attempt     int               `json:"attempt"`
	Description string            `json:"description,omitempty"`
	Mode        workflow.StepMode `json:"mode"`
	Screenshot  string            `json:"screenshot,omitempty"`
	Actions     []RunAction       `json:"actions"`
}

// RunAction is one persisted action outcome within a run step.
type RunAction struct {
	RunID            string         `json:"run_id"`
	StepNumber       int            `json:"step_number"`
	Attempt          int            `json:"attempt"`
	ActionNumber     int            `json:"action_number"`
	Name             string         `json:"name"`
	Params           map[string]any `json:"params,omitempty"`
	Success          bool           `json:"success"`
	ExtractedContent string         `json:"extracted_content,omitempty"`
	Error            string         `json:"error,omitempty"`
	IsDone           bool           `json:"is_done"`
}

// runStepsFromRecords converts an engine step trace to persistence rows.
// The trace keeps every attempt of a retried step under the same step
// number, so each row gets an attempt counter to stay unique.
func runStepsFromRecords(runID string, records []workflow.StepRecord) []RunStep {
	steps := make([]RunStep, 0, len(records))
	attempts := make(map[int]int)
	for _, rec := range records {
		attempts[rec.Number]++
		step := RunStep{
			RunID:       runID,
			StepNumber:  rec.Number,
			Attempt:     attempts[rec.Number],
			Description: rec.Description,
			Mode:        rec.Mode,
			Screenshot:  rec.Screenshot,
		}
		for _, act := range rec.Actions {
			step.Actions = append(step.Actions, RunAction{
				RunID:            runID,
				StepNumber:       rec.Number,
				Attempt:          step.Attempt,
				ActionNumber:     act.Number,
				Name:             string(act.Kind),
				Params:           act.Args,
				Success:          act.Success,
				ExtractedContent: act.ExtractedContent,
				Error:            act.Error,
				IsDone:           act.IsDone,
			})
		}
		steps = append(steps, step)
	}
	return steps
}
