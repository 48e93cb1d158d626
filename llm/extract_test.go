// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"webagent/platform/webagent/workflow"
)

// cannedProvider returns a fixed completion.
type cannedProvider struct {
	content string
	err     error
	prompt  string
	system  string
}

func (p *cannedProvider) Name() string    { return "canned" }
func (p *cannedProvider) IsHealthy() bool { return true }

func (p *cannedProvider) Query(ctx context.Context, prompt string, options QueryOptions) (*Response, error) {
	p.prompt = prompt
	p.system = options.SystemPrompt
	if p.err != nil {
		return nil, p.err
	}
	return &Response{Content: p.content}, nil
}

func extractTestWorkflow() *workflow.Workflow {
	return &workflow.Workflow{
		Parameters: []workflow.Parameter{
			{Name: "city", Type: "string", Description: "destination city", ExampleValue: "Berlin"},
			{Name: "nights", Type: "string", ExampleValue: "2"},
		},
		Steps: []workflow.Step{
			{Number: 1, Actions: []workflow.Action{
				{Number: 1, Kind: workflow.ActionDone, Args: map[string]any{}},
			}},
		},
	}
}

func TestExtractParameters(t *testing.T) {
	p := &cannedProvider{content: `{"city": "Lisbon", "nights": "3"}`}

	bindings, err := ExtractParameters(context.Background(), p, "book 3 nights in Lisbon", extractTestWorkflow())
	if err != nil {
		t.Fatalf("ExtractParameters failed: %v", err)
	}
	if bindings["city"] != "Lisbon" || bindings["nights"] != "3" {
		t.Errorf("unexpected bindings: %v", bindings)
	}
	if !strings.Contains(p.prompt, "destination city") {
		t.Error("parameter description missing from the prompt")
	}
	if p.system == "" {
		t.Error("expected a system prompt")
	}
}

func TestExtractParametersFencedResponse(t *testing.T) {
	p := &cannedProvider{content: "Here you go:\n```json\n{\"city\": \"Oslo\"}\n```"}

	bindings, err := ExtractParameters(context.Background(), p, "visit Oslo", extractTestWorkflow())
	if err != nil {
		t.Fatalf("ExtractParameters failed: %v", err)
	}
	if bindings["city"] != "Oslo" {
		t.Errorf("unexpected bindings: %v", bindings)
	}
}

func TestExtractParametersDropsUndeclaredKeys(t *testing.T) {
	p := &cannedProvider{content: `{"city": "Rome", "hallucinated": "yes"}`}

	bindings, err := ExtractParameters(context.Background(), p, "go to Rome", extractTestWorkflow())
	if err != nil {
		t.Fatalf("ExtractParameters failed: %v", err)
	}
	if _, ok := bindings["hallucinated"]; ok {
		t.Error("undeclared key survived")
	}
}

func TestExtractParametersNoParameters(t *testing.T) {
	p := &cannedProvider{err: errors.New("must not be called")}
	wf := &workflow.Workflow{Steps: extractTestWorkflow().Steps}

	bindings, err := ExtractParameters(context.Background(), p, "anything", wf)
	if err != nil {
		t.Fatalf("ExtractParameters failed: %v", err)
	}
	if len(bindings) != 0 {
		t.Errorf("expected empty bindings, got %v", bindings)
	}
}

func TestExtractParametersProviderError(t *testing.T) {
	p := &cannedProvider{err: errors.New("quota exceeded")}

	_, err := ExtractParameters(context.Background(), p, "task", extractTestWorkflow())
	if err == nil || !strings.Contains(err.Error(), "quota") {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
}

func TestExtractJSONBlock(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"plain fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"prose around braces", `Sure! {"a": 1} Hope that helps.`, `{"a": 1}`},
		{"array", `the list is [1, 2, 3] ok`, `[1, 2, 3]`},
		{"no json", "nothing here", "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSONBlock(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
