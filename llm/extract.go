// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"webagent/platform/webagent/workflow"
)

const extractSystemPrompt = `You extract parameter values from task descriptions.
Respond with a single JSON object mapping parameter names to string values.
Use the parameter descriptions and example values to locate each value in the task.
If a value is not present in the task, omit its key. Respond with JSON only.`

// ExtractParameters asks the model to pull binding values for a workflow's
// declared parameters out of a free-form task prompt. Parameters the model
// cannot locate are simply absent from the result; the caller decides
// whether that is fatal.
func ExtractParameters(ctx context.Context, p Provider, taskPrompt string, wf *workflow.Workflow) (map[string]string, error) {
	if len(wf.Parameters) == 0 {
		return map[string]string{}, nil
	}

	var spec strings.Builder
	for _, param := range wf.Parameters {
		fmt.Fprintf(&spec, "- %s (%s)", param.Name, param.Type)
		if param.Description != "" {
			fmt.Fprintf(&spec, ": %s", param.Description)
		}
		if param.ExampleValue != "" {
			fmt.Fprintf(&spec, " (example: %q)", param.ExampleValue)
		}
		spec.WriteString("\n")
	}

	prompt := fmt.Sprintf("Task:\n%s\n\nParameters:\n%s", taskPrompt, spec.String())
	resp, err := p.Query(ctx, prompt, QueryOptions{
		SystemPrompt: extractSystemPrompt,
		MaxTokens:    512,
	})
	if err != nil {
		return nil, fmt.Errorf("parameter extraction failed: %w", err)
	}

	raw := ExtractJSONBlock(resp.Content)
	var bindings map[string]string
	if err := json.Unmarshal([]byte(raw), &bindings); err != nil {
		return nil, fmt.Errorf("parameter extraction returned unparseable JSON: %w", err)
	}

	// Keep only declared parameters; models occasionally invent keys.
	for name := range bindings {
		if !wf.HasParameter(name) {
			delete(bindings, name)
		}
	}
	return bindings, nil
}
