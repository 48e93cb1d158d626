// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package workflow

import (
	"encoding/json"
	"fmt"
)

// ParseWorkflow decodes and validates a workflow document. Documents that
// name unknown action kinds, miss required arguments, reference undeclared
// parameters, or break the step numbering contract are rejected here, so
// downstream code never sees a malformed workflow.
func ParseWorkflow(data []byte) (*Workflow, error) {
	var w Workflow
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

// Validate checks the structural invariants of a workflow document.
func (w *Workflow) Validate() error {
	seen := make(map[string]bool, len(w.Parameters))
	for i, p := range w.Parameters {
		if p.Name == "" {
			return &ValidationError{
				Field:  fmt.Sprintf("parameters[%d].name", i),
				Reason: "parameter name is empty",
			}
		}
		if seen[p.Name] {
			return &ValidationError{
				Field:  fmt.Sprintf("parameters[%d].name", i),
				Reason: fmt.Sprintf("duplicate parameter %q", p.Name),
			}
		}
		seen[p.Name] = true
	}

	if len(w.Steps) == 0 {
		return &ValidationError{Field: "steps", Reason: "workflow has no steps"}
	}

	for i, s := range w.Steps {
		if s.Number != i+1 {
			return &ValidationError{
				Field:  fmt.Sprintf("steps[%d].step_number", i),
				Reason: fmt.Sprintf("expected %d, got %d", i+1, s.Number),
			}
		}
		if len(s.Actions) == 0 {
			return &ValidationError{
				Field:  fmt.Sprintf("steps[%d].actions", i),
				Reason: "step has no actions",
			}
		}
		for j, a := range s.Actions {
			if err := w.validateAction(i, j, a); err != nil {
				return err
			}
			// A done action ends the run, so nothing may follow it.
			if a.Kind == ActionDone && !(i == len(w.Steps)-1 && j == len(s.Actions)-1) {
				return &ValidationError{
					Field:  fmt.Sprintf("steps[%d].actions[%d]", i, j),
					Reason: "done must be the final action of the final step",
				}
			}
		}
	}
	return nil
}

func (w *Workflow) validateAction(stepIdx, actionIdx int, a Action) error {
	field := fmt.Sprintf("steps[%d].actions[%d]", stepIdx, actionIdx)

	if a.Number != actionIdx+1 {
		return &ValidationError{
			Field:  field + ".action_number",
			Reason: fmt.Sprintf("expected %d, got %d", actionIdx+1, a.Number),
		}
	}
	if !a.Kind.Valid() {
		return &ValidationError{
			Field:  field + ".name",
			Reason: fmt.Sprintf("unknown action kind %q", a.Kind),
		}
	}
	for _, req := range RequiredArgs(a.Kind) {
		if _, ok := a.Args[req]; !ok {
			return &ValidationError{
				Field:  field + ".params",
				Reason: fmt.Sprintf("%s requires argument %q", a.Kind, req),
			}
		}
	}
	for key, val := range a.Args {
		s, ok := val.(string)
		if !ok {
			continue
		}
		for _, name := range placeholderNames(s) {
			if !w.HasParameter(name) {
				return &ValidationError{
					Field:  fmt.Sprintf("%s.params.%s", field, key),
					Reason: fmt.Sprintf("placeholder references undeclared parameter %q", name),
				}
			}
		}
	}
	return nil
}
