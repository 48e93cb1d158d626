// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package workflow

import "sort"

// ParamPolicy decides whether a recorded argument value should become a
// placeholder. The default is exact matching against the caller's binding
// values; an LLM-assisted policy can be plugged in instead.
type ParamPolicy interface {
	Parameterize(value string, bindings map[string]string) string
}

// ExactMatchPolicy replaces an argument value with {{ name }} when it is
// byte-equal to the value bound to name. Binding names are tried in sorted
// order so a value shared by two bindings templates deterministically.
type ExactMatchPolicy struct{}

func (ExactMatchPolicy) Parameterize(value string, bindings map[string]string) string {
	if value == "" {
		return value
	}
	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if bindings[name] == value {
			return "{{ " + name + " }}"
		}
	}
	return value
}

// Recorder turns an agent-driven run suffix into cacheable workflow steps:
// outcomes are stripped, failed actions are dropped, steps are renumbered
// contiguously from 1, and literal argument values traceable to a binding
// are generalized into placeholders. Values the policy cannot trace stay
// literal.
type Recorder struct {
	policy ParamPolicy
}

// NewRecorder creates a recorder. A nil policy falls back to
// ExactMatchPolicy.
func NewRecorder(policy ParamPolicy) *Recorder {
	if policy == nil {
		policy = ExactMatchPolicy{}
	}
	return &Recorder{policy: policy}
}

// Record converts executed step records into workflow steps.
func (r *Recorder) Record(records []StepRecord, bindings map[string]string) []Step {
	var steps []Step
	for _, rec := range records {
		step := Step{
			Number:      len(steps) + 1,
			Description: rec.Description,
		}
		for _, ar := range rec.Actions {
			if !ar.Success {
				continue
			}
			args := make(map[string]any, len(ar.Args))
			for key, val := range ar.Args {
				if s, ok := val.(string); ok {
					args[key] = r.policy.Parameterize(s, bindings)
				} else {
					args[key] = val
				}
			}
			step.Actions = append(step.Actions, Action{
				Number: len(step.Actions) + 1,
				Kind:   ar.Kind,
				Args:   args,
			})
		}
		if len(step.Actions) == 0 {
			continue
		}
		steps = append(steps, step)
	}
	return steps
}
