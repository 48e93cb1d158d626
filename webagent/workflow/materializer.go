// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package workflow

// Materialize merges a recorded repair into the stored workflow: the first
// prefixLen stored steps are preserved exactly as stored, the recorded
// suffix replaces everything from the failed step on, and steps are
// renumbered contiguously. With stored == nil the suffix becomes a brand
// new workflow.
//
// Parameters carry over unchanged. When the suffix references a binding the
// stored workflow never declared, a parameter is synthesized from the
// binding, named after its key, with the bound value as example.
//
// Materializing a pure replay (prefixLen covering every stored step, empty
// suffix) reproduces the stored workflow, so repeating it is a no-op.
func Materialize(stored *Workflow, prefixLen int, suffix []Step, bindings map[string]string) (*Workflow, error) {
	out := &Workflow{}
	if stored != nil {
		clone := stored.Clone()
		if prefixLen > len(clone.Steps) {
			prefixLen = len(clone.Steps)
		}
		out.Parameters = clone.Parameters
		out.Steps = clone.Steps[:prefixLen]
		out.Version = clone.Version
	}

	next := len(out.Steps) + 1
	for _, s := range suffix {
		s.Number = next
		// Renumber a copy: the caller's suffix stays untouched.
		actions := make([]Action, len(s.Actions))
		copy(actions, s.Actions)
		for i := range actions {
			actions[i].Number = i + 1
		}
		s.Actions = actions
		out.Steps = append(out.Steps, s)
		next++
	}

	for _, name := range referencedParameters(out.Steps) {
		if out.HasParameter(name) {
			continue
		}
		out.Parameters = append(out.Parameters, Parameter{
			Name:         name,
			Type:         "string",
			ExampleValue: bindings[name],
		})
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// referencedParameters lists the placeholder names used across all steps,
// first occurrence order, deduplicated.
func referencedParameters(steps []Step) []string {
	var names []string
	seen := make(map[string]bool)
	for _, s := range steps {
		for _, a := range s.Actions {
			for _, val := range a.Args {
				str, ok := val.(string)
				if !ok {
					continue
				}
				for _, name := range placeholderNames(str) {
					if !seen[name] {
						seen[name] = true
						names = append(names, name)
					}
				}
			}
		}
	}
	return names
}
