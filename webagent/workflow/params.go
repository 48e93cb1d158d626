// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package workflow

import (
	"fmt"
	"regexp"
)

// placeholderPattern matches {{ name }} references. Whitespace inside the
// braces is ignored, so {{city}} and {{ city }} resolve identically.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// placeholderNames returns the parameter names referenced by s, in order of
// appearance, duplicates included.
func placeholderNames(s string) []string {
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(s, -1) {
		names = append(names, m[1])
	}
	return names
}

// Resolve substitutes caller bindings into every string argument of the
// workflow and returns the resolved steps. The input workflow is not
// modified. Substitution is pure: the same workflow and bindings always
// produce the same steps. An unresolvable placeholder is a ValidationError;
// bindings that no placeholder references are ignored.
func Resolve(w *Workflow, bindings map[string]string) ([]Step, error) {
	resolved := w.Clone().Steps
	for si := range resolved {
		for ai := range resolved[si].Actions {
			args := resolved[si].Actions[ai].Args
			for key, val := range args {
				s, ok := val.(string)
				if !ok {
					continue
				}
				out, err := substitute(s, bindings)
				if err != nil {
					return nil, &ValidationError{
						Field:  fmt.Sprintf("steps[%d].actions[%d].params.%s", si, ai, key),
						Reason: err.Error(),
					}
				}
				args[key] = out
			}
		}
	}
	return resolved, nil
}

// substitute replaces every placeholder in s with its binding.
func substitute(s string, bindings map[string]string) (string, error) {
	var missing string
	out := placeholderPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholderPattern.FindStringSubmatch(m)[1]
		val, ok := bindings[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return m
		}
		return val
	})
	if missing != "" {
		return "", fmt.Errorf("no binding for parameter %q", missing)
	}
	return out, nil
}
