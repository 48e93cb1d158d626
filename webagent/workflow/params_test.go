// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package workflow

import (
	"errors"
	"reflect"
	"testing"
)

func TestResolveSubstitutesBindings(t *testing.T) {
	w := twoStepWorkflow()
	steps, err := Resolve(w, map[string]string{"city": "Tokyo"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got := steps[0].Actions[1].Args["text"]; got != "Tokyo" {
		t.Errorf("expected Tokyo, got %v", got)
	}
	// The source workflow keeps its placeholder.
	if got := w.Steps[0].Actions[1].Args["text"]; got != "{{ city }}" {
		t.Errorf("source workflow was mutated: %v", got)
	}
}

func TestResolveIsWhitespaceInsensitive(t *testing.T) {
	w := &Workflow{
		Parameters: []Parameter{{Name: "q", Type: "string"}},
		Steps: []Step{
			{Number: 1, Actions: []Action{
				{Number: 1, Kind: ActionInput, Args: map[string]any{
					"selector": "#a",
					"text":     "{{q}}",
				}},
				{Number: 2, Kind: ActionInput, Args: map[string]any{
					"selector": "#b",
					"text":     "{{   q   }}",
				}},
			}},
		},
	}
	steps, err := Resolve(w, map[string]string{"q": "coffee"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if got := steps[0].Actions[i].Args["text"]; got != "coffee" {
			t.Errorf("action %d: expected coffee, got %v", i+1, got)
		}
	}
}

func TestResolveEmbeddedPlaceholder(t *testing.T) {
	w := &Workflow{
		Parameters: []Parameter{{Name: "city", Type: "string"}},
		Steps: []Step{
			{Number: 1, Actions: []Action{
				{Number: 1, Kind: ActionNavigate, Args: map[string]any{
					"url": "https://example.com/search?q={{ city }}&lang=en",
				}},
			}},
		},
	}
	steps, err := Resolve(w, map[string]string{"city": "Oslo"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	want := "https://example.com/search?q=Oslo&lang=en"
	if got := steps[0].Actions[0].Args["url"]; got != want {
		t.Errorf("expected %q, got %v", want, got)
	}
}

func TestResolveMissingBinding(t *testing.T) {
	w := twoStepWorkflow()
	_, err := Resolve(w, map[string]string{})
	if err == nil {
		t.Fatal("expected error for missing binding")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestResolveIgnoresExtraBindings(t *testing.T) {
	w := twoStepWorkflow()
	_, err := Resolve(w, map[string]string{"city": "Rome", "unused": "x"})
	if err != nil {
		t.Fatalf("extra bindings must be ignored: %v", err)
	}
}

func TestResolveLeavesNonStringArgsUntouched(t *testing.T) {
	w := &Workflow{
		Steps: []Step{
			{Number: 1, Actions: []Action{
				{Number: 1, Kind: ActionWait, Args: map[string]any{"seconds": float64(3)}},
			}},
		},
	}
	steps, err := Resolve(w, nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got := steps[0].Actions[0].Args["seconds"]; got != float64(3) {
		t.Errorf("numeric argument changed: %v", got)
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	w := twoStepWorkflow()
	bindings := map[string]string{"city": "Lima"}

	first, err := Resolve(w, bindings)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	second, err := Resolve(w, bindings)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("identical inputs produced different resolved steps")
	}
}

func TestPlaceholderNames(t *testing.T) {
	names := placeholderNames("go to {{ origin }} then {{dest}} via {{ origin }}")
	want := []string{"origin", "dest", "origin"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("expected %v, got %v", want, names)
	}
}
