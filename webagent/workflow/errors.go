// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package workflow

import (
	"errors"
	"fmt"
)

// Common errors returned by the workflow engine and stores.
var (
	// ErrNotFound is returned when no cached workflow exists for a task.
	ErrNotFound = errors.New("workflow not found")

	// ErrPersistenceConflict is returned when a save loses the version
	// compare-and-set race against a concurrent mutating run.
	ErrPersistenceConflict = errors.New("workflow version conflict")

	// ErrStoreUnavailable is returned when the backing store cannot be
	// reached.
	ErrStoreUnavailable = errors.New("workflow store unavailable")

	// ErrRunInProgress is returned when a mutating run already holds the
	// task's run lock.
	ErrRunInProgress = errors.New("mutating run already in progress")
)

// ValidationError reports a structurally invalid workflow document or an
// unresolvable parameter reference. It is the only failure RunTask returns
// as a call error; everything past validation is reported in the RunResult.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid workflow: %s", e.Reason)
	}
	return fmt.Sprintf("invalid workflow: %s: %s", e.Field, e.Reason)
}

// TransientExecutionError marks an action failure worth retrying in place:
// timeouts, dropped connections, 5xx responses from the browser driver.
type TransientExecutionError struct {
	Step   int
	Action int
	Reason string
	Err    error
}

func (e *TransientExecutionError) Error() string {
	return fmt.Sprintf("transient failure at step %d action %d: %s", e.Step, e.Action, e.Reason)
}

func (e *TransientExecutionError) Unwrap() error { return e.Err }

// StructuralExecutionError marks an action failure that signals page drift:
// missing elements, stale selectors, a lost browser session. Retrying the
// same action cannot succeed; the run escalates to the agent instead.
type StructuralExecutionError struct {
	Step   int
	Action int
	Reason string
	Err    error
}

func (e *StructuralExecutionError) Error() string {
	return fmt.Sprintf("structural failure at step %d action %d: %s", e.Step, e.Action, e.Reason)
}

func (e *StructuralExecutionError) Unwrap() error { return e.Err }

// EscalationExhaustedError reports that the agent invocation itself failed
// or ended without reaching a done action.
type EscalationExhaustedError struct {
	Step   int
	Reason string
	Err    error
}

func (e *EscalationExhaustedError) Error() string {
	return fmt.Sprintf("escalation exhausted at step %d: %s", e.Step, e.Reason)
}

func (e *EscalationExhaustedError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a transient execution
// failure.
func IsTransient(err error) bool {
	var te *TransientExecutionError
	return errors.As(err, &te)
}

func asError[T error](err error, target *T) bool {
	return errors.As(err, target)
}
