// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

// Package browser talks to the browser driver sidecar: session lifecycle
// and single-action execution over HTTP. It is the only package that knows
// how actions reach a real browser.
package browser

import (
	"context"

	"webagent/platform/webagent/workflow"
)

// SessionProvider selects where browser sessions run.
type SessionProvider string

const (
	ProviderLocal       SessionProvider = "local"
	ProviderBrowserbase SessionProvider = "browserbase"
	ProviderSteel       SessionProvider = "steel"
)

// SessionOptions configures a new browser session.
type SessionOptions struct {
	Provider SessionProvider `json:"provider"`
	Headless bool            `json:"headless"`
}

// Session is a live browser session on the driver sidecar.
type Session struct {
	ID      string `json:"session_id"`
	LiveURL string `json:"live_url,omitempty"`
}

// Driver is the browser driver client surface.
type Driver interface {
	CreateSession(ctx context.Context, opts SessionOptions) (*Session, error)
	Execute(ctx context.Context, sessionID string, kind workflow.ActionKind, args map[string]any) (*workflow.ExecResult, error)
	Screenshot(ctx context.Context, sessionID string) ([]byte, error)
	CloseSession(ctx context.Context, sessionID string) error
}

// SessionExecutor binds a driver to one session, satisfying the engine's
// per-run executor.
type SessionExecutor struct {
	driver    Driver
	sessionID string
}

var _ workflow.Executor = (*SessionExecutor)(nil)

// NewSessionExecutor creates an executor bound to the given session.
func NewSessionExecutor(driver Driver, sessionID string) *SessionExecutor {
	return &SessionExecutor{driver: driver, sessionID: sessionID}
}

func (e *SessionExecutor) Execute(ctx context.Context, kind workflow.ActionKind, args map[string]any) (*workflow.ExecResult, error) {
	return e.driver.Execute(ctx, e.sessionID, kind, args)
}
