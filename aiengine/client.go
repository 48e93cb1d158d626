// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

// Package aiengine is the client for the AI engine sidecar, the service
// that drives a browser with a language model when replay cannot finish a
// task on its own.
package aiengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"webagent/platform/webagent/workflow"
)

// Client calls the engine sidecar over HTTP. It satisfies the replay
// engine's Agent interface.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ workflow.Agent = (*Client)(nil)

// Options configures the engine client.
type Options struct {
	BaseURL string
	APIKey  string

	// Timeout bounds a full agent run. Zero means 15 minutes; agent runs
	// routinely take minutes on multi-page tasks.
	Timeout time.Duration
}

// New creates an engine client.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &Client{
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// runRequest is the sidecar's wire format for starting an agent run.
type runRequest struct {
	Task           string                `json:"task"`
	Bindings       map[string]string     `json:"parameter_bindings,omitempty"`
	CompletedSteps []workflow.StepRecord `json:"completed_steps,omitempty"`

	// SessionID makes the engine continue inside an existing browser
	// session instead of opening its own.
	SessionID string `json:"session_id,omitempty"`
}

// runResponse is the sidecar's terminal run payload.
type runResponse struct {
	Steps        []workflow.StepRecord `json:"steps"`
	IsDone       bool                  `json:"is_done"`
	IsSuccessful bool                  `json:"is_successful"`
	Result       string                `json:"result,omitempty"`
	Error        string                `json:"error,omitempty"`
}

// RunFrom hands the task to the engine and blocks until the run ends or
// ctx is canceled.
func (c *Client) RunFrom(ctx context.Context, req workflow.AgentRequest) (*workflow.AgentResult, error) {
	return c.run(ctx, runRequest{
		Task:           req.TaskDescription,
		Bindings:       req.Bindings,
		CompletedSteps: req.CompletedSteps,
	})
}

// RunFromSession is RunFrom pinned to a live browser session.
func (c *Client) RunFromSession(ctx context.Context, req workflow.AgentRequest, sessionID string) (*workflow.AgentResult, error) {
	return c.run(ctx, runRequest{
		Task:           req.TaskDescription,
		Bindings:       req.Bindings,
		CompletedSteps: req.CompletedSteps,
		SessionID:      sessionID,
	})
}

func (c *Client) run(ctx context.Context, payload runRequest) (*workflow.AgentResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal engine request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/runs", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("engine request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("engine returned %d: %s", resp.StatusCode, detail)
	}

	var out runResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode engine response: %w", err)
	}
	if out.Error != "" && !out.IsDone {
		return nil, fmt.Errorf("engine run failed: %s", out.Error)
	}

	return &workflow.AgentResult{
		Steps:      out.Steps,
		Done:       out.IsDone,
		Successful: out.IsSuccessful,
		Result:     out.Result,
	}, nil
}
