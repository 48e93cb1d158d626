// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"webagent/platform/webagent/workflow"
)

// HTTPDriver is the HTTP client for the browser driver sidecar. Failures
// are classified for the replay engine: network trouble and 5xx responses
// are transient, 4xx responses and lost sessions are structural.
type HTTPDriver struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ Driver = (*HTTPDriver)(nil)

// NewHTTPDriver creates a driver client. Individual actions get a generous
// timeout because a navigate can legitimately take a while on heavy pages.
func NewHTTPDriver(baseURL, apiKey string) *HTTPDriver {
	return &HTTPDriver{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 90 * time.Second},
	}
}

// CreateSession opens a browser session.
func (d *HTTPDriver) CreateSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	if opts.Provider == "" {
		opts.Provider = ProviderLocal
	}
	var session Session
	if err := d.post(ctx, "/v1/sessions", opts, &session); err != nil {
		return nil, fmt.Errorf("failed to create browser session: %w", err)
	}
	return &session, nil
}

// Execute runs one action inside the session.
func (d *HTTPDriver) Execute(ctx context.Context, sessionID string, kind workflow.ActionKind, args map[string]any) (*workflow.ExecResult, error) {
	payload := map[string]any{
		"name":   kind,
		"params": args,
	}
	var result workflow.ExecResult
	err := d.post(ctx, "/v1/sessions/"+sessionID+"/actions", payload, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Screenshot captures the session's current page as PNG bytes.
func (d *HTTPDriver) Screenshot(ctx context.Context, sessionID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", d.baseURL+"/v1/sessions/"+sessionID+"/screenshot", nil)
	if err != nil {
		return nil, err
	}
	d.setHeaders(req)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("screenshot request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("screenshot failed with status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 16<<20))
}

// CloseSession tears the session down. Errors are returned but safe to
// ignore: the sidecar reaps idle sessions on its own.
func (d *HTTPDriver) CloseSession(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, "DELETE", d.baseURL+"/v1/sessions/"+sessionID, nil)
	if err != nil {
		return err
	}
	d.setHeaders(req)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("close session failed with status %d", resp.StatusCode)
	}
	return nil
}

// post sends a JSON request and decodes the JSON response, translating
// transport and status failures into the engine's error classes.
func (d *HTTPDriver) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", d.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	d.setHeaders(req)

	resp, err := d.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return &workflow.TransientExecutionError{Reason: "browser driver timeout", Err: err}
		}
		return &workflow.TransientExecutionError{Reason: "browser driver unreachable", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return &workflow.TransientExecutionError{
			Reason: fmt.Sprintf("browser driver returned %d", resp.StatusCode),
		}
	case resp.StatusCode == http.StatusNotFound:
		return &workflow.StructuralExecutionError{Reason: "browser session lost"}
	case resp.StatusCode >= 400:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &workflow.StructuralExecutionError{
			Reason: fmt.Sprintf("browser driver rejected request (%d): %s", resp.StatusCode, detail),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode driver response: %w", err)
	}
	return nil
}

func (d *HTTPDriver) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
