// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package webagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"webagent/platform/shared/logger"
)

// maxWebhookResponseBytes bounds how much of the receiver's response body is
// recorded on the run row.
const maxWebhookResponseBytes = 4 << 10

// WebhookNotifier posts run results to a task's webhook URL and records the
// delivery outcome on the run. Delivery is best effort: a failure is
// recorded, never retried.
type WebhookNotifier struct {
	client *http.Client
	logger *logger.Logger
}

// NewWebhookNotifier creates a notifier. A nil client gets a 30s timeout
// default.
func NewWebhookNotifier(client *http.Client, log *logger.Logger) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = logger.New("webhook")
	}
	return &WebhookNotifier{client: client, logger: log}
}

// Notify posts payload to webhookURL and stamps the webhook_result_* fields
// on run. An empty URL is a no-op.
func (n *WebhookNotifier) Notify(ctx context.Context, webhookURL string, payload any, run *TaskRun) {
	if webhookURL == "" {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.recordFailure(run, 0, fmt.Sprintf("failed to marshal webhook payload: %v", err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		n.recordFailure(run, 0, fmt.Sprintf("failed to build webhook request: %v", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.recordFailure(run, 0, fmt.Sprintf("error sending webhook: %v", err))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxWebhookResponseBytes))
	message := string(respBody)

	if resp.StatusCode < 400 {
		ok := true
		run.WebhookResultSuccess = &ok
		run.WebhookResultStatusCode = resp.StatusCode
		run.WebhookResultMessage = message
		n.logger.Info(run.TaskID, run.ID, "Webhook delivered", map[string]interface{}{
			"status_code": resp.StatusCode,
		})
		return
	}
	n.recordFailure(run, resp.StatusCode, message)
}

func (n *WebhookNotifier) recordFailure(run *TaskRun, statusCode int, message string) {
	failed := false
	run.WebhookResultSuccess = &failed
	run.WebhookResultStatusCode = statusCode
	run.WebhookResultMessage = message
	n.logger.Error(run.TaskID, run.ID, "Webhook delivery failed", map[string]interface{}{
		"status_code": statusCode,
		"message":     message,
	})
}
