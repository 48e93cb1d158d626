// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package webagent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookNotifyRecordsSuccess(t *testing.T) {
	var received RunResponse
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected application/json, got %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("Failed to decode webhook payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("accepted"))
	}))
	defer server.Close()

	run := &TaskRun{ID: "run-1", TaskID: "task-1"}
	payload := &RunResponse{TaskID: "task-1", RunID: "run-1", Result: "booked"}

	n := NewWebhookNotifier(nil, nil)
	n.Notify(context.Background(), server.URL, payload, run)

	if received.Result != "booked" {
		t.Errorf("Expected payload result 'booked', got %q", received.Result)
	}
	if run.WebhookResultSuccess == nil || !*run.WebhookResultSuccess {
		t.Error("Expected webhook result success to be recorded")
	}
	if run.WebhookResultStatusCode != http.StatusOK {
		t.Errorf("Expected status code 200, got %d", run.WebhookResultStatusCode)
	}
	if run.WebhookResultMessage != "accepted" {
		t.Errorf("Expected message 'accepted', got %q", run.WebhookResultMessage)
	}
}

func TestWebhookNotifyRecordsReceiverError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	run := &TaskRun{ID: "run-1", TaskID: "task-1"}
	n := NewWebhookNotifier(nil, nil)
	n.Notify(context.Background(), server.URL, map[string]string{"result": "x"}, run)

	if run.WebhookResultSuccess == nil || *run.WebhookResultSuccess {
		t.Error("Expected webhook result failure to be recorded")
	}
	if run.WebhookResultStatusCode != http.StatusBadGateway {
		t.Errorf("Expected status code 502, got %d", run.WebhookResultStatusCode)
	}
	if run.WebhookResultMessage != "upstream down" {
		t.Errorf("Expected receiver body in message, got %q", run.WebhookResultMessage)
	}
}

func TestWebhookNotifyRecordsTransportError(t *testing.T) {
	run := &TaskRun{ID: "run-1", TaskID: "task-1"}
	n := NewWebhookNotifier(nil, nil)

	// Port 1 is never listening.
	n.Notify(context.Background(), "http://127.0.0.1:1/hook", map[string]string{}, run)

	if run.WebhookResultSuccess == nil || *run.WebhookResultSuccess {
		t.Error("Expected webhook result failure to be recorded")
	}
	if run.WebhookResultMessage == "" {
		t.Error("Expected transport error message to be recorded")
	}
}

func TestWebhookNotifyEmptyURLIsNoop(t *testing.T) {
	run := &TaskRun{ID: "run-1", TaskID: "task-1"}
	n := NewWebhookNotifier(nil, nil)
	n.Notify(context.Background(), "", map[string]string{}, run)

	if run.WebhookResultSuccess != nil {
		t.Error("Expected no webhook result for empty URL")
	}
}
