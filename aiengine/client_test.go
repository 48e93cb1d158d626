// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package aiengine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"webagent/platform/webagent/workflow"
)

func TestClientRunFrom(t *testing.T) {
	var gotReq runRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/runs" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Errorf("missing auth header, got %q", got)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(runResponse{
			IsDone:       true,
			IsSuccessful: true,
			Result:       "booked",
			Steps: []workflow.StepRecord{
				{Number: 1, Actions: []workflow.ActionRecord{
					{Number: 1, Kind: workflow.ActionDone, Args: map[string]any{}, Success: true, IsDone: true},
				}},
			},
		})
	}))
	defer server.Close()

	c := New(Options{BaseURL: server.URL, APIKey: "key-1"})
	result, err := c.RunFrom(context.Background(), workflow.AgentRequest{
		TaskDescription: "book a room",
		Bindings:        map[string]string{"city": "Berlin"},
		CompletedSteps: []workflow.StepRecord{
			{Number: 1, Description: "searched"},
		},
	})
	if err != nil {
		t.Fatalf("RunFrom failed: %v", err)
	}
	if !result.Done || !result.Successful || result.Result != "booked" {
		t.Errorf("unexpected result: %+v", result)
	}
	if gotReq.Task != "book a room" {
		t.Errorf("task not forwarded: %q", gotReq.Task)
	}
	if len(gotReq.CompletedSteps) != 1 {
		t.Errorf("completed steps not forwarded: %+v", gotReq.CompletedSteps)
	}
	if gotReq.Bindings["city"] != "Berlin" {
		t.Errorf("bindings not forwarded: %v", gotReq.Bindings)
	}
}

func TestClientRunFromSessionPinsSession(t *testing.T) {
	var gotReq runRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(runResponse{IsDone: true, IsSuccessful: true})
	}))
	defer server.Close()

	c := New(Options{BaseURL: server.URL})
	_, err := c.RunFromSession(context.Background(), workflow.AgentRequest{TaskDescription: "t"}, "sess-7")
	if err != nil {
		t.Fatalf("RunFromSession failed: %v", err)
	}
	if gotReq.SessionID != "sess-7" {
		t.Errorf("session not pinned: %q", gotReq.SessionID)
	}
}

func TestClientEngineErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model quota exceeded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := New(Options{BaseURL: server.URL})
	_, err := c.RunFrom(context.Background(), workflow.AgentRequest{TaskDescription: "t"})
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestClientEngineRunError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(runResponse{IsDone: false, Error: "browser crashed"})
	}))
	defer server.Close()

	c := New(Options{BaseURL: server.URL})
	_, err := c.RunFrom(context.Background(), workflow.AgentRequest{TaskDescription: "t"})
	if err == nil || !strings.Contains(err.Error(), "browser crashed") {
		t.Fatalf("expected run error, got %v", err)
	}
}

func TestClientHonorsCancellation(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server notices the client disconnect and
		// cancels the request context; otherwise Close deadlocks below.
		io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := New(Options{BaseURL: server.URL})

	done := make(chan error, 1)
	go func() {
		_, err := c.RunFrom(ctx, workflow.AgentRequest{TaskDescription: "t"})
		done <- err
	}()

	<-started
	cancel()
	if err := <-done; err == nil {
		t.Fatal("expected error after cancellation")
	}
}
