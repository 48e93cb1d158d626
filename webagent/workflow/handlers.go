// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package workflow

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"
)

// Handler serves the cached-workflow editing API. Every document accepted
// here went through ParseWorkflow, so the engine only ever replays valid
// workflows.
type Handler struct {
	store  Store
	logger *log.Logger
}

// NewHandler creates a workflow API handler. A nil logger falls back to
// the default logger.
func NewHandler(store Store, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes registers the workflow endpoints on the router. The
// mutating routes (PUT, DELETE) are wrapped with protect when one is
// given; reads stay open.
func (h *Handler) RegisterRoutes(r *mux.Router, protect func(http.Handler) http.Handler) {
	if protect == nil {
		protect = func(next http.Handler) http.Handler { return next }
	}
	r.HandleFunc("/api/v1/tasks/{taskID}/workflow", h.handleGet).Methods("GET", "OPTIONS")
	r.Handle("/api/v1/tasks/{taskID}/workflow", protect(http.HandlerFunc(h.handlePut))).Methods("PUT", "OPTIONS")
	r.Handle("/api/v1/tasks/{taskID}/workflow", protect(http.HandlerFunc(h.handleDelete))).Methods("DELETE", "OPTIONS")
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["taskID"]

	wf, err := h.store.Load(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeAPIError(w, http.StatusNotFound, "not_found", "no cached workflow for task")
			return
		}
		h.logger.Printf("[WorkflowAPI] load failed for task %s: %v", taskID, err)
		writeAPIError(w, http.StatusInternalServerError, "internal_error", "failed to load workflow")
		return
	}
	writeAPIJSON(w, http.StatusOK, wf)
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["taskID"]

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "failed to read request body")
		return
	}

	wf, err := ParseWorkflow(body)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			writeAPIError(w, http.StatusBadRequest, "invalid_workflow", ve.Error())
			return
		}
		writeAPIError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	// Replace whatever is stored now; the version check still catches a
	// repair racing this edit.
	current, err := h.store.Load(r.Context(), taskID)
	switch {
	case err == nil:
		wf.Version = current.Version
	case errors.Is(err, ErrNotFound):
		wf.Version = 0
	default:
		h.logger.Printf("[WorkflowAPI] load failed for task %s: %v", taskID, err)
		writeAPIError(w, http.StatusInternalServerError, "internal_error", "failed to load workflow")
		return
	}

	if err := h.store.Save(r.Context(), taskID, wf); err != nil {
		if errors.Is(err, ErrPersistenceConflict) {
			writeAPIError(w, http.StatusConflict, "conflict", "workflow changed concurrently, retry")
			return
		}
		h.logger.Printf("[WorkflowAPI] save failed for task %s: %v", taskID, err)
		writeAPIError(w, http.StatusInternalServerError, "internal_error", "failed to save workflow")
		return
	}

	h.logger.Printf("[WorkflowAPI] workflow for task %s replaced (%d steps)", taskID, len(wf.Steps))
	writeAPIJSON(w, http.StatusOK, map[string]any{
		"task_id": taskID,
		"steps":   len(wf.Steps),
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["taskID"]

	if err := h.store.Delete(r.Context(), taskID); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeAPIError(w, http.StatusNotFound, "not_found", "no cached workflow for task")
			return
		}
		h.logger.Printf("[WorkflowAPI] delete failed for task %s: %v", taskID, err)
		writeAPIError(w, http.StatusInternalServerError, "internal_error", "failed to delete workflow")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// APIError is the JSON error body of the workflow endpoints.
type APIError struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeAPIJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeAPIJSON(w, status, APIError{
		Error:   http.StatusText(status),
		Code:    code,
		Message: message,
	})
}
