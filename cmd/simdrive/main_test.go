package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		contentType string
		want        string
	}{
		{"audio/wav", ".wav"},
		{"audio/mpeg", ".mp3"},
		{"application/octet-stream", ".bin"},
	}
	for _, tt := range tests {
		if got := extensionFor(tt.contentType); got != tt.want {
			t.Fatalf("extensionFor(%q) = %q, want %q", tt.contentType, got, tt.want)
		}
	}
}

func TestStepWithRetryRecoversFromConflict(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "busy", "code": "step_in_flight"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"phase": "running", "turns": 1})
	}))
	defer server.Close()

	cfg := options{baseURL: server.URL, stepAttempts: 3}
	client := &http.Client{Timeout: 5 * time.Second}

	step, err := stepWithRetry(context.Background(), client, cfg, "r1")
	if err != nil {
		t.Fatalf("stepWithRetry: %v", err)
	}
	if step.Phase != "running" || step.Turns != 1 {
		t.Fatalf("step = %+v", step)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}

func TestStepWithRetryStopsOnPermanentError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "run not found", "code": "run_not_found"})
	}))
	defer server.Close()

	cfg := options{baseURL: server.URL, stepAttempts: 4}
	client := &http.Client{Timeout: 5 * time.Second}

	_, err := stepWithRetry(context.Background(), client, cfg, "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on 404)", got)
	}
}
