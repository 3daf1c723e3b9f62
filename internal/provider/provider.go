package provider

import (
	"context"
	"fmt"
)

// Message roles in the transcript view handed to a backend. The producing
// role's own turns are "assistant", the peer's turns are "user".
const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// Message is one prior turn formatted for a model backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest carries everything a backend needs for a single reply.
// Adapters must not retain the message view beyond the call.
type GenerateRequest struct {
	SystemPrompt string
	Messages     []Message
	UserMessage  string
	Model        string
	Temperature  float64
	MaxTokens    int
}

// Provider is the uniform capability surface over heterogeneous model
// backends: produce one reply for one request. Implementations perform a
// single attempt and no retries; retry policy belongs to the caller.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Error reports a failed backend call. Retryable reflects whether a fresh
// attempt could plausibly succeed (rate limits, transient server errors).
type Error struct {
	Provider   string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s backend status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s backend: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
