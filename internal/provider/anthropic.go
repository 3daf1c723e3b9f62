package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gmarchetti/consultsim/internal/reliability"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"
)

// Anthropic calls the messages API. The system prompt travels in the
// dedicated top-level field rather than the message list.
type Anthropic struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewAnthropic(apiKey, baseURL string) *Anthropic {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &Anthropic{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *Anthropic) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *Anthropic) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	messages := make([]Message, 0, len(req.Messages)+1)
	messages = append(messages, req.Messages...)
	if req.UserMessage != "" {
		messages = append(messages, Message{Role: MessageRoleUser, Content: req.UserMessage})
	}
	// The messages API rejects an empty message list and requires the first
	// message to be from the user.
	if len(messages) == 0 || messages[0].Role != MessageRoleUser {
		messages = append([]Message{{Role: MessageRoleUser, Content: "Begin."}}, messages...)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       req.Model,
		System:      req.SystemPrompt,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", &Error{Provider: p.Name(), Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", &Error{Provider: p.Name(), Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	res, err := p.client.Do(httpReq)
	if err != nil {
		return "", &Error{Provider: p.Name(), Retryable: true, Err: fmt.Errorf("send request: %w", err)}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", &Error{
			Provider:   p.Name(),
			StatusCode: res.StatusCode,
			Retryable:  reliability.IsRetryableHTTPStatus(res.StatusCode),
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(detail))),
		}
	}

	var parsed anthropicResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", &Error{Provider: p.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}
	if parsed.Error != nil {
		return "", &Error{Provider: p.Name(), Err: errors.New(parsed.Error.Message)}
	}

	var out strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "" || block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", &Error{Provider: p.Name(), Err: errors.New("empty content in response")}
	}
	return text, nil
}
