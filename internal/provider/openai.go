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

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAI calls the chat completions API. One request per Generate, no
// streaming, no retries.
type OpenAI struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewOpenAI(apiKey, baseURL string) *OpenAI {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAI{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *OpenAI) Name() string { return "openai" }

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *OpenAI) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	messages := make([]Message, 0, len(req.Messages)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, req.Messages...)
	if req.UserMessage != "" {
		messages = append(messages, Message{Role: MessageRoleUser, Content: req.UserMessage})
	}

	body, err := json.Marshal(openAIRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", &Error{Provider: p.Name(), Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", &Error{Provider: p.Name(), Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

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

	var parsed openAIResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", &Error{Provider: p.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}
	if parsed.Error != nil {
		return "", &Error{Provider: p.Name(), Err: errors.New(parsed.Error.Message)}
	}
	if len(parsed.Choices) == 0 {
		return "", &Error{Provider: p.Name(), Err: errors.New("empty choices in response")}
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
