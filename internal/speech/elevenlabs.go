package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gmarchetti/consultsim/internal/reliability"
)

// ElevenLabsConfig configures the hosted text-to-speech backend.
type ElevenLabsConfig struct {
	APIKey       string
	BaseURL      string
	ModelID      string
	OutputFormat string
}

// ElevenLabs synthesizes speech through the non-streaming text-to-speech
// endpoint, one request per turn.
type ElevenLabs struct {
	cfg    ElevenLabsConfig
	client *http.Client
}

func NewElevenLabs(cfg ElevenLabsConfig) *ElevenLabs {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		cfg.OutputFormat = "mp3_44100_128"
	}
	return &ElevenLabs{
		cfg:    cfg,
		client: &http.Client{Timeout: 45 * time.Second},
	}
}

func (e *ElevenLabs) Name() string { return "elevenlabs" }

func (e *ElevenLabs) Synthesize(ctx context.Context, text, voice string) ([]byte, string, error) {
	if strings.TrimSpace(voice) == "" {
		return nil, "", fmt.Errorf("voice is required")
	}

	u := strings.TrimRight(e.cfg.BaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(voice) +
		"?output_format=" + url.QueryEscape(e.cfg.OutputFormat)

	body, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": e.cfg.ModelID,
	})
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.cfg.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, "", &Error{
			Synthesizer: e.Name(),
			StatusCode:  resp.StatusCode,
			Retryable:   reliability.IsRetryableHTTPStatus(resp.StatusCode),
			Detail:      strings.TrimSpace(string(detail)),
		}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read elevenlabs audio: %w", err)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "audio/mpeg"
	}
	return payload, mime, nil
}

// Error reports a failed synthesis request.
type Error struct {
	Synthesizer string
	StatusCode  int
	Retryable   bool
	Detail      string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s synthesis failed with status %d: %s", e.Synthesizer, e.StatusCode, e.Detail)
}
