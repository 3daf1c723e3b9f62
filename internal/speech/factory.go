package speech

import (
	"fmt"
	"strings"
)

// New selects a synthesizer by name. "auto" picks the hosted backend when a
// key is configured and falls back to the mock otherwise, so a bare
// checkout still produces audible output.
func New(name, apiKey, baseURL string) (Synthesizer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		if strings.TrimSpace(apiKey) != "" {
			return NewElevenLabs(ElevenLabsConfig{APIKey: apiKey, BaseURL: baseURL}), nil
		}
		return NewMock(), nil
	case "elevenlabs":
		if strings.TrimSpace(apiKey) == "" {
			return nil, fmt.Errorf("elevenlabs synthesizer requires an API key")
		}
		return NewElevenLabs(ElevenLabsConfig{APIKey: apiKey, BaseURL: baseURL}), nil
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown synthesizer %q", name)
	}
}
