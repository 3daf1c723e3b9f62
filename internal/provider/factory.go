package provider

import (
	"fmt"
	"strings"
)

// Config selects and configures one backend.
type Config struct {
	Name    string
	APIKey  string
	BaseURL string
}

// New builds the named provider. "auto" picks the first variant with a key
// configured and falls back to the mock so keyless development still runs.
func New(cfg Config, keys map[string]string) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	if name == "" {
		name = "auto"
	}

	key := strings.TrimSpace(cfg.APIKey)
	lookup := func(provider string) string {
		if key != "" {
			return key
		}
		return strings.TrimSpace(keys[provider])
	}

	switch name {
	case "openai":
		k := lookup("openai")
		if k == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return NewOpenAI(k, cfg.BaseURL), nil
	case "anthropic":
		k := lookup("anthropic")
		if k == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key")
		}
		return NewAnthropic(k, cfg.BaseURL), nil
	case "gemini":
		k := lookup("gemini")
		if k == "" {
			return nil, fmt.Errorf("gemini provider requires an API key")
		}
		return NewGemini(k, cfg.BaseURL), nil
	case "mock":
		return NewMock(), nil
	case "auto":
		for _, candidate := range []string{"anthropic", "openai", "gemini"} {
			if lookup(candidate) == "" {
				continue
			}
			return New(Config{Name: candidate, APIKey: lookup(candidate), BaseURL: cfg.BaseURL}, keys)
		}
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q (expected auto|openai|anthropic|gemini|mock)", cfg.Name)
	}
}
