package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the consultation simulator.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	RunRetention       time.Duration
	RunJanitorInterval time.Duration
	DefaultMaxTurns    int

	LLMProvider     string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	GeminiAPIKey    string
	ClinicianModel  string
	PatientModel    string

	SpeechProvider    string
	ElevenLabsAPIKey  string
	ElevenLabsBaseURL string

	DatabaseURL string
}

// Keys maps provider names to their configured API keys, for the backend
// factory's auto selection.
func (c Config) Keys() map[string]string {
	return map[string]string{
		"openai":    c.OpenAIAPIKey,
		"anthropic": c.AnthropicAPIKey,
		"gemini":    c.GeminiAPIKey,
	}
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "consultsim"),
		AllowAnyOrigin:   false,

		RunRetention:       10 * time.Minute,
		RunJanitorInterval: 30 * time.Second,
		DefaultMaxTurns:    20,

		LLMProvider:     envOrDefault("LLM_PROVIDER", "auto"),
		OpenAIAPIKey:    stringsTrimSpace("OPENAI_API_KEY"),
		AnthropicAPIKey: stringsTrimSpace("ANTHROPIC_API_KEY"),
		GeminiAPIKey:    stringsTrimSpace("GEMINI_API_KEY"),
		ClinicianModel:  envOrDefault("CLINICIAN_MODEL", "gpt-4o-mini"),
		PatientModel:    envOrDefault("PATIENT_MODEL", "gpt-4o-mini"),

		SpeechProvider:    envOrDefault("SPEECH_PROVIDER", "auto"),
		ElevenLabsAPIKey:  stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsBaseURL: envOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),

		DatabaseURL:     stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout: 15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RunRetention, err = durationFromEnv("RUN_RETENTION", cfg.RunRetention)
	if err != nil {
		return Config{}, err
	}
	cfg.RunJanitorInterval, err = durationFromEnv("RUN_JANITOR_INTERVAL", cfg.RunJanitorInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultMaxTurns, err = intFromEnv("RUN_MAX_TURNS", cfg.DefaultMaxTurns)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.RunRetention < time.Second {
		return Config{}, fmt.Errorf("RUN_RETENTION must be at least 1s")
	}
	if cfg.RunJanitorInterval < time.Second {
		return Config{}, fmt.Errorf("RUN_JANITOR_INTERVAL must be at least 1s")
	}
	if cfg.DefaultMaxTurns <= 0 {
		return Config{}, fmt.Errorf("RUN_MAX_TURNS must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
