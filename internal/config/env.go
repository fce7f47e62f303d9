package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// envOverrides are the environment variables that take precedence over the
// YAML file. Zero values mean "not set".
type envOverrides struct {
	ListenAddr      string          `env:"LINGUALINK_LISTEN_ADDR"`
	LogLevel        LogLevel        `env:"LINGUALINK_LOG_LEVEL"`
	DatabaseDSN     string          `env:"LINGUALINK_DATABASE_DSN"`
	FFmpegPath      string          `env:"LINGUALINK_FFMPEG_PATH"`
	AutoFlushBytes  int             `env:"LINGUALINK_AUTO_FLUSH_BYTES"`
	MinDuration     time.Duration   `env:"LINGUALINK_MIN_DURATION"`
	Workers         int             `env:"LINGUALINK_INFERENCE_WORKERS"`
	BroadcastSource BroadcastSource `env:"LINGUALINK_BROADCAST_SOURCE"`
	BroadcastDevice string          `env:"LINGUALINK_BROADCAST_DEVICE"`

	// Provider credentials fill api_key on every chain entry of the matching
	// provider that leaves it empty.
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	GeminiAPIKey    string `env:"GEMINI_API_KEY"`
	DeepgramAPIKey  string `env:"DEEPGRAM_API_KEY"`
	MistralAPIKey   string `env:"MISTRAL_API_KEY"`
	GroqAPIKey      string `env:"GROQ_API_KEY"`
	DeepSeekAPIKey  string `env:"DEEPSEEK_API_KEY"`
}

// ApplyEnv overlays the process environment onto cfg.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, nil)
}

// applyEnv overlays environ onto cfg. A nil environ reads the process
// environment.
func applyEnv(cfg *Config, environ map[string]string) error {
	var raw envOverrides
	if err := env.ParseWithOptions(&raw, env.Options{Environment: environ}); err != nil {
		return fmt.Errorf("config: parse environment: %w", err)
	}

	setString(&cfg.Server.ListenAddr, raw.ListenAddr)
	if raw.LogLevel != "" {
		cfg.Server.LogLevel = raw.LogLevel
	}
	setString(&cfg.Transcripts.PostgresDSN, raw.DatabaseDSN)
	setString(&cfg.Audio.FFmpegPath, raw.FFmpegPath)
	if raw.AutoFlushBytes > 0 {
		cfg.Stream.AutoFlushBytes = raw.AutoFlushBytes
	}
	if raw.MinDuration > 0 {
		cfg.Stream.MinDuration = raw.MinDuration
	}
	if raw.Workers > 0 {
		cfg.Inference.Workers = raw.Workers
	}
	if raw.BroadcastSource != "" {
		cfg.Broadcast.Source = raw.BroadcastSource
	}
	setString(&cfg.Broadcast.Device, raw.BroadcastDevice)

	keys := map[string]string{
		"openai":    raw.OpenAIAPIKey,
		"anthropic": raw.AnthropicAPIKey,
		"gemini":    raw.GeminiAPIKey,
		"deepgram":  raw.DeepgramAPIKey,
		"mistral":   raw.MistralAPIKey,
		"groq":      raw.GroqAPIKey,
		"deepseek":  raw.DeepSeekAPIKey,
	}
	fillKeys(&cfg.Providers.Transcriber, keys)
	fillKeys(&cfg.Providers.Translator, keys)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func fillKeys(e *ProviderEntry, keys map[string]string) {
	if e.APIKey == "" {
		e.APIKey = keys[e.Name]
	}
	for i := range e.Fallbacks {
		fillKeys(&e.Fallbacks[i], keys)
	}
}
