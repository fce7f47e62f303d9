package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/lingualink/internal/language"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper", "whisper-native", "openai", "deepgram"},
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path, applies environment
// overrides and defaults, and returns a validated [Config].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := load(data, nil)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Environment overrides are not applied, which keeps tests that
// build configs from string literals hermetic.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// load is the full pipeline: decode, env overrides, defaults, validation.
// A nil environ reads the process environment.
func load(data []byte, environ map[string]string) (*Config, error) {
	cfg, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := applyEnv(cfg, environ); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ReadLimitBytes < 0 {
		errs = append(errs, fmt.Errorf("server.read_limit_bytes must not be negative"))
	}

	// Audio
	if cfg.Audio.MinBytes < 0 {
		errs = append(errs, fmt.Errorf("audio.min_bytes %d must not be negative", cfg.Audio.MinBytes))
	}
	if cfg.Audio.SampleRate < 0 || cfg.Audio.SourceSampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio sample rates must be positive"))
	}

	// Stream
	if cfg.Stream.AutoFlushBytes < 0 {
		errs = append(errs, fmt.Errorf("stream.auto_flush_bytes %d must be positive", cfg.Stream.AutoFlushBytes))
	}
	if cfg.Stream.MinDuration < 0 {
		errs = append(errs, fmt.Errorf("stream.min_duration %s must not be negative", cfg.Stream.MinDuration))
	}

	// Inference
	if cfg.Inference.Workers < 0 {
		errs = append(errs, fmt.Errorf("inference.workers %d must not be negative", cfg.Inference.Workers))
	}
	if cfg.Inference.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("inference.queue_size %d must not be negative", cfg.Inference.QueueSize))
	}

	// Broadcast
	b := cfg.Broadcast
	if b.Source != "" && !b.Source.IsValid() {
		errs = append(errs, fmt.Errorf("broadcast.source %q is invalid; valid values: none, microphone, publisher", b.Source))
	}
	if b.Interval < 0 || b.Window < 0 {
		errs = append(errs, fmt.Errorf("broadcast.interval and broadcast.window must not be negative"))
	}
	if b.Window > 0 && b.BufferSeconds > 0 && b.Window.Seconds() > float64(b.BufferSeconds) {
		errs = append(errs, fmt.Errorf("broadcast.window %s exceeds broadcast.buffer_seconds %d", b.Window, b.BufferSeconds))
	}

	// Providers
	errs = append(errs, validateChain("providers.transcriber", "stt", cfg.Providers.Transcriber)...)
	errs = append(errs, validateChain("providers.translator", "llm", cfg.Providers.Translator)...)
	if cfg.Providers.Transcriber.Name == "" {
		slog.Warn("providers.transcriber is not configured; transcription requests will fail and /readyz reports not ready")
	}
	if cfg.Providers.Translator.Name == "" {
		slog.Warn("providers.translator is not configured; translations fall back to the original text")
	}
	if cfg.Providers.Breaker.Threshold < 0 || cfg.Providers.Breaker.Probes < 0 || cfg.Providers.Breaker.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("providers.breaker values must not be negative"))
	}

	// Translation
	seen := make(map[language.Pair]int, len(cfg.Translation.Pairs))
	for i, s := range cfg.Translation.Pairs {
		p, err := language.ParsePair(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("translation.pairs[%d]: %w", i, err))
			continue
		}
		if prev, ok := seen[p]; ok {
			errs = append(errs, fmt.Errorf("translation.pairs[%d] %q is a duplicate of translation.pairs[%d]", i, s, prev))
		}
		seen[p] = i
	}
	if cfg.Translation.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("translation.max_tokens must not be negative"))
	}

	// Diarization
	if cfg.Diarization.Enabled && cfg.Diarization.Provider.Name == "" {
		errs = append(errs, fmt.Errorf("diarization.provider.name is required when diarization is enabled"))
	}

	// Transcripts
	if cfg.Transcripts.MemoryCapacity < 0 {
		errs = append(errs, fmt.Errorf("transcripts.memory_capacity must not be negative"))
	}

	// Telemetry
	if r := cfg.Telemetry.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.trace_sample_ratio %.2f is out of range [0, 1]", r))
	}

	return errors.Join(errs...)
}

// validateChain checks that every fallback of a provider chain is named.
func validateChain(path, kind string, e ProviderEntry) []error {
	var errs []error
	if e.Name == "" && len(e.Fallbacks) > 0 {
		errs = append(errs, fmt.Errorf("%s.name is required when fallbacks are configured", path))
	}
	validateProviderName(kind, e.Name)
	for i, fb := range e.Fallbacks {
		errs = append(errs, validateChain(fmt.Sprintf("%s.fallbacks[%d]", path, i), kind, fb)...)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.fallbacks[%d].name is required", path, i))
		}
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
