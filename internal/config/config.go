// Package config provides the configuration schema, loader, environment
// overrides and provider registry for the lingualink server.
package config

import "time"

// LogLevel controls log verbosity for the lingualink server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// BroadcastSource selects where broadcast mode captures audio from.
type BroadcastSource string

const (
	// SourceNone disables broadcast mode.
	SourceNone BroadcastSource = "none"

	// SourceMicrophone captures from a local input device.
	SourceMicrophone BroadcastSource = "microphone"

	// SourcePublisher accepts a single remote feed on /ws/publish.
	SourcePublisher BroadcastSource = "publisher"
)

// IsValid reports whether s is a recognised capture source.
func (s BroadcastSource) IsValid() bool {
	switch s {
	case SourceNone, SourceMicrophone, SourcePublisher:
		return true
	}
	return false
}

// Config is the root configuration structure for lingualink.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Audio       AudioConfig       `yaml:"audio"`
	Stream      StreamConfig      `yaml:"stream"`
	Inference   InferenceConfig   `yaml:"inference"`
	Broadcast   BroadcastConfig   `yaml:"broadcast"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Translation TranslationConfig `yaml:"translation"`
	Diarization DiarizationConfig `yaml:"diarization"`
	Transcripts TranscriptsConfig `yaml:"transcripts"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8000").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. It is applied live by the watcher.
	LogLevel LogLevel `yaml:"log_level"`

	// AllowedOrigins are host patterns accepted on websocket upgrades in
	// addition to same-origin requests. "*" accepts any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// ReadLimitBytes caps a single inbound websocket message.
	ReadLimitBytes int64 `yaml:"read_limit_bytes"`

	// WriteTimeout bounds a single outbound websocket message.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AudioConfig configures the audio decoder chain.
type AudioConfig struct {
	// FFmpegPath names the transcoder binary. It is resolved on PATH at
	// startup; when it cannot be found the transcode stage is skipped.
	FFmpegPath string `yaml:"ffmpeg_path"`

	// TempDir is where the temp-file stage materialises input. Empty uses
	// the OS default.
	TempDir string `yaml:"temp_dir"`

	// MinBytes is the input floor below which no stage runs.
	MinBytes int `yaml:"min_bytes"`

	// SampleRate is the rate every decoded segment is normalised to.
	SampleRate int `yaml:"sample_rate"`

	// SourceSampleRate is the rate assumed for headerless PCM.
	SourceSampleRate int `yaml:"source_sample_rate"`
}

// StreamConfig configures the /ws/stream flush policy.
type StreamConfig struct {
	// AutoFlushBytes is the buffered size that triggers an interim pass.
	AutoFlushBytes int `yaml:"auto_flush_bytes"`

	// MinDuration is the shortest decoded segment an interim pass transcribes.
	MinDuration time.Duration `yaml:"min_duration"`
}

// InferenceConfig sizes the shared inference worker pool.
type InferenceConfig struct {
	// Workers is the number of concurrent inference calls. Zero uses the
	// gateway default.
	Workers int `yaml:"workers"`

	// QueueSize is the number of tasks that may wait for a worker.
	QueueSize int `yaml:"queue_size"`

	// MinDuration is the silence guard: shorter segments are never sent to
	// the transcriber.
	MinDuration time.Duration `yaml:"min_duration"`
}

// BroadcastConfig configures broadcast mode.
type BroadcastConfig struct {
	// Source selects the capture source. Default: none.
	Source BroadcastSource `yaml:"source"`

	// Device is a substring of the input device name for the microphone
	// source. Empty uses the system default.
	Device string `yaml:"device"`

	// Interval is the capture loop cadence.
	Interval time.Duration `yaml:"interval"`

	// Window is the amount of audio pulled per tick.
	Window time.Duration `yaml:"window"`

	// MinSamples is the exclusive lower bound on samples per processed window.
	MinSamples int `yaml:"min_samples"`

	// BufferSeconds sizes the capture ring buffer.
	BufferSeconds int `yaml:"buffer_seconds"`

	// TranslateConcurrency bounds per-language translations in one tick.
	TranslateConcurrency int `yaml:"translate_concurrency"`
}

// ProvidersConfig selects the collaborators behind transcription and
// translation.
type ProvidersConfig struct {
	// Transcriber is the speech-to-text provider chain.
	Transcriber ProviderEntry `yaml:"transcriber"`

	// Translator is the LLM provider chain used for translation.
	Translator ProviderEntry `yaml:"translator"`

	// Breaker tunes the circuit breaker in front of every chain entry.
	Breaker BreakerConfig `yaml:"breaker"`
}

// ProviderEntry names a provider implementation and its settings.
type ProviderEntry struct {
	// Name selects the registered factory (e.g., "whisper", "openai").
	Name string `yaml:"name"`

	// APIKey authenticates against hosted providers.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects the provider model. For whisper-native it is the path to
	// the ggml model file.
	Model string `yaml:"model"`

	// Options holds provider-specific settings.
	Options map[string]any `yaml:"options"`

	// Fallbacks are tried in order when this entry fails or its breaker is
	// open.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// BreakerConfig tunes provider circuit breakers. Zero values use the
// resilience package defaults.
type BreakerConfig struct {
	Threshold int           `yaml:"threshold"`
	Cooldown  time.Duration `yaml:"cooldown"`
	Probes    int           `yaml:"probes"`
}

// TranslationConfig configures the translation pairs and the LLM prompt.
type TranslationConfig struct {
	// Pairs lists served directions as "src-tgt". Empty serves ar-en and
	// en-ar.
	Pairs []string `yaml:"pairs"`

	// Prompt overrides the system prompt. It is a format string receiving
	// the source and target language names.
	Prompt string `yaml:"prompt"`

	// Temperature is passed to the LLM. Zero keeps the provider default.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps one translated sentence.
	MaxTokens int `yaml:"max_tokens"`
}

// DiarizationConfig configures optional speaker separation in broadcast mode.
type DiarizationConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Provider ProviderEntry `yaml:"provider"`
}

// TranscriptsConfig selects where final results are persisted.
type TranscriptsConfig struct {
	// PostgresDSN enables the PostgreSQL store. Empty keeps transcripts in
	// memory.
	PostgresDSN string `yaml:"postgres_dsn"`

	// MemoryCapacity bounds the in-memory store.
	MemoryCapacity int `yaml:"memory_capacity"`
}

// TelemetryConfig configures OpenTelemetry.
type TelemetryConfig struct {
	ServiceName      string  `yaml:"service_name"`
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// Default values applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":8000"
	DefaultReadLimitBytes  = 4 << 20
	DefaultWriteTimeout    = 10 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultFFmpegPath      = "ffmpeg"
	DefaultMinBytes        = 100
	DefaultSampleRate      = 16000
	DefaultAutoFlushBytes  = 49152
	DefaultMinDuration     = 500 * time.Millisecond
	DefaultInterval        = 2 * time.Second
	DefaultWindow          = 2 * time.Second
	DefaultMinSamples      = 8000
	DefaultBufferSeconds   = 10
	DefaultMemoryCapacity  = 1000
)

// ApplyDefaults fills every unset field with its default. It is idempotent.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.ReadLimitBytes == 0 {
		s.ReadLimitBytes = DefaultReadLimitBytes
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}

	a := &cfg.Audio
	if a.FFmpegPath == "" {
		a.FFmpegPath = DefaultFFmpegPath
	}
	if a.MinBytes == 0 {
		a.MinBytes = DefaultMinBytes
	}
	if a.SampleRate == 0 {
		a.SampleRate = DefaultSampleRate
	}
	if a.SourceSampleRate == 0 {
		a.SourceSampleRate = DefaultSampleRate
	}

	if cfg.Stream.AutoFlushBytes == 0 {
		cfg.Stream.AutoFlushBytes = DefaultAutoFlushBytes
	}
	if cfg.Stream.MinDuration == 0 {
		cfg.Stream.MinDuration = DefaultMinDuration
	}
	if cfg.Inference.MinDuration == 0 {
		cfg.Inference.MinDuration = DefaultMinDuration
	}

	b := &cfg.Broadcast
	if b.Source == "" {
		b.Source = SourceNone
	}
	if b.Interval == 0 {
		b.Interval = DefaultInterval
	}
	if b.Window == 0 {
		b.Window = DefaultWindow
	}
	if b.MinSamples == 0 {
		b.MinSamples = DefaultMinSamples
	}
	if b.BufferSeconds == 0 {
		b.BufferSeconds = DefaultBufferSeconds
	}

	if cfg.Transcripts.MemoryCapacity == 0 {
		cfg.Transcripts.MemoryCapacity = DefaultMemoryCapacity
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "lingualink"
	}
}

// Chain flattens e and its fallbacks into try order. Nested fallbacks are
// visited depth-first.
func (e ProviderEntry) Chain() []ProviderEntry {
	if e.Name == "" {
		return nil
	}
	head := e
	head.Fallbacks = nil
	out := []ProviderEntry{head}
	for _, fb := range e.Fallbacks {
		out = append(out, fb.Chain()...)
	}
	return out
}

// OptString returns the string option key, or "" when it is unset or not a
// string.
func (e ProviderEntry) OptString(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// OptFloat returns the numeric option key as a float64. YAML integers are
// accepted.
func (e ProviderEntry) OptFloat(key string) (float64, bool) {
	switch v := e.Options[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// OptInt returns the integer option key.
func (e ProviderEntry) OptInt(key string) (int, bool) {
	switch v := e.Options[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}
