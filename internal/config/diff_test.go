package config_test

import (
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/lingualink/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{
		Providers: config.ProvidersConfig{
			Transcriber: config.ProviderEntry{Name: "whisper", Options: map[string]any{"language": "ar"}},
		},
		Translation: config.TranslationConfig{Pairs: []string{"ar-en"}},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if !d.Empty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_LogLevelOnly(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level change not detected: %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level must not require restart, got %v", d.RestartRequired)
	}
}

func TestDiff_RestartSections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   []string
	}{
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = ":1" }, []string{"server"}},
		{"flush threshold", func(c *config.Config) { c.Stream.AutoFlushBytes = 1 }, []string{"stream"}},
		{"provider option", func(c *config.Config) { c.Providers.Transcriber.Options["language"] = "en" }, []string{"providers"}},
		{"pairs", func(c *config.Config) { c.Translation.Pairs = append(c.Translation.Pairs, "en-ar") }, []string{"translation"}},
		{"two sections", func(c *config.Config) {
			c.Broadcast.Interval = time.Second
			c.Transcripts.PostgresDSN = "postgres://x"
		}, []string{"broadcast", "transcripts"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, new := baseConfig(), baseConfig()
			tt.mutate(new)
			d := config.Diff(old, new)
			if d.LogLevelChanged {
				t.Error("unexpected log level change")
			}
			if !slices.Equal(d.RestartRequired, tt.want) {
				t.Errorf("RestartRequired: got %v, want %v", d.RestartRequired, tt.want)
			}
		})
	}
}

func TestLogLevelApplier(t *testing.T) {
	t.Parallel()
	var lv slog.LevelVar
	apply := config.LogLevelApplier(&lv)

	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogError
	apply(old, new)
	if lv.Level() != slog.LevelError {
		t.Errorf("level: got %v, want ERROR", lv.Level())
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := config.SlogLevel(tt.in); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
