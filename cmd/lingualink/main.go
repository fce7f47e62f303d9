// Command lingualink is the main entry point for the lingualink speech
// translation server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/lingualink/internal/app"
	"github.com/MrWong99/lingualink/internal/config"
	"github.com/MrWong99/lingualink/internal/observe"
	"github.com/MrWong99/lingualink/pkg/provider/llm"
	"github.com/MrWong99/lingualink/pkg/provider/llm/anyllm"
	llmopenai "github.com/MrWong99/lingualink/pkg/provider/llm/openai"
	"github.com/MrWong99/lingualink/pkg/provider/stt"
	"github.com/MrWong99/lingualink/pkg/provider/stt/deepgram"
	sttopenai "github.com/MrWong99/lingualink/pkg/provider/stt/openai"
	"github.com/MrWong99/lingualink/pkg/provider/stt/whisper"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "lingualink: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "lingualink: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(config.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("lingualink starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	watcher, err := config.NewWatcher(*configPath, config.LogLevelApplier(level))
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:      cfg.Telemetry.ServiceName,
		ServiceVersion:   version,
		TraceSampleRatio: cfg.Telemetry.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := app.BuildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithMetrics(metrics),
		app.WithMetricsHandler(telemetry.Handler()),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()

	code := 0
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		code = 1
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if t, ok := entry.OptFloat("temperature"); ok {
			opts = append(opts, whisper.WithTemperature(t))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.OptString("model_path")
		}
		var opts []whisper.NativeOption
		if n, ok := entry.OptInt("threads"); ok && n > 0 {
			opts = append(opts, whisper.WithThreads(uint(n)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		return sttopenai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	// openai goes through the official SDK; it also serves any
	// OpenAI-compatible endpoint via BaseURL.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		if org := entry.OptString("organization"); org != "" {
			opts = append(opts, llmopenai.WithOrganization(org))
		}
		return llmopenai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, name := range anyllm.SupportedBackends {
		if name == "openai" {
			continue
		}
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	for kind, names := range reg.Registered() {
		slog.Debug("registered providers", "kind", kind, "names", names)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      lingualink startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Transcriber", chainLabel(cfg.Providers.Transcriber))
	printRow("Translator", chainLabel(cfg.Providers.Translator))
	pairs := "ar-en, en-ar"
	if len(cfg.Translation.Pairs) > 0 {
		pairs = strings.Join(cfg.Translation.Pairs, ", ")
	}
	printRow("Pairs", pairs)
	printRow("Broadcast", string(cfg.Broadcast.Source))
	if cfg.Transcripts.PostgresDSN != "" {
		printRow("Transcripts", "postgres")
	} else {
		printRow("Transcripts", "memory")
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func chainLabel(e config.ProviderEntry) string {
	chain := e.Chain()
	if len(chain) == 0 {
		return "(not configured)"
	}
	names := make([]string, len(chain))
	for i, c := range chain {
		names[i] = c.Name
	}
	return strings.Join(names, " > ")
}

func printRow(label, value string) {
	if value == "" {
		value = "(none)"
	}
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}
