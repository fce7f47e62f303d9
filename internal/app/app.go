// Package app wires all lingualink subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves until its context ends, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithCaptureSource, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lingualink/internal/broadcast"
	"github.com/MrWong99/lingualink/internal/config"
	"github.com/MrWong99/lingualink/internal/diarize"
	"github.com/MrWong99/lingualink/internal/health"
	"github.com/MrWong99/lingualink/internal/inference"
	"github.com/MrWong99/lingualink/internal/language"
	"github.com/MrWong99/lingualink/internal/observe"
	"github.com/MrWong99/lingualink/internal/server"
	"github.com/MrWong99/lingualink/internal/stream"
	"github.com/MrWong99/lingualink/internal/transcript"
	"github.com/MrWong99/lingualink/internal/transport"
	"github.com/MrWong99/lingualink/pkg/audio"
	"github.com/MrWong99/lingualink/pkg/audio/capture"
	"github.com/MrWong99/lingualink/pkg/audio/decode"
	"github.com/MrWong99/lingualink/pkg/provider/stt"
)

// errNoTranscriber is returned for every recognition request when no speech
// provider could be built.
var errNoTranscriber = errors.New("app: no transcriber configured")

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics        *observe.Metrics
	metricsHandler http.Handler

	gateway  *inference.Gateway
	decoder  *decode.Decoder
	store    transcript.Store
	source   capture.Source
	registry *broadcast.Registry
	loop     *broadcast.Loop
	server   *server.Server

	// sourceSet marks a source injected via WithCaptureSource, which may be
	// nil to disable capture regardless of config.
	sourceSet bool
	ring      *audio.Ring

	checkers []health.Checker

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a transcript store instead of creating one from config.
// The caller keeps ownership and closes it.
func WithStore(s transcript.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects the instrument set. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler sets the GET /metrics handler, typically
// [observe.Telemetry.Handler]. Default: the global Prometheus registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithCaptureSource injects the broadcast capture source and the ring it
// writes to. A nil source disables broadcasting.
func WithCaptureSource(src capture.Source, ring *audio.Ring) Option {
	return func(a *App) {
		a.source = src
		a.ring = ring
		a.sourceSet = true
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. providers comes from
// [BuildProviders]; the App takes ownership and closes it on Shutdown.
//
// New performs all initialisation synchronously: store connection, decoder
// resolution, gateway start-up and handler assembly. Nothing listens until
// [App.Run].
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.metricsHandler == nil {
		a.metricsHandler = promhttp.Handler()
	}

	// ── 1. Transcript store ─────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init transcripts: %w", err)
	}

	// ── 2. Inference gateway ────────────────────────────────────────────
	a.initGateway()

	// ── 3. Decoder ──────────────────────────────────────────────────────
	a.initDecoder()

	// ── 4. Broadcast capture ────────────────────────────────────────────
	if err := a.initBroadcast(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init broadcast: %w", err)
	}

	// ── 5. HTTP surface ─────────────────────────────────────────────────
	a.initServer()

	// Providers go last so in-flight tasks drain before models unload.
	a.closers = append(a.closers, a.providers.Close)

	slog.Info("app initialised",
		"listen_addr", cfg.Server.ListenAddr,
		"pairs", len(a.gateway.Languages().Pairs()),
		"decode_stages", a.decoder.Stages(),
		"broadcast", a.loop != nil,
	)
	return a, nil
}

// initStore opens PostgreSQL when a DSN is configured and falls back to the
// in-memory ring otherwise.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	tc := a.cfg.Transcripts
	if tc.PostgresDSN == "" {
		a.store = transcript.NewMemStore(tc.MemoryCapacity)
		return nil
	}
	pg, err := transcript.NewPostgresStore(ctx, tc.PostgresDSN)
	if err != nil {
		return err
	}
	a.store = pg
	a.closers = append(a.closers, pg.Close)
	a.checkers = append(a.checkers, health.Checker{Name: "database", Check: pg.Ping})
	slog.Info("transcript store connected", "backend", "postgres")
	return nil
}

func (a *App) initGateway() {
	tr := a.providers.Transcriber
	if tr == nil {
		slog.Warn("no transcriber configured, recognition requests will fail")
		tr = stt.Func(func(context.Context, []float32, int, string) (stt.Result, error) {
			return stt.Result{}, errNoTranscriber
		})
	}
	a.checkers = append(a.checkers, health.Checker{
		Name: "transcriber",
		Check: func(context.Context) error {
			if a.providers.Transcriber == nil {
				return errNoTranscriber
			}
			return nil
		},
	})

	var svc *language.Service
	if a.providers.Translator != nil {
		svc = language.NewSharedService(a.providers.Translator, translationPairs(a.cfg.Translation))
	} else {
		slog.Warn("no translator configured, translations are identity")
		svc = language.NewService(nil)
	}

	ic := a.cfg.Inference
	opts := []inference.Option{
		inference.WithMinDuration(ic.MinDuration),
		inference.WithMetrics(a.metrics),
	}
	if ic.Workers > 0 {
		opts = append(opts, inference.WithWorkers(ic.Workers))
	}
	if ic.QueueSize > 0 {
		opts = append(opts, inference.WithQueueSize(ic.QueueSize))
	}
	if name := a.cfg.Providers.Transcriber.Name; name != "" {
		opts = append(opts, inference.WithProviderName("stt/"+name))
	}
	a.gateway = inference.New(tr, svc, opts...)
	a.closers = append(a.closers, func() error {
		a.gateway.Close()
		return nil
	})
}

func (a *App) initDecoder() {
	ac := a.cfg.Audio
	a.decoder = decode.New(
		decode.WithMinBytes(ac.MinBytes),
		decode.WithSourceRate(ac.SourceSampleRate),
		decode.WithFFmpeg(ac.FFmpegPath),
		decode.WithTempDir(ac.TempDir),
		decode.WithObserver(func(stage string, outcome decode.Outcome, elapsed time.Duration) {
			a.metrics.RecordDecode(context.Background(), stage, string(outcome), elapsed)
		}),
	)
	path := ac.FFmpegPath
	a.checkers = append(a.checkers, health.Checker{
		Name:     "ffmpeg",
		Optional: true,
		Check: func(context.Context) error {
			if path == "" {
				return errors.New("disabled")
			}
			_, err := exec.LookPath(path)
			return err
		},
	})
}

func (a *App) initBroadcast() error {
	bc := a.cfg.Broadcast
	rate := a.cfg.Audio.SampleRate

	if !a.sourceSet {
		a.ring = audio.NewRing(bc.BufferSeconds * rate)
		src, err := capture.New(capture.Config{
			Kind:       string(bc.Source),
			Device:     bc.Device,
			SampleRate: rate,
		}, a.ring)
		if err != nil {
			return err
		}
		a.source = src
	}
	if a.source == nil {
		return nil
	}
	a.closers = append(a.closers, a.source.Close)

	a.registry = broadcast.NewRegistry(a.metrics)
	opts := []broadcast.LoopOption{
		broadcast.WithStore(a.store),
		broadcast.WithMetrics(a.metrics),
	}
	if a.providers.Diarizer != nil && a.cfg.Diarization.Enabled {
		opts = append(opts, broadcast.WithDiarizer(diarize.NewLazy(a.providers.Diarizer)))
	}
	a.loop = broadcast.NewLoop(broadcast.LoopConfig{
		Interval:             bc.Interval,
		Window:               bc.Window,
		MinSamples:           bc.MinSamples,
		SampleRate:           rate,
		TranslateConcurrency: bc.TranslateConcurrency,
	}, a.ring, a.registry, a.gateway, opts...)
	return nil
}

func (a *App) initServer() {
	sc := a.cfg.Server
	accept := transport.AcceptOptions{
		ReadLimit:          sc.ReadLimitBytes,
		OriginPatterns:     sc.AllowedOrigins,
		InsecureSkipVerify: slices.Contains(sc.AllowedOrigins, "*"),
		WriteTimeout:       sc.WriteTimeout,
	}

	streams := stream.NewHandler(stream.Config{
		AutoFlushBytes: a.cfg.Stream.AutoFlushBytes,
		MinDuration:    a.cfg.Stream.MinDuration,
		SampleRate:     a.cfg.Audio.SampleRate,
	}, stream.Deps{
		Gateway: a.gateway,
		Decoder: a.decoder,
		Store:   a.store,
		Metrics: a.metrics,
	}, accept)

	routes := server.Routes{
		Stream:  streams,
		Metrics: a.metricsHandler,
		Health:  health.New(a.checkers...),
		API: server.NewAPI(server.APIConfig{
			SampleRate: a.cfg.Audio.SampleRate,
			MinBytes:   a.cfg.Audio.MinBytes,
		}, a.gateway, a.decoder, a.store),
	}
	var listeners *broadcast.Handler
	if a.registry != nil {
		listeners = broadcast.NewHandler(a.registry, accept, a.metrics)
		routes.Broadcast = listeners
	}
	if pub, ok := a.source.(*capture.Publisher); ok {
		routes.Publish = pub
	}

	a.server = server.New(server.Config{
		ListenAddr:      sc.ListenAddr,
		ShutdownTimeout: sc.ShutdownTimeout,
	}, routes, a.metrics)
	a.server.OnShutdown(func() {
		if err := streams.Close(); err != nil {
			slog.Warn("close stream sessions", "err", err)
		}
		if listeners != nil {
			if err := listeners.Close(); err != nil {
				slog.Warn("close broadcast listeners", "err", err)
			}
		}
	})
}

// Handler returns the root HTTP handler, for tests.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// Gateway returns the shared inference gateway.
func (a *App) Gateway() *inference.Gateway { return a.gateway }

// Registry returns the broadcast listener registry, or nil when no capture
// source is configured.
func (a *App) Registry() *broadcast.Registry { return a.registry }

// Addr returns the bound listener address once Run is serving.
func (a *App) Addr() string {
	if addr := a.server.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the capture source and broadcast loop and serves HTTP until ctx
// is cancelled. It returns nil after a clean stop; call Shutdown afterwards to
// release resources.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.source != nil {
		if err := a.source.Start(gctx); err != nil {
			return fmt.Errorf("app: start capture: %w", err)
		}
		slog.Info("capture source started", "kind", a.cfg.Broadcast.Source)
		g.Go(func() error { return a.loop.Run(gctx) })
	}
	g.Go(func() error { return a.server.Run(gctx) })

	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in initialisation order. It respects the
// context deadline: if ctx expires before all closers finish, the remaining
// closers are skipped and ctx.Err() is returned. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		if err := a.server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("http shutdown", "err", err)
		}
		for _, c := range a.closers {
			if ctx.Err() != nil {
				slog.Warn("shutdown deadline exceeded, skipping remaining closers")
				shutdownErr = ctx.Err()
				return
			}
			if err := c(); err != nil {
				slog.Warn("shutdown closer error", "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases what a failed New already acquired.
func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
	_ = a.providers.Close()
}
