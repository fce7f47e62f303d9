package broadcast

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lingualink/internal/diarize"
	"github.com/MrWong99/lingualink/internal/inference"
	"github.com/MrWong99/lingualink/internal/observe"
	"github.com/MrWong99/lingualink/internal/transcript"
	"github.com/MrWong99/lingualink/pkg/audio"
)

// Defaults for [LoopConfig].
const (
	DefaultInterval   = 2 * time.Second
	DefaultWindow     = 2 * time.Second
	DefaultMinSamples = 8000
)

// Window is the capture buffer the loop pulls from. [*audio.Ring] satisfies
// it.
type Window interface {
	Drain(n int) []float32
}

// LoopConfig tunes the capture loop.
type LoopConfig struct {
	// Interval is the tick cadence.
	Interval time.Duration

	// Window is how much of the newest audio each tick pulls.
	Window time.Duration

	// MinSamples is the exclusive lower bound on window length for a tick to
	// be processed.
	MinSamples int

	// SampleRate is the rate of the capture buffer.
	SampleRate int

	// TranslateConcurrency bounds per-language translations in flight for one
	// tick. Zero means one per distinct language.
	TranslateConcurrency int
}

func (c LoopConfig) withDefaults() LoopConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.MinSamples <= 0 {
		c.MinSamples = DefaultMinSamples
	}
	if c.SampleRate <= 0 {
		c.SampleRate = audio.TargetSampleRate
	}
	return c
}

// Loop periodically transcribes the shared capture and fans results out to
// every registered listener.
type Loop struct {
	cfg      LoopConfig
	source   Window
	registry *Registry
	gateway  *inference.Gateway
	speakers *diarize.Lazy
	store    transcript.Store
	metrics  *observe.Metrics
	log      *slog.Logger
}

// LoopOption configures a [Loop].
type LoopOption func(*Loop)

// WithDiarizer sets the speaker separator. Default: single speaker.
func WithDiarizer(d *diarize.Lazy) LoopOption {
	return func(l *Loop) { l.speakers = d }
}

// WithStore persists every fanned-out result.
func WithStore(s transcript.Store) LoopOption {
	return func(l *Loop) { l.store = s }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) LoopOption {
	return func(l *Loop) { l.metrics = m }
}

// NewLoop creates a capture loop. Call [Loop.Run] to start it.
func NewLoop(cfg LoopConfig, source Window, registry *Registry, gw *inference.Gateway, opts ...LoopOption) *Loop {
	l := &Loop{
		cfg:      cfg.withDefaults(),
		source:   source,
		registry: registry,
		gateway:  gw,
		log:      slog.With("component", "broadcast"),
	}
	for _, o := range opts {
		o(l)
	}
	if l.speakers == nil {
		l.speakers = diarize.NewLazy(nil)
	}
	if l.metrics == nil {
		l.metrics = observe.DefaultMetrics()
	}
	return l
}

// Run ticks until ctx is cancelled. A tick that overruns the interval
// delays the next one; ticks never overlap.
func (l *Loop) Run(ctx context.Context) error {
	t := time.NewTicker(l.cfg.Interval)
	defer t.Stop()

	l.log.Info("broadcast loop started", "interval", l.cfg.Interval, "window", l.cfg.Window)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			l.Tick(ctx)
		}
	}
}

// Tick runs one capture cycle and reports how many results were sent.
func (l *Loop) Tick(ctx context.Context) int {
	samples := l.source.Drain(audio.SamplesFor(l.cfg.Window, l.cfg.SampleRate))
	if len(samples) <= l.cfg.MinSamples || l.registry.Len() == 0 {
		return 0
	}
	seg := audio.Segment{SampleRate: l.cfg.SampleRate, Samples: samples}

	ctx, span := observe.StartSpan(ctx, "broadcast.tick")
	defer span.End()

	sent := 0
	for _, turn := range l.speakers.Separate(ctx, seg) {
		res, ok := l.process(ctx, turn)
		if !ok {
			continue
		}
		l.fanOut(ctx, res)
		sent++
	}
	return sent
}

// process transcribes one speaker turn and translates it for every listener
// whose preference differs from the detected language.
func (l *Loop) process(ctx context.Context, turn diarize.Turn) (Result, bool) {
	tr, err := l.gateway.TranscribeAsync(ctx, turn.Segment, "").Await(ctx)
	if err != nil {
		l.log.Error("broadcast transcription failed", "speaker_id", turn.SpeakerID, "err", err)
		return Result{}, false
	}
	if tr.Text == "" {
		return Result{}, false
	}

	listeners := l.registry.Snapshot()
	var langs []string
	for _, u := range listeners {
		if u.Language != tr.Language && !slices.Contains(langs, u.Language) {
			langs = append(langs, u.Language)
		}
	}

	var mu sync.Mutex
	byLang := make(map[string]string, len(langs))
	g, gctx := errgroup.WithContext(ctx)
	if l.cfg.TranslateConcurrency > 0 {
		g.SetLimit(l.cfg.TranslateConcurrency)
	}
	for _, lang := range langs {
		g.Go(func() error {
			out, err := l.gateway.TranslateAsync(gctx, tr.Text, tr.Language, lang).Await(gctx)
			if err != nil {
				out = tr.Text
			}
			mu.Lock()
			byLang[lang] = out
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	res := Result{
		Type:             TypeTranscriptionResult,
		SpeakerID:        turn.SpeakerID,
		OriginalText:     tr.Text,
		DetectedLanguage: tr.Language,
		Translations:     make(map[string]string),
	}
	for _, u := range listeners {
		if u.Language != tr.Language {
			res.Translations[u.UserID] = byLang[u.Language]
		}
	}

	if l.store != nil {
		e := transcript.Entry{
			Source:       transcript.SourceBroadcast,
			SpeakerID:    turn.SpeakerID,
			Text:         tr.Text,
			Language:     tr.Language,
			Translations: byLang,
		}
		if err := l.store.Append(ctx, e); err != nil {
			l.log.Warn("failed to persist broadcast transcript", "err", err)
		}
	}
	return res, true
}

// fanOut delivers res to every listener concurrently. A failed send evicts
// only that listener.
func (l *Loop) fanOut(ctx context.Context, res Result) {
	var wg sync.WaitGroup
	for _, u := range l.registry.Snapshot() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.metrics.RecordMessage(ctx, "broadcast", "out", TypeTranscriptionResult)
			if err := u.Conn.Write(ctx, res); err != nil {
				if l.registry.Evict(u.UserID, u.Conn) {
					l.metrics.BroadcastEvictions.Add(ctx, 1)
					l.log.Info("listener evicted after failed send", "user_id", u.UserID, "err", err)
				}
			}
		}()
	}
	wg.Wait()
}
