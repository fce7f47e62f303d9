// Package inference runs model-bound work off the callers' control loops.
//
// A [Gateway] owns a fixed pool of worker goroutines fed by a bounded task
// queue. Callers hand it work with [Submit] and get a [Future] back, so a
// session's message loop can keep reading while a transcription runs and
// pick up the result when it is ready. The gateway itself takes no locks
// around the collaborators: one gateway serves every session, and the
// per-session "one pass at a time" rule is enforced by the session.
//
// [Gateway.Transcribe] and [Gateway.Translate] are the synchronous
// collaborator calls meant to run inside a submitted task. They apply the
// language normalisation and transcript cleanup every caller relies on and
// record metrics and spans.
package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/lingualink/internal/language"
	"github.com/MrWong99/lingualink/internal/observe"
	"github.com/MrWong99/lingualink/pkg/audio"
	"github.com/MrWong99/lingualink/pkg/provider/stt"
)

// ErrClosed is returned for work submitted to, or still queued in, a closed
// gateway.
var ErrClosed = errors.New("inference: gateway closed")

// DefaultMinDuration is the shortest segment worth sending to a transcriber.
const DefaultMinDuration = 500 * time.Millisecond

// Option configures a [Gateway].
type Option func(*Gateway)

// WithWorkers sets the number of worker goroutines. Default: GOMAXPROCS, at
// least 2.
func WithWorkers(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.workers = n
		}
	}
}

// WithQueueSize sets the task queue capacity. Submit blocks once the queue is
// full. Default: 64.
func WithQueueSize(n int) Option {
	return func(g *Gateway) {
		if n >= 0 {
			g.queueSize = n
		}
	}
}

// WithMinDuration overrides [DefaultMinDuration].
func WithMinDuration(d time.Duration) Option {
	return func(g *Gateway) { g.minDuration = d }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithProviderName labels transcriber errors in metrics. Default: "stt".
func WithProviderName(name string) Option {
	return func(g *Gateway) { g.providerName = name }
}

type task struct {
	run   func()
	abort func(error)
}

// Gateway is the shared inference worker pool.
type Gateway struct {
	transcriber  stt.Transcriber
	translations *language.Service

	workers      int
	queueSize    int
	minDuration  time.Duration
	metrics      *observe.Metrics
	providerName string

	tasks chan task
	done  chan struct{}
	wg    sync.WaitGroup

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// New starts a gateway over the given collaborators. translations may be nil,
// in which case every translation is identity. Call [Gateway.Close] to stop
// the workers.
func New(tr stt.Transcriber, translations *language.Service, opts ...Option) *Gateway {
	g := &Gateway{
		transcriber:  tr,
		translations: translations,
		workers:      max(runtime.GOMAXPROCS(0), 2),
		queueSize:    64,
		minDuration:  DefaultMinDuration,
		providerName: "stt",
		done:         make(chan struct{}),
	}
	for _, o := range opts {
		o(g)
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	if g.translations == nil {
		g.translations = language.NewService(nil)
	}
	g.tasks = make(chan task, g.queueSize)

	g.wg.Add(g.workers)
	for range g.workers {
		go g.worker()
	}
	return g
}

func (g *Gateway) worker() {
	defer g.wg.Done()
	for {
		select {
		case t := <-g.tasks:
			g.metrics.InferenceQueued.Add(context.Background(), -1)
			t.run()
		case <-g.done:
			return
		}
	}
}

// Close stops accepting work, waits for running tasks and fails every task
// still queued with [ErrClosed]. It is idempotent.
func (g *Gateway) Close() {
	g.closeOnce.Do(func() {
		close(g.done)

		// Submitters blocked on a full queue observe done and release the
		// read lock; after this no task can enter the queue.
		g.mu.Lock()
		g.closed = true
		g.mu.Unlock()

		g.wg.Wait()
		for {
			select {
			case t := <-g.tasks:
				g.metrics.InferenceQueued.Add(context.Background(), -1)
				t.abort(ErrClosed)
			default:
				return
			}
		}
	})
}

// Languages returns the translation service the gateway routes through.
func (g *Gateway) Languages() *language.Service { return g.translations }

// ─── Futures ────────────────────────────────────────────────────────────────

// Future is the pending result of a submitted task.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] { return &Future[T]{done: make(chan struct{})} }

func (f *Future[T]) complete(v T, err error) {
	f.val, f.err = v, err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Result blocks until the task finishes and returns its outcome.
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.val, f.err
}

// Await is Result with cancellation. It returns ctx.Err() if ctx ends first;
// the task keeps running.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit queues fn on g. fn receives ctx; cancelling it is the only way to
// stop a running task. A panic inside fn is recovered and reported as the
// task's error. If the queue is full Submit blocks until space frees up, ctx
// ends or the gateway closes; in the latter two cases the returned future is
// already complete with the corresponding error.
func Submit[T any](ctx context.Context, g *Gateway, name string, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()
	var zero T

	t := task{
		run: func() {
			if err := ctx.Err(); err != nil {
				g.recordTask(name, "cancelled")
				f.complete(zero, err)
				return
			}
			v, err := runTask(ctx, g, name, fn)
			f.complete(v, err)
		},
		abort: func(err error) {
			g.recordTask(name, "aborted")
			f.complete(zero, err)
		},
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		f.complete(zero, ErrClosed)
		return f
	}
	select {
	case g.tasks <- t:
		g.metrics.InferenceQueued.Add(ctx, 1)
	case <-ctx.Done():
		f.complete(zero, ctx.Err())
	case <-g.done:
		f.complete(zero, ErrClosed)
	}
	return f
}

func runTask[T any](ctx context.Context, g *Gateway, name string, fn func(context.Context) (T, error)) (v T, err error) {
	ctx, span := observe.StartSpan(ctx, "inference."+name)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("inference: task %s panicked: %v", name, r)
			observe.Logger(ctx).Error("inference task panicked", "task", name, "panic", r)
		}
		status := "ok"
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			status = "cancelled"
		default:
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		g.recordTask(name, status)
	}()

	return fn(ctx)
}

func (g *Gateway) recordTask(name, status string) {
	g.metrics.InferenceTasks.Add(context.Background(), 1,
		metric.WithAttributes(observe.Attr("task", name), observe.Attr("status", status)))
}

// ─── Collaborator calls ─────────────────────────────────────────────────────

// Transcription is a normalised transcriber result. Language is always a
// member of the supported set.
type Transcription struct {
	Text     string
	Language string
}

// Transcribe recognises speech in seg. Segments shorter than the minimum
// duration or entirely silent are answered with empty text in the default
// language without calling the transcriber. hint is a language code or ""
// for auto-detection; unsupported hints fall back to auto-detection.
func (g *Gateway) Transcribe(ctx context.Context, seg audio.Segment, hint string) (Transcription, error) {
	if seg.Duration() < g.minDuration || seg.Silent() {
		return Transcription{Language: language.Default}, nil
	}
	lang := stt.AutoDetect
	if code, ok := language.Normalize(hint); ok {
		lang = code
	}

	ctx, span := observe.StartSpan(ctx, "stt.transcribe", trace.WithAttributes(
		attribute.Int("samples", seg.Len()),
		attribute.String("hint", lang),
	))
	defer span.End()

	start := time.Now()
	res, err := g.transcriber.Transcribe(ctx, seg.Samples, seg.SampleRate, lang)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.metrics.RecordProviderError(ctx, g.providerName, "transcribe")
	}
	g.metrics.TranscribeDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("status", status)))
	if err != nil {
		return Transcription{}, fmt.Errorf("inference: transcribe: %w", err)
	}

	out := Transcription{
		Text:     language.CleanTranscript(res.Text),
		Language: language.Coerce(res.Language),
	}
	span.SetAttributes(attribute.String("detected_language", out.Language))
	return out, nil
}

// Translate translates text through the pair registry. It never fails:
// every degradation returns text unchanged.
func (g *Gateway) Translate(ctx context.Context, text, source, target string) string {
	if source == target || !g.translations.Has(language.Pair{Source: source, Target: target}) {
		return text
	}
	pair := source + "-" + target
	ctx, span := observe.StartSpan(ctx, "translate", trace.WithAttributes(attribute.String("pair", pair)))
	defer span.End()

	start := time.Now()
	out, err := g.translations.TranslateErr(ctx, text, source, target)
	status := "ok"
	if err != nil {
		status = "degraded"
		span.RecordError(err)
		g.metrics.RecordProviderError(ctx, "translator", "translate")
		slog.Debug("translation degraded to identity", "pair", pair, "error", err)
	}
	g.metrics.TranslateDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("pair", pair), observe.Attr("status", status)))
	return out
}

// TranscribeAsync submits [Gateway.Transcribe] as a task.
func (g *Gateway) TranscribeAsync(ctx context.Context, seg audio.Segment, hint string) *Future[Transcription] {
	return Submit(ctx, g, "transcribe", func(ctx context.Context) (Transcription, error) {
		return g.Transcribe(ctx, seg, hint)
	})
}

// TranslateAsync submits [Gateway.Translate] as a task.
func (g *Gateway) TranslateAsync(ctx context.Context, text, source, target string) *Future[string] {
	return Submit(ctx, g, "translate", func(ctx context.Context) (string, error) {
		return g.Translate(ctx, text, source, target), nil
	})
}
