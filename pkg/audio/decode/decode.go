// Package decode turns opaque audio blobs into normalized mono segments.
//
// Clients stream fixed-size slices of a continuous encode rather than whole
// files, so a blob may be a complete container, a truncated fragment, raw PCM,
// or garbage. [Decoder] tries an ordered chain of stages and returns the first
// non-empty result. It never returns an error: total failure yields a
// zero-length [audio.Segment], which callers treat as "no speech".
package decode

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/MrWong99/lingualink/pkg/audio"
)

// DefaultMinBytes is the smallest blob worth decoding. Anything shorter cannot
// hold a container header and is short-circuited to an empty segment.
const DefaultMinBytes = 100

// DefaultSourceRate is the sample rate assumed when a blob is interpreted as
// raw s16le PCM.
const DefaultSourceRate = 16000

// Outcome classifies what a single stage did with a blob.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeFailed  Outcome = "failed"
	OutcomeEmpty   Outcome = "empty"
	OutcomeSkipped Outcome = "skipped"
)

// Stage is one step of the fallback chain. Implementations must not leave
// side effects behind when they fail.
type Stage interface {
	Name() string
	Decode(ctx context.Context, data []byte, targetRate int) ([]float32, error)
}

// StageFunc adapts a function to the [Stage] interface.
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context, data []byte, targetRate int) ([]float32, error)
}

func (s StageFunc) Name() string { return s.StageName }

func (s StageFunc) Decode(ctx context.Context, data []byte, targetRate int) ([]float32, error) {
	return s.Fn(ctx, data, targetRate)
}

// Observer is notified once per attempted stage. The stage name "min_bytes"
// reports blobs rejected before any stage ran.
type Observer func(stage string, outcome Outcome, elapsed time.Duration)

// Decoder runs the fallback chain. It is safe for concurrent use; stages hold
// no per-call state.
type Decoder struct {
	minBytes   int
	sourceRate int
	ffmpegPath string
	tempDir    string
	stages     []Stage
	observer   Observer
	logger     *slog.Logger
}

// Option configures a [Decoder].
type Option func(*Decoder)

// WithMinBytes overrides [DefaultMinBytes].
func WithMinBytes(n int) Option {
	return func(d *Decoder) { d.minBytes = n }
}

// WithSourceRate overrides the sample rate assumed for raw PCM input.
func WithSourceRate(rate int) Option {
	return func(d *Decoder) { d.sourceRate = rate }
}

// WithFFmpeg sets the path of the external transcoder. An empty path disables
// the container transcode stage. By default "ffmpeg" is resolved from PATH.
func WithFFmpeg(path string) Option {
	return func(d *Decoder) { d.ffmpegPath = path }
}

// WithTempDir sets the directory used by the temp-file stage. Defaults to
// [os.TempDir].
func WithTempDir(dir string) Option {
	return func(d *Decoder) { d.tempDir = dir }
}

// WithStages replaces the default chain entirely.
func WithStages(stages ...Stage) Option {
	return func(d *Decoder) { d.stages = stages }
}

// WithObserver registers a per-stage callback, typically used for metrics.
func WithObserver(o Observer) Option {
	return func(d *Decoder) { d.observer = o }
}

// WithLogger sets the logger used for stage diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(d *Decoder) { d.logger = l }
}

// New builds a Decoder with the default chain: container transcode, direct
// in-memory decode, temp-file decode, raw PCM.
func New(opts ...Option) *Decoder {
	d := &Decoder{
		minBytes:   DefaultMinBytes,
		sourceRate: DefaultSourceRate,
		ffmpegPath: "ffmpeg",
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	if d.stages == nil {
		d.stages = d.defaultStages()
	}
	return d
}

func (d *Decoder) defaultStages() []Stage {
	var stages []Stage
	if d.ffmpegPath != "" {
		if path, err := exec.LookPath(d.ffmpegPath); err == nil {
			stages = append(stages, &transcodeStage{path: path})
		} else {
			d.logger.Warn("decode: ffmpeg not found, container transcode disabled", "path", d.ffmpegPath, "err", err)
		}
	}
	return append(stages,
		memoryStage{},
		&tempFileStage{dir: d.tempDir},
		rawPCMStage{sourceRate: d.sourceRate},
	)
}

// Stages returns the names of the configured stages in order.
func (d *Decoder) Stages() []string {
	names := make([]string, len(d.stages))
	for i, s := range d.stages {
		names[i] = s.Name()
	}
	return names
}

// Decode converts data to a mono segment at targetRate. A non-positive
// targetRate selects [audio.TargetSampleRate].
func (d *Decoder) Decode(ctx context.Context, data []byte, targetRate int) audio.Segment {
	if targetRate <= 0 {
		targetRate = audio.TargetSampleRate
	}
	empty := audio.Segment{SampleRate: targetRate}

	if len(data) < d.minBytes {
		d.observe("min_bytes", OutcomeSkipped, 0)
		return empty
	}

	for _, st := range d.stages {
		if ctx.Err() != nil {
			return empty
		}
		start := time.Now()
		samples, err := d.runStage(ctx, st, data, targetRate)
		elapsed := time.Since(start)
		switch {
		case err != nil:
			d.observe(st.Name(), OutcomeFailed, elapsed)
			d.logger.Debug("decode: stage failed", "stage", st.Name(), "bytes", len(data), "err", err)
		case len(samples) == 0:
			d.observe(st.Name(), OutcomeEmpty, elapsed)
		default:
			d.observe(st.Name(), OutcomeOK, elapsed)
			return audio.Segment{SampleRate: targetRate, Samples: samples}
		}
	}

	d.logger.Debug("decode: all stages failed", "bytes", len(data))
	return empty
}

// runStage shields the chain from decoders that panic on malformed input.
func (d *Decoder) runStage(ctx context.Context, st Stage, data []byte, targetRate int) (samples []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			samples = nil
			err = fmt.Errorf("decode: stage %s panicked: %v", st.Name(), r)
		}
	}()
	return st.Decode(ctx, data, targetRate)
}

func (d *Decoder) observe(stage string, outcome Outcome, elapsed time.Duration) {
	if d.observer != nil {
		d.observer(stage, outcome, elapsed)
	}
}

// toTarget downmixes and resamples decoded audio to mono at targetRate.
func toTarget(samples []float32, f audio.Format, targetRate int) []float32 {
	return audio.Resample(audio.Downmix(samples, f.Channels), f.SampleRate, targetRate)
}
