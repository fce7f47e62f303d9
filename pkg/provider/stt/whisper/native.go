// This file contains the Native transcriber backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/lingualink/pkg/provider/stt"
)

// NativeOption is a functional option for configuring a Native transcriber.
type NativeOption func(*Native)

// WithThreads sets the number of CPU threads used per inference. Zero keeps
// the whisper.cpp default.
func WithThreads(n uint) NativeOption {
	return func(p *Native) { p.threads = n }
}

// Native implements stt.Transcriber using whisper.cpp in-process. The model
// is loaded once and shared; each call creates its own context, so
// concurrent calls do not interfere.
type Native struct {
	model   whisperlib.Model
	threads uint
}

// NewNative loads the whisper.cpp model at modelPath. Call Close when done.
func NewNative(modelPath string, opts ...NativeOption) (*Native, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p := &Native{model: model}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *Native) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe implements stt.Transcriber. The whisper.cpp call itself cannot
// be interrupted; ctx is only checked before inference starts.
func (p *Native) Transcribe(ctx context.Context, samples []float32, _ int, language string) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: %w", err)
	}
	if len(samples) == 0 {
		return stt.Result{}, nil
	}

	wctx, err := p.model.NewContext()
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}

	lang := language
	switch {
	case !p.model.IsMultilingual():
		lang = "en"
	case lang == stt.AutoDetect:
		lang = autoLanguage
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, falling back to auto", "language", lang, "err", err)
		_ = wctx.SetLanguage(autoLanguage)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Result{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	return stt.Result{
		Text:     strings.Join(parts, " "),
		Language: wctx.DetectedLanguage(),
	}, nil
}

var _ stt.Transcriber = (*Native)(nil)
