// Package diarize is the optional speaker-separation capability used by
// broadcast mode.
//
// No separation model ships with lingualink. A [Provider] can be plugged in
// through [NewLazy]; when none is configured, or loading or running it fails,
// the whole window is attributed to a single synthetic speaker.
package diarize

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MrWong99/lingualink/pkg/audio"
)

// FallbackSpeaker is the speaker id used when no separation is available.
const FallbackSpeaker = "speaker_0"

// Turn is the audio attributed to one speaker within a window.
type Turn struct {
	SpeakerID string
	Segment   audio.Segment
}

// Provider splits a mono segment into per-speaker turns.
type Provider interface {
	Separate(ctx context.Context, seg audio.Segment) ([]Turn, error)
}

// Func adapts a plain function to [Provider].
type Func func(ctx context.Context, seg audio.Segment) ([]Turn, error)

// Separate implements [Provider].
func (f Func) Separate(ctx context.Context, seg audio.Segment) ([]Turn, error) {
	return f(ctx, seg)
}

// Factory loads a provider. It is called at most once.
type Factory func() (Provider, error)

// Lazy loads its provider on first use and never fails.
type Lazy struct {
	factory Factory

	once sync.Once
	p    Provider
}

// NewLazy returns a separator backed by factory. A nil factory always yields
// the single-speaker fallback.
func NewLazy(factory Factory) *Lazy {
	return &Lazy{factory: factory}
}

func (l *Lazy) load() Provider {
	l.once.Do(func() {
		if l.factory == nil {
			return
		}
		p, err := l.factory()
		if err != nil {
			slog.Warn("diarize: provider unavailable, using single speaker", "err", err)
			return
		}
		l.p = p
	})
	return l.p
}

// Enabled reports whether a provider loaded successfully. It triggers the
// load.
func (l *Lazy) Enabled() bool { return l.load() != nil }

// Separate returns the speaker turns in seg. It falls back to a single
// [FallbackSpeaker] turn covering the whole segment.
func (l *Lazy) Separate(ctx context.Context, seg audio.Segment) []Turn {
	fallback := []Turn{{SpeakerID: FallbackSpeaker, Segment: seg}}

	p := l.load()
	if p == nil {
		return fallback
	}
	turns, err := p.Separate(ctx, seg)
	if err != nil {
		slog.Warn("diarize: separation failed, using single speaker", "samples", seg.Len(), "err", err)
		return fallback
	}

	out := turns[:0:0]
	for _, t := range turns {
		if t.SpeakerID != "" && !t.Segment.Empty() {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
