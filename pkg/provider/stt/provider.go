// Package stt defines the Transcriber interface for speech-to-text backends.
//
// A Transcriber turns one mono float32 PCM segment into text and reports the
// language it heard. lingualink buffers and decodes audio itself, so every
// backend is driven in batch mode: one call per processing pass.
//
// Implementations must be safe for concurrent use; the inference gateway calls
// them from several worker goroutines at once.
package stt

import "context"

// AutoDetect is the language hint that asks the backend to identify the
// spoken language itself.
const AutoDetect = ""

// Result is the outcome of one transcription.
type Result struct {
	// Text is the recognised speech, trimmed. Empty when nothing was said.
	Text string

	// Language is the language the backend detected, as reported by the
	// backend: an ISO 639-1 code for most providers, sometimes a full English
	// name. Callers normalise it against their supported set.
	Language string
}

// Transcriber recognises speech in a PCM segment.
type Transcriber interface {
	// Transcribe runs recognition over samples (normalised to [-1, 1]) recorded
	// at sampleRate. language is an ISO 639-1 hint; [AutoDetect] lets the
	// backend choose.
	Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (Result, error)
}

// Func adapts a plain function to the Transcriber interface.
type Func func(ctx context.Context, samples []float32, sampleRate int, language string) (Result, error)

// Transcribe calls f.
func (f Func) Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (Result, error) {
	return f(ctx, samples, sampleRate, language)
}
