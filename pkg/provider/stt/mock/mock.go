// Package mock provides a test double for stt.Transcriber.
//
// Example:
//
//	tr := &mock.Transcriber{Result: stt.Result{Text: "hello", Language: "en"}}
//	res, _ := tr.Transcribe(ctx, samples, 16000, "")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/lingualink/pkg/provider/stt"
)

// Call records a single Transcribe invocation.
type Call struct {
	Samples    int
	SampleRate int
	Language   string
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Result is returned when Fn is nil.
	Result stt.Result

	// Fn, if set, computes the result per call.
	Fn func(ctx context.Context, samples []float32, sampleRate int, language string) (stt.Result, error)

	// Err, if non-nil, is returned from every call.
	Err error

	// Block, if non-nil, makes Transcribe wait until the channel is closed or
	// ctx is done. Useful for holding a pass in flight.
	Block chan struct{}

	// Started, if non-nil, receives one value as each call begins.
	Started chan struct{}

	calls []Call
}

// Transcribe records the call and returns the configured result.
func (m *Transcriber) Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (stt.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Samples: len(samples), SampleRate: sampleRate, Language: language})
	fn, res, err, block, started := m.Fn, m.Result, m.Err, m.Block, m.Started
	m.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return stt.Result{}, ctx.Err()
		}
	}
	if err != nil {
		return stt.Result{}, err
	}
	if fn != nil {
		return fn(ctx, samples, sampleRate, language)
	}
	return res, nil
}

// Calls returns a snapshot of the recorded calls.
func (m *Transcriber) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of recorded calls.
func (m *Transcriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

var _ stt.Transcriber = (*Transcriber)(nil)
