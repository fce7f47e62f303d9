// Package mock provides a test double for translate.Translator.
//
// By default the mock answers with "[tgt] text", which makes it easy to see
// in assertions which sentences were translated and into which language.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/lingualink/pkg/provider/translate"
)

// Call records a single Translate invocation.
type Call struct {
	Text   string
	Source string
	Target string
}

// Translator is a mock implementation of translate.Translator.
type Translator struct {
	mu sync.Mutex

	// Fn, if set, computes the translation.
	Fn func(text, source, target string) (string, error)

	// Err, if non-nil, is returned from every call.
	Err error

	calls []Call
}

// Translate records the call and returns the configured result.
func (m *Translator) Translate(_ context.Context, text, source, target string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Text: text, Source: source, Target: target})
	fn, err := m.Fn, m.Err
	m.mu.Unlock()

	if err != nil {
		return "", err
	}
	if fn != nil {
		return fn(text, source, target)
	}
	return "[" + target + "] " + text, nil
}

// Calls returns a snapshot of the recorded calls.
func (m *Translator) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of recorded calls.
func (m *Translator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

var _ translate.Translator = (*Translator)(nil)
