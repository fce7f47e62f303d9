// Package translate defines the Translator interface consumed by the
// translation service, plus an implementation that drives any llm.Provider
// as a machine-translation engine.
//
// A Translator translates one piece of text between two ISO 639-1 language
// codes. Sentence segmentation, identity short-circuits and error
// degradation are handled by the caller; implementations just translate.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/lingualink/pkg/provider/llm"
)

// Translator translates text from source to target language.
//
// Implementations must be safe for concurrent use.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// Func adapts a plain function to the Translator interface.
type Func func(ctx context.Context, text, source, target string) (string, error)

// Translate calls f.
func (f Func) Translate(ctx context.Context, text, source, target string) (string, error) {
	return f(ctx, text, source, target)
}

// ErrEmptyTranslation is returned when the backend answered with no text.
var ErrEmptyTranslation = errors.New("translate: backend returned an empty translation")

const defaultPrompt = "You are a professional translator. Translate the user's text from %s to %s. " +
	"Reply with the translation only: no quotes, no notes, no transliteration."

// LLMTranslator uses an LLM chat completion as the translation engine.
type LLMTranslator struct {
	provider    llm.Provider
	names       func(code string) string
	prompt      string
	temperature float64
	maxTokens   int
}

// Option configures an LLMTranslator.
type Option func(*LLMTranslator)

// WithLanguageNames sets the function that turns language codes into the
// human-readable names used in the prompt. Unknown codes should be returned
// unchanged.
func WithLanguageNames(fn func(code string) string) Option {
	return func(t *LLMTranslator) { t.names = fn }
}

// WithPrompt overrides the system prompt. It must contain two %s verbs, for
// the source and target language names in that order.
func WithPrompt(p string) Option {
	return func(t *LLMTranslator) { t.prompt = p }
}

// WithTemperature sets the sampling temperature. Defaults to 0.1.
func WithTemperature(v float64) Option {
	return func(t *LLMTranslator) { t.temperature = v }
}

// WithMaxTokens caps the completion length. Defaults to 512, matching the
// per-sentence budget of the translation service.
func WithMaxTokens(n int) Option {
	return func(t *LLMTranslator) { t.maxTokens = n }
}

// NewLLM returns a Translator backed by p.
func NewLLM(p llm.Provider, opts ...Option) (*LLMTranslator, error) {
	if p == nil {
		return nil, errors.New("translate: llm provider must not be nil")
	}
	t := &LLMTranslator{
		provider:    p,
		names:       func(code string) string { return code },
		prompt:      defaultPrompt,
		temperature: 0.1,
		maxTokens:   512,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Translate implements Translator.
func (t *LLMTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	resp, err := t.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: fmt.Sprintf(t.prompt, t.names(source), t.names(target)),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: text}},
		Temperature:  t.temperature,
		MaxTokens:    t.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("translate: %s->%s: %w", source, target, err)
	}
	if resp == nil {
		return "", ErrEmptyTranslation
	}
	out := strings.TrimSpace(resp.Content)
	if out == "" {
		return "", ErrEmptyTranslation
	}
	return out, nil
}

var _ Translator = (*LLMTranslator)(nil)
