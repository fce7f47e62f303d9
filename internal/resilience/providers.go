package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/lingualink/pkg/provider/stt"
	"github.com/MrWong99/lingualink/pkg/provider/translate"
)

// Transcriber fails over between speech recognition backends.
type Transcriber struct {
	*Chain[stt.Transcriber]
}

// NewTranscriber returns a transcriber chain with primary first.
func NewTranscriber(name string, primary stt.Transcriber, cfg BreakerConfig) *Transcriber {
	return &Transcriber{Chain: NewChain(name, primary, cfg)}
}

// Transcribe implements [stt.Transcriber].
func (t *Transcriber) Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (stt.Result, error) {
	return Call(ctx, t.Chain, func(ctx context.Context, b stt.Transcriber) (stt.Result, error) {
		return b.Transcribe(ctx, samples, sampleRate, language)
	})
}

// Translator fails over between translation backends. An empty translation
// is a verdict on the text, not the backend, and is returned without trying
// the next one.
type Translator struct {
	*Chain[translate.Translator]
}

// NewTranslator returns a translator chain with primary first.
func NewTranslator(name string, primary translate.Translator, cfg BreakerConfig) *Translator {
	return &Translator{Chain: NewChain(name, primary, cfg)}
}

// Translate implements [translate.Translator].
func (t *Translator) Translate(ctx context.Context, text, source, target string) (string, error) {
	return Call(ctx, t.Chain, func(ctx context.Context, b translate.Translator) (string, error) {
		out, err := b.Translate(ctx, text, source, target)
		if errors.Is(err, translate.ErrEmptyTranslation) {
			return "", Permanent(err)
		}
		return out, err
	})
}

var (
	_ stt.Transcriber      = (*Transcriber)(nil)
	_ translate.Translator = (*Translator)(nil)
)
