package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/MrWong99/lingualink/internal/config"
	"github.com/MrWong99/lingualink/internal/diarize"
	"github.com/MrWong99/lingualink/internal/language"
	"github.com/MrWong99/lingualink/internal/resilience"
	"github.com/MrWong99/lingualink/pkg/provider/stt"
	"github.com/MrWong99/lingualink/pkg/provider/translate"
)

// Providers holds the collaborators built from the config. A nil field means
// the slot is not configured.
type Providers struct {
	// Transcriber is the speech recognition chain.
	Transcriber stt.Transcriber

	// Translator backs every configured translation pair.
	Translator translate.Translator

	// Diarizer loads the optional speaker-separation provider.
	Diarizer diarize.Factory

	// closers release provider resources such as loaded models.
	closers []func() error
}

// Close releases every provider resource.
func (p *Providers) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// BuildProviders instantiates the provider chains named in cfg through reg.
// Entries whose name has no registered factory are skipped with a warning;
// any other construction error is returned.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}
	bc := cfg.Providers.Breaker

	transcribers, names, err := buildChain(ps, "stt", cfg.Providers.Transcriber, reg.CreateSTT)
	if err != nil {
		return nil, err
	}
	if len(transcribers) > 0 {
		chain := resilience.NewTranscriber(names[0], transcribers[0], breakerConfig(bc, names[0]))
		for i := 1; i < len(transcribers); i++ {
			chain.Add(names[i], transcribers[i])
		}
		ps.Transcriber = chain
	}

	translators, names, err := buildChain(ps, "llm", cfg.Providers.Translator, func(e config.ProviderEntry) (translate.Translator, error) {
		p, err := reg.CreateLLM(e)
		if err != nil {
			return nil, err
		}
		return translate.NewLLM(p, translatorOptions(cfg.Translation)...)
	})
	if err != nil {
		return nil, err
	}
	if len(translators) > 0 {
		chain := resilience.NewTranslator(names[0], translators[0], breakerConfig(bc, names[0]))
		for i := 1; i < len(translators); i++ {
			chain.Add(names[i], translators[i])
		}
		ps.Translator = chain
	}

	if cfg.Diarization.Enabled {
		entry := cfg.Diarization.Provider
		ps.Diarizer = func() (diarize.Provider, error) {
			return reg.CreateDiarizer(entry)
		}
	}
	return ps, nil
}

// buildChain creates every entry of root's chain, in try order.
func buildChain[T any](ps *Providers, kind string, root config.ProviderEntry, create func(config.ProviderEntry) (T, error)) ([]T, []string, error) {
	var (
		out   []T
		names []string
	)
	for _, e := range root.Chain() {
		p, err := create(e)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("provider not registered, skipping", "kind", kind, "name", e.Name)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("app: create %s provider %q: %w", kind, e.Name, err)
		}
		if c, ok := any(p).(io.Closer); ok {
			ps.closers = append(ps.closers, c.Close)
		}
		out = append(out, p)
		names = append(names, kind+"/"+e.Name)
		slog.Info("provider created", "kind", kind, "name", e.Name)
	}
	return out, names, nil
}

func breakerConfig(bc config.BreakerConfig, name string) resilience.BreakerConfig {
	return resilience.BreakerConfig{
		Name:      name,
		Threshold: bc.Threshold,
		Cooldown:  bc.Cooldown,
		Probes:    bc.Probes,
	}
}

func translatorOptions(tc config.TranslationConfig) []translate.Option {
	opts := []translate.Option{translate.WithLanguageNames(language.Name)}
	if tc.Prompt != "" {
		opts = append(opts, translate.WithPrompt(tc.Prompt))
	}
	if tc.Temperature > 0 {
		opts = append(opts, translate.WithTemperature(tc.Temperature))
	}
	if tc.MaxTokens > 0 {
		opts = append(opts, translate.WithMaxTokens(tc.MaxTokens))
	}
	return opts
}

// translationPairs parses the configured pairs, falling back to
// [language.DefaultPairs]. Validation has already rejected bad entries.
func translationPairs(tc config.TranslationConfig) []language.Pair {
	if len(tc.Pairs) == 0 {
		return language.DefaultPairs
	}
	out := make([]language.Pair, 0, len(tc.Pairs))
	for _, s := range tc.Pairs {
		if p, err := language.ParsePair(s); err == nil {
			out = append(out, p)
		}
	}
	return out
}
