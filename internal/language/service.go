package language

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/MrWong99/lingualink/pkg/provider/translate"
)

// Pair is an ordered (source, target) translation direction.
type Pair struct {
	Source string
	Target string
}

// String renders the pair as "src-tgt".
func (p Pair) String() string { return p.Source + "-" + p.Target }

// ParsePair parses "src-tgt". Both halves must be supported codes and must
// differ.
func ParsePair(s string) (Pair, error) {
	src, tgt, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Pair{}, fmt.Errorf("language: pair %q: want \"src-tgt\"", s)
	}
	p := Pair{Source: strings.ToLower(src), Target: strings.ToLower(tgt)}
	if !IsSupported(p.Source) || !IsSupported(p.Target) {
		return Pair{}, fmt.Errorf("language: pair %q: unsupported language", s)
	}
	if p.Source == p.Target {
		return Pair{}, fmt.Errorf("language: pair %q: source and target are equal", s)
	}
	return p, nil
}

// DefaultPairs are the directions served when none are configured.
var DefaultPairs = []Pair{
	{Source: "ar", Target: "en"},
	{Source: "en", Target: "ar"},
}

// Service routes translation requests to the translator registered for each
// pair. It is read-only after construction and safe for concurrent use.
type Service struct {
	pairs map[Pair]translate.Translator
	log   *slog.Logger
}

// ServiceOption configures a [Service].
type ServiceOption func(*Service)

// WithLogger sets the logger used for degraded translations.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.log = l }
}

// NewService builds a Service over the given pair registry. The map is
// copied; nil translators are ignored.
func NewService(pairs map[Pair]translate.Translator, opts ...ServiceOption) *Service {
	s := &Service{
		pairs: make(map[Pair]translate.Translator, len(pairs)),
		log:   slog.Default(),
	}
	for p, t := range pairs {
		if t != nil {
			s.pairs[p] = t
		}
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewSharedService registers the same translator for every pair in pairs.
// Useful for LLM translators that handle any direction.
func NewSharedService(t translate.Translator, pairs []Pair, opts ...ServiceOption) *Service {
	m := make(map[Pair]translate.Translator, len(pairs))
	for _, p := range pairs {
		m[p] = t
	}
	return NewService(m, opts...)
}

// Has reports whether a translator is registered for p.
func (s *Service) Has(p Pair) bool {
	_, ok := s.pairs[p]
	return ok
}

// Pairs returns the registered pairs sorted by their string form.
func (s *Service) Pairs() []Pair {
	out := make([]Pair, 0, len(s.pairs))
	for p := range s.pairs {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Pair) int { return strings.Compare(a.String(), b.String()) })
	return out
}

// Translate translates text from source to target one sentence at a time and
// joins the results with single spaces.
//
// It never fails. Same-language requests, blank input and unregistered pairs
// return text unchanged without touching a translator. A translator error
// also returns text unchanged. Sentences that translate to nothing are
// dropped, and if none survive the original text is returned.
func (s *Service) Translate(ctx context.Context, text, source, target string) string {
	out, _ := s.translate(ctx, text, source, target)
	return out
}

// TranslateErr is [Service.Translate] but also reports the error that caused
// a degradation, if any. The returned text is the same in both cases.
func (s *Service) TranslateErr(ctx context.Context, text, source, target string) (string, error) {
	return s.translate(ctx, text, source, target)
}

func (s *Service) translate(ctx context.Context, text, source, target string) (string, error) {
	if strings.TrimSpace(text) == "" || source == target {
		return text, nil
	}
	pair := Pair{Source: source, Target: target}
	tr, ok := s.pairs[pair]
	if !ok {
		return text, nil
	}

	parts := make([]string, 0, 4)
	for _, sentence := range SplitSentences(text) {
		out, err := tr.Translate(ctx, sentence, source, target)
		if errors.Is(err, translate.ErrEmptyTranslation) {
			continue
		}
		if err != nil {
			s.log.Warn("translation failed, returning original text",
				"pair", pair.String(), "error", err)
			return text, fmt.Errorf("language: translate %s: %w", pair, err)
		}
		if out = strings.TrimSpace(out); out != "" {
			parts = append(parts, out)
		}
	}
	if len(parts) == 0 {
		return text, nil
	}
	return strings.Join(parts, " "), nil
}
