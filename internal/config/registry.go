package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/lingualink/internal/diarize"
	"github.com/MrWong99/lingualink/pkg/provider/llm"
	"github.com/MrWong99/lingualink/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory constructs a provider from its config entry.
type Factory[T any] func(ProviderEntry) (T, error)

// factories is one provider kind's name → constructor table.
type factories[T any] struct {
	kind string
	m    map[string]Factory[T]
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, m: make(map[string]Factory[T])}
}

func (f factories[T]) create(entry ProviderEntry) (T, error) {
	factory, ok := f.m[entry.Name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	return factory(entry)
}

func (f factories[T]) names() []string {
	out := make([]string, 0, len(f.m))
	for name := range f.m {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	stt      factories[stt.Transcriber]
	llm      factories[llm.Provider]
	diarizer factories[diarize.Provider]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:      newFactories[stt.Transcriber]("stt"),
		llm:      newFactories[llm.Provider]("llm"),
		diarizer: newFactories[diarize.Provider]("diarizer"),
	}
}

// RegisterSTT registers a transcriber factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory Factory[stt.Transcriber]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.m[name] = factory
}

// RegisterLLM registers an LLM provider factory under name. LLM providers
// back the translator chain.
func (r *Registry) RegisterLLM(name string, factory Factory[llm.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.m[name] = factory
}

// RegisterDiarizer registers a speaker-separation factory under name.
func (r *Registry) RegisterDiarizer(name string, factory Factory[diarize.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diarizer.m[name] = factory
}

// CreateSTT instantiates a transcriber using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if there is none.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Transcriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.create(entry)
}

// CreateLLM instantiates an LLM provider using the factory registered under
// entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.create(entry)
}

// CreateDiarizer instantiates a speaker-separation provider.
func (r *Registry) CreateDiarizer(entry ProviderEntry) (diarize.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.diarizer.create(entry)
}

// Registered returns the sorted registered names per provider kind.
func (r *Registry) Registered() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		r.stt.kind:      r.stt.names(),
		r.llm.kind:      r.llm.names(),
		r.diarizer.kind: r.diarizer.names(),
	}
}
