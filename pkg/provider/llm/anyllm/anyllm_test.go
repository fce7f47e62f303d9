package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/lingualink/pkg/provider/llm"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		provider string
		model    string
	}{
		{name: "empty provider", provider: "", model: "gpt-4o"},
		{name: "empty model", provider: "openai", model: ""},
		{name: "unsupported provider", provider: "fakecloud", model: "some-model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tt.provider, tt.model, anyllmlib.WithAPIKey("dummy")); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNew_Backends(t *testing.T) {
	t.Parallel()

	tests := []struct {
		provider string
		opts     []anyllmlib.Option
	}{
		{provider: "openai", opts: []anyllmlib.Option{anyllmlib.WithAPIKey("sk-test")}},
		{provider: "OpenAI", opts: []anyllmlib.Option{anyllmlib.WithAPIKey("sk-test")}},
		{provider: "anthropic", opts: []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")}},
		{provider: "ollama", opts: []anyllmlib.Option{anyllmlib.WithBaseURL("http://localhost:11434")}},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			t.Parallel()
			p, err := New(tt.provider, "some-model", tt.opts...)
			if err != nil {
				t.Fatalf("New(%q): %v", tt.provider, err)
			}
			if p == nil {
				t.Fatal("expected non-nil Provider")
			}
		})
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "claude-3-5-haiku-latest"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Translate from Arabic to English.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "مرحبا"}},
		Temperature:  0.2,
		MaxTokens:    256,
	})

	if params.Model != "claude-3-5-haiku-latest" {
		t.Errorf("Model = %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("first role = %q, want system", params.Messages[0].Role)
	}
	if params.Messages[1].Role != llm.RoleUser {
		t.Errorf("second role = %q, want user", params.Messages[1].Role)
	}
	if params.Temperature == nil || *params.Temperature != 0.2 {
		t.Errorf("Temperature = %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 256 {
		t.Errorf("MaxTokens = %v", params.MaxTokens)
	}
}

func TestBuildParams_OmitsZeroKnobs(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "m"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}},
	})
	if len(params.Messages) != 1 {
		t.Errorf("len(Messages) = %d, want 1", len(params.Messages))
	}
	if params.Temperature != nil || params.MaxTokens != nil {
		t.Error("zero temperature/max tokens should be left unset")
	}
}
