package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/lingualink/pkg/provider/llm"
)

func TestConvertMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		role    string
		wantErr bool
	}{
		{role: llm.RoleSystem},
		{role: llm.RoleUser},
		{role: llm.RoleAssistant},
		{role: "tool", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			t.Parallel()
			p, err := convertMessage(llm.Message{Role: tt.role, Content: "hi"})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			switch tt.role {
			case llm.RoleSystem:
				if p.OfSystem == nil {
					t.Error("expected OfSystem to be set")
				}
			case llm.RoleUser:
				if p.OfUser == nil {
					t.Error("expected OfUser to be set")
				}
			case llm.RoleAssistant:
				if p.OfAssistant == nil {
					t.Error("expected OfAssistant to be set")
				}
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("expected error for empty api key")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestBuildParams_RequiresMessages(t *testing.T) {
	t.Parallel()

	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.buildParams(llm.CompletionRequest{}); err == nil {
		t.Fatal("expected error for empty request")
	}
}

func TestComplete_AgainstFakeServer(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "مرحبا بالعالم"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
		}`))
	}))
	t.Cleanup(srv.Close)

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL+"/v1/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "Translate from English to Arabic.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "Hello world."}},
		Temperature:  0.1,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "مرحبا بالعالم" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 16 {
		t.Errorf("TotalTokens = %d, want 16", resp.Usage.TotalTokens)
	}

	if gotBody["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v", gotBody["model"])
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("sent %d messages, want 2", len(msgs))
	}
}

func TestComplete_EmptyChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	}))
	t.Cleanup(srv.Close)

	p, err := New("sk-test", "m", WithBaseURL(srv.URL+"/v1/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}},
	})
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
}
