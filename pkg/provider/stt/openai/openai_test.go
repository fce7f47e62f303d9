package openai_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/lingualink/pkg/provider/stt/openai"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := openai.New("", "whisper-1"); err == nil {
		t.Fatal("expected error for empty API key")
	}
	if _, err := openai.New("sk-test", ""); err != nil {
		t.Fatalf("empty model should select default: %v", err)
	}
}

func TestTranscribe_FakeServer(t *testing.T) {
	t.Parallel()

	var gotPath, gotLang, gotFormat, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotLang = r.FormValue("language")
		gotFormat = r.FormValue("response_format")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"task":"transcribe","language":"arabic","duration":1.0,"text":" مرحبا "}`)
	}))
	defer srv.Close()

	tr, err := openai.New("sk-test", "whisper-1", openai.WithBaseURL(srv.URL+"/v1/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := tr.Transcribe(context.Background(), make([]float32, 1600), 16000, "")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if !strings.HasSuffix(gotPath, "/audio/transcriptions") {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotLang != "" {
		t.Errorf("language field = %q, want empty for auto-detect", gotLang)
	}
	if gotFormat != "verbose_json" {
		t.Errorf("response_format = %q", gotFormat)
	}
	if res.Text != "مرحبا" {
		t.Errorf("Text = %q", res.Text)
	}
	if res.Language != "arabic" {
		t.Errorf("Language = %q, want the raw server value", res.Language)
	}
}

func TestTranscribe_EmptySamples(t *testing.T) {
	t.Parallel()
	tr, _ := openai.New("sk-test", "")
	res, err := tr.Transcribe(context.Background(), nil, 16000, "en")
	if err != nil || res.Text != "" {
		t.Fatalf("got %+v, %v", res, err)
	}
}
