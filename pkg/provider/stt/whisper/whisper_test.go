package whisper_test

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/lingualink/pkg/audio"
	"github.com/MrWong99/lingualink/pkg/provider/stt"
	"github.com/MrWong99/lingualink/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

type capturedRequest struct {
	fields map[string]string
	wav    []byte
}

// newMockServer responds to POST /inference with body and records the last
// multipart form it received.
func newMockServer(t *testing.T, status int, body any, last *atomic.Pointer[capturedRequest]) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		cr := &capturedRequest{fields: map[string]string{}}
		for k, v := range r.MultipartForm.Value {
			cr.fields[k] = v[0]
		}
		if f, _, err := r.FormFile("file"); err == nil {
			cr.wav, _ = io.ReadAll(f)
			f.Close()
		}
		if last != nil {
			last.Store(cr)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// makeSpeech generates a 440 Hz tone of n samples.
func makeSpeech(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.3 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	return out
}

// ---- construction -----------------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

// ---- transcription ----------------------------------------------------------

func TestTranscribe_AutoDetect(t *testing.T) {
	t.Parallel()

	var last atomic.Pointer[capturedRequest]
	srv := newMockServer(t, http.StatusOK, map[string]any{"text": "  مرحبا بكم  ", "language": "ar"}, &last)

	c, err := whisper.New(srv.URL+"/", whisper.WithModel("base"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := c.Transcribe(context.Background(), makeSpeech(16000), 16000, stt.AutoDetect)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "مرحبا بكم" {
		t.Errorf("Text = %q", res.Text)
	}
	if res.Language != "ar" {
		t.Errorf("Language = %q, want ar", res.Language)
	}

	cr := last.Load()
	if cr == nil {
		t.Fatal("server saw no request")
	}
	if cr.fields["language"] != "auto" {
		t.Errorf("language field = %q, want auto", cr.fields["language"])
	}
	if cr.fields["model"] != "base" {
		t.Errorf("model field = %q, want base", cr.fields["model"])
	}
	if cr.fields["response_format"] != "verbose_json" {
		t.Errorf("response_format = %q", cr.fields["response_format"])
	}
	samples, f, err := audio.DecodeWAV(cr.wav)
	if err != nil {
		t.Fatalf("uploaded file is not a WAV: %v", err)
	}
	if f.SampleRate != 16000 || f.Channels != 1 || len(samples) != 16000 {
		t.Errorf("uploaded %d samples, format %+v", len(samples), f)
	}
}

func TestTranscribe_HintUsedWhenServerOmitsLanguage(t *testing.T) {
	t.Parallel()

	var last atomic.Pointer[capturedRequest]
	srv := newMockServer(t, http.StatusOK, map[string]any{"text": "hello"}, &last)

	c, _ := whisper.New(srv.URL)
	res, err := c.Transcribe(context.Background(), makeSpeech(8000), 16000, "en")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Language != "en" {
		t.Errorf("Language = %q, want en", res.Language)
	}
	if got := last.Load().fields["language"]; got != "en" {
		t.Errorf("language field = %q, want en", got)
	}
}

func TestTranscribe_EmptySamplesSkipsServer(t *testing.T) {
	t.Parallel()

	var last atomic.Pointer[capturedRequest]
	srv := newMockServer(t, http.StatusOK, map[string]any{"text": "x"}, &last)
	c, _ := whisper.New(srv.URL)

	res, err := c.Transcribe(context.Background(), nil, 16000, "")
	if err != nil || res.Text != "" {
		t.Fatalf("got %+v, %v", res, err)
	}
	if last.Load() != nil {
		t.Error("server called for empty segment")
	}
}

func TestTranscribe_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   any
	}{
		{name: "http 500", status: http.StatusInternalServerError, body: map[string]string{"error": "boom"}},
		{name: "server error field", status: http.StatusOK, body: map[string]string{"error": "failed to read audio"}},
		{name: "malformed json", status: http.StatusOK, body: "not an object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := newMockServer(t, tt.status, tt.body, nil)
			c, _ := whisper.New(srv.URL)
			if _, err := c.Transcribe(context.Background(), makeSpeech(1600), 16000, ""); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestTranscribe_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv := newMockServer(t, http.StatusOK, map[string]any{"text": "x"}, nil)
	c, _ := whisper.New(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Transcribe(ctx, makeSpeech(1600), 16000, ""); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

// ---- native -----------------------------------------------------------------

func TestNewNative_EmptyPath_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.NewNative(""); err == nil {
		t.Fatal("expected error for empty model path, got nil")
	}
}

func TestNewNative_InvalidPath_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.NewNative("/nonexistent/path/to/model.bin"); err == nil {
		t.Fatal("expected error for invalid model path, got nil")
	}
}

func TestNative_TranscribeSilence(t *testing.T) {
	t.Parallel()

	p := os.Getenv("WHISPER_MODEL_PATH")
	if p == "" {
		t.Skip("WHISPER_MODEL_PATH not set; skipping native whisper test")
	}
	n, err := whisper.NewNative(p, whisper.WithThreads(2))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer n.Close()

	if _, err := n.Transcribe(context.Background(), make([]float32, 16000), 16000, "en"); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
}
