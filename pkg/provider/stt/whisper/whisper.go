// Package whisper provides whisper.cpp-backed transcribers.
//
// [Client] talks to a running whisper-server binary over its REST API
// (POST /inference). [Native] links whisper.cpp directly through the CGO
// bindings and loads the model in-process. Both auto-detect the spoken
// language when no hint is given.
//
// Usage:
//
//	c, err := whisper.New("http://localhost:8080", whisper.WithModel("base"))
//	res, err := c.Transcribe(ctx, samples, 16000, "")
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/lingualink/pkg/audio"
	"github.com/MrWong99/lingualink/pkg/provider/stt"
)

// autoLanguage is the language value whisper.cpp interprets as "detect".
const autoLanguage = "auto"

const defaultTimeout = 60 * time.Second

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithModel sets the model identifier forwarded to the whisper.cpp server.
// When empty the server uses whichever model it was started with.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithHTTPClient replaces the HTTP client used for inference requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTemperature sets the decoding temperature sent with each request.
func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = &t }
}

// Client implements stt.Transcriber against a whisper.cpp HTTP server.
type Client struct {
	serverURL   string
	model       string
	temperature *float64
	httpClient  *http.Client
}

// New returns a Client for the whisper-server listening at serverURL.
func New(serverURL string, opts ...Option) (*Client, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	c := &Client{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// inferenceResponse covers both the plain and verbose_json response shapes.
// Depending on the server version "language" holds an ISO code or the full
// English name; normalisation is left to the caller.
type inferenceResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Error    string `json:"error"`
}

// Transcribe implements stt.Transcriber. The segment is encoded as a 16-bit
// WAV file and POSTed as multipart/form-data.
func (c *Client) Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (stt.Result, error) {
	if len(samples) == 0 {
		return stt.Result{}, nil
	}
	wav := audio.EncodeWAV(audio.Float32ToPCM16(samples), sampleRate, 1)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: write wav data: %w", err)
	}

	lang := language
	if lang == stt.AutoDetect {
		lang = autoLanguage
	}
	fields := map[string]string{
		"language":        lang,
		"response_format": "verbose_json",
	}
	if c.model != "" {
		fields["model"] = c.model
	}
	if c.temperature != nil {
		fields["temperature"] = fmt.Sprintf("%.2f", *c.temperature)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return stt.Result{}, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/inference", &body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return stt.Result{}, fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result inferenceResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	if result.Error != "" {
		return stt.Result{}, fmt.Errorf("whisper: server error: %s", result.Error)
	}

	detected := result.Language
	if detected == "" && language != stt.AutoDetect {
		detected = language
	}
	return stt.Result{Text: strings.TrimSpace(result.Text), Language: detected}, nil
}

var _ stt.Transcriber = (*Client)(nil)
