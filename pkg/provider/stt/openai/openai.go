// Package openai provides an STT transcriber backed by the OpenAI audio
// transcription endpoint (whisper-1 and compatible models).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/lingualink/pkg/audio"
	"github.com/MrWong99/lingualink/pkg/provider/stt"
)

const defaultModel = oai.AudioModelWhisper1

// Transcriber implements stt.Transcriber using the OpenAI API.
type Transcriber struct {
	client oai.Client
	model  oai.AudioModel
}

type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Transcriber.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a Transcriber. An empty model selects whisper-1.
func New(apiKey, model string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(1),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.timeout))
	}
	m := oai.AudioModel(model)
	if model == "" {
		m = defaultModel
	}
	return &Transcriber{client: oai.NewClient(reqOpts...), model: m}, nil
}

// verboseBody is the part of a verbose_json transcription we read beyond
// the typed Text field.
type verboseBody struct {
	Language string `json:"language"`
}

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (stt.Result, error) {
	if len(samples) == 0 {
		return stt.Result{}, nil
	}
	wav := audio.EncodeWAV(audio.Float32ToPCM16(samples), sampleRate, 1)

	params := oai.AudioTranscriptionNewParams{
		File:           oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model:          t.model,
		ResponseFormat: oai.AudioResponseFormatVerboseJSON,
	}
	if language != stt.AutoDetect {
		params.Language = oai.String(language)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Result{}, fmt.Errorf("openai stt: %w", err)
	}

	res := stt.Result{Text: strings.TrimSpace(resp.Text), Language: language}
	var vb verboseBody
	if raw := resp.RawJSON(); raw != "" && json.Unmarshal([]byte(raw), &vb) == nil && vb.Language != "" {
		res.Language = vb.Language
	}
	return res, nil
}

var _ stt.Transcriber = (*Transcriber)(nil)
