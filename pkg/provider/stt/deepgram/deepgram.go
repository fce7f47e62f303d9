// Package deepgram provides a Deepgram-backed transcriber using the Deepgram
// pre-recorded REST API (POST /v1/listen). It implements stt.Transcriber.
//
// Each segment is uploaded as a 16-bit mono WAV body. When no language hint
// is given the request sets detect_language=true and the detected language
// is read back from the first channel.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/lingualink/pkg/audio"
	"github.com/MrWong99/lingualink/pkg/provider/stt"
)

const (
	deepgramEndpoint = "https://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultTimeout   = 60 * time.Second
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithEndpoint overrides the listen endpoint. Mainly used by tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = hc
	}
}

// Provider implements stt.Transcriber backed by the Deepgram REST API.
type Provider struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		endpoint:   deepgramEndpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// buildURL constructs the listen URL for one request.
func (p *Provider) buildURL(language string) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	if language == stt.AutoDetect {
		q.Set("detect_language", "true")
	} else {
		q.Set("language", language)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// listenResponse is the subset of the Deepgram response we read.
type listenResponse struct {
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language"`
			Alternatives     []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
	ErrMsg string `json:"err_msg"`
}

// Transcribe implements stt.Transcriber.
func (p *Provider) Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (stt.Result, error) {
	if len(samples) == 0 {
		return stt.Result{}, nil
	}
	endpoint, err := p.buildURL(language)
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	wav := audio.EncodeWAV(audio.Float32ToPCM16(samples), sampleRate, 1)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(wav))
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: read response body: %w", err)
	}

	var parsed listenResponse
	if resp.StatusCode != http.StatusOK {
		_ = json.Unmarshal(data, &parsed)
		if parsed.ErrMsg != "" {
			return stt.Result{}, fmt.Errorf("deepgram: HTTP %d: %s", resp.StatusCode, parsed.ErrMsg)
		}
		return stt.Result{}, fmt.Errorf("deepgram: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: parse JSON response: %w", err)
	}

	res := stt.Result{Language: language}
	if len(parsed.Results.Channels) == 0 {
		return res, nil
	}
	ch := parsed.Results.Channels[0]
	if ch.DetectedLanguage != "" {
		res.Language = ch.DetectedLanguage
	}
	if len(ch.Alternatives) > 0 {
		res.Text = strings.TrimSpace(ch.Alternatives[0].Transcript)
	}
	return res, nil
}

var _ stt.Transcriber = (*Provider)(nil)
