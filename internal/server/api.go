package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/lingualink/internal/inference"
	"github.com/MrWong99/lingualink/internal/language"
	"github.com/MrWong99/lingualink/internal/transcript"
	"github.com/MrWong99/lingualink/pkg/audio"
)

// DefaultMaxUploadBytes caps a /transcribe-translate upload.
const DefaultMaxUploadBytes = 25 << 20

// Decoder turns uploaded bytes into a normalised segment.
type Decoder interface {
	Decode(ctx context.Context, data []byte, targetRate int) audio.Segment
}

// APIConfig configures [NewAPI].
type APIConfig struct {
	// SampleRate is the decode target rate.
	SampleRate int

	// MinBytes rejects smaller uploads with 400.
	MinBytes int

	// MaxUploadBytes caps uploads. Default: [DefaultMaxUploadBytes].
	MaxUploadBytes int64
}

// API serves the JSON endpoints:
//
//   - GET  /languages
//   - POST /translate
//   - POST /transcribe-translate
//   - GET  /transcripts
type API struct {
	cfg     APIConfig
	gateway *inference.Gateway
	decoder Decoder
	store   transcript.Store
}

// NewAPI creates the JSON API. decoder and store may be nil, which disables
// /transcribe-translate and /transcripts respectively.
func NewAPI(cfg APIConfig, gw *inference.Gateway, decoder Decoder, store transcript.Store) *API {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &API{cfg: cfg, gateway: gw, decoder: decoder, store: store}
}

// Register mounts the API on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /languages", a.languages)
	mux.HandleFunc("POST /translate", a.translate)
	if a.decoder != nil {
		mux.HandleFunc("POST /transcribe-translate", a.transcribeTranslate)
	}
	if a.store != nil {
		mux.HandleFunc("GET /transcripts", a.transcripts)
	}
}

type languagesResponse struct {
	SupportedLanguages map[string]string `json:"supported_languages"`
	TranslationPairs   []string          `json:"translation_pairs"`
}

func (a *API) languages(w http.ResponseWriter, _ *http.Request) {
	pairs := a.gateway.Languages().Pairs()
	res := languagesResponse{
		SupportedLanguages: language.Supported(),
		TranslationPairs:   make([]string, len(pairs)),
	}
	for i, p := range pairs {
		res.TranslationPairs[i] = p.String()
	}
	writeJSON(w, http.StatusOK, res)
}

type translateRequest struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
}

type translateResponse struct {
	OriginalText   string `json:"original_text"`
	TranslatedText string `json:"translated_text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	Status         string `json:"status"`
}

// translate accepts a JSON body or form fields.
func (a *API) translate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if isForm(r) {
		req = translateRequest{
			Text:           r.FormValue("text"),
			SourceLanguage: r.FormValue("source_language"),
			TargetLanguage: r.FormValue("target_language"),
		}
	} else if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, "text cannot be empty")
		return
	}
	src, ok := language.Normalize(req.SourceLanguage)
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported source language")
		return
	}
	tgt, ok := language.Normalize(req.TargetLanguage)
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported target language")
		return
	}

	out, err := a.gateway.TranslateAsync(r.Context(), text, src, tgt).Await(r.Context())
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, translateResponse{
		OriginalText:   text,
		TranslatedText: out,
		SourceLanguage: src,
		TargetLanguage: tgt,
		Status:         "success",
	})
}

type transcribeResponse struct {
	OriginalText     string `json:"original_text"`
	TranslatedText   string `json:"translated_text"`
	DetectedLanguage string `json:"detected_language"`
	TargetLanguage   string `json:"target_language"`
	Status           string `json:"status"`
	Message          string `json:"message,omitempty"`
}

// transcribeTranslate runs one upload through the same decode, transcribe
// and translate path as a streaming flush.
func (a *API) transcribeTranslate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.MaxUploadBytes)
	f, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}
	if len(data) < a.cfg.MinBytes {
		writeError(w, http.StatusBadRequest, "audio file is empty or too small")
		return
	}

	tgt, ok := language.Normalize(r.FormValue("target_language"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported target language")
		return
	}
	hint := ""
	if s := r.FormValue("source_language"); s != "" {
		if hint, ok = language.Normalize(s); !ok {
			writeError(w, http.StatusBadRequest, "unsupported source language")
			return
		}
	}

	ctx := r.Context()
	seg := a.decoder.Decode(ctx, data, a.cfg.SampleRate)
	if seg.Empty() {
		writeError(w, http.StatusBadRequest, "failed to decode audio: unsupported format or corrupted file")
		return
	}

	tr, err := a.gateway.TranscribeAsync(ctx, seg, hint).Await(ctx)
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	res := transcribeResponse{
		OriginalText:     tr.Text,
		DetectedLanguage: tr.Language,
		TargetLanguage:   tgt,
		Status:           "success",
	}
	if tr.Text == "" {
		res.Message = "no speech detected in audio"
		writeJSON(w, http.StatusOK, res)
		return
	}
	res.TranslatedText = tr.Text
	if tr.Language != tgt {
		if res.TranslatedText, err = a.gateway.TranslateAsync(ctx, tr.Text, tr.Language, tgt).Await(ctx); err != nil {
			writeGatewayError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, res)
}

type transcriptEntry struct {
	SessionID    string            `json:"session_id"`
	Source       string            `json:"source"`
	SpeakerID    string            `json:"speaker_id,omitempty"`
	Text         string            `json:"text"`
	Language     string            `json:"language"`
	Translations map[string]string `json:"translations,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

func (a *API) transcripts(w http.ResponseWriter, r *http.Request) {
	q := transcript.Query{
		SessionID: r.URL.Query().Get("session_id"),
		Source:    transcript.Source(r.URL.Query().Get("source")),
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		q.Limit = n
	}
	entries, err := a.store.Recent(r.Context(), q)
	if err != nil {
		slog.Warn("server: list transcripts", "error", err)
		writeError(w, http.StatusInternalServerError, "transcript store unavailable")
		return
	}
	out := make([]transcriptEntry, len(entries))
	for i, e := range entries {
		out[i] = transcriptEntry{
			SessionID:    e.SessionID,
			Source:       string(e.Source),
			SpeakerID:    e.SpeakerID,
			Text:         e.Text,
			Language:     e.Language,
			Translations: e.Translations,
			CreatedAt:    e.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transcripts": out})
}

func isForm(r *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt == "application/x-www-form-urlencoded" || mt == "multipart/form-data"
}

func writeGatewayError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, inference.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		// Client went away; nobody reads the response.
	default:
		slog.Warn("server: inference failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
