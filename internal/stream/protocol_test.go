package stream_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/MrWong99/lingualink/internal/stream"
)

func TestParseMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    any
		wantErr error
		unknown bool
	}{
		{name: "config", in: `{"type":"config","target_language":"ar"}`, want: stream.ConfigMessage{}},
		{name: "chunk", in: `{"type":"chunk","encoding":"base64","data":"AAA="}`, want: stream.ChunkMessage{}},
		{name: "flush", in: `{"type":"flush"}`, want: stream.FlushMessage{}},
		{name: "close", in: `{"type":"close"}`, want: stream.CloseMessage{}},
		{name: "extra fields ignored", in: `{"type":"flush","foo":1}`, want: stream.FlushMessage{}},
		{name: "malformed", in: `{"type":`, wantErr: stream.ErrInvalidJSON},
		{name: "not an object", in: `[1,2]`, wantErr: stream.ErrInvalidJSON},
		{name: "wrong field type", in: `{"type":"chunk","data":5}`, wantErr: stream.ErrInvalidJSON},
		{name: "unknown type", in: `{"type":"hello"}`, unknown: true},
		{name: "missing type", in: `{}`, unknown: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := stream.ParseMessage([]byte(tt.in))
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			case tt.unknown:
				var ute *stream.UnknownTypeError
				if !errors.As(err, &ute) {
					t.Fatalf("err = %v, want *UnknownTypeError", err)
				}
				return
			case err != nil:
				t.Fatalf("unexpected error: %v", err)
			}
			if gotT, wantT := typeName(got), typeName(tt.want); gotT != wantT {
				t.Errorf("type = %s, want %s", gotT, wantT)
			}
		})
	}
}

func typeName(v any) string {
	switch v.(type) {
	case stream.ConfigMessage:
		return "config"
	case stream.ChunkMessage:
		return "chunk"
	case stream.FlushMessage:
		return "flush"
	case stream.CloseMessage:
		return "close"
	}
	return "?"
}

func TestParseMessage_ConfigPresence(t *testing.T) {
	t.Parallel()

	m, err := stream.ParseMessage([]byte(`{"type":"config","source_language":""}`))
	if err != nil {
		t.Fatal(err)
	}
	cfg := m.(stream.ConfigMessage)
	if cfg.SourceLanguage == nil || *cfg.SourceLanguage != "" {
		t.Errorf("present empty source should be non-nil empty, got %v", cfg.SourceLanguage)
	}
	if cfg.TargetLanguage != nil {
		t.Errorf("absent target should be nil, got %q", *cfg.TargetLanguage)
	}
}

func TestChunkMessage_Decode(t *testing.T) {
	t.Parallel()

	if b, err := (stream.ChunkMessage{Encoding: "base64", Data: "aGk="}).Decode(); err != nil || string(b) != "hi" {
		t.Errorf("Decode = %q, %v", b, err)
	}
	if _, err := (stream.ChunkMessage{Encoding: "base64", Data: "!!!"}).Decode(); !errors.Is(err, stream.ErrInvalidData) {
		t.Errorf("bad payload err = %v", err)
	}
	var uee *stream.UnsupportedEncodingError
	if _, err := (stream.ChunkMessage{Encoding: "hex", Data: "00"}).Decode(); !errors.As(err, &uee) || uee.Encoding != "hex" {
		t.Errorf("bad encoding err = %v", err)
	}
}

func TestFinal_NullTargetLanguage(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(stream.Final{Type: stream.TypeFinal, DetectedLanguage: "en"})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"final","original_text":"","translated_text":"","detected_language":"en","target_language":null}`
	if string(b) != want {
		t.Errorf("got  %s\nwant %s", b, want)
	}
}
