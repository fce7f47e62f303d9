package stream

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound message types.
const (
	TypeConfig = "config"
	TypeChunk  = "chunk"
	TypeFlush  = "flush"
	TypeClose  = "close"
)

// Outbound message types.
const (
	TypeConfigAck = "config_ack"
	TypeInterim   = "interim"
	TypeFinal     = "final"
	TypeError     = "error"
)

// EncodingBase64 is the only chunk transport encoding accepted.
const EncodingBase64 = "base64"

// Protocol errors. Their text is sent to the client as the error detail.
var (
	ErrInvalidJSON = errors.New("invalid JSON")
	ErrInvalidData = errors.New("invalid base64 data")
)

// UnknownTypeError reports an envelope whose type is not one of the four
// inbound kinds.
type UnknownTypeError struct{ Type string }

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown message type: %q", e.Type)
}

// UnsupportedEncodingError reports a chunk with an encoding other than base64.
type UnsupportedEncodingError struct{ Encoding string }

func (e *UnsupportedEncodingError) Error() string {
	return fmt.Sprintf("unsupported encoding: %q", e.Encoding)
}

// Message is a decoded client message: one of [ConfigMessage],
// [ChunkMessage], [FlushMessage] or [CloseMessage].
type Message interface {
	messageType() string
}

// ConfigMessage updates the session's language hints. A nil field leaves the
// current value untouched; an empty string clears it.
type ConfigMessage struct {
	SourceLanguage *string `json:"source_language"`
	TargetLanguage *string `json:"target_language"`
}

// ChunkMessage carries one slice of encoded audio.
type ChunkMessage struct {
	Encoding string `json:"encoding"`
	Data     string `json:"data"`
}

// FlushMessage forces a final pass.
type FlushMessage struct{}

// CloseMessage ends the session.
type CloseMessage struct{}

func (ConfigMessage) messageType() string { return TypeConfig }
func (ChunkMessage) messageType() string  { return TypeChunk }
func (FlushMessage) messageType() string  { return TypeFlush }
func (CloseMessage) messageType() string  { return TypeClose }

// ParseMessage decodes one client envelope. It returns [ErrInvalidJSON] for
// malformed input and an [*UnknownTypeError] for unrecognised types.
func ParseMessage(data []byte) (Message, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, ErrInvalidJSON
	}

	switch env.Type {
	case TypeConfig:
		var m ConfigMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, ErrInvalidJSON
		}
		return m, nil
	case TypeChunk:
		var m ChunkMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, ErrInvalidJSON
		}
		return m, nil
	case TypeFlush:
		return FlushMessage{}, nil
	case TypeClose:
		return CloseMessage{}, nil
	default:
		return nil, &UnknownTypeError{Type: env.Type}
	}
}

// Decode returns the audio bytes carried by the chunk.
func (m ChunkMessage) Decode() ([]byte, error) {
	if m.Encoding != EncodingBase64 {
		return nil, &UnsupportedEncodingError{Encoding: m.Encoding}
	}
	b, err := base64.StdEncoding.DecodeString(m.Data)
	if err != nil {
		return nil, ErrInvalidData
	}
	return b, nil
}

// LanguageConfig is the session's language configuration as echoed in
// config_ack. Unset values encode as null.
type LanguageConfig struct {
	SourceLanguage *string `json:"source_language"`
	TargetLanguage *string `json:"target_language"`
}

// Source returns the source hint or "" for auto-detection.
func (c LanguageConfig) Source() string { return deref(c.SourceLanguage) }

// Target returns the target language or "" when none is configured.
func (c LanguageConfig) Target() string { return deref(c.TargetLanguage) }

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// ConfigAck acknowledges a config message.
type ConfigAck struct {
	Type   string         `json:"type"`
	Config LanguageConfig `json:"config"`
}

// Interim is the best-effort result of an auto-flush pass.
type Interim struct {
	Type             string `json:"type"`
	Text             string `json:"text"`
	DetectedLanguage string `json:"detected_language"`
}

// Final is the authoritative result of an explicit flush.
type Final struct {
	Type             string  `json:"type"`
	OriginalText     string  `json:"original_text"`
	TranslatedText   string  `json:"translated_text"`
	DetectedLanguage string  `json:"detected_language"`
	TargetLanguage   *string `json:"target_language"`
}

// ErrorMessage reports a non-fatal problem to the client.
type ErrorMessage struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

func newConfigAck(c LanguageConfig) ConfigAck { return ConfigAck{Type: TypeConfigAck, Config: c} }

func newInterim(text, lang string) Interim {
	return Interim{Type: TypeInterim, Text: text, DetectedLanguage: lang}
}

func newError(detail string) ErrorMessage { return ErrorMessage{Type: TypeError, Detail: detail} }
