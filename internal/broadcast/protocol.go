package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message types.
const (
	TypeRegister            = "register"
	TypeUpdatePreference    = "update_preference"
	TypeRegistrationSuccess = "registration_success"
	TypeTranscriptionResult = "transcription_result"
	TypeError               = "error"
)

var errInvalidJSON = errors.New("invalid JSON")

// request is a client message on /ws/broadcast.
type request struct {
	Type              string `json:"type"`
	UserID            string `json:"user_id"`
	PreferredLanguage string `json:"preferred_language"`
}

func parseRequest(data []byte) (request, error) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		return request{}, errInvalidJSON
	}
	switch req.Type {
	case TypeRegister, TypeUpdatePreference:
		return req, nil
	default:
		return request{}, fmt.Errorf("unknown message type: %q", req.Type)
	}
}

// RegistrationSuccess answers a register message.
type RegistrationSuccess struct {
	Type              string `json:"type"`
	UserID            string `json:"user_id"`
	PreferredLanguage string `json:"preferred_language"`
}

// Result is one speaker's transcription fanned out to every listener.
// Translations is keyed by user id and only holds users whose preference
// differs from the detected language.
type Result struct {
	Type             string            `json:"type"`
	SpeakerID        string            `json:"speaker_id"`
	OriginalText     string            `json:"original_text"`
	DetectedLanguage string            `json:"detected_language"`
	Translations     map[string]string `json:"translations"`
}

// ErrorMessage reports a non-fatal problem.
type ErrorMessage struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

func newError(detail string) ErrorMessage { return ErrorMessage{Type: TypeError, Detail: detail} }
