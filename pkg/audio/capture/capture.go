// Package capture provides the audio sources that feed broadcast mode. Every
// source converts what it receives to 16 kHz mono float samples and writes
// them into an [audio.Ring], from which the broadcast loop drains its window.
package capture

import (
	"context"
	"fmt"

	"github.com/MrWong99/lingualink/pkg/audio"
)

// Source kinds accepted by [New].
const (
	KindMicrophone = "microphone"
	KindPublisher  = "publisher"
	KindNone       = "none"
)

// Source is a running capture feeding a ring.
type Source interface {
	// Start begins capturing. It returns once capture is running.
	Start(ctx context.Context) error

	// Close stops capture and releases the device.
	Close() error
}

// Config selects and tunes a capture source.
type Config struct {
	Kind string

	// Device is a substring of the capture device name. Empty selects the
	// system default. Microphone only.
	Device string

	// SampleRate is the rate written to the ring.
	SampleRate int
}

// New builds the source named by cfg.Kind over ring. KindNone returns a nil
// source and no error.
func New(cfg Config, ring *audio.Ring) (Source, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.TargetSampleRate
	}
	switch cfg.Kind {
	case KindMicrophone:
		return NewMicrophone(ring, cfg.SampleRate, cfg.Device), nil
	case KindPublisher:
		return NewPublisher(ring, cfg.SampleRate), nil
	case KindNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("capture: unknown source %q", cfg.Kind)
	}
}
