package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/lingualink/pkg/audio"
)

// Microphone captures mono s16 audio from a local input device via miniaudio.
type Microphone struct {
	ring       *audio.Ring
	sampleRate int
	device     string

	mu   sync.Mutex
	mctx *malgo.AllocatedContext
	dev  *malgo.Device
}

// NewMicrophone returns an unstarted microphone source.
func NewMicrophone(ring *audio.Ring, sampleRate int, device string) *Microphone {
	return &Microphone{ring: ring, sampleRate: sampleRate, device: device}
}

// Start opens the device and begins writing captured samples to the ring.
func (m *Microphone) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dev != nil {
		return nil
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("capture: init audio context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(m.sampleRate)

	name := "default"
	if m.device != "" {
		info, err := findDevice(mctx, m.device)
		if err != nil {
			_ = mctx.Uninit()
			mctx.Free()
			return err
		}
		cfg.Capture.DeviceID = info.ID.Pointer()
		name = info.Name()
	}

	dev, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			m.ring.Write(audio.PCM16ToFloat32(in))
		},
	})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("capture: init device %q: %w", name, err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("capture: start device %q: %w", name, err)
	}

	m.mctx, m.dev = mctx, dev
	slog.Info("capture: microphone started", "device", name, "sample_rate", m.sampleRate)
	return nil
}

func findDevice(mctx *malgo.AllocatedContext, want string) (malgo.DeviceInfo, error) {
	devices, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceInfo{}, fmt.Errorf("capture: list devices: %w", err)
	}
	want = strings.ToLower(want)
	var names []string
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.Name()), want) {
			return d, nil
		}
		names = append(names, d.Name())
	}
	return malgo.DeviceInfo{}, fmt.Errorf("capture: no input device matching %q (have %s)", want, strings.Join(names, ", "))
}

// Close stops the device. Safe to call more than once.
func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dev == nil {
		return nil
	}
	_ = m.dev.Stop()
	m.dev.Uninit()
	_ = m.mctx.Uninit()
	m.mctx.Free()
	m.dev, m.mctx = nil, nil
	return nil
}
