package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/coder/websocket"
	"layeh.com/gopus"

	"github.com/MrWong99/lingualink/pkg/audio"
)

// Publisher frame formats, selected with the format query parameter.
const (
	FormatOpus = "opus"
	FormatPCM  = "pcm"
)

// Opus frames are 48 kHz stereo.
const (
	opusSampleRate = 48000
	opusChannels   = 2
	// opusMaxFrameSize is the largest frame (120 ms) a packet may carry.
	opusMaxFrameSize = opusSampleRate * 120 / 1000
)

// ErrPublisherBusy is returned when a second publisher tries to connect.
var ErrPublisherBusy = errors.New("capture: a publisher is already connected")

// Publisher accepts one remote audio feed over a websocket. Each binary
// message is one Opus packet (format=opus, the default) or a block of s16le
// PCM (format=pcm, with rate and channels query parameters).
type Publisher struct {
	ring       *audio.Ring
	sampleRate int

	mu     sync.Mutex
	active bool
	base   context.Context
	cancel context.CancelFunc
}

// NewPublisher returns a publisher endpoint writing into ring.
func NewPublisher(ring *audio.Ring, sampleRate int) *Publisher {
	base, cancel := context.WithCancel(context.Background())
	return &Publisher{ring: ring, sampleRate: sampleRate, base: base, cancel: cancel}
}

// Start implements [Source]. The publisher is passive; audio arrives through
// ServeHTTP.
func (p *Publisher) Start(context.Context) error { return nil }

// Close disconnects the current publisher.
func (p *Publisher) Close() error {
	p.cancel()
	return nil
}

type frameDecoder func(frame []byte) ([]float32, error)

func (p *Publisher) newDecoder(format string, rate, channels int) (frameDecoder, error) {
	switch format {
	case FormatOpus, "":
		dec, err := gopus.NewDecoder(opusSampleRate, opusChannels)
		if err != nil {
			return nil, fmt.Errorf("capture: create opus decoder: %w", err)
		}
		return func(frame []byte) ([]float32, error) {
			pcm, err := dec.Decode(frame, opusMaxFrameSize, false)
			if err != nil {
				return nil, fmt.Errorf("capture: opus decode: %w", err)
			}
			mono := audio.Int16ToFloat32(audio.StereoToMono(pcm))
			return audio.Resample(mono, opusSampleRate, p.sampleRate), nil
		}, nil

	case FormatPCM:
		if rate <= 0 || channels <= 0 {
			return nil, fmt.Errorf("capture: invalid pcm format %d Hz x %d", rate, channels)
		}
		return func(frame []byte) ([]float32, error) {
			mono := audio.Downmix(audio.PCM16ToFloat32(frame), channels)
			return audio.Resample(mono, rate, p.sampleRate), nil
		}, nil

	default:
		return nil, fmt.Errorf("capture: unknown publisher format %q", format)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		return -1
	}
	return def
}

// ServeHTTP upgrades the request and feeds received frames into the ring
// until the publisher disconnects.
func (p *Publisher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	decode, err := p.newDecoder(
		r.URL.Query().Get("format"),
		queryInt(r, "rate", p.sampleRate),
		queryInt(r, "channels", 1),
	)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	if p.active || p.base.Err() != nil {
		p.mu.Unlock()
		http.Error(w, ErrPublisherBusy.Error(), http.StatusConflict)
		return
	}
	p.active = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.active = false
		p.mu.Unlock()
	}()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		slog.Warn("capture: publisher upgrade failed", "err", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(p.base)
	defer cancel()
	stop := context.AfterFunc(r.Context(), cancel)
	defer stop()

	slog.Info("capture: publisher connected", "remote", r.RemoteAddr, "format", r.URL.Query().Get("format"))
	var frames, bad int
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			slog.Info("capture: publisher disconnected", "frames", frames, "bad_frames", bad)
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		if typ != websocket.MessageBinary {
			continue
		}
		samples, err := decode(data)
		if err != nil {
			bad++
			slog.Debug("capture: dropping frame", "bytes", len(data), "err", err)
			continue
		}
		frames++
		p.ring.Write(samples)
	}
}
