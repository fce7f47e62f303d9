package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mewkiz/flac"

	"github.com/MrWong99/lingualink/pkg/audio"
)

var errUnknownFormat = errors.New("decode: unrecognised audio signature")

var flacMagic = []byte("fLaC")

func isFLAC(data []byte) bool { return bytes.HasPrefix(data, flacMagic) }

// memoryStage decodes self-contained WAV or FLAC files held in memory.
type memoryStage struct{}

func (memoryStage) Name() string { return "direct" }

func (memoryStage) Decode(_ context.Context, data []byte, targetRate int) ([]float32, error) {
	switch {
	case audio.IsWAV(data):
		samples, f, err := audio.DecodeWAV(data)
		if err != nil {
			return nil, err
		}
		return toTarget(samples, f, targetRate), nil

	case isFLAC(data):
		stream, err := flac.New(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode: flac: %w", err)
		}
		defer stream.Close()
		samples, f, err := readFLAC(stream)
		if err != nil {
			return nil, err
		}
		return toTarget(samples, f, targetRate), nil

	default:
		return nil, errUnknownFormat
	}
}

// tempFileStage materializes the blob so decoders that need a seekable file
// can open it by path. The file is removed on every return path.
type tempFileStage struct {
	dir string
}

func (s *tempFileStage) Name() string { return "tempfile" }

func (s *tempFileStage) Decode(_ context.Context, data []byte, targetRate int) (samples []float32, err error) {
	if !audio.IsWAV(data) && !isFLAC(data) {
		return nil, errUnknownFormat
	}

	f, err := os.CreateTemp(s.dir, "lingualink-*.audio")
	if err != nil {
		return nil, fmt.Errorf("decode: create temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, fmt.Errorf("decode: write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("decode: close temp file: %w", err)
	}

	if isFLAC(data) {
		stream, err := flac.Open(path)
		if err != nil {
			return nil, fmt.Errorf("decode: flac open %s: %w", path, err)
		}
		defer stream.Close()
		out, format, err := readFLAC(stream)
		if err != nil {
			return nil, err
		}
		return toTarget(out, format, targetRate), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("decode: read temp file: %w", err)
	}
	out, format, err := audio.DecodeWAV(raw)
	if err != nil {
		return nil, err
	}
	return toTarget(out, format, targetRate), nil
}

// readFLAC decodes every frame of stream into interleaved floats. A stream
// that breaks off mid-frame keeps whatever decoded cleanly before the break.
func readFLAC(stream *flac.Stream) ([]float32, audio.Format, error) {
	info := stream.Info
	if info == nil || info.BitsPerSample == 0 || info.NChannels == 0 {
		return nil, audio.Format{}, errors.New("decode: flac stream info missing")
	}
	channels := int(info.NChannels)
	scale := float32(int64(1) << (info.BitsPerSample - 1))

	var out []float32
	for {
		fr, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if len(out) > 0 {
				break
			}
			return nil, audio.Format{}, fmt.Errorf("decode: flac frame: %w", err)
		}
		if len(fr.Subframes) != channels {
			return nil, audio.Format{}, fmt.Errorf("decode: flac frame has %d subframes, stream declares %d channels", len(fr.Subframes), channels)
		}
		n := len(fr.Subframes[0].Samples)
		for i := range n {
			for _, sub := range fr.Subframes {
				out = append(out, float32(sub.Samples[i])/scale)
			}
		}
	}
	return out, audio.Format{SampleRate: int(info.SampleRate), Channels: channels}, nil
}
