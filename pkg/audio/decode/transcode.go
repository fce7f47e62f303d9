package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/MrWong99/lingualink/pkg/audio"
)

var errShortOutput = errors.New("decode: transcoder produced no audio beyond the header")

// transcodeStage pipes the blob through ffmpeg, which understands streaming
// containers (webm/opus, ogg, mp4) that the in-process decoders do not.
type transcodeStage struct {
	path string
}

func (s *transcodeStage) Name() string { return "transcode" }

func (s *transcodeStage) Decode(ctx context.Context, data []byte, targetRate int) ([]float32, error) {
	cmd := exec.CommandContext(ctx, s.path,
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-f", "wav",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(targetRate),
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("decode: ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() <= audio.WAVHeaderSize {
		return nil, errShortOutput
	}

	samples, f, err := audio.DecodeWAV(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("decode: parse ffmpeg output: %w", err)
	}
	return toTarget(samples, f, targetRate), nil
}
