package decode

import (
	"context"
	"errors"

	"github.com/MrWong99/lingualink/pkg/audio"
)

// rawPCMStage is the last resort: the blob is read as s16le mono PCM at an
// assumed source rate.
type rawPCMStage struct {
	sourceRate int
}

func (rawPCMStage) Name() string { return "raw_pcm" }

func (s rawPCMStage) Decode(_ context.Context, data []byte, targetRate int) ([]float32, error) {
	if len(data) == 0 {
		return nil, errors.New("decode: no bytes for raw pcm")
	}
	samples := audio.PCM16ToFloat32(data)
	if s.sourceRate != targetRate {
		samples = audio.Resample(samples, s.sourceRate, targetRate)
	}
	return samples, nil
}
