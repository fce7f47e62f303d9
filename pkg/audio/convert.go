package audio

import (
	"encoding/binary"
	"math"
)

// PCM16ToFloat32 interprets pcm as signed 16-bit little-endian samples and
// normalizes them to [-1, 1) by dividing by 32768. An odd trailing byte is
// padded with a zero high byte rather than dropped.
func PCM16ToFloat32(pcm []byte) []float32 {
	if len(pcm)%2 != 0 {
		padded := make([]byte, len(pcm)+1)
		copy(padded, pcm)
		pcm = padded
	}
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = float32(v) / 32768.0
	}
	return samples
}

// Float32ToPCM16 converts normalized samples back to signed 16-bit
// little-endian PCM, clamping values outside [-1, 1].
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := math.Round(float64(s) * 32768.0)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// Int16ToFloat32 normalizes a slice of decoded int16 samples.
func Int16ToFloat32(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v) / 32768.0
	}
	return out
}

// Downmix averages interleaved multi-channel samples into a single channel.
// With channels <= 1 the input is returned unchanged.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			sum += interleaved[i*channels+ch]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// StereoToMono averages L+R per interleaved int16 stereo frame. It uses int32
// arithmetic so loud frames cannot overflow.
func StereoToMono(stereo []int16) []int16 {
	frames := len(stereo) / 2
	out := make([]int16, frames)
	for i := range frames {
		out[i] = int16((int32(stereo[i*2]) + int32(stereo[i*2+1])) / 2)
	}
	return out
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. Matching rates, invalid rates and inputs shorter than two
// samples are returned unchanged.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	last := len(samples) - 1
	for i := range dstLen {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out
}

// RMS returns the root-mean-square energy of the samples in [0, 1].
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
