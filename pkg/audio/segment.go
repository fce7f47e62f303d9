// Package audio provides the PCM primitives shared by the decoder chain, the
// capture sources and the transcribers: normalized float segments, 16-bit PCM
// conversion, resampling, WAV encoding and a fixed-capacity sample ring.
package audio

import "time"

// TargetSampleRate is the sample rate every transcriber in lingualink expects.
const TargetSampleRate = 16000

// Segment is a mono run of normalized float samples in [-1, 1] at a fixed
// sample rate. A zero-length Segment is a valid value meaning "nothing usable
// was decoded".
type Segment struct {
	SampleRate int
	Samples    []float32
}

// Len returns the number of samples in the segment.
func (s Segment) Len() int { return len(s.Samples) }

// Empty reports whether the segment carries no samples.
func (s Segment) Empty() bool { return len(s.Samples) == 0 }

// Duration returns the playback length of the segment. It returns zero when
// the sample rate is unknown.
func (s Segment) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(s.Samples)) * time.Second / time.Duration(s.SampleRate)
}

// Silent reports whether every sample is exactly zero. An empty segment is
// silent.
func (s Segment) Silent() bool {
	for _, v := range s.Samples {
		if v != 0 {
			return false
		}
	}
	return true
}

// SamplesFor returns how many samples d spans at rate.
func SamplesFor(d time.Duration, rate int) int {
	return int(int64(d) * int64(rate) / int64(time.Second))
}
