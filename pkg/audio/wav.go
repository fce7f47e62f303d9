package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// WAVHeaderSize is the size of a canonical 44-byte PCM WAV header.
const WAVHeaderSize = 44

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

// ErrNotWAV is returned by [DecodeWAV] when the input does not start with a
// RIFF/WAVE signature.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE stream")

// Format describes the sample rate and channel count of decoded audio.
type Format struct {
	SampleRate int
	Channels   int
}

// IsWAV reports whether data begins with a RIFF/WAVE signature.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE"))
}

// EncodeWAV wraps 16-bit little-endian PCM in a canonical 44-byte WAV header.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bps = 16
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, WAVHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bps)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// DecodeWAV parses a RIFF/WAVE stream and returns its interleaved samples
// normalized to float. It walks the chunk list instead of assuming a fixed
// 44-byte layout, and tolerates a data chunk whose declared size exceeds the
// bytes actually present (as written by streaming encoders such as ffmpeg
// writing to a pipe). Supported encodings are 8/16/24/32-bit integer PCM and
// 32-bit IEEE float.
func DecodeWAV(data []byte) ([]float32, Format, error) {
	if !IsWAV(data) {
		return nil, Format{}, ErrNotWAV
	}

	var (
		format     uint16
		channels   int
		sampleRate int
		bits       int
		haveFmt    bool
	)

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return nil, Format{}, fmt.Errorf("audio: wav fmt chunk truncated")
			}
			format = binary.LittleEndian.Uint16(data[body:])
			channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			bits = int(binary.LittleEndian.Uint16(data[body+14:]))
			if format == wavFormatExtensible && size >= 26 && body+26 <= len(data) {
				format = binary.LittleEndian.Uint16(data[body+24:])
			}
			haveFmt = true

		case "data":
			if !haveFmt {
				return nil, Format{}, fmt.Errorf("audio: wav data chunk before fmt chunk")
			}
			end := body + size
			if size < 0 || end > len(data) || end < body {
				end = len(data)
			}
			samples, err := decodeWAVSamples(data[body:end], format, bits)
			if err != nil {
				return nil, Format{}, err
			}
			if channels <= 0 || sampleRate <= 0 {
				return nil, Format{}, fmt.Errorf("audio: wav header declares %d channels at %d Hz", channels, sampleRate)
			}
			return samples, Format{SampleRate: sampleRate, Channels: channels}, nil
		}

		next := body + size + size%2
		if next <= pos {
			break
		}
		pos = next
	}
	return nil, Format{}, fmt.Errorf("audio: wav data chunk not found")
}

func decodeWAVSamples(raw []byte, format uint16, bits int) ([]float32, error) {
	switch {
	case format == wavFormatPCM && bits == 16:
		return PCM16ToFloat32(raw[:len(raw)&^1]), nil

	case format == wavFormatPCM && bits == 8:
		out := make([]float32, len(raw))
		for i, b := range raw {
			out[i] = (float32(b) - 128) / 128
		}
		return out, nil

	case format == wavFormatPCM && bits == 24:
		n := len(raw) / 3
		out := make([]float32, n)
		for i := range n {
			v := int32(raw[i*3]) | int32(raw[i*3+1])<<8 | int32(int8(raw[i*3+2]))<<16
			out[i] = float32(v) / (1 << 23)
		}
		return out, nil

	case format == wavFormatPCM && bits == 32:
		n := len(raw) / 4
		out := make([]float32, n)
		for i := range n {
			out[i] = float32(int32(binary.LittleEndian.Uint32(raw[i*4:]))) / (1 << 31)
		}
		return out, nil

	case format == wavFormatFloat && bits == 32:
		n := len(raw) / 4
		out := make([]float32, n)
		for i := range n {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return out, nil

	default:
		return nil, fmt.Errorf("audio: unsupported wav encoding (format %d, %d bits)", format, bits)
	}
}
