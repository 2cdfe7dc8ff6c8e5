package pcm

import (
	"encoding/binary"
	"fmt"
	"time"
)

const bytesPerSample = 2

// EncodePCM16LE serializes samples as little-endian 16-bit PCM.
func EncodePCM16LE(samples []int16) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(s))
	}
	return out
}

// DecodePCM16LE parses little-endian 16-bit PCM.
func DecodePCM16LE(data []byte) ([]int16, error) {
	if len(data)%bytesPerSample != 0 {
		return nil, fmt.Errorf("pcm payload length %d is not a multiple of %d", len(data), bytesPerSample)
	}
	out := make([]int16, len(data)/bytesPerSample)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*bytesPerSample:]))
	}
	return out, nil
}

// FromPCM16LE decodes raw engine-boundary bytes into a frame.
func FromPCM16LE(data []byte, rate int, capturedAt time.Time) (Frame, error) {
	samples, err := DecodePCM16LE(data)
	if err != nil {
		return Frame{}, err
	}
	return owned(samples, rate, capturedAt), nil
}

// DownmixInterleaved averages interleaved multi-channel integer samples of the given bit depth
// into mono 16-bit samples.
func DownmixInterleaved(samples []int, channels int, bitDepth int) []int16 {
	if channels < 1 {
		channels = 1
	}
	scale := depthScale(bitDepth)
	offset := 0.0
	if bitDepth == 8 {
		// 8-bit WAV is unsigned.
		offset = 128
	}

	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for c := 0; c < channels; c++ {
			sum += float64(samples[i*channels+c]) - offset
		}
		out[i] = clip(sum / float64(channels) * scale)
	}
	return out
}

func depthScale(bitDepth int) float64 {
	switch {
	case bitDepth <= 0, bitDepth == 16:
		return 1
	case bitDepth < 16:
		return float64(int(1) << (16 - bitDepth))
	default:
		return 1 / float64(int(1)<<(bitDepth-16))
	}
}
