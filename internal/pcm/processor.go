package pcm

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// fullScale is the reference amplitude for dBFS levels.
	fullScale = 32767.0
	// vadScale normalizes samples into [-1, 1) for the energy detector.
	vadScale = 32768.0

	// VoiceThreshold is the normalized RMS above which a frame counts as speech.
	VoiceThreshold = 0.01
	// VoiceCeiling is the normalized RMS that maps to confidence 1.
	VoiceCeiling = 0.1
)

var (
	// ErrInvalidChunkDuration is returned when a chunk would hold no samples.
	ErrInvalidChunkDuration = errors.New("chunk duration yields no samples")
	// ErrNoChunks is returned when concatenating an empty list.
	ErrNoChunks = errors.New("no chunks to concatenate")
	// ErrRateMismatch is returned when concatenating frames at different rates.
	ErrRateMismatch = errors.New("chunk sample rates differ")
	// ErrInvalidRate is returned for non-positive sample rates.
	ErrInvalidRate = errors.New("sample rate must be positive")
)

// RMS is the root-mean-square amplitude in raw sample units.
func RMS(f Frame) float64 {
	if len(f.samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range f.samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(f.samples)))
}

// LevelDB reports the frame's RMS level in dBFS. Silence is -Inf.
func LevelDB(f Frame) float64 {
	rms := RMS(f)
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms/fullScale)
}

// Normalize scales the frame so its RMS level reaches targetDB (dBFS).
// Samples that would overflow are clipped to the 16-bit range. Silent frames are returned as is.
// Repeated calls are stable only while the first pass leaves the peaks below full scale;
// once samples clip, the level lands under targetDB and a second call raises it again.
func Normalize(f Frame, targetDB float64) Frame {
	rms := RMS(f)
	if rms == 0 {
		return f
	}
	current := 20 * math.Log10(rms/fullScale)
	return scale(f, math.Pow(10, (targetDB-current)/20))
}

// ApplyGain applies a gain in dB with the same clipping as Normalize.
func ApplyGain(f Frame, gainDB float64) Frame {
	return scale(f, math.Pow(10, gainDB/20))
}

func scale(f Frame, gain float64) Frame {
	out := make([]int16, len(f.samples))
	for i, s := range f.samples {
		out[i] = clip(float64(s) * gain)
	}
	return owned(out, f.rate, f.capturedAt)
}

// DetectVoiceActivity runs an RMS energy check against VoiceThreshold.
// Confidence is the normalized RMS over VoiceCeiling, capped at 1.
func DetectVoiceActivity(f Frame) (bool, float64) {
	if len(f.samples) == 0 {
		return false, 0
	}
	rms := RMS(f) / vadScale
	return rms > VoiceThreshold, math.Min(rms/VoiceCeiling, 1)
}

// ChunkSize is the sample count of a durationMs chunk at rate.
func ChunkSize(rate int, durationMs int) int {
	return rate * durationMs / 1000
}

// SplitChunks cuts the frame into consecutive chunks of durationMs. The last chunk may be
// shorter; it is kept when non-empty. Each chunk's capture time is offset from the frame's.
// An empty frame yields a single empty chunk so Concatenate can rebuild it.
func SplitChunks(f Frame, durationMs int) ([]Frame, error) {
	size := ChunkSize(f.rate, durationMs)
	if size <= 0 {
		return nil, fmt.Errorf("%w: rate=%d duration_ms=%d", ErrInvalidChunkDuration, f.rate, durationMs)
	}
	if len(f.samples) == 0 {
		return []Frame{f}, nil
	}

	chunks := make([]Frame, 0, (len(f.samples)+size-1)/size)
	for start := 0; start < len(f.samples); start += size {
		end := min(start+size, len(f.samples))
		offset := time.Duration(start) * time.Second / time.Duration(f.rate)
		chunks = append(chunks, NewFrame(f.samples[start:end], f.rate, f.capturedAt.Add(offset)))
	}
	return chunks, nil
}

// Concatenate joins chunks in order. All chunks must share one sample rate.
// The result carries the first chunk's capture time.
func Concatenate(chunks []Frame) (Frame, error) {
	if len(chunks) == 0 {
		return Frame{}, ErrNoChunks
	}

	rate := chunks[0].rate
	total := 0
	for i, c := range chunks {
		if c.rate != rate {
			return Frame{}, fmt.Errorf("%w: chunk %d is %d Hz, want %d Hz", ErrRateMismatch, i, c.rate, rate)
		}
		total += len(c.samples)
	}

	out := make([]int16, 0, total)
	for _, c := range chunks {
		out = append(out, c.samples...)
	}
	return owned(out, rate, chunks[0].capturedAt), nil
}
