// Package pcm holds the immutable audio frame type and the pure signal operations applied to it.
package pcm

import (
	"math"
	"slices"
	"time"
)

const (
	// MinSample and MaxSample bound signed 16-bit PCM.
	MinSample = math.MinInt16
	MaxSample = math.MaxInt16

	// DefaultSampleRate is the engine-facing rate for every backend.
	DefaultSampleRate = 16000
)

// Frame is an ordered run of mono signed 16-bit samples at one sample rate.
//
// Frames are immutable: constructors copy their input and Samples returns a copy.
type Frame struct {
	samples    []int16
	rate       int
	capturedAt time.Time
}

// NewFrame copies samples into a new frame.
func NewFrame(samples []int16, rate int, capturedAt time.Time) Frame {
	return Frame{samples: slices.Clone(samples), rate: rate, capturedAt: capturedAt}
}

// owned wraps samples without copying; callers must not retain the slice.
func owned(samples []int16, rate int, capturedAt time.Time) Frame {
	return Frame{samples: samples, rate: rate, capturedAt: capturedAt}
}

// Samples returns a copy of the frame's samples.
func (f Frame) Samples() []int16 {
	return slices.Clone(f.samples)
}

// At returns sample i.
func (f Frame) At(i int) int16 {
	return f.samples[i]
}

// Len reports the sample count.
func (f Frame) Len() int {
	return len(f.samples)
}

// Empty reports whether the frame carries no samples.
func (f Frame) Empty() bool {
	return len(f.samples) == 0
}

// SampleRate reports the rate in Hz.
func (f Frame) SampleRate() int {
	return f.rate
}

// CapturedAt reports when the first sample was captured.
func (f Frame) CapturedAt() time.Time {
	return f.capturedAt
}

// DurationSeconds is sampleCount / sampleRate.
func (f Frame) DurationSeconds() float64 {
	if f.rate <= 0 {
		return 0
	}
	return float64(len(f.samples)) / float64(f.rate)
}

// Duration converts DurationSeconds to a time.Duration, truncated to the nanosecond.
func (f Frame) Duration() time.Duration {
	if f.rate <= 0 {
		return 0
	}
	return time.Duration(len(f.samples)) * time.Second / time.Duration(f.rate)
}

// Bytes encodes the frame as 16-bit little-endian PCM.
func (f Frame) Bytes() []byte {
	return EncodePCM16LE(f.samples)
}

// Equal compares rate and samples. Capture timestamps are ignored.
func (f Frame) Equal(other Frame) bool {
	return f.rate == other.rate && slices.Equal(f.samples, other.samples)
}

// WithCapturedAt returns a frame sharing samples with f but stamped at ts.
func (f Frame) WithCapturedAt(ts time.Time) Frame {
	return Frame{samples: f.samples, rate: f.rate, capturedAt: ts}
}

func clip(v float64) int16 {
	v = math.Round(v)
	if v > MaxSample {
		return MaxSample
	}
	if v < MinSample {
		return MinSample
	}
	return int16(v)
}
