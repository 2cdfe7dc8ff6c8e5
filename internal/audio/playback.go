package audio

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/rbright/murmur/internal/pcm"
)

// Sink writes mono samples to an output device and returns once they have drained.
type Sink interface {
	Play(ctx context.Context, device string, samples []int16, rate int) error
}

// Playback owns one output device. Calls to Play are serialized.
type Playback struct {
	device string
	sink   Sink
	logger *slog.Logger

	mu sync.Mutex
}

// PlaybackOption configures a Playback.
type PlaybackOption func(*Playback)

// WithSink replaces the PulseAudio sink.
func WithSink(s Sink) PlaybackOption {
	return func(p *Playback) { p.sink = s }
}

func WithPlaybackLogger(logger *slog.Logger) PlaybackOption {
	return func(p *Playback) { p.logger = logger }
}

// NewPlayback targets device; empty means the server default sink.
func NewPlayback(device string, opts ...PlaybackOption) *Playback {
	p := &Playback{
		device: device,
		sink:   pulseSink{},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Play blocks until frame has been played or ctx is cancelled. Device failures come back as
// *DeviceError.
func (p *Playback) Play(ctx context.Context, frame pcm.Frame) error {
	if frame.Empty() {
		return nil
	}
	if frame.SampleRate() <= 0 {
		return &DeviceError{Op: "write", Device: p.device, Err: pcm.ErrInvalidRate}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.sink.Play(ctx, p.device, frame.Samples(), frame.SampleRate())
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		p.logger.Error("playback failed", "device", p.device, "error", err.Error())
		return &DeviceError{Op: "write", Device: p.device, Err: err}
	}

	p.logger.Debug("playback finished",
		"device", p.device,
		"duration_ms", frame.Duration().Milliseconds(),
	)
	return nil
}
