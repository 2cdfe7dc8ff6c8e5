package audio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbright/murmur/internal/metrics"
	"github.com/rbright/murmur/internal/pcm"
)

const (
	defaultFrameSamples = 1024
	defaultQueueFrames  = 64
)

// ErrCaptureStopped reports a capture stopped before its device was acquired.
var ErrCaptureStopped = errors.New("capture stopped")

// StreamConfig describes the stream a Recorder must open.
type StreamConfig struct {
	Device       string
	SampleRate   int
	FrameSamples int
}

// Stream is an acquired device stream. Close releases the device.
type Stream interface {
	Start()
	Close()
}

// Recorder acquires an input device and writes little-endian 16-bit mono PCM into sink
// until the stream is closed or sink returns an error.
type Recorder interface {
	Open(cfg StreamConfig, sink io.Writer) (Stream, error)
}

// CaptureConfig configures a Capture.
type CaptureConfig struct {
	Device       string
	SampleRate   int
	FrameSamples int
	QueueFrames  int
}

// Capture owns one input device and queues fixed-size frames for independent readers.
//
// The device callback is the producer. When the queue is full the oldest frame is dropped
// (CaptureOverflow) so the driver never blocks.
type Capture struct {
	cfg      CaptureConfig
	recorder Recorder
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu      sync.Mutex
	stream  Stream
	queue   *frameQueue
	stopCh  chan struct{}
	pending []byte
	running bool

	inflight sync.WaitGroup
	bytes    atomic.Int64
	dropped  atomic.Uint64
}

// CaptureOption configures a Capture.
type CaptureOption func(*Capture)

// WithRecorder replaces the PulseAudio recorder.
func WithRecorder(r Recorder) CaptureOption {
	return func(c *Capture) { c.recorder = r }
}

func WithCaptureLogger(logger *slog.Logger) CaptureOption {
	return func(c *Capture) { c.logger = logger }
}

func WithCaptureMetrics(m *metrics.Metrics) CaptureOption {
	return func(c *Capture) { c.metrics = m }
}

func withCaptureClock(now func() time.Time) CaptureOption {
	return func(c *Capture) { c.now = now }
}

// NewCapture builds a stopped capture service.
func NewCapture(cfg CaptureConfig, opts ...CaptureOption) *Capture {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = pcm.DefaultSampleRate
	}
	if cfg.FrameSamples <= 0 {
		cfg.FrameSamples = defaultFrameSamples
	}
	if cfg.QueueFrames <= 0 {
		cfg.QueueFrames = defaultQueueFrames
	}

	c := &Capture{
		cfg:      cfg,
		recorder: pulseRecorder{},
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
		queue:    newFrameQueue(cfg.QueueFrames),
	}
	c.queue.close()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the effective configuration.
func (c *Capture) Config() CaptureConfig {
	return c.cfg
}

// Start acquires the device and begins producing frames. It returns a *DeviceError when the
// device cannot be acquired; the capture then stays stopped. Starting a running capture is a
// no-op. Cancelling ctx stops the capture.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}

	queue := newFrameQueue(c.cfg.QueueFrames)
	stopCh := make(chan struct{})
	c.queue = queue
	c.stopCh = stopCh
	c.pending = nil
	c.running = true
	c.mu.Unlock()

	stream, err := c.recorder.Open(StreamConfig{
		Device:       c.cfg.Device,
		SampleRate:   c.cfg.SampleRate,
		FrameSamples: c.cfg.FrameSamples,
	}, writerFunc(c.onPCM))
	if err != nil {
		c.mu.Lock()
		c.running = false
		close(stopCh)
		c.mu.Unlock()
		queue.close()

		c.logger.Error("capture device unavailable", "device", c.cfg.Device, "error", err.Error())
		return &DeviceError{Op: "acquire", Device: c.cfg.Device, Err: err}
	}

	c.mu.Lock()
	if !c.running || c.stopCh != stopCh {
		// Stop ran while the device was being acquired.
		c.mu.Unlock()
		stream.Close()
		return &DeviceError{Op: "acquire", Device: c.cfg.Device, Err: ErrCaptureStopped}
	}
	c.stream = stream
	c.mu.Unlock()
	stream.Start()

	c.logger.Info("capture started",
		"device", c.cfg.Device,
		"sample_rate", c.cfg.SampleRate,
		"frame_samples", c.cfg.FrameSamples,
		"queue_frames", c.cfg.QueueFrames,
	)

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Stop()
		case <-stopCh:
		}
	}()
	return nil
}

// Stop releases the device, flushes a trailing partial frame, and closes the queue.
// It is idempotent and safe to call from any goroutine. Queued frames remain readable.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	close(c.stopCh)
	stream := c.stream
	c.stream = nil
	queue := c.queue
	c.mu.Unlock()

	if stream != nil {
		stream.Close()
	}

	c.inflight.Wait()

	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(pending) >= 2 {
		if frame, err := pcm.FromPCM16LE(pending[:len(pending)&^1], c.cfg.SampleRate, c.now()); err == nil {
			c.enqueue(queue, frame)
		}
	}
	queue.close()

	c.logger.Info("capture stopped",
		"device", c.cfg.Device,
		"bytes", c.bytes.Load(),
		"dropped_frames", c.dropped.Load(),
	)
	return nil
}

// Running reports whether the device is held.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// ReadFrame pulls the next frame. Non-blocking reads return false when the queue is empty;
// blocking reads wait until a frame arrives or the capture stops and drains.
func (c *Capture) ReadFrame(blocking bool) (pcm.Frame, bool) {
	queue := c.currentQueue()
	var (
		frame pcm.Frame
		ok    bool
	)
	if blocking {
		frame, ok = queue.pop()
	} else {
		frame, ok = queue.tryPop()
	}
	c.metrics.SetQueueDepth(queue.len())
	return frame, ok
}

// ReadBuffered waits up to timeout for a frame. A non-positive timeout does not wait.
func (c *Capture) ReadBuffered(timeout time.Duration) (pcm.Frame, bool) {
	queue := c.currentQueue()
	frame, ok := queue.popTimeout(timeout)
	c.metrics.SetQueueDepth(queue.len())
	return frame, ok
}

// Dropped counts frames discarded by the overflow policy since construction.
func (c *Capture) Dropped() uint64 {
	return c.dropped.Load()
}

// BytesCaptured reports total PCM bytes accepted from the device.
func (c *Capture) BytesCaptured() int64 {
	return c.bytes.Load()
}

func (c *Capture) currentQueue() *frameQueue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue
}

// onPCM receives raw device PCM and enqueues whole frames. It returns io.EOF once stopped so
// the driver ends the stream; it never panics into the driver.
func (c *Capture) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same mutex as running so Stop's Wait cannot race it.
	c.inflight.Add(1)
	defer c.inflight.Done()

	frameBytes := c.cfg.FrameSamples * 2
	c.pending = append(c.pending, buffer...)
	raw := make([][]byte, 0, len(c.pending)/frameBytes)
	for len(c.pending) >= frameBytes {
		raw = append(raw, c.pending[:frameBytes:frameBytes])
		c.pending = c.pending[frameBytes:]
	}
	if len(c.pending) == 0 {
		c.pending = nil
	}
	queue := c.queue
	c.mu.Unlock()

	c.bytes.Add(int64(len(buffer)))

	end := c.now()
	frameDuration := time.Duration(c.cfg.FrameSamples) * time.Second / time.Duration(c.cfg.SampleRate)
	for i, chunk := range raw {
		capturedAt := end.Add(-time.Duration(len(raw)-i) * frameDuration)
		frame, err := pcm.FromPCM16LE(chunk, c.cfg.SampleRate, capturedAt)
		if err != nil {
			c.logger.Warn("discarding malformed capture frame", "error", err.Error())
			continue
		}
		c.enqueue(queue, frame)
	}
	return len(buffer), nil
}

func (c *Capture) enqueue(queue *frameQueue, frame pcm.Frame) {
	c.metrics.FrameCaptured()
	if n := queue.push(frame); n > 0 {
		c.dropped.Add(uint64(n))
		for range n {
			c.metrics.FrameDropped()
		}
	}
	c.metrics.SetQueueDepth(queue.len())
}
