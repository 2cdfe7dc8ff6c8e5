package audio

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/murmur/internal/pcm"
)

type fakeRecorder struct {
	mu      sync.Mutex
	sink    io.Writer
	cfg     StreamConfig
	err     error
	opened  int
	streams []*fakeStream
}

func (r *fakeRecorder) Open(cfg StreamConfig, sink io.Writer) (Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.opened++
	r.sink = sink
	r.cfg = cfg
	s := &fakeStream{}
	r.streams = append(r.streams, s)
	return s, nil
}

// produce writes one frame whose samples all equal value.
func (r *fakeRecorder) produce(t *testing.T, frameSamples int, value int16) {
	t.Helper()
	samples := make([]int16, frameSamples)
	for i := range samples {
		samples[i] = value
	}
	r.mu.Lock()
	sink := r.sink
	r.mu.Unlock()
	n, err := sink.Write(pcm.EncodePCM16LE(samples))
	require.NoError(t, err)
	require.Equal(t, frameSamples*2, n)
}

type fakeStream struct {
	mu      sync.Mutex
	started bool
	closed  int
}

func (s *fakeStream) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
}

func (s *fakeStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
}

func startTestCapture(t *testing.T, cfg CaptureConfig) (*Capture, *fakeRecorder) {
	t.Helper()
	rec := &fakeRecorder{}
	capture := NewCapture(cfg, WithRecorder(rec))
	require.NoError(t, capture.Start(context.Background()))
	t.Cleanup(func() { _ = capture.Stop() })
	return capture, rec
}

func TestCaptureQueueOverflowDropsOldest(t *testing.T) {
	const capacity = 4
	capture, rec := startTestCapture(t, CaptureConfig{FrameSamples: 8, QueueFrames: capacity})

	for i := 1; i <= capacity+1; i++ {
		rec.produce(t, 8, int16(i))
	}
	require.Equal(t, uint64(1), capture.Dropped())

	for want := 2; want <= capacity+1; want++ {
		frame, ok := capture.ReadFrame(false)
		require.True(t, ok)
		require.Equal(t, int16(want), frame.At(0))
	}
	_, ok := capture.ReadFrame(false)
	require.False(t, ok)
}

func TestCaptureProducerNeverBlocksWhenFull(t *testing.T) {
	capture, rec := startTestCapture(t, CaptureConfig{FrameSamples: 4, QueueFrames: 2})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			rec.produce(t, 4, int16(i))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer blocked on a full queue")
	}
	require.Equal(t, uint64(98), capture.Dropped())
}

func TestCaptureChunksAndStopFlushesPartialFrame(t *testing.T) {
	capture, rec := startTestCapture(t, CaptureConfig{SampleRate: 16000, FrameSamples: 4, QueueFrames: 8})

	samples := []int16{1, 2, 3, 4, 5, 6}
	_, err := rec.sink.Write(pcm.EncodePCM16LE(samples))
	require.NoError(t, err)
	require.Equal(t, int64(12), capture.BytesCaptured())

	frame, ok := capture.ReadFrame(false)
	require.True(t, ok)
	require.Equal(t, []int16{1, 2, 3, 4}, frame.Samples())
	require.Equal(t, 16000, frame.SampleRate())

	require.NoError(t, capture.Stop())

	tail, ok := capture.ReadFrame(true)
	require.True(t, ok)
	require.Equal(t, []int16{5, 6}, tail.Samples())

	_, ok = capture.ReadFrame(true)
	require.False(t, ok)
}

func TestCaptureStartFailureIsDeviceError(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("no such source")}
	capture := NewCapture(CaptureConfig{Device: "usb-mic"}, WithRecorder(rec))

	err := capture.Start(context.Background())
	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	require.Equal(t, "acquire", devErr.Op)
	require.Equal(t, "usb-mic", devErr.Device)
	require.False(t, capture.Running())

	_, ok := capture.ReadFrame(false)
	require.False(t, ok)
	_, ok = capture.ReadFrame(true)
	require.False(t, ok)
	require.NoError(t, capture.Stop())
}

func TestCaptureStopIsIdempotentAndReleasesDevice(t *testing.T) {
	capture, rec := startTestCapture(t, CaptureConfig{FrameSamples: 4})
	require.True(t, rec.streams[0].started)

	require.NoError(t, capture.Stop())
	require.NoError(t, capture.Stop())
	require.Equal(t, 1, rec.streams[0].closed)
	require.False(t, capture.Running())

	n, err := rec.sink.Write([]byte{1, 2})
	require.Zero(t, n)
	require.ErrorIs(t, err, io.EOF)
}

func TestCaptureStopFromAnotherGoroutineUnblocksReader(t *testing.T) {
	capture, _ := startTestCapture(t, CaptureConfig{FrameSamples: 4})

	result := make(chan bool, 1)
	go func() {
		_, ok := capture.ReadFrame(true)
		result <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	go func() { _ = capture.Stop() }()

	select {
	case ok := <-result:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("blocking read did not return after stop")
	}
}

func TestCaptureReadBufferedTimesOut(t *testing.T) {
	capture, rec := startTestCapture(t, CaptureConfig{FrameSamples: 4})

	start := time.Now()
	_, ok := capture.ReadBuffered(30 * time.Millisecond)
	require.False(t, ok)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	rec.produce(t, 4, 9)
	frame, ok := capture.ReadBuffered(time.Second)
	require.True(t, ok)
	require.Equal(t, int16(9), frame.At(3))
}

func TestCaptureContextCancelStops(t *testing.T) {
	rec := &fakeRecorder{}
	capture := NewCapture(CaptureConfig{FrameSamples: 4}, WithRecorder(rec))
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, capture.Start(ctx))
	cancel()

	require.Eventually(t, func() bool { return !capture.Running() }, time.Second, 5*time.Millisecond)
}

func TestCaptureRestartOpensFreshStream(t *testing.T) {
	capture, rec := startTestCapture(t, CaptureConfig{FrameSamples: 4, QueueFrames: 1})
	rec.produce(t, 4, 1)
	rec.produce(t, 4, 2)
	require.NoError(t, capture.Stop())

	require.NoError(t, capture.Start(context.Background()))
	require.Equal(t, 2, rec.opened)
	rec.produce(t, 4, 3)

	frame, ok := capture.ReadFrame(false)
	require.True(t, ok)
	require.Equal(t, int16(3), frame.At(0))
	require.Equal(t, uint64(1), capture.Dropped())
}

func TestCaptureFrameTimestampsAreOrdered(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	rec := &fakeRecorder{}
	capture := NewCapture(CaptureConfig{SampleRate: 16000, FrameSamples: 160, QueueFrames: 8},
		WithRecorder(rec), withCaptureClock(func() time.Time { return base }))
	require.NoError(t, capture.Start(context.Background()))
	defer capture.Stop()

	_, err := rec.sink.Write(make([]byte, 160*2*3))
	require.NoError(t, err)

	var stamps []time.Time
	for {
		frame, ok := capture.ReadFrame(false)
		if !ok {
			break
		}
		stamps = append(stamps, frame.CapturedAt())
	}
	require.Equal(t, []time.Time{
		base.Add(-30 * time.Millisecond),
		base.Add(-20 * time.Millisecond),
		base.Add(-10 * time.Millisecond),
	}, stamps)
}

func TestCaptureDefaults(t *testing.T) {
	capture := NewCapture(CaptureConfig{})
	cfg := capture.Config()
	require.Equal(t, pcm.DefaultSampleRate, cfg.SampleRate)
	require.Equal(t, 1024, cfg.FrameSamples)
	require.Equal(t, 64, cfg.QueueFrames)
	require.Equal(t, DropOldest, CaptureOverflow)
}
