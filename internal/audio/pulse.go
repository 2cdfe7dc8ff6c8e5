// Package audio owns the PulseAudio input and output devices: discovery, capture into a bounded
// frame queue, and playback.
package audio

import (
	"context"
	"fmt"
	"io"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const applicationName = "murmur"

// DeviceInfo describes one Pulse source or sink.
type DeviceInfo struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Channels    int    `json:"channels"`
	SampleRate  int    `json:"sample_rate"`
	Default     bool   `json:"is_default"`
	State       string `json:"state,omitempty"`
	Available   bool   `json:"available"`
	Muted       bool   `json:"muted"`
}

func newClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(applicationName),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// ListInputDevices returns Pulse sources with default/availability metadata.
func ListInputDevices(_ context.Context) ([]DeviceInfo, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}

	var replies pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &replies); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(replies))
	for _, source := range replies {
		if source == nil {
			continue
		}
		devices = append(devices, sourceInfo(source, defaultSource.ID()))
	}
	return devices, nil
}

// ListOutputDevices returns Pulse sinks with default/availability metadata.
func ListOutputDevices(_ context.Context) ([]DeviceInfo, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSink, err := client.DefaultSink()
	if err != nil {
		return nil, fmt.Errorf("read default sink: %w", err)
	}

	var replies pulseproto.GetSinkInfoListReply
	if err := client.RawRequest(&pulseproto.GetSinkInfoList{}, &replies); err != nil {
		return nil, fmt.Errorf("list sinks: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(replies))
	for _, sink := range replies {
		if sink == nil {
			continue
		}
		devices = append(devices, sinkInfo(sink, defaultSink.ID()))
	}
	return devices, nil
}

func sourceInfo(source *pulseproto.GetSourceInfoReply, defaultID string) DeviceInfo {
	return DeviceInfo{
		Index:       int(source.SourceIndex),
		Name:        source.SourceName,
		Description: source.Device,
		Channels:    int(source.SampleSpec.Channels),
		SampleRate:  int(source.SampleSpec.Rate),
		Default:     source.SourceName == defaultID,
		State:       stateString(source.State),
		Available:   sourceAvailable(source),
		Muted:       source.Mute,
	}
}

func sinkInfo(sink *pulseproto.GetSinkInfoReply, defaultID string) DeviceInfo {
	available := true
	for _, port := range sink.Ports {
		if port.Name == sink.ActivePortName {
			available = portAvailable(port.Available)
		}
	}
	return DeviceInfo{
		Index:       int(sink.SinkIndex),
		Name:        sink.SinkName,
		Description: sink.Device,
		Channels:    int(sink.SampleSpec.Channels),
		SampleRate:  int(sink.SampleSpec.Rate),
		Default:     sink.SinkName == defaultID,
		State:       stateString(sink.State),
		Available:   available,
		Muted:       sink.Mute,
	}
}

// stateString maps Pulse device state constants to readable values.
func stateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable maps the active port's availability to a boolean.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	for _, port := range source.Ports {
		if port.Name == source.ActivePortName {
			return portAvailable(port.Available)
		}
	}
	return true
}

// PulseAudio values: unknown=0, no=1, yes=2.
func portAvailable(v uint32) bool {
	return v == 0 || v == 2
}

// pulseRecorder opens Pulse record streams.
type pulseRecorder struct{}

func (pulseRecorder) Open(cfg StreamConfig, sink io.Writer) (Stream, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}

	var source *pulse.Source
	if cfg.Device == "" || cfg.Device == "default" {
		source, err = client.DefaultSource()
	} else {
		source, err = client.SourceByID(cfg.Device)
	}
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", cfg.Device, err)
	}

	writer := pulse.NewWriter(sink, pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(cfg.SampleRate),
		pulse.RecordBufferFragmentSize(uint32(cfg.FrameSamples*2)),
		pulse.RecordMediaName("murmur capture"),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}
	return &pulseRecordStream{client: client, stream: stream}, nil
}

type pulseRecordStream struct {
	client *pulse.Client
	stream *pulse.RecordStream
}

func (s *pulseRecordStream) Start() { s.stream.Start() }

func (s *pulseRecordStream) Close() {
	s.stream.Stop()
	s.stream.Close()
	s.client.Close()
}

// pulseSink plays int16 mono buffers through a Pulse playback stream.
type pulseSink struct{}

func (pulseSink) Play(ctx context.Context, device string, samples []int16, rate int) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	opts := []pulse.PlaybackOption{
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(rate),
		pulse.PlaybackLatency(0.05),
		pulse.PlaybackMediaName("murmur speech"),
	}
	if device != "" && device != "default" {
		sink, err := client.SinkByID(device)
		if err != nil {
			return fmt.Errorf("resolve sink %q: %w", device, err)
		}
		opts = append(opts, pulse.PlaybackSink(sink))
	}

	stream, err := client.NewPlayback(pulse.Int16Reader(sampleReader(ctx, samples)), opts...)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play stream: %w", err)
	}
	return ctx.Err()
}

// sampleReader feeds samples to Pulse and ends the stream early when ctx is done.
func sampleReader(ctx context.Context, samples []int16) func([]int16) (int, error) {
	cursor := 0
	return func(buf []int16) (int, error) {
		if ctx.Err() != nil || cursor >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	}
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
