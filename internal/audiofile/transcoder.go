package audiofile

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rbright/murmur/internal/command"
	"github.com/rbright/murmur/internal/pcm"
)

var zeroTime time.Time

// Transcoder shells out to ffmpeg and ffprobe for containers other than WAV.
type Transcoder struct {
	runner  command.Runner
	ffmpeg  string
	ffprobe string
}

// NewTranscoder builds a transcoder on runner; a nil runner uses command.Exec.
func NewTranscoder(runner command.Runner) *Transcoder {
	if runner == nil {
		runner = command.Exec{}
	}
	return &Transcoder{runner: runner, ffmpeg: "ffmpeg", ffprobe: "ffprobe"}
}

// Ready reports whether both tools resolve on PATH.
func (t *Transcoder) Ready() error {
	if err := command.Lookup([]string{t.ffmpeg}); err != nil {
		return err
	}
	return command.Lookup([]string{t.ffprobe})
}

type probeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
		Duration   string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads stream parameters of the first audio stream in path.
func (t *Transcoder) Probe(ctx context.Context, path string, format string) (Info, error) {
	argv := []string{t.ffprobe, "-v", "error", "-print_format", "json", "-show_streams", "-show_format", path}
	out, err := t.runner.Run(ctx, argv, nil)
	if err != nil {
		return Info{}, fmt.Errorf("probe %s: %w", path, err)
	}

	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return Info{}, fmt.Errorf("parse probe output: %w", err)
	}

	for _, stream := range probe.Streams {
		if stream.CodecType != "audio" {
			continue
		}
		rate, _ := strconv.Atoi(stream.SampleRate)
		duration := parseSeconds(stream.Duration)
		if duration == 0 {
			duration = parseSeconds(probe.Format.Duration)
		}
		return Info{
			Format:          format,
			SampleRate:      rate,
			Channels:        stream.Channels,
			DurationSeconds: duration,
		}, nil
	}
	return Info{}, fmt.Errorf("probe %s: no audio stream", path)
}

// DecodeMono decodes path to a mono 16-bit frame at rate.
func (t *Transcoder) DecodeMono(ctx context.Context, path string, rate int) (pcm.Frame, error) {
	if rate <= 0 {
		return pcm.Frame{}, pcm.ErrInvalidRate
	}
	argv := []string{
		t.ffmpeg, "-v", "error", "-nostdin",
		"-i", path,
		"-f", "s16le", "-acodec", "pcm_s16le",
		"-ac", "1", "-ar", strconv.Itoa(rate),
		"pipe:1",
	}
	out, err := t.runner.Run(ctx, argv, nil)
	if err != nil {
		return pcm.Frame{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return pcm.FromPCM16LE(out, rate, zeroTime)
}

// Convert transcodes src into dst, whose extension selects the container.
// A positive rate resamples the output.
func (t *Transcoder) Convert(ctx context.Context, src string, dst string, rate int) error {
	argv := []string{t.ffmpeg, "-v", "error", "-nostdin", "-y", "-i", src}
	if rate > 0 {
		argv = append(argv, "-ar", strconv.Itoa(rate))
	}
	argv = append(argv, dst)
	if _, err := t.runner.Run(ctx, argv, nil); err != nil {
		return fmt.Errorf("convert %s: %w", src, err)
	}
	return nil
}

func parseSeconds(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
