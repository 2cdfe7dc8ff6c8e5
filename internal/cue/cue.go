// Package cue plays short audible tones that mark listen session transitions.
package cue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/murmur/internal/audiofile"
	"github.com/rbright/murmur/internal/pcm"
)

type Kind int

const (
	Start Kind = iota + 1
	Stop
	Complete
	Cancel
)

func (k Kind) String() string {
	switch k {
	case Start:
		return "start"
	case Stop:
		return "stop"
	case Complete:
		return "complete"
	case Cancel:
		return "cancel"
	default:
		return fmt.Sprintf("cue(%d)", int(k))
	}
}

const (
	sampleRate  = 16000
	toneVolume  = 0.18
	gap         = 22 * time.Millisecond
	playTimeout = 4 * time.Second
)

type tone struct {
	frequencyHz float64
	duration    time.Duration
}

var sequences = map[Kind][]tone{
	Start:    {{880, 70 * time.Millisecond}, {1175, 70 * time.Millisecond}},
	Stop:     {{620, 120 * time.Millisecond}},
	Complete: {{740, 65 * time.Millisecond}, {988, 90 * time.Millisecond}},
	Cancel:   {{480, 75 * time.Millisecond}, {360, 90 * time.Millisecond}},
}

// Player sends a frame to an output device and blocks until it has drained.
type Player interface {
	Play(ctx context.Context, frame pcm.Frame) error
}

// Cues renders each cue once and plays it on demand. A nil *Cues is silent.
type Cues struct {
	player Player
	files  map[Kind]string
	logger *slog.Logger
	frames map[Kind]pcm.Frame
}

type Option func(*Cues)

// WithFile replaces the synthesized tone for kind with a WAV file. A file that cannot be
// decoded falls back to the tone.
func WithFile(kind Kind, path string) Option {
	return func(c *Cues) {
		if path = expandUserPath(path); path != "" {
			c.files[kind] = path
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cues) { c.logger = logger }
}

func New(player Player, opts ...Option) *Cues {
	c := &Cues{
		player: player,
		files:  map[Kind]string{},
		logger: slog.New(slog.DiscardHandler),
		frames: map[Kind]pcm.Frame{},
	}
	for _, opt := range opts {
		opt(c)
	}
	for kind := range sequences {
		c.frames[kind] = c.render(kind)
	}
	return c
}

// Emit plays kind. Failures are logged and returned; callers treat them as advisory.
func (c *Cues) Emit(ctx context.Context, kind Kind) error {
	if c == nil || c.player == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	frame, ok := c.frames[kind]
	if !ok {
		return fmt.Errorf("unknown cue %s", kind)
	}

	ctx, cancel := context.WithTimeout(ctx, playTimeout)
	defer cancel()
	if err := c.player.Play(ctx, frame); err != nil {
		c.logger.Warn("cue playback failed", "cue", kind.String(), "error", err.Error())
		return fmt.Errorf("play %s cue: %w", kind, err)
	}
	return nil
}

func (c *Cues) render(kind Kind) pcm.Frame {
	if path, ok := c.files[kind]; ok {
		frame, err := loadWAV(path)
		if err == nil {
			return frame
		}
		c.logger.Warn("cue file unusable; using tone", "cue", kind.String(), "path", path, "error", err.Error())
	}
	return synthesize(sequences[kind])
}

func loadWAV(path string) (pcm.Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pcm.Frame{}, fmt.Errorf("read cue file %q: %w", path, err)
	}
	frame, _, err := audiofile.DecodeWAV(data)
	if err != nil {
		return pcm.Frame{}, fmt.Errorf("decode cue file %q: %w", path, err)
	}
	return frame, nil
}

func synthesize(parts []tone) pcm.Frame {
	silence := make([]int16, int(gap.Seconds()*sampleRate))
	var samples []int16
	for i, part := range parts {
		if i > 0 {
			samples = append(samples, silence...)
		}
		samples = append(samples, pcm.Tone(part.frequencyHz, part.duration, toneVolume, sampleRate).Samples()...)
	}
	return pcm.NewFrame(samples, sampleRate, time.Time{})
}

func expandUserPath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw != "~" && !strings.HasPrefix(raw, "~/") {
		return raw
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return raw
	}
	return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(raw, "~"), "/"))
}
