package recognition

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rbright/murmur/internal/command"
	"github.com/rbright/murmur/internal/quota"
)

// DefaultOfflineCommand streams stdin PCM through Vosk and prints JSON lines.
var DefaultOfflineCommand = []string{"vosk-transcriber-pcm", "--model", "{model}", "--sample-rate", "{rate}"}

// defaultWordConfidence is reported for text whose words carry no conf field.
const defaultWordConfidence = 0.9

// OfflineConfig configures the Vosk engine.
type OfflineConfig struct {
	Command   []string
	Model     string
	Threshold float64
}

// Offline runs a Vosk recognizer command per request.
type Offline struct {
	cfg    OfflineConfig
	runner command.Runner
	lookup func([]string) error
	logger *slog.Logger

	mu    sync.Mutex
	ready bool
}

// OfflineOption customizes Offline.
type OfflineOption func(*Offline)

// WithOfflineRunner replaces the command runner.
func WithOfflineRunner(r command.Runner) OfflineOption {
	return func(o *Offline) { o.runner = r }
}

// WithOfflineLogger sets the engine logger.
func WithOfflineLogger(logger *slog.Logger) OfflineOption {
	return func(o *Offline) { o.logger = logger }
}

// NewOffline builds an offline engine; the model is checked lazily.
func NewOffline(cfg OfflineConfig, opts ...OfflineOption) *Offline {
	if len(cfg.Command) == 0 {
		cfg.Command = DefaultOfflineCommand
	}
	cfg.Threshold = thresholdOrDefault(cfg.Threshold)
	o := &Offline{
		cfg:    cfg,
		runner: command.Exec{},
		lookup: command.Lookup,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Offline) Name() string { return "vosk" }

func (o *Offline) Variant() quota.RecognitionVariant { return quota.RecognitionOffline }

// Ready reports whether the model and recognizer binary are present.
func (o *Offline) Ready() bool {
	return o.Init() == nil
}

// Init verifies the model path and binary once; success is cached.
func (o *Offline) Init() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ready {
		return nil
	}

	model := strings.TrimSpace(o.cfg.Model)
	if model == "" {
		return fmt.Errorf("%w: vosk model path is empty", ErrNotInitialized)
	}
	if _, err := os.Stat(model); err != nil {
		return fmt.Errorf("%w: vosk model: %v", ErrNotInitialized, err)
	}
	if err := o.lookup(o.cfg.Command); err != nil {
		return fmt.Errorf("%w: %v", ErrNotInitialized, err)
	}

	o.ready = true
	o.logger.Info("offline recognizer ready", "model", model)
	return nil
}

// Transcribe pipes pcm through the recognizer command.
func (o *Offline) Transcribe(ctx context.Context, pcm []byte, sampleRate int) Result {
	if err := o.Init(); err != nil {
		return failure(err)
	}
	if len(pcm) == 0 {
		return success(nil, 0, o.cfg.Threshold)
	}

	argv := command.Expand(o.cfg.Command, map[string]string{
		"model": o.cfg.Model,
		"rate":  strconv.Itoa(sampleRate),
	})
	out, err := o.runner.Run(ctx, argv, bytes.NewReader(pcm))
	if err != nil {
		return failure(fmt.Errorf("vosk: %w", err))
	}

	segments, confidence, err := parseVoskOutput(out)
	if err != nil {
		return failure(err)
	}
	return success(segments, confidence, o.cfg.Threshold)
}

type voskLine struct {
	Partial *string `json:"partial"`
	Text    *string `json:"text"`
	Result  []struct {
		Word string   `json:"word"`
		Conf *float64 `json:"conf"`
	} `json:"result"`
}

var errVoskOutput = errors.New("vosk output contained no json lines")

// parseVoskOutput keeps finalized segments and averages word confidences.
func parseVoskOutput(out []byte) ([]string, float64, error) {
	var (
		segments []string
		confs    []float64
		parsed   bool
	)

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var entry voskLine
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, 0, fmt.Errorf("parse vosk line: %w", err)
		}
		parsed = true
		if entry.Text == nil {
			continue
		}
		text := strings.TrimSpace(*entry.Text)
		if text == "" {
			continue
		}
		segments = append(segments, text)

		hasConf := false
		for _, word := range entry.Result {
			if word.Conf != nil {
				confs = append(confs, *word.Conf)
				hasConf = true
			}
		}
		if !hasConf {
			confs = append(confs, defaultWordConfidence)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read vosk output: %w", err)
	}
	if !parsed && len(bytes.TrimSpace(out)) > 0 {
		return nil, 0, errVoskOutput
	}
	return segments, mean(confs), nil
}
