package synthesis

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rbright/murmur/internal/audiofile"
	"github.com/rbright/murmur/internal/command"
	"github.com/rbright/murmur/internal/quota"
)

const (
	defaultOfflineCommand = "espeak-ng"
	defaultOfflineVoice   = "en-us"
	// espeak-ng amplitude at volume 1.0.
	fullAmplitude = 100
)

// OfflineConfig configures espeak-ng.
type OfflineConfig struct {
	Command      string
	DefaultVoice string
	TempDir      string
}

// Offline shells out to espeak-ng and decodes its WAV output.
type Offline struct {
	cfg    OfflineConfig
	runner command.Runner
	lookup func([]string) error
	logger *slog.Logger

	mu     sync.Mutex
	voices []Voice
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

// NewOffline builds an espeak-ng engine.
func NewOffline(cfg OfflineConfig, opts ...OfflineOption) *Offline {
	if strings.TrimSpace(cfg.Command) == "" {
		cfg.Command = defaultOfflineCommand
	}
	if strings.TrimSpace(cfg.DefaultVoice) == "" {
		cfg.DefaultVoice = defaultOfflineVoice
	}
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

func (o *Offline) Name() string { return "espeak" }

func (o *Offline) Variant() quota.SynthesisVariant { return quota.SynthesisOffline }

func (o *Offline) Ready() bool {
	return o.lookup([]string{o.cfg.Command}) == nil
}

// Voices lists installed espeak-ng voices. The first successful listing is cached.
func (o *Offline) Voices(ctx context.Context) ([]Voice, error) {
	o.mu.Lock()
	cached := o.voices
	o.mu.Unlock()
	if cached != nil {
		return append([]Voice(nil), cached...), nil
	}

	if err := o.lookup([]string{o.cfg.Command}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotInitialized, err)
	}
	out, err := o.runner.Run(ctx, []string{o.cfg.Command, "--voices"}, nil)
	if err != nil {
		return nil, fmt.Errorf("list voices: %w", err)
	}
	voices := parseVoiceList(out)

	o.mu.Lock()
	o.voices = voices
	o.mu.Unlock()
	return append([]Voice(nil), voices...), nil
}

// Speak renders req through espeak-ng.
func (o *Offline) Speak(ctx context.Context, req Request) Result {
	if err := ValidateText(req.Text); err != nil {
		return failure(err)
	}

	voices, err := o.Voices(ctx)
	if err != nil {
		return failure(err)
	}
	voice, warning := ResolveVoice(voices, req.Voice, o.cfg.DefaultVoice)
	if warning != "" {
		o.logger.Warn("voice fallback", "requested", req.Voice, "voice", voice.ID)
	}

	out, err := os.CreateTemp(o.cfg.TempDir, "murmur-speak-*.wav")
	if err != nil {
		return failure(fmt.Errorf("create output file: %w", err))
	}
	path := out.Name()
	_ = out.Close()
	defer func() { _ = os.Remove(path) }()

	argv := []string{
		o.cfg.Command,
		"-w", path,
		"-v", voice.ID,
		"-s", strconv.Itoa(ClampRate(req.Rate)),
		"-a", strconv.Itoa(int(math.Round(ClampVolume(req.Volume) * fullAmplitude))),
		"--stdin",
	}
	if _, err := o.runner.Run(ctx, argv, strings.NewReader(req.Text)); err != nil {
		return failure(fmt.Errorf("espeak-ng: %w", err))
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return failure(fmt.Errorf("read synthesized audio: %w", err))
	}
	frame, _, err := audiofile.DecodeWAV(data)
	if err != nil {
		return failure(fmt.Errorf("decode synthesized audio: %w", err))
	}

	return Result{Audio: frame, VoiceUsed: voice.ID, Warning: warning}
}

// parseVoiceList reads the table printed by `espeak-ng --voices`:
//
//	Pty Language       Age/Gender VoiceName          File          Other Languages
//	 5  en-us           --/M      English_(America)  gmw/en-US     (en 10)
func parseVoiceList(out []byte) []Voice {
	voices := []Voice{}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[0] == "Pty" {
			continue
		}
		if _, err := strconv.Atoi(fields[0]); err != nil {
			continue
		}
		gender := ""
		if _, g, ok := strings.Cut(fields[2], "/"); ok {
			switch g {
			case "M":
				gender = "male"
			case "F":
				gender = "female"
			}
		}
		voices = append(voices, Voice{
			ID:       fields[1],
			Name:     strings.ReplaceAll(fields[3], "_", " "),
			Language: fields[1],
			Gender:   gender,
		})
	}
	return voices
}
