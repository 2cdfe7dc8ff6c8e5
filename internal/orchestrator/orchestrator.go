// Package orchestrator routes recognition, synthesis, and generation requests through the
// quota arbiter and falls back along each service's variant chain.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/rbright/murmur/internal/audiofile"
	"github.com/rbright/murmur/internal/backend"
	"github.com/rbright/murmur/internal/cue"
	"github.com/rbright/murmur/internal/fsm"
	"github.com/rbright/murmur/internal/generation"
	"github.com/rbright/murmur/internal/metrics"
	"github.com/rbright/murmur/internal/pcm"
	"github.com/rbright/murmur/internal/quota"
	"github.com/rbright/murmur/internal/recognition"
	"github.com/rbright/murmur/internal/synthesis"
)

// ErrNoBackendAvailable is returned once every variant for a request has failed.
var ErrNoBackendAvailable = errors.New("no backend available")

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNoFileStore    = errors.New("file store not configured")
)

const (
	DefaultChunkMs    = 5000
	DefaultMaxListen  = 30 * time.Second
	defaultListenPoll = 50 * time.Millisecond
)

// Config holds request-path settings.
type Config struct {
	SampleRate int
	ChunkMs    int
	MaxListen  time.Duration
	// GateListen drops captured frames without voice activity.
	GateListen bool
	// DebugDir receives a WAV of each listen session when set.
	DebugDir string
}

// Orchestrator owns the engines for one daemon.
type Orchestrator struct {
	cfg     Config
	arbiter *quota.Arbiter
	logger  *slog.Logger
	metrics *metrics.Metrics

	transcribers map[quota.RecognitionVariant]recognition.Transcriber
	synthesizers map[quota.SynthesisVariant]synthesis.Synthesizer
	generators   map[quota.GenerationVariant]generation.Generator
	files        *audiofile.Store

	newCapture func() CaptureSource
	cues       *cue.Cues
	session    *fsm.Machine
	actions    chan action
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

func WithTranscriber(t recognition.Transcriber) Option {
	return func(o *Orchestrator) { o.transcribers[t.Variant()] = t }
}

func WithSynthesizer(s synthesis.Synthesizer) Option {
	return func(o *Orchestrator) { o.synthesizers[s.Variant()] = s }
}

func WithGenerator(g generation.Generator) Option {
	return func(o *Orchestrator) { o.generators[g.Variant()] = g }
}

func WithFileStore(s *audiofile.Store) Option {
	return func(o *Orchestrator) { o.files = s }
}

// WithCaptureFactory supplies a fresh capture source per listen session.
func WithCaptureFactory(f func() CaptureSource) Option {
	return func(o *Orchestrator) { o.newCapture = f }
}

// WithCues plays audible tones on listen session transitions.
func WithCues(c *cue.Cues) Option {
	return func(o *Orchestrator) { o.cues = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New builds an orchestrator around arbiter.
func New(cfg Config, arbiter *quota.Arbiter, opts ...Option) *Orchestrator {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = pcm.DefaultSampleRate
	}
	if cfg.ChunkMs <= 0 {
		cfg.ChunkMs = DefaultChunkMs
	}
	if cfg.MaxListen <= 0 {
		cfg.MaxListen = DefaultMaxListen
	}

	o := &Orchestrator{
		cfg:          cfg,
		arbiter:      arbiter,
		logger:       slog.New(slog.DiscardHandler),
		transcribers: map[quota.RecognitionVariant]recognition.Transcriber{},
		synthesizers: map[quota.SynthesisVariant]synthesis.Synthesizer{},
		generators:   map[quota.GenerationVariant]generation.Generator{},
		session:      fsm.NewMachine(),
		actions:      make(chan action, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Files returns the upload store, if any.
func (o *Orchestrator) Files() *audiofile.Store {
	return o.files
}

// Arbiter returns the quota arbiter.
func (o *Orchestrator) Arbiter() *quota.Arbiter {
	return o.arbiter
}

// Voices lists the voices of the synthesizer the arbiter would select.
func (o *Orchestrator) Voices(ctx context.Context) ([]synthesis.Voice, error) {
	s, ok := o.synthesizers[o.arbiter.SelectSynthesis(ctx)]
	if !ok {
		return nil, ErrNoBackendAvailable
	}
	return s.Voices(ctx)
}

// Engines reports readiness of every wired engine.
func (o *Orchestrator) Engines() []backend.Info {
	var infos []backend.Info
	add := func(name string, variant quota.Variant, ready bool) {
		info := backend.Info{
			Name:        name,
			ServiceType: string(variant.ServiceType()),
			Variant:     variant.String(),
			Ready:       ready,
		}
		if !ready {
			info.Detail = backend.StatusNotInitialized.String()
		}
		infos = append(infos, info)
	}
	for v, t := range o.transcribers {
		add(t.Name(), v, t.Ready())
	}
	for v, s := range o.synthesizers {
		add(s.Name(), v, s.Ready())
	}
	for v, g := range o.generators {
		add(g.Name(), v, g.Ready())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].ServiceType != infos[j].ServiceType {
			return infos[i].ServiceType < infos[j].ServiceType
		}
		return infos[i].Variant < infos[j].Variant
	})
	return infos
}

// track records one successful call. Failures are logged; usage is best-effort.
func (o *Orchestrator) track(ctx context.Context, v quota.Variant) {
	service, ok := o.arbiter.Services().ServiceFor(v)
	if !ok {
		return
	}
	if err := o.arbiter.Track(ctx, service, 1); err != nil {
		o.logger.Warn("quota track failed", "service", service, "error", err.Error())
	}
}

// usable reports whether a fallback variant still has quota.
func (o *Orchestrator) usable(ctx context.Context, v quota.Variant) bool {
	service, ok := o.arbiter.Services().ServiceFor(v)
	if !ok {
		return true
	}
	return o.arbiter.Check(ctx, service).Available
}

func (o *Orchestrator) observe(name string, status backend.Status, started time.Time) {
	o.metrics.BackendCall(name, status.String(), time.Since(started))
}
