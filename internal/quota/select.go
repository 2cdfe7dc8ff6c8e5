package quota

import (
	"context"
	"fmt"
	"time"
)

// ServiceType names a capability with interchangeable backends.
type ServiceType string

const (
	Recognition ServiceType = "recognition"
	Generation  ServiceType = "generation"
	Synthesis   ServiceType = "synthesis"
)

// Variant is the closed set of backend choices. Only this package implements it, so a new
// variant is added here and every switch over the concrete types must handle it.
type Variant interface {
	ServiceType() ServiceType
	String() string
	variant()
}

// RecognitionVariant selects a speech-to-text backend.
type RecognitionVariant int

const (
	RecognitionOffline RecognitionVariant = iota
	RecognitionCloud
)

func (RecognitionVariant) ServiceType() ServiceType { return Recognition }
func (RecognitionVariant) variant()                 {}

func (v RecognitionVariant) String() string {
	switch v {
	case RecognitionOffline:
		return "offline"
	case RecognitionCloud:
		return "cloud"
	default:
		return fmt.Sprintf("recognition(%d)", int(v))
	}
}

// GenerationVariant selects a conversational response backend. GenerationNone tells the
// caller to answer with its canned response.
type GenerationVariant int

const (
	GenerationNone GenerationVariant = iota
	GenerationCloud
	GenerationLocal
)

func (GenerationVariant) ServiceType() ServiceType { return Generation }
func (GenerationVariant) variant()                 {}

func (v GenerationVariant) String() string {
	switch v {
	case GenerationNone:
		return "none"
	case GenerationCloud:
		return "cloud"
	case GenerationLocal:
		return "local"
	default:
		return fmt.Sprintf("generation(%d)", int(v))
	}
}

// SynthesisVariant selects a text-to-speech backend.
type SynthesisVariant int

const (
	SynthesisOffline SynthesisVariant = iota
	SynthesisCloud
)

func (SynthesisVariant) ServiceType() ServiceType { return Synthesis }
func (SynthesisVariant) variant()                 {}

func (v SynthesisVariant) String() string {
	switch v {
	case SynthesisOffline:
		return "offline"
	case SynthesisCloud:
		return "cloud"
	default:
		return fmt.Sprintf("synthesis(%d)", int(v))
	}
}

// Selection is a per-request backend decision. It is never persisted.
type Selection struct {
	ServiceType ServiceType
	Variant     Variant
	DecidedAt   time.Time
}

// Services maps each quota-bearing variant to its counter name.
type Services struct {
	RecognitionOffline string
	RecognitionCloud   string
	GenerationCloud    string
	GenerationLocal    string
	SynthesisOffline   string
	SynthesisCloud     string
}

// DefaultServices mirrors the default backend stack.
func DefaultServices() Services {
	return Services{
		RecognitionOffline: "vosk",
		RecognitionCloud:   "google_speech",
		GenerationCloud:    "huggingface",
		GenerationLocal:    "ollama",
		SynthesisOffline:   "espeak",
		SynthesisCloud:     "openai_tts",
	}
}

// All lists every counter name.
func (s Services) All() []string {
	return []string{
		s.RecognitionOffline,
		s.RecognitionCloud,
		s.GenerationCloud,
		s.GenerationLocal,
		s.SynthesisOffline,
		s.SynthesisCloud,
	}
}

// ServiceFor returns the counter name behind v. GenerationNone has none.
func (s Services) ServiceFor(v Variant) (string, bool) {
	switch v := v.(type) {
	case RecognitionVariant:
		switch v {
		case RecognitionOffline:
			return s.RecognitionOffline, true
		case RecognitionCloud:
			return s.RecognitionCloud, true
		}
	case GenerationVariant:
		switch v {
		case GenerationCloud:
			return s.GenerationCloud, true
		case GenerationLocal:
			return s.GenerationLocal, true
		case GenerationNone:
			return "", false
		}
	case SynthesisVariant:
		switch v {
		case SynthesisOffline:
			return s.SynthesisOffline, true
		case SynthesisCloud:
			return s.SynthesisCloud, true
		}
	}
	return "", false
}

// SelectRecognition prefers the offline recognizer. With onlineRequired it picks the cloud
// recognizer while its quota lasts and falls back to offline otherwise.
func (a *Arbiter) SelectRecognition(ctx context.Context, onlineRequired bool) RecognitionVariant {
	choice := RecognitionOffline
	if onlineRequired && a.Check(ctx, a.services.RecognitionCloud).Available {
		choice = RecognitionCloud
	}
	a.metrics.BackendSelected(string(Recognition), choice.String())
	return choice
}

// SelectGeneration tries cloud, then local. GenerationNone means both are exhausted.
func (a *Arbiter) SelectGeneration(ctx context.Context) GenerationVariant {
	choice := GenerationNone
	switch {
	case a.Check(ctx, a.services.GenerationCloud).Available:
		choice = GenerationCloud
	case a.Check(ctx, a.services.GenerationLocal).Available:
		choice = GenerationLocal
	}
	a.metrics.BackendSelected(string(Generation), choice.String())
	return choice
}

// SelectSynthesis always returns the offline synthesizer. The cloud variant is configured and
// reported in status but not chosen.
func (a *Arbiter) SelectSynthesis(_ context.Context) SynthesisVariant {
	a.metrics.BackendSelected(string(Synthesis), SynthesisOffline.String())
	return SynthesisOffline
}

// Select dispatches on serviceType and stamps the decision time.
func (a *Arbiter) Select(ctx context.Context, serviceType ServiceType, onlineRequired bool) (Selection, error) {
	var v Variant
	switch serviceType {
	case Recognition:
		v = a.SelectRecognition(ctx, onlineRequired)
	case Generation:
		v = a.SelectGeneration(ctx)
	case Synthesis:
		v = a.SelectSynthesis(ctx)
	default:
		return Selection{}, fmt.Errorf("unknown service type %q", serviceType)
	}
	return Selection{ServiceType: serviceType, Variant: v, DecidedAt: a.now()}, nil
}
