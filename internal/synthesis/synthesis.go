// Package synthesis renders text to speech with offline and cloud engines.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rbright/murmur/internal/backend"
	"github.com/rbright/murmur/internal/pcm"
	"github.com/rbright/murmur/internal/quota"
)

const (
	MinRate     = 80
	MaxRate     = 450
	DefaultRate = 150
	// MaxTextLength bounds one speak request in characters.
	MaxTextLength = 5000
)

var (
	ErrNotInitialized = backend.ErrNotInitialized
	ErrEmptyText      = errors.New("text cannot be empty")
	ErrTextTooLong    = fmt.Errorf("text exceeds %d characters", MaxTextLength)
)

// Voice is one selectable voice.
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language,omitempty"`
	Gender   string `json:"gender,omitempty"`
}

// Request is one synthesis call. Rate is words per minute; Volume is 0..1.
type Request struct {
	Text     string
	Voice    string
	Rate     int
	Volume   float64
	Language string
}

// Result carries synthesized audio. Failures leave Audio empty and set Err for logging.
type Result struct {
	Audio     pcm.Frame
	VoiceUsed string
	Warning   string
	Status    backend.Status
	Err       error
}

// OK reports whether audio was produced.
func (r Result) OK() bool {
	return r.Status == backend.StatusOK
}

// Synthesizer is one text-to-speech engine.
type Synthesizer interface {
	Name() string
	Variant() quota.SynthesisVariant
	Ready() bool
	Voices(ctx context.Context) ([]Voice, error)
	Speak(ctx context.Context, req Request) Result
}

// ValidateText enforces the request text bounds.
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	if len([]rune(text)) > MaxTextLength {
		return ErrTextTooLong
	}
	return nil
}

// RateForSpeed maps a speed multiplier to a clamped words-per-minute rate.
func RateForSpeed(speed float64) int {
	if speed <= 0 || math.IsNaN(speed) {
		speed = 1
	}
	return ClampRate(int(math.Round(DefaultRate * speed)))
}

// ClampRate bounds a words-per-minute rate; zero selects DefaultRate.
func ClampRate(rate int) int {
	if rate == 0 {
		return DefaultRate
	}
	return min(max(rate, MinRate), MaxRate)
}

// ClampVolume bounds volume to [0, 1].
func ClampVolume(v float64) float64 {
	if math.IsNaN(v) {
		return 1
	}
	return min(max(v, 0), 1)
}

// ResolveVoice matches requested against voices by id or name, ignoring case.
// With no match it returns the fallback voice and a warning.
func ResolveVoice(voices []Voice, requested string, fallback string) (Voice, string) {
	requested = strings.TrimSpace(requested)
	if requested != "" {
		for _, v := range voices {
			if strings.EqualFold(v.ID, requested) || strings.EqualFold(v.Name, requested) {
				return v, ""
			}
		}
	}

	chosen := Voice{ID: fallback, Name: fallback}
	for _, v := range voices {
		if strings.EqualFold(v.ID, fallback) || strings.EqualFold(v.Name, fallback) {
			chosen = v
			break
		}
	}
	if requested == "" {
		return chosen, ""
	}
	return chosen, fmt.Sprintf("voice %q not found, using %q", requested, chosen.ID)
}

func failure(err error) Result {
	return Result{Status: backend.StatusOf(err), Err: err}
}
