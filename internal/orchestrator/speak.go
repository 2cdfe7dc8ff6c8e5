package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rbright/murmur/internal/audiofile"
	"github.com/rbright/murmur/internal/pcm"
	"github.com/rbright/murmur/internal/quota"
	"github.com/rbright/murmur/internal/synthesis"
)

// SpeakRequest is one text-to-speech call. Speed 1 is 150 words per minute.
type SpeakRequest struct {
	Text     string
	Voice    string
	Speed    float64
	Language string
}

// Speech is synthesized audio packaged as WAV.
type Speech struct {
	Audio           pcm.Frame
	WAV             []byte
	SampleRate      int
	DurationSeconds float64
	VoiceUsed       string
	Warning         string
}

func synthesisChain(selected quota.SynthesisVariant) []quota.SynthesisVariant {
	switch selected {
	case quota.SynthesisCloud:
		return []quota.SynthesisVariant{quota.SynthesisCloud, quota.SynthesisOffline}
	case quota.SynthesisOffline:
		return []quota.SynthesisVariant{quota.SynthesisOffline}
	default:
		return nil
	}
}

// Speak validates req, synthesizes it, and tracks the engine that succeeded.
func (o *Orchestrator) Speak(ctx context.Context, req SpeakRequest) (Speech, error) {
	if err := synthesis.ValidateText(req.Text); err != nil {
		return Speech{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	engineReq := synthesis.Request{
		Text:     req.Text,
		Voice:    req.Voice,
		Rate:     synthesis.RateForSpeed(req.Speed),
		Volume:   1,
		Language: req.Language,
	}

	var lastErr error
	for i, variant := range synthesisChain(o.arbiter.SelectSynthesis(ctx)) {
		engine, ok := o.synthesizers[variant]
		if !ok {
			continue
		}
		if i > 0 && !o.usable(ctx, variant) {
			continue
		}

		started := time.Now()
		result := engine.Speak(ctx, engineReq)
		o.observe(engine.Name(), result.Status, started)
		if !result.OK() {
			lastErr = result.Err
			o.logger.Warn("synthesis failed, falling back",
				"component", "orchestrator",
				"service", engine.Name(),
				"variant", variant.String(),
				"error", errString(result.Err),
			)
			continue
		}

		o.track(ctx, variant)
		wav, err := audiofile.EncodeWAV(result.Audio)
		if err != nil {
			return Speech{}, err
		}
		return Speech{
			Audio:           result.Audio,
			WAV:             wav,
			SampleRate:      result.Audio.SampleRate(),
			DurationSeconds: result.Audio.DurationSeconds(),
			VoiceUsed:       result.VoiceUsed,
			Warning:         result.Warning,
		}, nil
	}
	return Speech{}, noBackend(quota.Synthesis, lastErr)
}
