package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/rbright/murmur/internal/audiofile"
	"github.com/rbright/murmur/internal/pcm"
	"github.com/rbright/murmur/internal/quota"
	"github.com/rbright/murmur/internal/recognition"
	"github.com/rbright/murmur/internal/transcript"
)

// Transcription is the aggregate of all chunk results for one request.
type Transcription struct {
	Text            string  `json:"text"`
	Confidence      float64 `json:"confidence"`
	DurationSeconds float64 `json:"duration_seconds"`
	Chunks          int     `json:"chunks"`
	LowConfidence   bool    `json:"low_confidence,omitempty"`
}

// TranscribeFile decodes a stored upload and transcribes it.
func (o *Orchestrator) TranscribeFile(ctx context.Context, fileID string, onlineRequired bool) (Transcription, error) {
	if o.files == nil {
		return Transcription{}, ErrNoFileStore
	}
	frame, err := o.files.Decode(ctx, fileID, o.cfg.SampleRate)
	if err != nil {
		return Transcription{}, fmt.Errorf("load %s: %w", fileID, err)
	}
	return o.TranscribePCM(ctx, frame, onlineRequired)
}

// TranscribeBytes accepts a WAV container or raw 16-bit mono PCM at the configured rate.
func (o *Orchestrator) TranscribeBytes(ctx context.Context, data []byte, onlineRequired bool) (Transcription, error) {
	if len(data) == 0 {
		return Transcription{}, fmt.Errorf("%w: empty audio", ErrInvalidRequest)
	}

	var (
		frame pcm.Frame
		err   error
	)
	if bytes.HasPrefix(data, []byte("RIFF")) {
		frame, _, err = audiofile.DecodeWAV(data)
	} else {
		frame, err = pcm.FromPCM16LE(data, o.cfg.SampleRate, time.Now())
	}
	if err != nil {
		return Transcription{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return o.TranscribePCM(ctx, frame, onlineRequired)
}

// TranscribePCM resamples frame to the engine rate, splits it into chunks, and transcribes
// each chunk through the recognition chain.
func (o *Orchestrator) TranscribePCM(ctx context.Context, frame pcm.Frame, onlineRequired bool) (Transcription, error) {
	frame, err := pcm.Resample(frame, o.cfg.SampleRate)
	if err != nil {
		return Transcription{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if frame.Empty() {
		return Transcription{}, nil
	}

	chunks, err := pcm.SplitChunks(frame, o.cfg.ChunkMs)
	if err != nil {
		return Transcription{}, err
	}

	var (
		texts       []string
		confidences []float64
		out         Transcription
	)
	for i, chunk := range chunks {
		result, err := o.transcribeChunk(ctx, chunk, onlineRequired)
		if err != nil {
			return Transcription{}, fmt.Errorf("chunk %d: %w", i, err)
		}
		out.DurationSeconds += chunk.DurationSeconds()
		out.LowConfidence = out.LowConfidence || result.LowConfidence
		if result.Text != "" {
			texts = append(texts, result.Text)
			confidences = append(confidences, result.Confidence)
		}
	}

	out.Text = transcript.JoinChunks(texts)
	out.Chunks = len(chunks)
	if len(confidences) > 0 {
		sum := 0.0
		for _, c := range confidences {
			sum += c
		}
		out.Confidence = sum / float64(len(confidences))
	}
	return out, nil
}

func recognitionChain(selected quota.RecognitionVariant) []quota.RecognitionVariant {
	switch selected {
	case quota.RecognitionCloud:
		return []quota.RecognitionVariant{quota.RecognitionCloud, quota.RecognitionOffline}
	case quota.RecognitionOffline:
		return []quota.RecognitionVariant{quota.RecognitionOffline}
	default:
		return nil
	}
}

func (o *Orchestrator) transcribeChunk(ctx context.Context, chunk pcm.Frame, onlineRequired bool) (recognition.Result, error) {
	selected := o.arbiter.SelectRecognition(ctx, onlineRequired)

	var lastErr error
	for i, variant := range recognitionChain(selected) {
		engine, ok := o.transcribers[variant]
		if !ok {
			continue
		}
		if i > 0 && !o.usable(ctx, variant) {
			continue
		}

		started := time.Now()
		result := engine.Transcribe(ctx, chunk.Bytes(), chunk.SampleRate())
		o.observe(engine.Name(), result.Status, started)
		if result.OK() {
			o.track(ctx, variant)
			return result, nil
		}

		lastErr = result.Err
		o.logger.Warn("recognition failed, falling back",
			"component", "orchestrator",
			"service", engine.Name(),
			"variant", variant.String(),
			"status", result.Status.String(),
			"error", errString(result.Err),
		)
		if ctx.Err() != nil {
			return recognition.Result{}, ctx.Err()
		}
	}
	return recognition.Result{}, noBackend(quota.Recognition, lastErr)
}

func noBackend(serviceType quota.ServiceType, lastErr error) error {
	if lastErr == nil {
		return fmt.Errorf("%w: %s", ErrNoBackendAvailable, serviceType)
	}
	return fmt.Errorf("%w: %s: %v", ErrNoBackendAvailable, serviceType, lastErr)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
