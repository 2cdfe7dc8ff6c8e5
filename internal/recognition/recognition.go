// Package recognition turns 16-bit mono PCM into text with offline and cloud engines.
package recognition

import (
	"context"
	"strings"

	"github.com/rbright/murmur/internal/backend"
	"github.com/rbright/murmur/internal/quota"
	"github.com/rbright/murmur/internal/transcript"
)

// DefaultConfidenceThreshold flags results below it as low confidence.
const DefaultConfidenceThreshold = 0.5

// ErrNotInitialized is returned when a model or credential is missing.
var ErrNotInitialized = backend.ErrNotInitialized

// Result is the outcome of one transcription. Failures carry empty text and zero
// confidence; Err is kept for logging.
type Result struct {
	Text          string
	Confidence    float64
	Status        backend.Status
	LowConfidence bool
	Err           error
}

// OK reports whether the engine produced a usable result.
func (r Result) OK() bool {
	return r.Status == backend.StatusOK
}

// Transcriber is one recognition engine.
type Transcriber interface {
	Name() string
	Variant() quota.RecognitionVariant
	Ready() bool
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) Result
}

type languageKey struct{}

// WithLanguage scopes a BCP-47 language override to one transcription. Engines that
// cannot switch language per request ignore it.
func WithLanguage(ctx context.Context, language string) context.Context {
	language = strings.TrimSpace(language)
	if language == "" {
		return ctx
	}
	return context.WithValue(ctx, languageKey{}, language)
}

// LanguageFrom returns the override set by WithLanguage, or "".
func LanguageFrom(ctx context.Context) string {
	language, _ := ctx.Value(languageKey{}).(string)
	return language
}

func failure(err error) Result {
	return Result{Status: backend.StatusOf(err), Err: err}
}

func success(segments []string, confidence float64, threshold float64) Result {
	text := transcript.Assemble(segments)
	if text == "" {
		confidence = 0
	}
	return Result{
		Text:          text,
		Confidence:    confidence,
		Status:        backend.StatusOK,
		LowConfidence: text != "" && confidence < threshold,
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func thresholdOrDefault(v float64) float64 {
	if v <= 0 {
		return DefaultConfidenceThreshold
	}
	return v
}
