// Package audiofile stores uploaded audio and moves it between containers and PCM frames.
package audiofile

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// SupportedFormats lists the containers accepted for upload.
var SupportedFormats = []string{"wav", "flac", "ogg", "mp3", "m4a"}

// ConvertTargets lists the containers Convert can produce.
var ConvertTargets = []string{"wav", "mp3", "flac", "ogg"}

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrNotFound          = errors.New("audio file not found")
	ErrInvalidID         = errors.New("invalid file id")
	ErrEmptyUpload       = errors.New("uploaded audio is empty")
)

// Info describes a stored audio file.
type Info struct {
	Format          string  `json:"format"`
	SampleRate      int     `json:"sample_rate"`
	Channels        int     `json:"channels"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// FormatOf returns the container name for filename, validated against SupportedFormats.
func FormatOf(filename string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" || !slices.Contains(SupportedFormats, ext) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filename)
	}
	return ext, nil
}

// ValidTarget normalizes a conversion target name.
func ValidTarget(target string) (string, error) {
	target = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(target), "."))
	if !slices.Contains(ConvertTargets, target) {
		return "", fmt.Errorf("%w: target %q", ErrUnsupportedFormat, target)
	}
	return target, nil
}
