package audiofile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/rbright/murmur/internal/pcm"
)

const idLength = 8

// Upload is a stored file and its audio parameters.
type Upload struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Info
}

// Store keeps uploads on disk as {id}_{filename}.
type Store struct {
	dir        string
	transcoder *Transcoder
	newID      func() string
	logger     *slog.Logger
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithTranscoder replaces the ffmpeg-backed transcoder.
func WithTranscoder(t *Transcoder) StoreOption {
	return func(s *Store) { s.transcoder = t }
}

// WithStoreLogger sets the store logger.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

func withIDSource(newID func() string) StoreOption {
	return func(s *Store) { s.newID = newID }
}

// NewStore creates a store rooted at dir.
func NewStore(dir string, opts ...StoreOption) *Store {
	s := &Store{
		dir:    dir,
		newID:  func() string { return uuid.NewString()[:idLength] },
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.transcoder == nil {
		s.transcoder = NewTranscoder(nil)
	}
	return s
}

// Dir returns the upload directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes data under a fresh id and reports its audio parameters.
func (s *Store) Save(ctx context.Context, data []byte, filename string) (Upload, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return Upload{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filename)
	}
	format, err := FormatOf(name)
	if err != nil {
		return Upload{}, err
	}
	if len(data) == 0 {
		return Upload{}, ErrEmptyUpload
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return Upload{}, fmt.Errorf("create upload dir: %w", err)
	}

	id := s.newID()
	path := filepath.Join(s.dir, id+"_"+name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return Upload{}, fmt.Errorf("write upload: %w", err)
	}

	info, err := s.info(ctx, path, format, data)
	if err != nil {
		_ = os.Remove(path)
		return Upload{}, err
	}

	s.logger.Info("audio uploaded", "file_id", id, "format", format, "bytes", len(data), "duration_s", info.DurationSeconds)
	return Upload{FileID: id, Filename: name, Path: path, Info: info}, nil
}

// Path resolves a file id to its stored path.
func (s *Store) Path(fileID string) (string, error) {
	if !validID(fileID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, fileID)
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, fileID+"_*"))
	if err != nil {
		return "", fmt.Errorf("find upload: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, fileID)
	}
	return matches[0], nil
}

// Lookup returns the stored upload for fileID.
func (s *Store) Lookup(ctx context.Context, fileID string) (Upload, error) {
	path, err := s.Path(fileID)
	if err != nil {
		return Upload{}, err
	}
	name := strings.TrimPrefix(filepath.Base(path), fileID+"_")
	format, err := FormatOf(name)
	if err != nil {
		return Upload{}, err
	}
	info, err := s.info(ctx, path, format, nil)
	if err != nil {
		return Upload{}, err
	}
	return Upload{FileID: fileID, Filename: name, Path: path, Info: info}, nil
}

// Delete removes the stored upload for fileID.
func (s *Store) Delete(fileID string) error {
	path, err := s.Path(fileID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, fileID)
		}
		return fmt.Errorf("delete upload: %w", err)
	}
	s.logger.Info("audio deleted", "file_id", fileID)
	return nil
}

// Decode loads fileID as a mono frame at rate.
func (s *Store) Decode(ctx context.Context, fileID string, rate int) (pcm.Frame, error) {
	path, err := s.Path(fileID)
	if err != nil {
		return pcm.Frame{}, err
	}
	return s.DecodePath(ctx, path, rate)
}

// DecodePath loads any supported file as a mono frame at rate.
func (s *Store) DecodePath(ctx context.Context, path string, rate int) (pcm.Frame, error) {
	format, err := FormatOf(path)
	if err != nil {
		return pcm.Frame{}, err
	}
	if format != "wav" {
		return s.transcoder.DecodeMono(ctx, path, rate)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return pcm.Frame{}, fmt.Errorf("read %s: %w", path, err)
	}
	frame, _, err := DecodeWAV(data)
	if err != nil {
		return pcm.Frame{}, err
	}
	return pcm.Resample(frame, rate)
}

// Conversion describes the file written by Convert.
type Conversion struct {
	FileID string `json:"file_id"`
	Path   string `json:"path"`
	Info
}

// Convert writes fileID in target format as a new upload. A positive rate resamples.
func (s *Store) Convert(ctx context.Context, fileID string, target string, rate int) (Conversion, error) {
	target, err := ValidTarget(target)
	if err != nil {
		return Conversion{}, err
	}
	src, err := s.Path(fileID)
	if err != nil {
		return Conversion{}, err
	}

	stem := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(src), fileID+"_"), filepath.Ext(src))
	id := s.newID()
	dst := filepath.Join(s.dir, id+"_"+stem+"."+target)

	srcFormat, err := FormatOf(src)
	if err != nil {
		return Conversion{}, err
	}

	if srcFormat == "wav" && target == "wav" {
		err = s.convertWAV(src, dst, rate)
	} else {
		err = s.transcoder.Convert(ctx, src, dst, rate)
	}
	if err != nil {
		return Conversion{}, err
	}

	info, err := s.info(ctx, dst, target, nil)
	if err != nil {
		return Conversion{}, err
	}
	s.logger.Info("audio converted", "file_id", fileID, "output_id", id, "format", target, "sample_rate", info.SampleRate)
	return Conversion{FileID: id, Path: dst, Info: info}, nil
}

func (s *Store) convertWAV(src string, dst string, rate int) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	frame, _, err := DecodeWAV(data)
	if err != nil {
		return err
	}
	if rate > 0 {
		if frame, err = pcm.Resample(frame, rate); err != nil {
			return err
		}
	}
	encoded, err := EncodeWAV(frame)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, encoded, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}

func (s *Store) info(ctx context.Context, path string, format string, data []byte) (Info, error) {
	if format != "wav" {
		return s.transcoder.Probe(ctx, path, format)
	}
	if data == nil {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return Info{}, fmt.Errorf("read %s: %w", path, err)
		}
	}
	_, info, err := DecodeWAV(data)
	return info, err
}

func validID(id string) bool {
	if len(id) != idLength {
		return false
	}
	for _, r := range id {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}
