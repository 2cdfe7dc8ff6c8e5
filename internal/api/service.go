// Package api maps daemon socket commands onto the orchestrator.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/audiofile"
	"github.com/rbright/murmur/internal/generation"
	"github.com/rbright/murmur/internal/ipc"
	"github.com/rbright/murmur/internal/metrics"
	"github.com/rbright/murmur/internal/orchestrator"
	"github.com/rbright/murmur/internal/pcm"
	"github.com/rbright/murmur/internal/recognition"
	"github.com/rbright/murmur/internal/synthesis"
	"github.com/rbright/murmur/internal/version"
)

// Player sends synthesized audio to an output device.
type Player interface {
	Play(ctx context.Context, frame pcm.Frame) error
}

// DeviceLister enumerates audio devices of one direction.
type DeviceLister func(ctx context.Context) ([]audio.DeviceInfo, error)

// Service handles ipc requests. It is safe for concurrent use; listen sessions are
// serialized by the orchestrator.
type Service struct {
	orch    *orchestrator.Orchestrator
	player  Player
	inputs  DeviceLister
	outputs DeviceLister
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithPlayer(p Player) Option {
	return func(s *Service) { s.player = p }
}

func WithDeviceListers(inputs, outputs DeviceLister) Option {
	return func(s *Service) {
		s.inputs = inputs
		s.outputs = outputs
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New builds a Service around orch.
func New(orch *orchestrator.Orchestrator, opts ...Option) *Service {
	s := &Service{
		orch:    orch,
		inputs:  audio.ListInputDevices,
		outputs: audio.ListOutputDevices,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// Handle dispatches one request. It never panics on malformed input.
func (s *Service) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	started := time.Now()
	resp := s.dispatch(ctx, req)
	if resp.State == "" {
		resp.State = string(s.orch.ListenState())
	}
	s.metrics.Request(req.Command, resp.OK, time.Since(started))

	if !resp.OK {
		s.logger.Warn("request failed",
			"component", "api",
			"command", req.Command,
			"code", resp.Code,
			"error", resp.Error,
			"elapsed_ms", time.Since(started).Milliseconds(),
		)
	} else {
		s.logger.Debug("request handled",
			"component", "api",
			"command", req.Command,
			"elapsed_ms", time.Since(started).Milliseconds(),
		)
	}
	return resp
}

func (s *Service) dispatch(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case CmdStatus:
		return s.status(ctx)
	case CmdQuota:
		return ok("quota", toQuotaEntries(s.orch.Arbiter().Status(ctx)))
	case CmdVersion:
		return ok(version.String(), map[string]string{"version": version.Version, "commit": version.Commit, "date": version.Date})
	case CmdDevices:
		return s.devices(ctx, req)
	case CmdVoices:
		return s.voices(ctx)
	case CmdUpload:
		return s.upload(ctx, req)
	case CmdInfo:
		return s.info(ctx, req)
	case CmdDelete:
		return s.deleteFile(req)
	case CmdTranscribe:
		return s.transcribe(ctx, req)
	case CmdSpeak:
		return s.speak(ctx, req)
	case CmdConvert:
		return s.convert(ctx, req)
	case CmdChat:
		return s.chat(ctx, req)
	case CmdListen:
		return s.listen(ctx, req)
	case CmdStop:
		if err := s.orch.StopListening(); err != nil {
			return fail(CodeBusy, err)
		}
		return ipc.Response{OK: true, Message: "stop requested"}
	case CmdCancel:
		if err := s.orch.CancelListening(); err != nil {
			return fail(CodeBusy, err)
		}
		return ipc.Response{OK: true, Message: "cancel requested"}
	default:
		return ipc.Response{OK: false, Code: CodeInvalidRequest, Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func (s *Service) status(ctx context.Context) ipc.Response {
	return ok("status", StatusResult{
		Version:     version.Version,
		ListenState: string(s.orch.ListenState()),
		Engines:     s.orch.Engines(),
		Quota:       toQuotaEntries(s.orch.Arbiter().Status(ctx)),
	})
}

func (s *Service) devices(ctx context.Context, req ipc.Request) ipc.Response {
	var args DevicesArgs
	if err := req.DecodeArgs(&args); err != nil {
		return fail(CodeInvalidRequest, err)
	}

	var result DevicesResult
	kind := strings.ToLower(strings.TrimSpace(args.Kind))
	switch kind {
	case "", "input", "output":
	default:
		return fail(CodeInvalidRequest, fmt.Errorf("unknown device kind %q", args.Kind))
	}
	if kind != "output" {
		inputs, err := s.inputs(ctx)
		if err != nil {
			return fail(CodeDevice, err)
		}
		result.Inputs = toDevices(inputs)
	}
	if kind != "input" {
		outputs, err := s.outputs(ctx)
		if err != nil {
			return fail(CodeDevice, err)
		}
		result.Outputs = toDevices(outputs)
	}
	return ok("devices", result)
}

func (s *Service) voices(ctx context.Context) ipc.Response {
	voices, err := s.orch.Voices(ctx)
	if err != nil {
		return fail(codeFor(err), err)
	}
	if voices == nil {
		voices = []synthesis.Voice{}
	}
	return ok("voices", VoicesResult{Voices: voices})
}

func (s *Service) upload(ctx context.Context, req ipc.Request) ipc.Response {
	var args UploadArgs
	if err := req.DecodeArgs(&args); err != nil {
		return fail(CodeInvalidRequest, err)
	}
	data, err := decodeBase64(args.DataBase64)
	if err != nil {
		return fail(CodeInvalidRequest, err)
	}
	files := s.orch.Files()
	if files == nil {
		return fail(CodeInternal, orchestrator.ErrNoFileStore)
	}

	upload, err := files.Save(ctx, data, args.Filename)
	if err != nil {
		return fail(codeFor(err), err)
	}
	return ok("uploaded", UploadResult{
		FileID:          upload.FileID,
		DurationSeconds: upload.DurationSeconds,
		SampleRate:      upload.SampleRate,
		Channels:        upload.Channels,
		Format:          upload.Format,
	})
}

func (s *Service) info(ctx context.Context, req ipc.Request) ipc.Response {
	files, fileID, resp := s.fileRequest(req)
	if files == nil {
		return resp
	}
	upload, err := files.Lookup(ctx, fileID)
	if err != nil {
		return fail(codeFor(err), err)
	}
	stat, err := os.Stat(upload.Path)
	if err != nil {
		return fail(CodeInternal, err)
	}
	return ok("info", InfoResult{
		FileID:          upload.FileID,
		Filename:        upload.Filename,
		SizeBytes:       stat.Size(),
		DurationSeconds: upload.DurationSeconds,
		SampleRate:      upload.SampleRate,
		Channels:        upload.Channels,
		Format:          upload.Format,
	})
}

func (s *Service) deleteFile(req ipc.Request) ipc.Response {
	files, fileID, resp := s.fileRequest(req)
	if files == nil {
		return resp
	}
	if err := files.Delete(fileID); err != nil {
		return fail(codeFor(err), err)
	}
	return ok("deleted", DeleteResult{FileID: fileID, Deleted: true})
}

// fileRequest decodes FileArgs. A nil store means resp carries the failure.
func (s *Service) fileRequest(req ipc.Request) (*audiofile.Store, string, ipc.Response) {
	var args FileArgs
	if err := req.DecodeArgs(&args); err != nil {
		return nil, "", fail(CodeInvalidRequest, err)
	}
	fileID := strings.TrimSpace(args.FileID)
	if fileID == "" {
		return nil, "", fail(CodeInvalidRequest, errors.New("file_id is required"))
	}
	files := s.orch.Files()
	if files == nil {
		return nil, "", fail(CodeInternal, orchestrator.ErrNoFileStore)
	}
	return files, fileID, ipc.Response{}
}

func (s *Service) transcribe(ctx context.Context, req ipc.Request) ipc.Response {
	var args TranscribeArgs
	if err := req.DecodeArgs(&args); err != nil {
		return fail(CodeInvalidRequest, err)
	}
	ctx = recognition.WithLanguage(ctx, args.Language)

	var (
		t   orchestrator.Transcription
		err error
	)
	switch {
	case args.FileID != "" && args.DataBase64 != "":
		return fail(CodeInvalidRequest, errors.New("file_id and data_base64 are mutually exclusive"))
	case args.FileID != "":
		t, err = s.orch.TranscribeFile(ctx, args.FileID, args.Online)
	case args.DataBase64 != "":
		data, decodeErr := decodeBase64(args.DataBase64)
		if decodeErr != nil {
			return fail(CodeInvalidRequest, decodeErr)
		}
		t, err = s.orch.TranscribeBytes(ctx, data, args.Online)
	default:
		return fail(CodeInvalidRequest, errors.New("file_id or data_base64 is required"))
	}
	if err != nil {
		return fail(codeFor(err), err)
	}
	return ok("transcribed", transcribeResult(t))
}

func (s *Service) speak(ctx context.Context, req ipc.Request) ipc.Response {
	var args SpeakArgs
	if err := req.DecodeArgs(&args); err != nil {
		return fail(CodeInvalidRequest, err)
	}

	speech, err := s.orch.Speak(ctx, orchestrator.SpeakRequest{
		Text:     args.Text,
		Voice:    args.Voice,
		Speed:    args.Speed,
		Language: args.Language,
	})
	if err != nil {
		return fail(codeFor(err), err)
	}

	result := SpeakResult{
		AudioBase64:     base64.StdEncoding.EncodeToString(speech.WAV),
		DurationSeconds: speech.DurationSeconds,
		VoiceUsed:       speech.VoiceUsed,
		Warning:         speech.Warning,
	}
	if args.Play {
		if s.player == nil {
			return fail(CodeDevice, errors.New("no playback device configured"))
		}
		if err := s.player.Play(ctx, speech.Audio); err != nil {
			return fail(CodeDevice, err)
		}
		result.Played = true
	}
	return ok("spoken", result)
}

func (s *Service) convert(ctx context.Context, req ipc.Request) ipc.Response {
	var args ConvertArgs
	if err := req.DecodeArgs(&args); err != nil {
		return fail(CodeInvalidRequest, err)
	}
	if args.TargetSampleRate < 0 {
		return fail(CodeInvalidRequest, fmt.Errorf("invalid target_sample_rate %d", args.TargetSampleRate))
	}
	files := s.orch.Files()
	if files == nil {
		return fail(CodeInternal, orchestrator.ErrNoFileStore)
	}

	conv, err := files.Convert(ctx, args.FileID, args.TargetFormat, args.TargetSampleRate)
	if err != nil {
		return fail(codeFor(err), err)
	}
	return ok("converted", ConvertResult{
		Success:         true,
		FileID:          conv.FileID,
		Format:          conv.Format,
		SampleRate:      conv.SampleRate,
		DurationSeconds: conv.DurationSeconds,
		Path:            conv.Path,
	})
}

func (s *Service) chat(ctx context.Context, req ipc.Request) ipc.Response {
	var args ChatArgs
	if err := req.DecodeArgs(&args); err != nil {
		return fail(CodeInvalidRequest, err)
	}
	reply, err := s.orch.Chat(ctx, generation.Request{Message: args.Message, History: args.History})
	if err != nil {
		return fail(codeFor(err), err)
	}
	return ok("replied", reply)
}

func (s *Service) listen(ctx context.Context, req ipc.Request) ipc.Response {
	var args ListenArgs
	if err := req.DecodeArgs(&args); err != nil {
		return fail(CodeInvalidRequest, err)
	}
	if args.MaxSeconds < 0 {
		return fail(CodeInvalidRequest, fmt.Errorf("invalid max_seconds %v", args.MaxSeconds))
	}

	result, err := s.orch.Listen(ctx, orchestrator.ListenRequest{
		MaxDuration:    time.Duration(args.MaxSeconds * float64(time.Second)),
		OnlineRequired: args.Online,
	})
	if err != nil {
		resp := fail(codeFor(err), err)
		resp.State = string(result.State)
		return resp
	}
	if result.Cancelled {
		resp := ok("listen cancelled", result)
		resp.State = string(result.State)
		return resp
	}
	resp := ok("transcribed", result)
	resp.State = string(result.State)
	return resp
}

func transcribeResult(t orchestrator.Transcription) TranscribeResult {
	return TranscribeResult{
		Text:            t.Text,
		Confidence:      t.Confidence,
		DurationSeconds: t.DurationSeconds,
		LowConfidence:   t.LowConfidence,
	}
}

func decodeBase64(s string) ([]byte, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.New("data_base64 is required")
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode data_base64: %w", err)
	}
	return data, nil
}

func ok(message string, data any) ipc.Response {
	raw, err := json.Marshal(data)
	if err != nil {
		return fail(CodeInternal, fmt.Errorf("encode response: %w", err))
	}
	return ipc.Response{OK: true, Message: message, Data: raw}
}

func fail(code string, err error) ipc.Response {
	return ipc.Response{OK: false, Code: code, Error: err.Error()}
}

// codeFor classifies err into a wire error code.
func codeFor(err error) string {
	var deviceErr *audio.DeviceError
	switch {
	case errors.Is(err, orchestrator.ErrInvalidRequest),
		errors.Is(err, audiofile.ErrUnsupportedFormat),
		errors.Is(err, audiofile.ErrInvalidID),
		errors.Is(err, audiofile.ErrEmptyUpload),
		errors.Is(err, synthesis.ErrEmptyText),
		errors.Is(err, synthesis.ErrTextTooLong):
		return CodeInvalidRequest
	case errors.Is(err, audiofile.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, orchestrator.ErrListenBusy),
		errors.Is(err, orchestrator.ErrNotListening):
		return CodeBusy
	case errors.As(err, &deviceErr):
		return CodeDevice
	case errors.Is(err, orchestrator.ErrNoSpeech):
		return CodeNoSpeech
	case errors.Is(err, orchestrator.ErrNoBackendAvailable):
		return CodeNoBackend
	default:
		return CodeInternal
	}
}
