package api

import (
	"context"
	"encoding/base64"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/audiofile"
	"github.com/rbright/murmur/internal/backend"
	"github.com/rbright/murmur/internal/generation"
	"github.com/rbright/murmur/internal/ipc"
	"github.com/rbright/murmur/internal/orchestrator"
	"github.com/rbright/murmur/internal/pcm"
	"github.com/rbright/murmur/internal/quota"
	"github.com/rbright/murmur/internal/recognition"
	"github.com/rbright/murmur/internal/store"
	"github.com/rbright/murmur/internal/synthesis"
)

type stubTranscriber struct {
	result    recognition.Result
	languages []string
}

func (s *stubTranscriber) Name() string                      { return "vosk" }
func (s *stubTranscriber) Variant() quota.RecognitionVariant { return quota.RecognitionOffline }
func (s *stubTranscriber) Ready() bool                       { return true }

func (s *stubTranscriber) Transcribe(ctx context.Context, _ []byte, _ int) recognition.Result {
	s.languages = append(s.languages, recognition.LanguageFrom(ctx))
	return s.result
}

type stubSynthesizer struct{}

func (stubSynthesizer) Name() string                    { return "espeak" }
func (stubSynthesizer) Variant() quota.SynthesisVariant { return quota.SynthesisOffline }
func (stubSynthesizer) Ready() bool                     { return true }
func (stubSynthesizer) Voices(context.Context) ([]synthesis.Voice, error) {
	return []synthesis.Voice{{ID: "en-us", Name: "English", Language: "en-us"}}, nil
}

func (stubSynthesizer) Speak(_ context.Context, req synthesis.Request) synthesis.Result {
	return synthesis.Result{Audio: tone(0.25, 22050), VoiceUsed: "en-us", Status: backend.StatusOK}
}

type recordingPlayer struct {
	frames []pcm.Frame
	err    error
}

func (p *recordingPlayer) Play(_ context.Context, frame pcm.Frame) error {
	p.frames = append(p.frames, frame)
	return p.err
}

func tone(seconds float64, rate int) pcm.Frame {
	samples := make([]int16, int(seconds*float64(rate)))
	for i := range samples {
		samples[i] = int16(6000 * math.Sin(2*math.Pi*330*float64(i)/float64(rate)))
	}
	return pcm.NewFrame(samples, rate, time.Now())
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	arbiter := quota.NewArbiter(store.NewMemory(), map[string]quota.Limit{"huggingface": 0})
	orch := orchestrator.New(orchestrator.Config{}, arbiter,
		orchestrator.WithTranscriber(&stubTranscriber{result: recognition.Result{Text: "hello there", Confidence: 0.9, Status: backend.StatusOK}}),
		orchestrator.WithSynthesizer(stubSynthesizer{}),
		orchestrator.WithFileStore(audiofile.NewStore(t.TempDir())),
	)
	return New(orch, opts...)
}

func call(t *testing.T, s *Service, command string, args any) ipc.Response {
	t.Helper()
	req, err := ipc.NewRequest(command, args)
	require.NoError(t, err)
	return s.Handle(context.Background(), req)
}

func wavBase64(t *testing.T, frame pcm.Frame) string {
	t.Helper()
	data, err := audiofile.EncodeWAV(frame)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(data)
}

func TestUploadThenTranscribe(t *testing.T) {
	s := newTestService(t)

	resp := call(t, s, CmdUpload, UploadArgs{Filename: "memo.wav", DataBase64: wavBase64(t, tone(2, 16000))})
	require.True(t, resp.OK, resp.Error)
	var up UploadResult
	require.NoError(t, resp.DecodeData(&up))
	require.Len(t, up.FileID, 8)
	require.Equal(t, "wav", up.Format)
	require.Equal(t, 16000, up.SampleRate)
	require.Equal(t, 1, up.Channels)
	require.InDelta(t, 2.0, up.DurationSeconds, 1e-6)

	resp = call(t, s, CmdTranscribe, TranscribeArgs{FileID: up.FileID})
	require.True(t, resp.OK, resp.Error)
	require.Equal(t, "idle", resp.State)
	var tr TranscribeResult
	require.NoError(t, resp.DecodeData(&tr))
	require.Equal(t, "hello there", tr.Text)
	require.InDelta(t, 0.9, tr.Confidence, 1e-9)
	require.InDelta(t, 2.0, tr.DurationSeconds, 1e-6)
}

func TestTranscribeInlineAudio(t *testing.T) {
	s := newTestService(t)

	resp := call(t, s, CmdTranscribe, TranscribeArgs{DataBase64: wavBase64(t, tone(1, 8000))})
	require.True(t, resp.OK, resp.Error)
	var tr TranscribeResult
	require.NoError(t, resp.DecodeData(&tr))
	require.Equal(t, "hello there", tr.Text)
}

func TestTranscribeArgumentErrors(t *testing.T) {
	s := newTestService(t)

	tests := []struct {
		name string
		args TranscribeArgs
		code string
	}{
		{name: "missing source", args: TranscribeArgs{}, code: CodeInvalidRequest},
		{name: "both sources", args: TranscribeArgs{FileID: "deadbeef", DataBase64: "AAAA"}, code: CodeInvalidRequest},
		{name: "bad base64", args: TranscribeArgs{DataBase64: "***"}, code: CodeInvalidRequest},
		{name: "unknown file", args: TranscribeArgs{FileID: "deadbeef"}, code: CodeNotFound},
		{name: "malformed id", args: TranscribeArgs{FileID: "../etc"}, code: CodeInvalidRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := call(t, s, CmdTranscribe, tc.args)
			require.False(t, resp.OK)
			require.Equal(t, tc.code, resp.Code, resp.Error)
		})
	}
}

func TestTranscribePassesLanguageToEngine(t *testing.T) {
	engine := &stubTranscriber{result: recognition.Result{Text: "hola", Confidence: 0.8, Status: backend.StatusOK}}
	arbiter := quota.NewArbiter(store.NewMemory(), nil)
	s := New(orchestrator.New(orchestrator.Config{}, arbiter, orchestrator.WithTranscriber(engine)))

	resp := call(t, s, CmdTranscribe, TranscribeArgs{DataBase64: wavBase64(t, tone(1, 16000)), Language: "es-ES"})
	require.True(t, resp.OK, resp.Error)
	require.NotEmpty(t, engine.languages)
	for _, language := range engine.languages {
		require.Equal(t, "es-ES", language)
	}

	engine.languages = nil
	resp = call(t, s, CmdTranscribe, TranscribeArgs{DataBase64: wavBase64(t, tone(1, 16000))})
	require.True(t, resp.OK, resp.Error)
	require.NotEmpty(t, engine.languages)
	require.Empty(t, engine.languages[0])
}

func TestInfoThenDelete(t *testing.T) {
	s := newTestService(t)

	data, err := audiofile.EncodeWAV(tone(1.5, 16000))
	require.NoError(t, err)
	resp := call(t, s, CmdUpload, UploadArgs{Filename: "memo.wav", DataBase64: base64.StdEncoding.EncodeToString(data)})
	require.True(t, resp.OK, resp.Error)
	var up UploadResult
	require.NoError(t, resp.DecodeData(&up))

	resp = call(t, s, CmdInfo, FileArgs{FileID: up.FileID})
	require.True(t, resp.OK, resp.Error)
	var info InfoResult
	require.NoError(t, resp.DecodeData(&info))
	require.Equal(t, up.FileID, info.FileID)
	require.Equal(t, "memo.wav", info.Filename)
	require.Equal(t, int64(len(data)), info.SizeBytes)
	require.InDelta(t, 1.5, info.DurationSeconds, 1e-6)
	require.Equal(t, 16000, info.SampleRate)
	require.Equal(t, 1, info.Channels)
	require.Equal(t, "wav", info.Format)

	resp = call(t, s, CmdDelete, FileArgs{FileID: up.FileID})
	require.True(t, resp.OK, resp.Error)
	var deleted DeleteResult
	require.NoError(t, resp.DecodeData(&deleted))
	require.Equal(t, DeleteResult{FileID: up.FileID, Deleted: true}, deleted)

	for _, command := range []string{CmdInfo, CmdDelete, CmdTranscribe} {
		resp = call(t, s, command, FileArgs{FileID: up.FileID})
		require.False(t, resp.OK, command)
		require.Equal(t, CodeNotFound, resp.Code, command)
	}
}

func TestFileCommandArgumentErrors(t *testing.T) {
	s := newTestService(t)

	for _, command := range []string{CmdInfo, CmdDelete} {
		resp := call(t, s, command, FileArgs{})
		require.False(t, resp.OK)
		require.Equal(t, CodeInvalidRequest, resp.Code)

		resp = call(t, s, command, FileArgs{FileID: "../etc"})
		require.False(t, resp.OK)
		require.Equal(t, CodeInvalidRequest, resp.Code)
	}
}

func TestUploadRejectsUnsupportedFormat(t *testing.T) {
	s := newTestService(t)

	resp := call(t, s, CmdUpload, UploadArgs{Filename: "notes.txt", DataBase64: base64.StdEncoding.EncodeToString([]byte("hi"))})
	require.False(t, resp.OK)
	require.Equal(t, CodeInvalidRequest, resp.Code)
	require.Contains(t, resp.Error, "unsupported")
}

func TestSpeakReturnsWAVAndPlays(t *testing.T) {
	player := &recordingPlayer{}
	s := newTestService(t, WithPlayer(player))

	resp := call(t, s, CmdSpeak, SpeakArgs{Text: "good morning", Play: true})
	require.True(t, resp.OK, resp.Error)
	var sp SpeakResult
	require.NoError(t, resp.DecodeData(&sp))
	require.Equal(t, "en-us", sp.VoiceUsed)
	require.True(t, sp.Played)
	require.InDelta(t, 0.25, sp.DurationSeconds, 1e-6)

	wav, err := base64.StdEncoding.DecodeString(sp.AudioBase64)
	require.NoError(t, err)
	frame, info, err := audiofile.DecodeWAV(wav)
	require.NoError(t, err)
	require.Equal(t, 22050, info.SampleRate)
	require.Len(t, player.frames, 1)
	require.True(t, frame.Equal(player.frames[0]))
}

func TestSpeakErrors(t *testing.T) {
	s := newTestService(t, WithPlayer(&recordingPlayer{err: &audio.DeviceError{Op: "play", Err: errors.New("sink gone")}}))

	resp := call(t, s, CmdSpeak, SpeakArgs{Text: ""})
	require.False(t, resp.OK)
	require.Equal(t, CodeInvalidRequest, resp.Code)

	resp = call(t, s, CmdSpeak, SpeakArgs{Text: "hi", Play: true})
	require.False(t, resp.OK)
	require.Equal(t, CodeDevice, resp.Code)
}

func TestConvertWAVResample(t *testing.T) {
	s := newTestService(t)

	resp := call(t, s, CmdUpload, UploadArgs{Filename: "clip.wav", DataBase64: wavBase64(t, tone(1, 44100))})
	require.True(t, resp.OK, resp.Error)
	var up UploadResult
	require.NoError(t, resp.DecodeData(&up))

	resp = call(t, s, CmdConvert, ConvertArgs{FileID: up.FileID, TargetFormat: "wav", TargetSampleRate: 16000})
	require.True(t, resp.OK, resp.Error)
	var conv ConvertResult
	require.NoError(t, resp.DecodeData(&conv))
	require.True(t, conv.Success)
	require.NotEqual(t, up.FileID, conv.FileID)
	require.Equal(t, 16000, conv.SampleRate)
	require.InDelta(t, 1.0, conv.DurationSeconds, 1e-3)
	require.FileExists(t, conv.Path)

	resp = call(t, s, CmdConvert, ConvertArgs{FileID: up.FileID, TargetFormat: "aiff"})
	require.False(t, resp.OK)
	require.Equal(t, CodeInvalidRequest, resp.Code)
}

func TestChatFallsBackToCanned(t *testing.T) {
	s := newTestService(t)

	resp := call(t, s, CmdChat, ChatArgs{Message: "what time is it", History: []generation.Message{{Role: "user", Content: "hi"}}})
	require.True(t, resp.OK, resp.Error)
	var reply orchestrator.Reply
	require.NoError(t, resp.DecodeData(&reply))
	require.True(t, reply.Canned)
	require.Equal(t, generation.CannedResponse, reply.Text)

	resp = call(t, s, CmdChat, ChatArgs{})
	require.False(t, resp.OK)
	require.Equal(t, CodeInvalidRequest, resp.Code)
}

func TestDevicesByKind(t *testing.T) {
	inputs := func(context.Context) ([]audio.DeviceInfo, error) {
		return []audio.DeviceInfo{{Index: 1, Name: "mic", Channels: 1, SampleRate: 48000, Default: true}}, nil
	}
	outputs := func(context.Context) ([]audio.DeviceInfo, error) {
		return nil, &audio.DeviceError{Op: "list sinks", Err: errors.New("no server")}
	}
	s := newTestService(t, WithDeviceListers(inputs, outputs))

	resp := call(t, s, CmdDevices, DevicesArgs{Kind: "input"})
	require.True(t, resp.OK, resp.Error)
	var devices DevicesResult
	require.NoError(t, resp.DecodeData(&devices))
	require.Equal(t, []Device{{Index: 1, Name: "mic", Channels: 1, SampleRate: 48000, IsDefault: true}}, devices.Inputs)
	require.Empty(t, devices.Outputs)

	resp = call(t, s, CmdDevices, nil)
	require.False(t, resp.OK)
	require.Equal(t, CodeDevice, resp.Code)

	resp = call(t, s, CmdDevices, DevicesArgs{Kind: "both"})
	require.Equal(t, CodeInvalidRequest, resp.Code)
}

func TestStatusReportsEnginesAndQuota(t *testing.T) {
	s := newTestService(t)

	resp := call(t, s, CmdStatus, nil)
	require.True(t, resp.OK, resp.Error)
	var status StatusResult
	require.NoError(t, resp.DecodeData(&status))
	require.Equal(t, "idle", status.ListenState)
	require.Len(t, status.Engines, 2)
	require.NotEmpty(t, status.Quota)

	var hf QuotaEntry
	for _, q := range status.Quota {
		if q.Service == "huggingface" {
			hf = q
		}
	}
	require.False(t, hf.Available)
	require.Equal(t, "0", hf.Limit)
}

func TestVoicesAndVersion(t *testing.T) {
	s := newTestService(t)

	resp := call(t, s, CmdVoices, nil)
	require.True(t, resp.OK, resp.Error)
	var voices VoicesResult
	require.NoError(t, resp.DecodeData(&voices))
	require.Equal(t, "en-us", voices.Voices[0].ID)

	resp = call(t, s, CmdVersion, nil)
	require.True(t, resp.OK)
	require.Contains(t, resp.Message, "murmur")
}

func TestListenWithoutCaptureAndStopWhenIdle(t *testing.T) {
	s := newTestService(t)

	resp := call(t, s, CmdListen, ListenArgs{MaxSeconds: 1})
	require.False(t, resp.OK)
	require.Equal(t, CodeNoBackend, resp.Code)
	require.Equal(t, "idle", resp.State)

	resp = call(t, s, CmdStop, nil)
	require.False(t, resp.OK)
	require.Equal(t, CodeBusy, resp.Code)

	resp = call(t, s, CmdListen, ListenArgs{MaxSeconds: -1})
	require.Equal(t, CodeInvalidRequest, resp.Code)
}

func TestUnknownCommandAndBadArgs(t *testing.T) {
	s := newTestService(t)

	resp := s.Handle(context.Background(), ipc.Request{Command: "dance"})
	require.False(t, resp.OK)
	require.Equal(t, CodeInvalidRequest, resp.Code)
	require.Contains(t, resp.Error, "unknown command")

	resp = s.Handle(context.Background(), ipc.Request{Command: CmdSpeak, Args: []byte(`{"text": 5}`)})
	require.False(t, resp.OK)
	require.Equal(t, CodeInvalidRequest, resp.Code)
}
