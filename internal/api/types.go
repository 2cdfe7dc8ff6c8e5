package api

import (
	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/backend"
	"github.com/rbright/murmur/internal/generation"
	"github.com/rbright/murmur/internal/quota"
	"github.com/rbright/murmur/internal/synthesis"
)

// Commands served by the daemon.
const (
	CmdStatus     = "status"
	CmdQuota      = "quota"
	CmdDevices    = "devices"
	CmdVoices     = "voices"
	CmdUpload     = "upload"
	CmdInfo       = "info"
	CmdDelete     = "delete"
	CmdTranscribe = "transcribe"
	CmdSpeak      = "speak"
	CmdConvert    = "convert"
	CmdChat       = "chat"
	CmdListen     = "listen"
	CmdStop       = "stop"
	CmdCancel     = "cancel"
	CmdVersion    = "version"
)

// Error codes carried in ipc.Response.Code.
const (
	CodeInvalidRequest = "invalid_request"
	CodeNotFound       = "not_found"
	CodeNoBackend      = "no_backend_available"
	CodeBusy           = "busy"
	CodeNoSpeech       = "no_speech"
	CodeDevice         = "device_error"
	CodeInternal       = "internal"
)

type UploadArgs struct {
	Filename   string `json:"filename"`
	DataBase64 string `json:"data_base64"`
}

type UploadResult struct {
	FileID          string  `json:"file_id"`
	DurationSeconds float64 `json:"duration_seconds"`
	SampleRate      int     `json:"sample_rate"`
	Channels        int     `json:"channels"`
	Format          string  `json:"format"`
}

// FileArgs names a stored upload.
type FileArgs struct {
	FileID string `json:"file_id"`
}

type InfoResult struct {
	FileID          string  `json:"file_id"`
	Filename        string  `json:"filename"`
	SizeBytes       int64   `json:"size_bytes"`
	DurationSeconds float64 `json:"duration_seconds"`
	SampleRate      int     `json:"sample_rate"`
	Channels        int     `json:"channels"`
	Format          string  `json:"format"`
}

type DeleteResult struct {
	FileID  string `json:"file_id"`
	Deleted bool   `json:"deleted"`
}

// TranscribeArgs names a stored upload or carries WAV/raw PCM bytes inline.
type TranscribeArgs struct {
	FileID     string `json:"file_id,omitempty"`
	DataBase64 string `json:"data_base64,omitempty"`
	Language   string `json:"language,omitempty"`
	Online     bool   `json:"online,omitempty"`
}

type TranscribeResult struct {
	Text            string  `json:"text"`
	Confidence      float64 `json:"confidence"`
	DurationSeconds float64 `json:"duration_seconds"`
	LowConfidence   bool    `json:"low_confidence,omitempty"`
}

type SpeakArgs struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
	Language string  `json:"language,omitempty"`
	// Play also sends the audio to the output device.
	Play bool `json:"play,omitempty"`
}

type SpeakResult struct {
	AudioBase64     string  `json:"audio_base64"`
	DurationSeconds float64 `json:"duration_seconds"`
	VoiceUsed       string  `json:"voice_used"`
	Warning         string  `json:"warning,omitempty"`
	Played          bool    `json:"played,omitempty"`
}

type DevicesArgs struct {
	// Kind is "input", "output", or empty for both.
	Kind string `json:"kind,omitempty"`
}

type Device struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate"`
	IsDefault  bool   `json:"is_default"`
}

type DevicesResult struct {
	Inputs  []Device `json:"inputs,omitempty"`
	Outputs []Device `json:"outputs,omitempty"`
}

type ConvertArgs struct {
	FileID           string `json:"file_id"`
	TargetFormat     string `json:"target_format"`
	TargetSampleRate int    `json:"target_sample_rate,omitempty"`
}

type ConvertResult struct {
	Success         bool    `json:"success"`
	FileID          string  `json:"file_id"`
	Format          string  `json:"format"`
	SampleRate      int     `json:"sample_rate"`
	DurationSeconds float64 `json:"duration_seconds"`
	Path            string  `json:"path"`
}

type ChatArgs struct {
	Message string               `json:"message"`
	History []generation.Message `json:"history,omitempty"`
}

type ListenArgs struct {
	MaxSeconds float64 `json:"max_seconds,omitempty"`
	Online     bool    `json:"online,omitempty"`
}

type QuotaEntry struct {
	Service   string `json:"service"`
	Available bool   `json:"available"`
	Remaining int64  `json:"remaining"`
	Used      int64  `json:"used"`
	Limit     string `json:"limit"`
	Outcome   string `json:"outcome"`
	Error     string `json:"error,omitempty"`
}

type StatusResult struct {
	Version     string         `json:"version"`
	ListenState string         `json:"listen_state"`
	Engines     []backend.Info `json:"engines"`
	Quota       []QuotaEntry   `json:"quota"`
}

type VoicesResult struct {
	Voices []synthesis.Voice `json:"voices"`
}

func toDevices(infos []audio.DeviceInfo) []Device {
	out := make([]Device, 0, len(infos))
	for _, d := range infos {
		out = append(out, Device{
			Index:      d.Index,
			Name:       d.Name,
			Channels:   d.Channels,
			SampleRate: d.SampleRate,
			IsDefault:  d.Default,
		})
	}
	return out
}

func toQuotaEntries(avail []quota.Availability) []QuotaEntry {
	out := make([]QuotaEntry, 0, len(avail))
	for _, a := range avail {
		entry := QuotaEntry{
			Service:   a.Service,
			Available: a.Available,
			Remaining: a.Remaining,
			Used:      a.Counter.DailyCalls,
			Limit:     a.Counter.DailyLimit.String(),
			Outcome:   a.Outcome.String(),
		}
		if a.Err != nil {
			entry.Error = a.Err.Error()
		}
		out = append(out, entry)
	}
	return out
}
