package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEmptyContentUsesBase(t *testing.T) {
	cfg, warnings, err := Parse("  \n", FormatJSONC, Default())
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.NotEmpty(t, warnings)
}

func TestParseJSONCOverridesSections(t *testing.T) {
	content := `
{
  "audio": {"sample_rate": 22050, "device_index": 3, "queue_frames": 64,},
  "recognition": {
    "confidence_threshold": 0.7,
    "chunk_ms": 2500,
    "offline": {"command": "vosk-pcm --model '{model}'", "model": "/models/vosk-en"},
    "cloud": {"enabled": true, "timeout_ms": 5000},
  },
  "synthesis": {"default_voice": "en-gb", "cloud": {"voice": "nova"}},
  "generation": {"cloud": {"model": "gpt2", "requests_per_minute": 10}, "local": {"enabled": false}},
  "quota": {"store": "redis", "redis_addr": "127.0.0.1:6379", "limits": {"google_speech": 120, "vosk": -1}},
  "storage": {"upload_dir": "/srv/murmur/uploads"},
  "metrics": {"addr": "127.0.0.1:9464"},
  "log": {"level": "debug"},
  "debug": {"dump_audio": true}
}
`
	cfg, _, err := Parse(content, FormatJSONC, Default())
	require.NoError(t, err)

	require.Equal(t, 22050, cfg.Audio.SampleRate)
	require.NotNil(t, cfg.Audio.DeviceIndex)
	require.Equal(t, 3, *cfg.Audio.DeviceIndex)
	require.Equal(t, 64, cfg.Audio.QueueFrames)
	require.Equal(t, 0.7, cfg.Recognition.ConfidenceThreshold)
	require.Equal(t, 2500, cfg.Recognition.ChunkMs)
	require.Equal(t, []string{"vosk-pcm", "--model", "{model}"}, cfg.Recognition.Offline.Command.Argv)
	require.Equal(t, "/models/vosk-en", cfg.Recognition.Offline.Model)
	require.True(t, cfg.Recognition.Cloud.Enabled)
	require.Equal(t, "en-gb", cfg.Synthesis.DefaultVoice)
	require.Equal(t, "nova", cfg.Synthesis.Cloud.Voice)
	require.Equal(t, "tts-1", cfg.Synthesis.Cloud.Model)
	require.Equal(t, "gpt2", cfg.Generation.Cloud.Model)
	require.False(t, cfg.Generation.Local.Enabled)
	require.Equal(t, "redis", cfg.Quota.Store)
	require.Equal(t, int64(120), cfg.Quota.Limits["google_speech"])
	require.Equal(t, int64(-1), cfg.Quota.Limits["vosk"])
	require.Equal(t, int64(1000), cfg.Quota.Limits["huggingface"])
	require.Equal(t, "/srv/murmur/uploads", cfg.Storage.UploadDir)
	require.Equal(t, "127.0.0.1:9464", cfg.Metrics.Addr)
	require.Equal(t, "debug", cfg.Log.Level)
	require.True(t, cfg.Debug.DumpAudio)
}

func TestParseDoesNotMutateBaseLimits(t *testing.T) {
	base := Default()
	_, _, err := Parse(`{"quota": {"limits": {"huggingface": 5}}}`, FormatJSONC, base)
	require.NoError(t, err)
	require.Equal(t, int64(1000), base.Quota.Limits["huggingface"])
}

func TestParseYAML(t *testing.T) {
	content := `
audio:
  sample_rate: 8000
  cues:
    enabled: false
    start_file: " ~/cues/start.wav "
recognition:
  language: de-DE
quota:
  store: memory
  limits:
    huggingface: 0
`
	cfg, warnings, err := Parse(content, FormatYAML, Default())
	require.NoError(t, err)
	require.Equal(t, 8000, cfg.Audio.SampleRate)
	require.False(t, cfg.Audio.Cues.Enabled)
	require.Equal(t, "~/cues/start.wav", cfg.Audio.Cues.StartFile)
	require.Equal(t, "de-DE", cfg.Recognition.Language)
	require.Equal(t, int64(0), cfg.Quota.Limits["huggingface"])

	var messages []string
	for _, w := range warnings {
		messages = append(messages, w.Message)
	}
	require.Contains(t, messages, "quota.limits.huggingface is 0; the service will never be selected")
	require.Contains(t, messages, "quota.store=memory: counters reset when the daemon restarts")
}

func TestParseYAMLRejectsUnknownFields(t *testing.T) {
	_, _, err := Parse("audio:\n  samplerate: 8000\n", FormatYAML, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "samplerate")

	_, _, err = Parse("log:\n  level: info\n---\nlog:\n  level: debug\n", FormatYAML, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "multiple YAML documents")
}

func TestParseRejectsBadCommandAndEmptyLimitName(t *testing.T) {
	_, _, err := Parse(`{"recognition": {"offline": {"command": "vosk 'unterminated"}}}`, FormatJSONC, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "recognition.offline.command")

	_, _, err = Parse(`{"quota": {"limits": {" ": 3}}}`, FormatJSONC, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty service name")
}

func TestFormatForPath(t *testing.T) {
	require.Equal(t, FormatYAML, FormatForPath("/etc/murmur/config.YAML"))
	require.Equal(t, FormatYAML, FormatForPath("murmur.yml"))
	require.Equal(t, FormatJSONC, FormatForPath("config.jsonc"))
	require.Equal(t, FormatJSONC, FormatForPath("config"))
}

func TestApplyEnvOverridesSecrets(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		EnvHFToken:           "hf_secret",
		EnvTTSAPIKey:         " sk-tts ",
		EnvGoogleCredentials: "/keys/sa.json",
		EnvLogLevel:          "warn",
	}
	ApplyEnv(&cfg, func(key string) string { return env[key] })

	require.Equal(t, "hf_secret", cfg.Generation.Cloud.Token)
	require.Equal(t, "sk-tts", cfg.Synthesis.Cloud.APIKey)
	require.Equal(t, "/keys/sa.json", cfg.Recognition.Cloud.Credentials)
	require.Equal(t, "warn", cfg.Log.Level)
	require.Equal(t, "sqlite", cfg.Quota.Store)
}
