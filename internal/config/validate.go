package config

import (
	"fmt"
	"strings"
	"time"
)

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if cfg.Audio.SampleRate <= 0 {
		return nil, fmt.Errorf("audio.sample_rate must be > 0")
	}
	if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		return nil, fmt.Errorf("audio.channels must be 1 or 2")
	}
	if cfg.Audio.ChunkSize <= 0 {
		return nil, fmt.Errorf("audio.chunk_size must be > 0")
	}
	if cfg.Audio.QueueFrames <= 0 {
		return nil, fmt.Errorf("audio.queue_frames must be > 0")
	}
	if cfg.Audio.DeviceIndex != nil && *cfg.Audio.DeviceIndex < 0 {
		return nil, fmt.Errorf("audio.device_index must be >= 0")
	}
	if cfg.Audio.Channels == 2 {
		warnings = append(warnings, Warning{Message: "audio.channels=2: capture is downmixed to mono before recognition"})
	}

	threshold := cfg.Recognition.ConfidenceThreshold
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("recognition.confidence_threshold must be within [0, 1]")
	}
	if strings.TrimSpace(cfg.Recognition.Language) == "" {
		return nil, fmt.Errorf("recognition.language must not be empty")
	}
	if cfg.Recognition.ChunkMs <= 0 {
		return nil, fmt.Errorf("recognition.chunk_ms must be > 0")
	}
	if cfg.Recognition.MaxListenSeconds <= 0 {
		return nil, fmt.Errorf("recognition.max_listen_seconds must be > 0")
	}
	if len(cfg.Recognition.Offline.Command.Argv) == 0 {
		return nil, fmt.Errorf("recognition.offline.command must not be empty")
	}
	if cfg.Recognition.Offline.Model == "" {
		warnings = append(warnings, Warning{Message: "recognition.offline.model is unset; offline recognition is unavailable"})
	}
	if cfg.Recognition.Cloud.TimeoutMS <= 0 {
		return nil, fmt.Errorf("recognition.cloud.timeout_ms must be > 0")
	}

	if strings.TrimSpace(cfg.Synthesis.Offline.Command) == "" {
		return nil, fmt.Errorf("synthesis.offline.command must not be empty")
	}
	if cfg.Synthesis.Cloud.Enabled && cfg.Synthesis.Cloud.APIKey == "" {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("synthesis.cloud is enabled but %s is unset", EnvTTSAPIKey)})
	}

	if gc := cfg.Generation.Cloud; gc.Enabled {
		if gc.RequestsPerMinute <= 0 {
			return nil, fmt.Errorf("generation.cloud.requests_per_minute must be > 0")
		}
		if gc.MaxNewTokens <= 0 {
			return nil, fmt.Errorf("generation.cloud.max_new_tokens must be > 0")
		}
		if gc.Token == "" {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("generation.cloud is enabled but %s is unset", EnvHFToken)})
		}
	}
	if gl := cfg.Generation.Local; gl.Enabled && strings.TrimSpace(gl.Endpoint) == "" {
		return nil, fmt.Errorf("generation.local.endpoint must not be empty when enabled")
	}

	switch strings.ToLower(cfg.Quota.Store) {
	case "memory":
		warnings = append(warnings, Warning{Message: "quota.store=memory: counters reset when the daemon restarts"})
	case "sqlite":
	case "redis":
		if cfg.Quota.RedisAddr == "" {
			return nil, fmt.Errorf("quota.redis_addr must not be empty when quota.store=redis")
		}
	default:
		return nil, fmt.Errorf("quota.store must be one of: memory, sqlite, redis")
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}

	if !logLevels[strings.ToLower(cfg.Log.Level)] {
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	return warnings, nil
}

// Location resolves quota.timezone. Empty and "Local" use the host zone.
func (c Config) Location() (*time.Location, error) {
	switch tz := strings.TrimSpace(c.Quota.Timezone); tz {
	case "", "Local":
		return time.Local, nil
	default:
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("quota.timezone: %w", err)
		}
		return loc, nil
	}
}
