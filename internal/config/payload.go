package config

import (
	"fmt"
	"strings"
)

// payload is the on-disk shape shared by the JSONC and YAML parsers. Pointer fields
// distinguish "absent" from zero values.
type payload struct {
	Audio       *audioPayload       `json:"audio" yaml:"audio"`
	Recognition *recognitionPayload `json:"recognition" yaml:"recognition"`
	Synthesis   *synthesisPayload   `json:"synthesis" yaml:"synthesis"`
	Generation  *generationPayload  `json:"generation" yaml:"generation"`
	Quota       *quotaPayload       `json:"quota" yaml:"quota"`
	Storage     *storagePayload     `json:"storage" yaml:"storage"`
	Metrics     *metricsPayload     `json:"metrics" yaml:"metrics"`
	Log         *logPayload         `json:"log" yaml:"log"`
	Debug       *debugPayload       `json:"debug" yaml:"debug"`
}

type audioPayload struct {
	SampleRate  *int    `json:"sample_rate" yaml:"sample_rate"`
	Channels    *int    `json:"channels" yaml:"channels"`
	ChunkSize   *int    `json:"chunk_size" yaml:"chunk_size"`
	QueueFrames *int    `json:"queue_frames" yaml:"queue_frames"`
	Input       *string `json:"input" yaml:"input"`
	Fallback    *string `json:"fallback" yaml:"fallback"`
	Output      *string `json:"output" yaml:"output"`
	DeviceIndex *int    `json:"device_index" yaml:"device_index"`
	Cues        *struct {
		Enabled      *bool   `json:"enabled" yaml:"enabled"`
		StartFile    *string `json:"start_file" yaml:"start_file"`
		StopFile     *string `json:"stop_file" yaml:"stop_file"`
		CompleteFile *string `json:"complete_file" yaml:"complete_file"`
		CancelFile   *string `json:"cancel_file" yaml:"cancel_file"`
	} `json:"cues" yaml:"cues"`
}

type recognitionPayload struct {
	ConfidenceThreshold *float64 `json:"confidence_threshold" yaml:"confidence_threshold"`
	Language            *string  `json:"language" yaml:"language"`
	ChunkMs             *int     `json:"chunk_ms" yaml:"chunk_ms"`
	MaxListenSeconds    *float64 `json:"max_listen_seconds" yaml:"max_listen_seconds"`
	GateListen          *bool    `json:"gate_listen" yaml:"gate_listen"`
	Offline             *struct {
		Command *string `json:"command" yaml:"command"`
		Model   *string `json:"model" yaml:"model"`
	} `json:"offline" yaml:"offline"`
	Cloud *struct {
		Enabled     *bool   `json:"enabled" yaml:"enabled"`
		Endpoint    *string `json:"endpoint" yaml:"endpoint"`
		TimeoutMS   *int    `json:"timeout_ms" yaml:"timeout_ms"`
		Credentials *string `json:"credentials" yaml:"credentials"`
	} `json:"cloud" yaml:"cloud"`
}

type synthesisPayload struct {
	DefaultVoice *string `json:"default_voice" yaml:"default_voice"`
	Offline      *struct {
		Command *string `json:"command" yaml:"command"`
	} `json:"offline" yaml:"offline"`
	Cloud *struct {
		Enabled   *bool   `json:"enabled" yaml:"enabled"`
		Endpoint  *string `json:"endpoint" yaml:"endpoint"`
		Model     *string `json:"model" yaml:"model"`
		Voice     *string `json:"voice" yaml:"voice"`
		TimeoutMS *int    `json:"timeout_ms" yaml:"timeout_ms"`
	} `json:"cloud" yaml:"cloud"`
}

type generationPayload struct {
	Cloud *struct {
		Enabled           *bool    `json:"enabled" yaml:"enabled"`
		Endpoint          *string  `json:"endpoint" yaml:"endpoint"`
		Model             *string  `json:"model" yaml:"model"`
		MaxNewTokens      *int     `json:"max_new_tokens" yaml:"max_new_tokens"`
		Temperature       *float64 `json:"temperature" yaml:"temperature"`
		RequestsPerMinute *int     `json:"requests_per_minute" yaml:"requests_per_minute"`
		TimeoutMS         *int     `json:"timeout_ms" yaml:"timeout_ms"`
	} `json:"cloud" yaml:"cloud"`
	Local *struct {
		Enabled     *bool    `json:"enabled" yaml:"enabled"`
		Endpoint    *string  `json:"endpoint" yaml:"endpoint"`
		Model       *string  `json:"model" yaml:"model"`
		Temperature *float64 `json:"temperature" yaml:"temperature"`
		Context     *int     `json:"context" yaml:"context"`
		TimeoutMS   *int     `json:"timeout_ms" yaml:"timeout_ms"`
	} `json:"local" yaml:"local"`
}

type quotaPayload struct {
	Store       *string          `json:"store" yaml:"store"`
	SQLitePath  *string          `json:"sqlite_path" yaml:"sqlite_path"`
	RedisAddr   *string          `json:"redis_addr" yaml:"redis_addr"`
	RedisPrefix *string          `json:"redis_prefix" yaml:"redis_prefix"`
	Timezone    *string          `json:"timezone" yaml:"timezone"`
	Limits      map[string]int64 `json:"limits" yaml:"limits"`
}

type storagePayload struct {
	UploadDir *string `json:"upload_dir" yaml:"upload_dir"`
}

type metricsPayload struct {
	Addr *string `json:"addr" yaml:"addr"`
}

type logPayload struct {
	Level *string `json:"level" yaml:"level"`
}

type debugPayload struct {
	DumpAudio *bool   `json:"dump_audio" yaml:"dump_audio"`
	DumpGRPC  *bool   `json:"dump_grpc" yaml:"dump_grpc"`
	Dir       *string `json:"dir" yaml:"dir"`
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setTrimmed(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func (p payload) applyTo(cfg *Config) ([]Warning, error) {
	var warnings []Warning

	if a := p.Audio; a != nil {
		set(&cfg.Audio.SampleRate, a.SampleRate)
		set(&cfg.Audio.Channels, a.Channels)
		set(&cfg.Audio.ChunkSize, a.ChunkSize)
		set(&cfg.Audio.QueueFrames, a.QueueFrames)
		setTrimmed(&cfg.Audio.Input, a.Input)
		setTrimmed(&cfg.Audio.Fallback, a.Fallback)
		setTrimmed(&cfg.Audio.Output, a.Output)
		if a.DeviceIndex != nil {
			idx := *a.DeviceIndex
			cfg.Audio.DeviceIndex = &idx
		}
		if c := a.Cues; c != nil {
			set(&cfg.Audio.Cues.Enabled, c.Enabled)
			setTrimmed(&cfg.Audio.Cues.StartFile, c.StartFile)
			setTrimmed(&cfg.Audio.Cues.StopFile, c.StopFile)
			setTrimmed(&cfg.Audio.Cues.CompleteFile, c.CompleteFile)
			setTrimmed(&cfg.Audio.Cues.CancelFile, c.CancelFile)
		}
	}

	if r := p.Recognition; r != nil {
		set(&cfg.Recognition.ConfidenceThreshold, r.ConfidenceThreshold)
		setTrimmed(&cfg.Recognition.Language, r.Language)
		set(&cfg.Recognition.ChunkMs, r.ChunkMs)
		set(&cfg.Recognition.MaxListenSeconds, r.MaxListenSeconds)
		set(&cfg.Recognition.GateListen, r.GateListen)
		if r.Offline != nil {
			if r.Offline.Command != nil {
				argv, err := parseArgv(*r.Offline.Command)
				if err != nil {
					return nil, fmt.Errorf("invalid recognition.offline.command: %w", err)
				}
				cfg.Recognition.Offline.Command = CommandConfig{Raw: *r.Offline.Command, Argv: argv}
			}
			setTrimmed(&cfg.Recognition.Offline.Model, r.Offline.Model)
		}
		if r.Cloud != nil {
			set(&cfg.Recognition.Cloud.Enabled, r.Cloud.Enabled)
			setTrimmed(&cfg.Recognition.Cloud.Endpoint, r.Cloud.Endpoint)
			set(&cfg.Recognition.Cloud.TimeoutMS, r.Cloud.TimeoutMS)
			setTrimmed(&cfg.Recognition.Cloud.Credentials, r.Cloud.Credentials)
		}
	}

	if s := p.Synthesis; s != nil {
		setTrimmed(&cfg.Synthesis.DefaultVoice, s.DefaultVoice)
		if s.Offline != nil {
			setTrimmed(&cfg.Synthesis.Offline.Command, s.Offline.Command)
		}
		if s.Cloud != nil {
			set(&cfg.Synthesis.Cloud.Enabled, s.Cloud.Enabled)
			setTrimmed(&cfg.Synthesis.Cloud.Endpoint, s.Cloud.Endpoint)
			setTrimmed(&cfg.Synthesis.Cloud.Model, s.Cloud.Model)
			setTrimmed(&cfg.Synthesis.Cloud.Voice, s.Cloud.Voice)
			set(&cfg.Synthesis.Cloud.TimeoutMS, s.Cloud.TimeoutMS)
		}
	}

	if g := p.Generation; g != nil {
		if c := g.Cloud; c != nil {
			set(&cfg.Generation.Cloud.Enabled, c.Enabled)
			setTrimmed(&cfg.Generation.Cloud.Endpoint, c.Endpoint)
			setTrimmed(&cfg.Generation.Cloud.Model, c.Model)
			set(&cfg.Generation.Cloud.MaxNewTokens, c.MaxNewTokens)
			set(&cfg.Generation.Cloud.Temperature, c.Temperature)
			set(&cfg.Generation.Cloud.RequestsPerMinute, c.RequestsPerMinute)
			set(&cfg.Generation.Cloud.TimeoutMS, c.TimeoutMS)
		}
		if l := g.Local; l != nil {
			set(&cfg.Generation.Local.Enabled, l.Enabled)
			setTrimmed(&cfg.Generation.Local.Endpoint, l.Endpoint)
			setTrimmed(&cfg.Generation.Local.Model, l.Model)
			set(&cfg.Generation.Local.Temperature, l.Temperature)
			set(&cfg.Generation.Local.Context, l.Context)
			set(&cfg.Generation.Local.TimeoutMS, l.TimeoutMS)
		}
	}

	if q := p.Quota; q != nil {
		setTrimmed(&cfg.Quota.Store, q.Store)
		setTrimmed(&cfg.Quota.SQLitePath, q.SQLitePath)
		setTrimmed(&cfg.Quota.RedisAddr, q.RedisAddr)
		set(&cfg.Quota.RedisPrefix, q.RedisPrefix)
		setTrimmed(&cfg.Quota.Timezone, q.Timezone)
		if q.Limits != nil {
			limits := make(map[string]int64, len(cfg.Quota.Limits)+len(q.Limits))
			for name, limit := range cfg.Quota.Limits {
				limits[name] = limit
			}
			for name, limit := range q.Limits {
				name = strings.TrimSpace(name)
				if name == "" {
					return nil, fmt.Errorf("quota.limits contains an empty service name")
				}
				if limit == 0 {
					warnings = append(warnings, Warning{Message: fmt.Sprintf("quota.limits.%s is 0; the service will never be selected", name)})
				}
				limits[name] = limit
			}
			cfg.Quota.Limits = limits
		}
	}

	if p.Storage != nil {
		setTrimmed(&cfg.Storage.UploadDir, p.Storage.UploadDir)
	}
	if p.Metrics != nil {
		setTrimmed(&cfg.Metrics.Addr, p.Metrics.Addr)
	}
	if p.Log != nil {
		setTrimmed(&cfg.Log.Level, p.Log.Level)
	}
	if d := p.Debug; d != nil {
		set(&cfg.Debug.DumpAudio, d.DumpAudio)
		set(&cfg.Debug.DumpGRPC, d.DumpGRPC)
		setTrimmed(&cfg.Debug.Dir, d.Dir)
	}

	return warnings, nil
}
