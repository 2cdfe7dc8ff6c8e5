package config

import (
	"os"
	"strings"
)

// Secrets are read from the environment so config files can be shared.
const (
	EnvHFToken            = "MURMUR_HF_TOKEN"
	EnvTTSAPIKey          = "MURMUR_TTS_API_KEY"
	EnvGoogleCredentials  = "GOOGLE_APPLICATION_CREDENTIALS"
	EnvLogLevel           = "MURMUR_LOG_LEVEL"
	EnvMetricsAddr        = "MURMUR_METRICS_ADDR"
	EnvQuotaStore         = "MURMUR_QUOTA_STORE"
	EnvRedisAddr          = "MURMUR_REDIS_ADDR"
	EnvRecognitionOffline = "MURMUR_VOSK_MODEL"
)

// ApplyEnv overlays environment values onto cfg. getenv is os.Getenv when nil.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	lookup := func(key string) (string, bool) {
		v := strings.TrimSpace(getenv(key))
		return v, v != ""
	}

	if v, ok := lookup(EnvHFToken); ok {
		cfg.Generation.Cloud.Token = v
	}
	if v, ok := lookup(EnvTTSAPIKey); ok {
		cfg.Synthesis.Cloud.APIKey = v
	}
	if v, ok := lookup(EnvGoogleCredentials); ok && cfg.Recognition.Cloud.Credentials == "" {
		cfg.Recognition.Cloud.Credentials = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		cfg.Log.Level = v
	}
	if v, ok := lookup(EnvMetricsAddr); ok {
		cfg.Metrics.Addr = v
	}
	if v, ok := lookup(EnvQuotaStore); ok {
		cfg.Quota.Store = v
	}
	if v, ok := lookup(EnvRedisAddr); ok {
		cfg.Quota.RedisAddr = v
	}
	if v, ok := lookup(EnvRecognitionOffline); ok {
		cfg.Recognition.Offline.Model = v
	}
}
