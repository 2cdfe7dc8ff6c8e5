package config

// Default returns the runtime configuration used when no file is present.
func Default() Config {
	vosk := "vosk-transcriber-pcm --model {model} --sample-rate {rate}"

	return Config{
		Audio: AudioConfig{
			SampleRate:  16000,
			Channels:    1,
			ChunkSize:   1024,
			QueueFrames: 256,
			Input:       "default",
			Fallback:    "default",
			Output:      "default",
			Cues:        CueConfig{Enabled: true},
		},
		Recognition: RecognitionConfig{
			ConfidenceThreshold: 0.5,
			Language:            "en-US",
			ChunkMs:             5000,
			MaxListenSeconds:    30,
			GateListen:          true,
			Offline: OfflineRecognitionConfig{
				Command: CommandConfig{Raw: vosk, Argv: mustParseArgv(vosk)},
			},
			Cloud: CloudRecognitionConfig{TimeoutMS: 30000},
		},
		Synthesis: SynthesisConfig{
			DefaultVoice: "en-us",
			Offline:      OfflineSynthesisConfig{Command: "espeak-ng"},
			Cloud: CloudSynthesisConfig{
				Endpoint:  "https://api.openai.com",
				Model:     "tts-1",
				Voice:     "alloy",
				TimeoutMS: 30000,
			},
		},
		Generation: GenerationConfig{
			Cloud: CloudGenerationConfig{
				Enabled:           true,
				Endpoint:          "https://api-inference.huggingface.co/models",
				Model:             "microsoft/DialoGPT-medium",
				MaxNewTokens:      256,
				Temperature:       0.7,
				RequestsPerMinute: 30,
				TimeoutMS:         30000,
			},
			Local: LocalGenerationConfig{
				Enabled:     true,
				Endpoint:    "http://127.0.0.1:11434",
				Model:       "llama3.2",
				Temperature: 0.7,
				Context:     2048,
				TimeoutMS:   60000,
			},
		},
		Quota: QuotaConfig{
			Store:       "sqlite",
			RedisPrefix: "murmur:quota:",
			Timezone:    "Local",
			Limits: map[string]int64{
				"huggingface":   1000,
				"google_speech": 60,
				"openai_tts":    500,
			},
		},
		Log: LogConfig{Level: "info"},
	}
}
