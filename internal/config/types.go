// Package config resolves, parses, validates, and defaults murmur configuration.
package config

// Config is the fully materialized runtime configuration.
type Config struct {
	Audio       AudioConfig
	Recognition RecognitionConfig
	Synthesis   SynthesisConfig
	Generation  GenerationConfig
	Quota       QuotaConfig
	Storage     StorageConfig
	Metrics     MetricsConfig
	Log         LogConfig
	Debug       DebugConfig
}

// AudioConfig controls capture format and device selection.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	ChunkSize   int
	QueueFrames int
	Input       string
	Fallback    string
	Output      string
	// DeviceIndex pins the input device and wins over Input.
	DeviceIndex *int
	Cues        CueConfig
}

// CueConfig controls listen session tones. Empty file paths use synthesized tones.
type CueConfig struct {
	Enabled      bool
	StartFile    string
	StopFile     string
	CompleteFile string
	CancelFile   string
}

type RecognitionConfig struct {
	ConfidenceThreshold float64
	Language            string
	ChunkMs             int
	MaxListenSeconds    float64
	GateListen          bool
	Offline             OfflineRecognitionConfig
	Cloud               CloudRecognitionConfig
}

type OfflineRecognitionConfig struct {
	Command CommandConfig
	Model   string
}

type CloudRecognitionConfig struct {
	Enabled   bool
	Endpoint  string
	TimeoutMS int
	// Credentials is a service account file; empty uses application default credentials.
	Credentials string
}

type SynthesisConfig struct {
	DefaultVoice string
	Offline      OfflineSynthesisConfig
	Cloud        CloudSynthesisConfig
}

type OfflineSynthesisConfig struct {
	Command string
}

type CloudSynthesisConfig struct {
	Enabled   bool
	Endpoint  string
	Model     string
	Voice     string
	APIKey    string
	TimeoutMS int
}

type GenerationConfig struct {
	Cloud CloudGenerationConfig
	Local LocalGenerationConfig
}

type CloudGenerationConfig struct {
	Enabled           bool
	Endpoint          string
	Model             string
	Token             string
	MaxNewTokens      int
	Temperature       float64
	RequestsPerMinute int
	TimeoutMS         int
}

type LocalGenerationConfig struct {
	Enabled     bool
	Endpoint    string
	Model       string
	Temperature float64
	Context     int
	TimeoutMS   int
}

// QuotaConfig selects the counter store and per-service daily limits. A negative limit
// means unlimited.
type QuotaConfig struct {
	Store       string
	SQLitePath  string
	RedisAddr   string
	RedisPrefix string
	Timezone    string
	Limits      map[string]int64
}

type StorageConfig struct {
	UploadDir string
}

// MetricsConfig enables the Prometheus listener when Addr is set.
type MetricsConfig struct {
	Addr string
}

type LogConfig struct {
	Level string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	DumpAudio bool
	DumpGRPC  bool
	Dir       string
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Message string
}
