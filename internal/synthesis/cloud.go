package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rbright/murmur/internal/audiofile"
	"github.com/rbright/murmur/internal/backend"
	"github.com/rbright/murmur/internal/quota"
)

const (
	cloudServiceName    = "openai_tts"
	defaultCloudModel   = "tts-1"
	defaultCloudVoice   = "alloy"
	defaultCloudTimeout = 30 * time.Second
	minCloudSpeed       = 0.25
	maxCloudSpeed       = 4.0
	maxErrorBody        = 4096
)

var cloudVoices = []Voice{
	{ID: "alloy", Name: "Alloy"},
	{ID: "echo", Name: "Echo"},
	{ID: "fable", Name: "Fable"},
	{ID: "onyx", Name: "Onyx"},
	{ID: "nova", Name: "Nova"},
	{ID: "shimmer", Name: "Shimmer"},
}

// CloudConfig configures an OpenAI-compatible speech endpoint.
type CloudConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Voice    string
	Timeout  time.Duration
}

// Cloud calls POST {endpoint}/v1/audio/speech and decodes the WAV response.
type Cloud struct {
	cfg        CloudConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// CloudOption customizes Cloud.
type CloudOption func(*Cloud)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) CloudOption {
	return func(cl *Cloud) { cl.httpClient = c }
}

// WithCloudLogger sets the engine logger.
func WithCloudLogger(logger *slog.Logger) CloudOption {
	return func(c *Cloud) { c.logger = logger }
}

// NewCloud builds a cloud engine.
func NewCloud(cfg CloudConfig, opts ...CloudOption) *Cloud {
	cfg.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if cfg.Model == "" {
		cfg.Model = defaultCloudModel
	}
	if cfg.Voice == "" {
		cfg.Voice = defaultCloudVoice
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCloudTimeout
	}
	c := &Cloud{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cloud) Name() string { return cloudServiceName }

func (c *Cloud) Variant() quota.SynthesisVariant { return quota.SynthesisCloud }

// Ready reports whether an endpoint and key are configured.
func (c *Cloud) Ready() bool {
	return c.cfg.Endpoint != "" && c.cfg.APIKey != ""
}

func (c *Cloud) Voices(context.Context) ([]Voice, error) {
	return append([]Voice(nil), cloudVoices...), nil
}

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed"`
}

// Speak requests WAV audio for req.
func (c *Cloud) Speak(ctx context.Context, req Request) Result {
	if err := ValidateText(req.Text); err != nil {
		return failure(err)
	}
	if !c.Ready() {
		return failure(fmt.Errorf("%w: %s endpoint or api key missing", ErrNotInitialized, cloudServiceName))
	}

	voice, warning := ResolveVoice(cloudVoices, req.Voice, c.cfg.Voice)
	if warning != "" {
		c.logger.Warn("voice fallback", "requested", req.Voice, "voice", voice.ID)
	}

	body, err := json.Marshal(speechRequest{
		Model:          c.cfg.Model,
		Input:          req.Text,
		Voice:          voice.ID,
		ResponseFormat: "wav",
		Speed:          CloudSpeed(ClampRate(req.Rate)),
	})
	if err != nil {
		return failure(fmt.Errorf("encode speech request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+"/v1/audio/speech", bytes.NewReader(body))
	if err != nil {
		return failure(fmt.Errorf("build speech request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return failure(backend.FromTransport(cloudServiceName, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return failure(backend.FromHTTP(cloudServiceName, resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure(backend.FromTransport(cloudServiceName, err))
	}
	frame, _, err := audiofile.DecodeWAV(data)
	if err != nil {
		return failure(&backend.ExternalServiceError{Service: cloudServiceName, Err: fmt.Errorf("decode audio: %w", err)})
	}

	return Result{Audio: frame, VoiceUsed: voice.ID, Warning: warning}
}

// CloudSpeed converts words per minute to the endpoint's speed multiplier.
func CloudSpeed(rate int) float64 {
	speed := float64(rate) / DefaultRate
	return min(max(speed, minCloudSpeed), maxCloudSpeed)
}
