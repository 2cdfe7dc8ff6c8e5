package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rbright/murmur/internal/backend"
	"github.com/rbright/murmur/internal/quota"
)

const (
	cloudServiceName         = "huggingface"
	defaultCloudEndpoint     = "https://api-inference.huggingface.co/models"
	defaultMaxNewTokens      = 256
	defaultTemperature       = 0.7
	defaultRequestsPerMinute = 30
	defaultTimeout           = 30 * time.Second
	maxErrorBody             = 4096
)

var errRateLimited = errors.New("local request rate exceeded")

// CloudConfig configures the Hugging Face inference API.
type CloudConfig struct {
	Endpoint          string
	Model             string
	Token             string
	MaxNewTokens      int
	Temperature       float64
	RequestsPerMinute int
	Timeout           time.Duration
}

// Cloud posts prompts to {endpoint}/{model}.
type Cloud struct {
	cfg        CloudConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// CloudOption customizes Cloud.
type CloudOption func(*Cloud)

// WithCloudHTTPClient replaces the HTTP client.
func WithCloudHTTPClient(c *http.Client) CloudOption {
	return func(cl *Cloud) { cl.httpClient = c }
}

// WithCloudLogger sets the engine logger.
func WithCloudLogger(logger *slog.Logger) CloudOption {
	return func(c *Cloud) { c.logger = logger }
}

// NewCloud builds a Hugging Face generator with a per-minute request limiter.
func NewCloud(cfg CloudConfig, opts ...CloudOption) *Cloud {
	cfg.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultCloudEndpoint
	}
	if cfg.MaxNewTokens <= 0 {
		cfg.MaxNewTokens = defaultMaxNewTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = defaultRequestsPerMinute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	c := &Cloud{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute),
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cloud) Name() string { return cloudServiceName }

func (c *Cloud) Variant() quota.GenerationVariant { return quota.GenerationCloud }

// Ready reports whether a token and model are configured.
func (c *Cloud) Ready() bool {
	return c.cfg.Token != "" && c.cfg.Model != ""
}

type inferenceRequest struct {
	Inputs     string              `json:"inputs"`
	Parameters inferenceParameters `json:"parameters"`
}

type inferenceParameters struct {
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
}

type inferenceResult struct {
	GeneratedText string `json:"generated_text"`
}

// Generate requests a completion and strips the echoed prompt.
func (c *Cloud) Generate(ctx context.Context, req Request) Result {
	if !c.Ready() {
		return failure(fmt.Errorf("%w: %s token or model missing", ErrNotInitialized, cloudServiceName))
	}
	if !c.limiter.Allow() {
		return failure(&backend.ExternalServiceError{
			Service:    cloudServiceName,
			StatusCode: http.StatusTooManyRequests,
			Retryable:  true,
			Err:        errRateLimited,
		})
	}

	prompt := BuildPrompt(req)
	body, err := json.Marshal(inferenceRequest{
		Inputs: prompt,
		Parameters: inferenceParameters{
			MaxNewTokens: c.cfg.MaxNewTokens,
			Temperature:  c.cfg.Temperature,
		},
	})
	if err != nil {
		return failure(fmt.Errorf("encode inference request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+"/"+c.cfg.Model, bytes.NewReader(body))
	if err != nil {
		return failure(fmt.Errorf("build inference request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return failure(backend.FromTransport(cloudServiceName, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if resp.StatusCode == http.StatusTooManyRequests {
			c.logger.Warn("generation rate limited", "service", cloudServiceName)
		}
		return failure(backend.FromHTTP(cloudServiceName, resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var results []inferenceResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return failure(&backend.ExternalServiceError{Service: cloudServiceName, Err: fmt.Errorf("decode response: %w", err)})
	}
	if len(results) == 0 {
		return failure(&backend.ExternalServiceError{Service: cloudServiceName, Err: errors.New("empty response")})
	}

	return Result{Text: stripPrompt(results[0].GeneratedText, prompt)}
}

func stripPrompt(generated string, prompt string) string {
	if rest, ok := strings.CutPrefix(generated, prompt); ok {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(generated)
}
