package generation

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

	"github.com/rbright/murmur/internal/backend"
	"github.com/rbright/murmur/internal/quota"
)

const (
	localServiceName     = "ollama"
	defaultLocalEndpoint = "http://127.0.0.1:11434"
	defaultLocalModel    = "llama3.2"
	readyTimeout         = 2 * time.Second
)

// LocalConfig configures an Ollama server.
type LocalConfig struct {
	Endpoint    string
	Model       string
	Temperature float64
	Context     int
	Timeout     time.Duration
}

// Local calls Ollama's /api/generate without streaming.
type Local struct {
	cfg        LocalConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// LocalOption customizes Local.
type LocalOption func(*Local)

// WithLocalHTTPClient replaces the HTTP client.
func WithLocalHTTPClient(c *http.Client) LocalOption {
	return func(l *Local) { l.httpClient = c }
}

// WithLocalLogger sets the engine logger.
func WithLocalLogger(logger *slog.Logger) LocalOption {
	return func(l *Local) { l.logger = logger }
}

// NewLocal builds an Ollama generator.
func NewLocal(cfg LocalConfig, opts ...LocalOption) *Local {
	cfg.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultLocalEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = defaultLocalModel
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * defaultTimeout
	}
	l := &Local{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Local) Name() string { return localServiceName }

func (l *Local) Variant() quota.GenerationVariant { return quota.GenerationLocal }

// Ready probes the server's model list.
func (l *Local) Ready() bool {
	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.cfg.Endpoint+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumCtx      int     `json:"num_ctx,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate requests one non-streamed completion.
func (l *Local) Generate(ctx context.Context, req Request) Result {
	body, err := json.Marshal(ollamaRequest{
		Model:  l.cfg.Model,
		Prompt: BuildPrompt(req),
		Options: ollamaOptions{
			Temperature: l.cfg.Temperature,
			NumCtx:      l.cfg.Context,
		},
	})
	if err != nil {
		return failure(fmt.Errorf("encode ollama request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.Endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return failure(fmt.Errorf("build ollama request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(httpReq)
	if err != nil {
		return failure(backend.FromTransport(localServiceName, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return failure(backend.FromHTTP(localServiceName, resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return failure(&backend.ExternalServiceError{Service: localServiceName, Err: fmt.Errorf("decode response: %w", err)})
	}
	text := strings.TrimSpace(out.Response)
	if text == "" {
		l.logger.Warn("empty local generation", "model", l.cfg.Model)
	}
	return Result{Text: text}
}
