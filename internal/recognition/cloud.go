package recognition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/rbright/murmur/internal/backend"
	"github.com/rbright/murmur/internal/quota"
	"github.com/rbright/murmur/internal/transcript"
)

const (
	cloudServiceName    = "google_speech"
	cloudChunkBytes     = 16 * 1024
	defaultCloudTimeout = 30 * time.Second
)

// CloudConfig configures Google Cloud Speech streaming recognition.
type CloudConfig struct {
	Language  string
	Endpoint  string
	Timeout   time.Duration
	Threshold float64
	// CredentialsFile overrides application default credentials.
	CredentialsFile string
	// DebugSink receives every response as one protojson line.
	DebugSink io.Writer
}

// recognizeStream is the subset of the StreamingRecognize client used here.
type recognizeStream interface {
	Send(*speechpb.StreamingRecognizeRequest) error
	Recv() (*speechpb.StreamingRecognizeResponse, error)
	CloseSend() error
}

type streamOpener func(ctx context.Context) (recognizeStream, error)

// Cloud streams audio to Google Cloud Speech.
type Cloud struct {
	cfg    CloudConfig
	logger *slog.Logger

	mu      sync.Mutex
	open    streamOpener
	client  *speech.Client
	initErr error
}

// CloudOption customizes Cloud.
type CloudOption func(*Cloud)

// WithCloudLogger sets the engine logger.
func WithCloudLogger(logger *slog.Logger) CloudOption {
	return func(c *Cloud) { c.logger = logger }
}

func withStreamOpener(open streamOpener) CloudOption {
	return func(c *Cloud) { c.open = open }
}

// NewCloud builds a cloud engine. The client is created on first use.
func NewCloud(cfg CloudConfig, opts ...CloudOption) *Cloud {
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = "en-US"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCloudTimeout
	}
	cfg.Threshold = thresholdOrDefault(cfg.Threshold)

	c := &Cloud{cfg: cfg, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cloud) Name() string { return cloudServiceName }

func (c *Cloud) Variant() quota.RecognitionVariant { return quota.RecognitionCloud }

// Ready reports whether a client could be created with the ambient credentials.
func (c *Cloud) Ready() bool {
	return c.Init(context.Background()) == nil
}

// Init creates the speech client once. A failed attempt is retried on the next call.
func (c *Cloud) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open != nil {
		return nil
	}

	var opts []option.ClientOption
	if endpoint := strings.TrimSpace(c.cfg.Endpoint); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	if creds := strings.TrimSpace(c.cfg.CredentialsFile); creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		c.initErr = fmt.Errorf("%w: google speech client: %v", ErrNotInitialized, err)
		return c.initErr
	}

	c.client = client
	c.initErr = nil
	c.open = func(ctx context.Context) (recognizeStream, error) {
		return client.StreamingRecognize(ctx)
	}
	return nil
}

// Close releases the underlying client.
func (c *Cloud) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	c.open = nil
	return err
}

// Transcribe streams pcm and collects finalized results.
func (c *Cloud) Transcribe(ctx context.Context, pcm []byte, sampleRate int) Result {
	if err := c.Init(ctx); err != nil {
		return failure(err)
	}
	c.mu.Lock()
	open := c.open
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	stream, err := open(groupCtx)
	if err != nil {
		return failure(backend.FromGRPC(cloudServiceName, err))
	}

	language := c.cfg.Language
	if override := LanguageFrom(ctx); override != "" {
		language = override
	}
	if err := stream.Send(c.configRequest(language, sampleRate)); err != nil {
		return failure(backend.FromGRPC(cloudServiceName, fmt.Errorf("send streaming config: %w", err)))
	}

	var (
		builder     transcript.Builder
		confidences []float64
	)
	group.Go(func() error { return sendAudio(stream, pcm) })
	group.Go(func() error { return c.receive(stream, &builder, &confidences) })

	if err := group.Wait(); err != nil {
		c.logger.Warn("cloud recognition failed", "error", err.Error())
		return failure(backend.FromGRPC(cloudServiceName, err))
	}
	return success(builder.Finalized(), mean(confidences), c.cfg.Threshold)
}

func (c *Cloud) configRequest(language string, sampleRate int) *speechpb.StreamingRecognizeRequest {
	return &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz:            int32(sampleRate),
					AudioChannelCount:          1,
					LanguageCode:               language,
					EnableAutomaticPunctuation: true,
				},
				InterimResults: true,
			},
		},
	}
}

func sendAudio(stream recognizeStream, pcm []byte) error {
	for start := 0; start < len(pcm); start += cloudChunkBytes {
		end := min(start+cloudChunkBytes, len(pcm))
		err := stream.Send(&speechpb.StreamingRecognizeRequest{
			StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: pcm[start:end]},
		})
		if errors.Is(err, io.EOF) {
			// The server closed the stream; Recv reports why.
			return nil
		}
		if err != nil {
			return fmt.Errorf("send audio: %w", err)
		}
	}
	return stream.CloseSend()
}

func (c *Cloud) receive(stream recognizeStream, builder *transcript.Builder, confidences *[]float64) error {
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		c.dump(resp)

		if resp.GetError() != nil {
			return status.ErrorProto(resp.GetError())
		}
		for _, result := range resp.GetResults() {
			alternatives := result.GetAlternatives()
			if len(alternatives) == 0 {
				continue
			}
			text := alternatives[0].GetTranscript()
			if !result.GetIsFinal() {
				builder.Partial(text)
				continue
			}
			builder.Final(text)
			if transcript.Clean(text) != "" {
				*confidences = append(*confidences, float64(alternatives[0].GetConfidence()))
			}
		}
	}
}

func (c *Cloud) dump(resp *speechpb.StreamingRecognizeResponse) {
	if c.cfg.DebugSink == nil {
		return
	}
	b, err := protojson.Marshal(resp)
	if err != nil {
		return
	}
	_, _ = c.cfg.DebugSink.Write(append(b, '\n'))
}
