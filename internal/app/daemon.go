package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rbright/murmur/internal/api"
	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/audiofile"
	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/cue"
	"github.com/rbright/murmur/internal/generation"
	"github.com/rbright/murmur/internal/ipc"
	"github.com/rbright/murmur/internal/metrics"
	"github.com/rbright/murmur/internal/orchestrator"
	"github.com/rbright/murmur/internal/quota"
	"github.com/rbright/murmur/internal/recognition"
	"github.com/rbright/murmur/internal/store"
	"github.com/rbright/murmur/internal/synthesis"
)

// daemon is every long-lived component behind the socket.
type daemon struct {
	service *api.Service
	orch    *orchestrator.Orchestrator
	metrics *metrics.Metrics
	closers []io.Closer
}

func (d *daemon) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func quotaLimits(cfg config.QuotaConfig) map[string]quota.Limit {
	limits := make(map[string]quota.Limit, len(cfg.Limits))
	for name, limit := range cfg.Limits {
		if limit < 0 {
			limits[name] = quota.Unlimited
			continue
		}
		limits[name] = quota.Limit(limit)
	}
	return limits
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// buildDaemon opens the quota store and constructs every configured engine.
func buildDaemon(ctx context.Context, cfg config.Config, logger *slog.Logger) (*daemon, error) {
	d := &daemon{metrics: metrics.New()}

	counters, err := store.Open(ctx, store.Config{
		Kind:        cfg.Quota.Store,
		SQLitePath:  cfg.Quota.SQLitePath,
		RedisAddr:   cfg.Quota.RedisAddr,
		RedisPrefix: cfg.Quota.RedisPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("open quota store: %w", err)
	}
	d.closers = append(d.closers, counters)

	loc, err := cfg.Location()
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	arbiter := quota.NewArbiter(counters, quotaLimits(cfg.Quota),
		quota.WithLocation(loc),
		quota.WithLogger(logger.With("component", "quota")),
		quota.WithMetrics(d.metrics),
	)

	opts := []orchestrator.Option{
		orchestrator.WithLogger(logger.With("component", "orchestrator")),
		orchestrator.WithMetrics(d.metrics),
		orchestrator.WithFileStore(audiofile.NewStore(cfg.Storage.UploadDir,
			audiofile.WithTranscoder(audiofile.NewTranscoder(nil)),
			audiofile.WithStoreLogger(logger.With("component", "audiofile")),
		)),
		orchestrator.WithTranscriber(recognition.NewOffline(recognition.OfflineConfig{
			Command:   cfg.Recognition.Offline.Command.Argv,
			Model:     cfg.Recognition.Offline.Model,
			Threshold: cfg.Recognition.ConfidenceThreshold,
		}, recognition.WithOfflineLogger(logger))),
		orchestrator.WithSynthesizer(synthesis.NewOffline(synthesis.OfflineConfig{
			Command:      cfg.Synthesis.Offline.Command,
			DefaultVoice: cfg.Synthesis.DefaultVoice,
		}, synthesis.WithOfflineLogger(logger))),
		orchestrator.WithCaptureFactory(captureFactory(cfg.Audio, logger, d.metrics)),
	}

	if cfg.Recognition.Cloud.Enabled {
		cloudCfg := recognition.CloudConfig{
			Language:        cfg.Recognition.Language,
			Endpoint:        cfg.Recognition.Cloud.Endpoint,
			Timeout:         ms(cfg.Recognition.Cloud.TimeoutMS),
			Threshold:       cfg.Recognition.ConfidenceThreshold,
			CredentialsFile: cfg.Recognition.Cloud.Credentials,
		}
		if cfg.Debug.DumpGRPC {
			sink, err := openDebugFile(cfg.Debug.Dir, "speech-responses.jsonl")
			if err != nil {
				_ = d.Close()
				return nil, err
			}
			d.closers = append(d.closers, sink)
			cloudCfg.DebugSink = sink
		}
		cloud := recognition.NewCloud(cloudCfg, recognition.WithCloudLogger(logger))
		d.closers = append(d.closers, cloud)
		opts = append(opts, orchestrator.WithTranscriber(cloud))
	}
	if sc := cfg.Synthesis.Cloud; sc.Enabled {
		opts = append(opts, orchestrator.WithSynthesizer(synthesis.NewCloud(synthesis.CloudConfig{
			Endpoint: sc.Endpoint,
			APIKey:   sc.APIKey,
			Model:    sc.Model,
			Voice:    sc.Voice,
			Timeout:  ms(sc.TimeoutMS),
		}, synthesis.WithCloudLogger(logger))))
	}
	if gc := cfg.Generation.Cloud; gc.Enabled {
		opts = append(opts, orchestrator.WithGenerator(generation.NewCloud(generation.CloudConfig{
			Endpoint:          gc.Endpoint,
			Model:             gc.Model,
			Token:             gc.Token,
			MaxNewTokens:      gc.MaxNewTokens,
			Temperature:       gc.Temperature,
			RequestsPerMinute: gc.RequestsPerMinute,
			Timeout:           ms(gc.TimeoutMS),
		}, generation.WithCloudLogger(logger))))
	}
	if gl := cfg.Generation.Local; gl.Enabled {
		opts = append(opts, orchestrator.WithGenerator(generation.NewLocal(generation.LocalConfig{
			Endpoint:    gl.Endpoint,
			Model:       gl.Model,
			Temperature: gl.Temperature,
			Context:     gl.Context,
			Timeout:     ms(gl.TimeoutMS),
		}, generation.WithLocalLogger(logger))))
	}

	orchCfg := orchestrator.Config{
		SampleRate: cfg.Audio.SampleRate,
		ChunkMs:    cfg.Recognition.ChunkMs,
		MaxListen:  time.Duration(cfg.Recognition.MaxListenSeconds * float64(time.Second)),
		GateListen: cfg.Recognition.GateListen,
	}
	if cfg.Debug.DumpAudio {
		orchCfg.DebugDir = cfg.Debug.Dir
	}
	player := audio.NewPlayback(cfg.Audio.Output, audio.WithPlaybackLogger(logger))
	if cues := cfg.Audio.Cues; cues.Enabled {
		opts = append(opts, orchestrator.WithCues(cue.New(player,
			cue.WithFile(cue.Start, cues.StartFile),
			cue.WithFile(cue.Stop, cues.StopFile),
			cue.WithFile(cue.Complete, cues.CompleteFile),
			cue.WithFile(cue.Cancel, cues.CancelFile),
			cue.WithLogger(logger.With("component", "cue")),
		)))
	}
	d.orch = orchestrator.New(orchCfg, arbiter, opts...)

	d.service = api.New(d.orch,
		api.WithPlayer(player),
		api.WithLogger(logger),
		api.WithMetrics(d.metrics),
	)
	return d, nil
}

// captureFactory resolves the input device at the start of every listen session so a
// replugged microphone is picked up without restarting the daemon.
func captureFactory(cfg config.AudioConfig, logger *slog.Logger, m *metrics.Metrics) func() orchestrator.CaptureSource {
	return func() orchestrator.CaptureSource {
		device := cfg.Input
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		selection, err := audio.SelectInput(ctx, audio.Preference{
			Name:     cfg.Input,
			Fallback: cfg.Fallback,
			Index:    cfg.DeviceIndex,
		})
		switch {
		case err != nil:
			logger.Warn("input selection failed; using configured name", "device", device, "error", err.Error())
		default:
			device = selection.Device.Name
			if selection.Warning != "" {
				logger.Warn("input selection fallback", "device", device, "warning", selection.Warning)
			}
		}

		return audio.NewCapture(audio.CaptureConfig{
			Device:       device,
			SampleRate:   cfg.SampleRate,
			FrameSamples: cfg.ChunkSize,
			QueueFrames:  cfg.QueueFrames,
		}, audio.WithCaptureLogger(logger), audio.WithCaptureMetrics(m))
	}
}

func openDebugFile(dir string, name string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open debug file: %w", err)
	}
	return f, nil
}

func (r Runner) commandServe(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8, nil)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	d, err := buildDaemon(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("daemon setup failed", "error", err.Error())
		return 1
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Warn("daemon shutdown", "error", err.Error())
		}
	}()

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	if cfg.Metrics.Addr != "" {
		stopMetrics := startMetricsServer(serverCtx, cfg.Metrics.Addr, d.metrics, logger)
		defer stopMetrics()
	}

	logger.Info("daemon ready", "socket", socketPath, "engines", len(d.orch.Engines()))
	fmt.Fprintf(r.Stdout, "listening on %s\n", socketPath)

	if err := ipc.Serve(serverCtx, listener, d.service); err != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", err)
		return 1
	}
	logger.Info("daemon stopped")
	return 0
}

// startMetricsServer exposes /metrics until the returned stop func runs.
func startMetricsServer(ctx context.Context, addr string, m *metrics.Metrics, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "error", err.Error())
		}
	}()
	logger.Info("metrics listening", "addr", addr)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
