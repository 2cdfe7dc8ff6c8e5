// Package doctor runs readiness diagnostics for config, external tools, audio devices, the
// quota store, and the generation endpoints.
package doctor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/pcm"
	"github.com/rbright/murmur/internal/store"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Options toggles checks with side effects.
type Options struct {
	// PlayTone sends a short beep to the output device.
	PlayTone bool
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded, opts Options) Report {
	cfg := loaded.Config
	checks := []Check{}

	message := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		message = fmt.Sprintf("%q not found; using defaults", loaded.Path)
	}
	if n := len(loaded.Warnings); n > 0 {
		message = fmt.Sprintf("%s (%d warning(s))", message, n)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: message})

	checks = append(checks, checkCommand(cfg.Recognition.Offline.Command.Argv, "recognition.offline.command"))
	checks = append(checks, checkPath("recognition.offline.model", cfg.Recognition.Offline.Model))
	checks = append(checks, checkCommand([]string{cfg.Synthesis.Offline.Command}, "synthesis.offline.command"))
	checks = append(checks, checkBinary("ffmpeg", "needed for non-WAV uploads"))
	checks = append(checks, checkBinary("ffprobe", "needed for non-WAV uploads"))

	if cfg.Recognition.Cloud.Enabled {
		checks = append(checks, checkPath("recognition.cloud.credentials", cfg.Recognition.Cloud.Credentials))
	}
	if cfg.Generation.Cloud.Enabled {
		checks = append(checks, checkEnv(config.EnvHFToken, func(v string) bool {
			return strings.TrimSpace(v) != "" || cfg.Generation.Cloud.Token != ""
		}, "token present", "token unset; cloud generation will be skipped"))
	}
	if cfg.Generation.Local.Enabled {
		checks = append(checks, checkEndpoint(ctx, "generation.local", cfg.Generation.Local.Endpoint, "/api/tags"))
	}

	checks = append(checks, checkQuotaStore(ctx, cfg))
	checks = append(checks, checkAudioSelection(ctx, cfg))
	if opts.PlayTone {
		checks = append(checks, checkPlayback(ctx, cfg))
	}

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

func checkPath(name string, path string) Check {
	if strings.TrimSpace(path) == "" {
		return Check{Name: name, Pass: false, Message: "not configured"}
	}
	if _, err := os.Stat(path); err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	return Check{Name: name, Pass: true, Message: path}
}

// checkEndpoint probes base+path and passes on any 2xx.
func checkEndpoint(ctx context.Context, name string, base string, path string) Check {
	base = strings.TrimSpace(base)
	if base == "" {
		return Check{Name: name, Pass: false, Message: "endpoint is empty"}
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	url := strings.TrimRight(base, "/") + path
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, url)}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("ready at %s", url)}
}

// checkQuotaStore opens and closes the configured counter store.
func checkQuotaStore(ctx context.Context, cfg config.Config) Check {
	name := "quota.store"
	backend, err := store.Open(ctx, store.Config{
		Kind:        cfg.Quota.Store,
		SQLitePath:  cfg.Quota.SQLitePath,
		RedisAddr:   cfg.Quota.RedisAddr,
		RedisPrefix: cfg.Quota.RedisPrefix,
	})
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	if err := backend.Close(); err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s store reachable", cfg.Quota.Store)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectInput(ctx, audio.Preference{
		Name:     cfg.Audio.Input,
		Fallback: cfg.Audio.Fallback,
		Index:    cfg.Audio.DeviceIndex,
	})
	if err != nil {
		return Check{Name: "audio.input", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.Name)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.input", Pass: true, Message: message}
}

func checkPlayback(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectOutput(ctx, audio.Preference{Name: cfg.Audio.Output, Fallback: "default"})
	if err != nil {
		return Check{Name: "audio.output", Pass: false, Message: err.Error()}
	}
	tone := pcm.Tone(440, 300*time.Millisecond, 0.3, cfg.Audio.SampleRate)
	if err := audio.NewPlayback(selection.Device.Name).Play(ctx, tone); err != nil {
		return Check{Name: "audio.output", Pass: false, Message: err.Error()}
	}
	return Check{Name: "audio.output", Pass: true, Message: fmt.Sprintf("played test tone on %q", selection.Device.Name)}
}
