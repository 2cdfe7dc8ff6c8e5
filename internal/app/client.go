package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rbright/murmur/internal/api"
	"github.com/rbright/murmur/internal/cli"
	"github.com/rbright/murmur/internal/ipc"
)

const (
	quickTimeout = 2 * time.Second
	heavyTimeout = 10 * time.Minute
)

var errDaemonNotRunning = errors.New("murmur daemon is not running")

var fileIDPattern = regexp.MustCompile(`^[0-9a-f]{8}$`)

// commandClient turns a parsed CLI invocation into one daemon request and renders the reply.
func (r Runner) commandClient(ctx context.Context, parsed cli.Parsed) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		if parsed.Command == cli.CommandStatus {
			fmt.Fprintln(r.Stdout, "stopped")
			return 0
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	req, timeout, err := buildRequest(parsed)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 2
	}

	resp, handled, err := tryForward(ctx, socketPath, req, timeout)
	if !handled {
		if parsed.Command == cli.CommandStatus {
			fmt.Fprintln(r.Stdout, "stopped")
			return 0
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", errDaemonNotRunning)
		return 1
	}
	if err != nil {
		if resp.Code != "" {
			fmt.Fprintf(r.Stderr, "error: %s: %v\n", resp.Code, err)
		} else {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
		}
		return 1
	}

	if err := r.render(parsed, resp); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func buildRequest(parsed cli.Parsed) (ipc.Request, time.Duration, error) {
	var (
		args    any
		timeout = quickTimeout
	)

	switch parsed.Command {
	case cli.CommandStatus, cli.CommandQuota, cli.CommandVoices, cli.CommandStop, cli.CommandCancel:
	case cli.CommandDevices:
		args = api.DevicesArgs{Kind: parsed.Option("kind", "")}
	case cli.CommandUpload:
		data, err := os.ReadFile(parsed.Args[0])
		if err != nil {
			return ipc.Request{}, 0, fmt.Errorf("read upload: %w", err)
		}
		args = api.UploadArgs{
			Filename:   filepath.Base(parsed.Args[0]),
			DataBase64: base64.StdEncoding.EncodeToString(data),
		}
		timeout = heavyTimeout
	case cli.CommandInfo, cli.CommandDelete:
		args = api.FileArgs{FileID: parsed.Args[0]}
	case cli.CommandTranscribe:
		ta := api.TranscribeArgs{Online: parsed.Flag("online"), Language: parsed.Option("language", "")}
		target := parsed.Args[0]
		if fileIDPattern.MatchString(target) {
			ta.FileID = target
		} else {
			data, err := os.ReadFile(target)
			if err != nil {
				return ipc.Request{}, 0, fmt.Errorf("read audio: %w", err)
			}
			ta.DataBase64 = base64.StdEncoding.EncodeToString(data)
		}
		args = ta
		timeout = heavyTimeout
	case cli.CommandSpeak:
		speed, err := parsed.Float("speed", 0)
		if err != nil {
			return ipc.Request{}, 0, err
		}
		args = api.SpeakArgs{
			Text:  parsed.Args[0],
			Voice: parsed.Option("voice", ""),
			Speed: speed,
			Play:  parsed.Flag("play"),
		}
		timeout = heavyTimeout
	case cli.CommandChat:
		args = api.ChatArgs{Message: parsed.Args[0]}
		timeout = heavyTimeout
	case cli.CommandListen:
		maxSeconds, err := parsed.Float("max-seconds", 0)
		if err != nil {
			return ipc.Request{}, 0, err
		}
		args = api.ListenArgs{MaxSeconds: maxSeconds, Online: parsed.Flag("online")}
		timeout = heavyTimeout
	case cli.CommandConvert:
		rate, err := parsed.Int("rate", 0)
		if err != nil {
			return ipc.Request{}, 0, err
		}
		args = api.ConvertArgs{
			FileID:           parsed.Args[0],
			TargetFormat:     parsed.Option("to", "wav"),
			TargetSampleRate: rate,
		}
		timeout = heavyTimeout
	default:
		return ipc.Request{}, 0, fmt.Errorf("command %q is not served by the daemon", parsed.Command)
	}

	req, err := ipc.NewRequest(string(parsed.Command), args)
	if err != nil {
		return ipc.Request{}, 0, err
	}
	return req, timeout, nil
}

func (r Runner) render(parsed cli.Parsed, resp ipc.Response) error {
	switch parsed.Command {
	case cli.CommandStatus:
		var status api.StatusResult
		if err := resp.DecodeData(&status); err != nil {
			return err
		}
		state := resp.State
		if state == "" {
			state = "idle"
		}
		fmt.Fprintln(r.Stdout, state)
		if len(status.Engines) > 0 {
			tw := tabwriter.NewWriter(r.Stdout, 0, 4, 2, ' ', 0)
			for _, e := range status.Engines {
				ready := "unavailable"
				if e.Ready {
					ready = "ready"
				}
				fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", e.ServiceType, e.Variant, e.Name, ready)
			}
			_ = tw.Flush()
		}
		return nil
	case cli.CommandQuota:
		var entries []api.QuotaEntry
		if err := resp.DecodeData(&entries); err != nil {
			return err
		}
		writeQuota(r.Stdout, entries)
		return nil
	case cli.CommandDevices:
		var devices api.DevicesResult
		if err := resp.DecodeData(&devices); err != nil {
			return err
		}
		writeDevices(r.Stdout, "input", devices.Inputs)
		writeDevices(r.Stdout, "output", devices.Outputs)
		return nil
	case cli.CommandVoices:
		var voices api.VoicesResult
		if err := resp.DecodeData(&voices); err != nil {
			return err
		}
		for _, v := range voices.Voices {
			fmt.Fprintf(r.Stdout, "%s\t%s\t%s\n", v.ID, v.Name, v.Language)
		}
		return nil
	case cli.CommandUpload:
		var up api.UploadResult
		if err := resp.DecodeData(&up); err != nil {
			return err
		}
		fmt.Fprintf(r.Stdout, "%s\t%s\t%.2fs\t%d Hz\n", up.FileID, up.Format, up.DurationSeconds, up.SampleRate)
		return nil
	case cli.CommandInfo:
		var info api.InfoResult
		if err := resp.DecodeData(&info); err != nil {
			return err
		}
		fmt.Fprintf(r.Stdout, "%s\t%s\t%s\t%d bytes\t%.2fs\t%d Hz\t%d ch\n",
			info.FileID, info.Filename, info.Format, info.SizeBytes, info.DurationSeconds, info.SampleRate, info.Channels)
		return nil
	case cli.CommandDelete:
		var deleted api.DeleteResult
		if err := resp.DecodeData(&deleted); err != nil {
			return err
		}
		fmt.Fprintf(r.Stdout, "deleted %s\n", deleted.FileID)
		return nil
	case cli.CommandTranscribe, cli.CommandListen:
		var tr api.TranscribeResult
		if err := resp.DecodeData(&tr); err != nil {
			return err
		}
		fmt.Fprintln(r.Stdout, strings.TrimSpace(tr.Text))
		if tr.LowConfidence {
			fmt.Fprintf(r.Stderr, "warning: low confidence (%.2f)\n", tr.Confidence)
		}
		return nil
	case cli.CommandSpeak:
		return r.renderSpeech(parsed, resp)
	case cli.CommandChat:
		var reply struct {
			Text string `json:"text"`
		}
		if err := resp.DecodeData(&reply); err != nil {
			return err
		}
		fmt.Fprintln(r.Stdout, reply.Text)
		return nil
	case cli.CommandConvert:
		var conv api.ConvertResult
		if err := resp.DecodeData(&conv); err != nil {
			return err
		}
		fmt.Fprintln(r.Stdout, conv.Path)
		return nil
	default:
		if resp.Message != "" {
			fmt.Fprintln(r.Stdout, resp.Message)
		}
		return nil
	}
}

func (r Runner) renderSpeech(parsed cli.Parsed, resp ipc.Response) error {
	var speech api.SpeakResult
	if err := resp.DecodeData(&speech); err != nil {
		return err
	}
	if speech.Warning != "" {
		fmt.Fprintf(r.Stderr, "warning: %s\n", speech.Warning)
	}

	out := parsed.Option("out", "")
	if out != "" {
		wav, err := base64.StdEncoding.DecodeString(speech.AudioBase64)
		if err != nil {
			return fmt.Errorf("decode audio: %w", err)
		}
		if err := os.WriteFile(out, wav, 0o644); err != nil {
			return fmt.Errorf("write audio: %w", err)
		}
	}

	fmt.Fprintf(r.Stdout, "%s\t%.2fs", speech.VoiceUsed, speech.DurationSeconds)
	if out != "" {
		fmt.Fprintf(r.Stdout, "\t%s", out)
	}
	fmt.Fprintln(r.Stdout)
	return nil
}

func writeQuota(w io.Writer, entries []api.QuotaEntry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tUSED\tLIMIT\tREMAINING\tAVAILABLE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%t\n", e.Service, e.Used, e.Limit, e.Remaining, e.Available)
	}
	_ = tw.Flush()
}

func writeDevices(w io.Writer, kind string, devices []api.Device) {
	for _, d := range devices {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %s %d\t%s\t%dch\t%d Hz\n", marker, kind, d.Index, d.Name, d.Channels, d.SampleRate)
	}
}

// tryForward reports handled=false only when no daemon owns the socket.
func tryForward(ctx context.Context, socketPath string, req ipc.Request, timeout time.Duration) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, req, timeout)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if errors.Is(err, ipc.ErrNoDaemon) {
		return ipc.Response{}, false, nil
	}
	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", req.Command, err)
}
