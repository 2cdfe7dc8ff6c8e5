package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rbright/murmur/internal/audiofile"
	"github.com/rbright/murmur/internal/cue"
	"github.com/rbright/murmur/internal/fsm"
	"github.com/rbright/murmur/internal/pcm"
)

type action int

const (
	actionStop action = iota + 1
	actionCancel
)

var (
	// ErrListenBusy is returned when a listen session is already active.
	ErrListenBusy = errors.New("listen session already active")
	// ErrNoSpeech means capture finished without any voiced audio.
	ErrNoSpeech     = errors.New("no speech captured; check microphone input or mute state")
	ErrNotListening = errors.New("no active listen session")
)

// CaptureSource is the capture surface a listen session drives.
type CaptureSource interface {
	Start(ctx context.Context) error
	Stop() error
	Running() bool
	ReadFrame(blocking bool) (pcm.Frame, bool)
	ReadBuffered(timeout time.Duration) (pcm.Frame, bool)
	Dropped() uint64
}

// ListenRequest bounds one capture session.
type ListenRequest struct {
	MaxDuration    time.Duration
	OnlineRequired bool
}

// ListenResult is the outcome of one capture session.
type ListenResult struct {
	Transcription
	State          fsm.State `json:"state"`
	Cancelled      bool      `json:"cancelled,omitempty"`
	FramesCaptured int       `json:"frames_captured"`
	FramesVoiced   int       `json:"frames_voiced"`
	FramesDropped  uint64    `json:"frames_dropped"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// ListenState reports the capture session state.
func (o *Orchestrator) ListenState() fsm.State {
	return o.session.State()
}

// StopListening ends capture and starts transcription of the active session.
func (o *Orchestrator) StopListening() error {
	return o.request(actionStop)
}

// CancelListening discards the active session.
func (o *Orchestrator) CancelListening() error {
	return o.request(actionCancel)
}

func (o *Orchestrator) request(a action) error {
	state := o.session.State()
	if state == fsm.StateTranscribing {
		return fmt.Errorf("%w: already transcribing", ErrNotListening)
	}
	if state != fsm.StateRecording {
		return fmt.Errorf("%w: state %s", ErrNotListening, state)
	}
	select {
	case o.actions <- a:
	default:
	}
	return nil
}

// Listen records from the capture source until stopped, cancelled, or the maximum duration,
// then transcribes the voiced frames. Only one session runs at a time.
func (o *Orchestrator) Listen(ctx context.Context, req ListenRequest) (ListenResult, error) {
	result := ListenResult{StartedAt: time.Now()}
	finish := func(err error) (ListenResult, error) {
		result.State = o.session.State()
		result.FinishedAt = time.Now()
		return result, err
	}

	if o.newCapture == nil {
		return finish(fmt.Errorf("%w: no capture device configured", ErrNoBackendAvailable))
	}
	if _, err := o.session.Apply(fsm.EventStart); err != nil {
		return finish(ErrListenBusy)
	}
	o.drainActions()
	_ = o.cues.Emit(ctx, cue.Start)

	capture := o.newCapture()
	if err := capture.Start(ctx); err != nil {
		o.session.Fail()
		return finish(err)
	}

	maxDuration := req.MaxDuration
	if maxDuration <= 0 || maxDuration > o.cfg.MaxListen {
		maxDuration = o.cfg.MaxListen
	}
	deadline := time.NewTimer(maxDuration)
	defer deadline.Stop()

	var frames []pcm.Frame
	collect := func(frame pcm.Frame) {
		result.FramesCaptured++
		if o.cfg.GateListen {
			if voiced, _ := pcm.DetectVoiceActivity(frame); !voiced {
				return
			}
		}
		result.FramesVoiced++
		frames = append(frames, frame)
	}

capture:
	for {
		select {
		case <-ctx.Done():
			_ = capture.Stop()
			o.session.Fail()
			return finish(ctx.Err())
		case a := <-o.actions:
			if a == actionCancel {
				_ = capture.Stop()
				_, _ = o.session.Apply(fsm.EventCancel)
				result.Cancelled = true
				result.FramesDropped = capture.Dropped()
				o.cueAsync(ctx, cue.Cancel)
				return finish(nil)
			}
			break capture
		case <-deadline.C:
			break capture
		default:
		}

		if frame, ok := capture.ReadBuffered(defaultListenPoll); ok {
			collect(frame)
		} else if !capture.Running() {
			break capture
		}
	}

	_ = capture.Stop()
	o.cueAsync(ctx, cue.Stop)
	for {
		frame, ok := capture.ReadFrame(false)
		if !ok {
			break
		}
		collect(frame)
	}
	result.FramesDropped = capture.Dropped()

	if _, err := o.session.Apply(fsm.EventStop); err != nil {
		o.session.Fail()
		return finish(err)
	}

	if len(frames) == 0 {
		o.session.Fail()
		return finish(ErrNoSpeech)
	}
	audio, err := pcm.Concatenate(frames)
	if err != nil {
		o.session.Fail()
		return finish(err)
	}
	o.dumpAudio(audio)

	transcription, err := o.TranscribePCM(ctx, audio, req.OnlineRequired)
	if err != nil {
		o.session.Fail()
		return finish(err)
	}
	result.Transcription = transcription

	if _, err := o.session.Apply(fsm.EventTranscribed); err != nil {
		return finish(err)
	}
	o.cueAsync(ctx, cue.Complete)
	o.logger.Info("listen session complete",
		"component", "orchestrator",
		"frames", result.FramesCaptured,
		"voiced", result.FramesVoiced,
		"dropped", result.FramesDropped,
		"duration_ms", time.Since(result.StartedAt).Milliseconds(),
	)
	return finish(nil)
}

// cueAsync plays kind without holding up the session. The request context may end first.
func (o *Orchestrator) cueAsync(ctx context.Context, kind cue.Kind) {
	if o.cues == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() { _ = o.cues.Emit(ctx, kind) }()
}

func (o *Orchestrator) drainActions() {
	for {
		select {
		case <-o.actions:
		default:
			return
		}
	}
}

func (o *Orchestrator) dumpAudio(frame pcm.Frame) {
	if o.cfg.DebugDir == "" {
		return
	}
	data, err := audiofile.EncodeWAV(frame)
	if err != nil {
		return
	}
	if err := os.MkdirAll(o.cfg.DebugDir, 0o700); err != nil {
		o.logger.Warn("debug dump failed", "error", err.Error())
		return
	}
	name := fmt.Sprintf("listen-%s.wav", time.Now().Format("20060102-150405.000"))
	if err := os.WriteFile(filepath.Join(o.cfg.DebugDir, name), data, 0o600); err != nil {
		o.logger.Warn("debug dump failed", "error", err.Error())
	}
}
