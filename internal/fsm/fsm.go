// Package fsm is the listen-session state machine: idle, recording, transcribing, and error.
package fsm

import (
	"fmt"
	"sync"
)

type State string

type Event string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
	StateError        State = "error"
)

const (
	EventStart       Event = "start"
	EventStop        Event = "stop"
	EventCancel      Event = "cancel"
	EventTranscribed Event = "transcribed"
	EventFail        Event = "fail"
	EventReset       Event = "reset"
)

// Transition returns the state reached from current on event. Fail is accepted everywhere.
func Transition(current State, event Event) (State, error) {
	if event == EventFail {
		return StateError, nil
	}

	var next State
	switch current {
	case StateIdle:
		if event == EventStart {
			next = StateRecording
		}
	case StateRecording:
		switch event {
		case EventStop:
			next = StateTranscribing
		case EventCancel:
			next = StateIdle
		}
	case StateTranscribing:
		if event == EventTranscribed {
			next = StateIdle
		}
	case StateError:
		if event == EventReset {
			next = StateIdle
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}

	if next == "" {
		return current, fmt.Errorf("invalid transition: %s --(%s)--> ?", current, event)
	}
	return next, nil
}

// Machine holds one state and applies events under a lock.
type Machine struct {
	mu    sync.RWMutex
	state State
}

// NewMachine starts in StateIdle.
func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Apply transitions on event and returns the new state.
func (m *Machine) Apply(event Event) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := Transition(m.state, event)
	if err != nil {
		return m.state, err
	}
	m.state = next
	return next, nil
}

// Fail moves through error back to idle.
func (m *Machine) Fail() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state, _ = Transition(m.state, EventFail)
	m.state, _ = Transition(m.state, EventReset)
}
