package entities

import (
	"errors"
	"fmt"
)

// SessionState represents the lifecycle state of one duplex session
type SessionState string

const (
	SessionStateInit       SessionState = "init"
	SessionStateConnecting SessionState = "connecting"
	SessionStateConnected  SessionState = "connected"
	SessionStateStreaming  SessionState = "streaming"
	SessionStateCompleted  SessionState = "completed"
	SessionStateError      SessionState = "error"
)

// ErrIllegalTransition is returned when a transition is not in the table
var ErrIllegalTransition = errors.New("illegal session state transition")

// transitions lists the legal targets of every state. Streaming -> Streaming
// is handled separately as a silent self-loop.
var transitions = map[SessionState][]SessionState{
	SessionStateInit:       {SessionStateConnecting},
	SessionStateConnecting: {SessionStateConnected, SessionStateError},
	SessionStateConnected:  {SessionStateStreaming, SessionStateCompleted, SessionStateError},
	SessionStateStreaming:  {SessionStateCompleted, SessionStateError},
	SessionStateCompleted:  {SessionStateConnecting, SessionStateInit},
	SessionStateError:      {SessionStateConnecting, SessionStateInit},
}

// IsTerminal reports whether the state ends a session
func (s SessionState) IsTerminal() bool {
	return s == SessionStateCompleted || s == SessionStateError
}

// CanTransition reports whether moving from s to next is legal
func (s SessionState) CanTransition(next SessionState) bool {
	if s == SessionStateStreaming && next == SessionStateStreaming {
		return true
	}
	for _, target := range transitions[s] {
		if target == next {
			return true
		}
	}
	return false
}

// StateMachine governs the lifecycle of one duplex session and notifies an
// observer on every transition. It holds no lock; the owner serializes access.
type StateMachine struct {
	state    SessionState
	onChange func(SessionState)
}

// NewStateMachine creates a machine in the Init state. onChange may be nil.
func NewStateMachine(onChange func(SessionState)) *StateMachine {
	return &StateMachine{
		state:    SessionStateInit,
		onChange: onChange,
	}
}

// State returns the current state
func (m *StateMachine) State() SessionState {
	return m.state
}

// Transition moves the machine to next. It reports whether the state actually
// changed; the Streaming self-loop is legal but does not notify.
func (m *StateMachine) Transition(next SessionState) (bool, error) {
	if !m.state.CanTransition(next) {
		return false, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, m.state, next)
	}
	if m.state == next {
		return false, nil
	}
	m.state = next
	m.notify()
	return true, nil
}

// Reset returns the machine to Init from any state. It reports whether the
// state changed, and notifies only in that case.
func (m *StateMachine) Reset() bool {
	if m.state == SessionStateInit {
		return false
	}
	m.state = SessionStateInit
	m.notify()
	return true
}

func (m *StateMachine) notify() {
	if m.onChange != nil {
		m.onChange(m.state)
	}
}
