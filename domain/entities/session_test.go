package entities

import (
	"errors"
	"testing"
)

func TestStateMachineCreation(t *testing.T) {
	machine := NewStateMachine(nil)

	if machine.State() != SessionStateInit {
		t.Errorf("Expected state %s, got %s", SessionStateInit, machine.State())
	}
}

func TestStateMachineHappyPath(t *testing.T) {
	var seen []SessionState
	machine := NewStateMachine(func(s SessionState) {
		seen = append(seen, s)
	})

	path := []SessionState{
		SessionStateConnecting,
		SessionStateConnected,
		SessionStateStreaming,
		SessionStateStreaming,
		SessionStateCompleted,
		SessionStateInit,
	}
	for _, next := range path {
		if _, err := machine.Transition(next); err != nil {
			t.Fatalf("Transition to %s failed: %v", next, err)
		}
	}

	expected := []SessionState{
		SessionStateConnecting,
		SessionStateConnected,
		SessionStateStreaming,
		SessionStateCompleted,
		SessionStateInit,
	}
	if len(seen) != len(expected) {
		t.Fatalf("Expected %d notifications, got %d: %v", len(expected), len(seen), seen)
	}
	for i := range expected {
		if seen[i] != expected[i] {
			t.Errorf("Notification %d: expected %s, got %s", i, expected[i], seen[i])
		}
	}
}

func TestStateMachineStreamingSelfLoopIsSilent(t *testing.T) {
	count := 0
	machine := NewStateMachine(func(SessionState) { count++ })
	machine.Transition(SessionStateConnecting)
	machine.Transition(SessionStateConnected)
	machine.Transition(SessionStateStreaming)

	changed, err := machine.Transition(SessionStateStreaming)
	if err != nil {
		t.Fatalf("Streaming self-loop should be legal, got: %v", err)
	}
	if changed {
		t.Error("Streaming self-loop should not report a change")
	}
	if count != 3 {
		t.Errorf("Expected 3 notifications, got %d", count)
	}
}

func TestStateMachineRejectsBackwardTransitions(t *testing.T) {
	machine := NewStateMachine(nil)
	machine.Transition(SessionStateConnecting)
	machine.Transition(SessionStateConnected)
	machine.Transition(SessionStateStreaming)

	_, err := machine.Transition(SessionStateConnecting)
	if !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Expected ErrIllegalTransition, got %v", err)
	}
	if machine.State() != SessionStateStreaming {
		t.Errorf("State should be unchanged, got %s", machine.State())
	}

	// Skipping Connected is illegal too
	fresh := NewStateMachine(nil)
	fresh.Transition(SessionStateConnecting)
	if _, err := fresh.Transition(SessionStateStreaming); err == nil {
		t.Error("Connecting -> Streaming should be rejected")
	}
}

func TestStateMachineTerminalStates(t *testing.T) {
	for _, terminal := range []SessionState{SessionStateCompleted, SessionStateError} {
		if !terminal.IsTerminal() {
			t.Errorf("%s should be terminal", terminal)
		}

		for _, next := range []SessionState{SessionStateConnected, SessionStateStreaming, SessionStateCompleted, SessionStateError} {
			if next == terminal {
				continue
			}
			if terminal.CanTransition(next) {
				t.Errorf("%s -> %s should be illegal", terminal, next)
			}
		}

		if !terminal.CanTransition(SessionStateConnecting) {
			t.Errorf("%s -> connecting should start a new session", terminal)
		}
		if !terminal.CanTransition(SessionStateInit) {
			t.Errorf("%s -> init should be allowed on close", terminal)
		}
	}

	if SessionStateStreaming.IsTerminal() {
		t.Error("streaming should not be terminal")
	}
}

func TestStateMachineReset(t *testing.T) {
	count := 0
	machine := NewStateMachine(func(SessionState) { count++ })

	if machine.Reset() {
		t.Error("Reset from init should not report a change")
	}
	if count != 0 {
		t.Errorf("Reset from init should not notify, got %d notifications", count)
	}

	machine.Transition(SessionStateConnecting)
	if !machine.Reset() {
		t.Error("Reset from connecting should report a change")
	}
	if machine.State() != SessionStateInit {
		t.Errorf("Expected init after reset, got %s", machine.State())
	}
	if count != 2 {
		t.Errorf("Expected 2 notifications, got %d", count)
	}
}
