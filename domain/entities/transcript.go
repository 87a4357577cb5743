package entities

import (
	"errors"
	"fmt"
)

// Role represents the role of a message sender
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn represents a single role-tagged message in a conversation
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Validate checks that the turn carries a known role
func (t Turn) Validate() error {
	switch t.Role {
	case RoleUser, RoleAssistant, RoleSystem:
		return nil
	case "":
		return errors.New("role is required")
	default:
		return fmt.Errorf("invalid role: %s", t.Role)
	}
}

// Transcript is the ordered conversation history of one client.
// Insertion order is the conversation order and is replayed verbatim on every
// connection. It is not safe for concurrent use; the owning client guards it.
type Transcript struct {
	turns []Turn
}

// NewTranscript creates a transcript holding a copy of the given turns
func NewTranscript(turns ...Turn) *Transcript {
	t := &Transcript{}
	t.Replace(turns)
	return t
}

// Append adds a turn at the end of the conversation
func (t *Transcript) Append(turn Turn) {
	t.turns = append(t.turns, turn)
}

// Replace drops the current history and copies the given turns in
func (t *Transcript) Replace(turns []Turn) {
	t.turns = make([]Turn, len(turns))
	copy(t.turns, turns)
}

// Clear removes every turn
func (t *Transcript) Clear() {
	t.turns = nil
}

// Len returns the number of turns
func (t *Transcript) Len() int {
	return len(t.turns)
}

// Turns returns a copy of the conversation, never nil
func (t *Transcript) Turns() []Turn {
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Validate validates every turn of the transcript
func (t *Transcript) Validate() error {
	for i, turn := range t.turns {
		if err := turn.Validate(); err != nil {
			return fmt.Errorf("turn %d: %w", i, err)
		}
	}
	return nil
}
