package repositories

import (
	"context"

	"github.com/satriahrh/sparkchat/domain/entities"
)

// StreamingChat abstracts a streaming chat provider holding one conversation
type StreamingChat interface {
	// SendUserMessage appends a user turn and blocks until the reply is complete
	SendUserMessage(ctx context.Context, text string) error
	// SendConversation replaces the history with turns and blocks until the reply is complete
	SendConversation(ctx context.Context, turns []entities.Turn) error
	ClearConversation()
	Conversation() []entities.Turn
	CurrentContent() string
	State() entities.SessionState
	Close() error
}
