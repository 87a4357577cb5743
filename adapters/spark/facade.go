package spark

import (
	"context"

	"go.uber.org/zap"

	"github.com/satriahrh/sparkchat/domain/entities"
)

// ChatOnce sends a single user message on a fresh client and returns the
// complete reply. Events are forwarded to listener, which may be nil.
func ChatOnce(ctx context.Context, creds Credentials, message string, listener Listener, logger *zap.Logger, opts ...Option) (string, error) {
	return chat(creds, listener, logger, opts, func(client *Client) error {
		return client.SendUserMessage(ctx, message)
	})
}

// ChatConversation sends a whole conversation on a fresh client and returns
// the complete reply.
func ChatConversation(ctx context.Context, creds Credentials, turns []entities.Turn, listener Listener, logger *zap.Logger, opts ...Option) (string, error) {
	return chat(creds, listener, logger, opts, func(client *Client) error {
		return client.SendConversation(ctx, turns)
	})
}

func chat(creds Credentials, listener Listener, logger *zap.Logger, opts []Option, send func(*Client) error) (string, error) {
	if listener == nil {
		listener = NopListener{}
	}

	result := &resultListener{Listener: listener}
	client := NewClient(creds, result, logger, opts...)
	defer client.Close()

	if err := send(client); err != nil {
		return "", err
	}
	return result.content, nil
}

// resultListener captures the completed content and forwards every event
type resultListener struct {
	Listener
	content string
}

func (l *resultListener) OnComplete(content string, conversation []entities.Turn) {
	l.content = content
	l.Listener.OnComplete(content, conversation)
}

func (l *resultListener) OnUsage(usage Usage) {
	if ul, ok := l.Listener.(UsageListener); ok {
		ul.OnUsage(usage)
	}
}
