package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/sparkchat/adapters/spark"
	"github.com/satriahrh/sparkchat/domain/entities"
	"github.com/satriahrh/sparkchat/domain/repositories"
	"github.com/satriahrh/sparkchat/internal/metrics"
)

// AskResult is the outcome of a one-shot question
type AskResult struct {
	Content      string
	Conversation []entities.Turn
}

// ChatService hands out Spark chat sessions and answers one-shot questions
type ChatService struct {
	creds   spark.Credentials
	metrics *metrics.Metrics
	opts    []spark.Option
	logger  *zap.Logger
}

// NewChatService creates a new chat service. m may be nil to skip metrics.
func NewChatService(creds spark.Credentials, m *metrics.Metrics, logger *zap.Logger, opts ...spark.Option) *ChatService {
	return &ChatService{
		creds:   creds,
		metrics: m,
		opts:    opts,
		logger:  logger,
	}
}

// NewSession creates a client that keeps its transcript across sends
func (s *ChatService) NewSession(listener spark.Listener) repositories.StreamingChat {
	return spark.NewClient(s.creds, s.instrument(listener), s.logger, s.opts...)
}

// Ask sends a single user message and waits for the full reply
func (s *ChatService) Ask(ctx context.Context, message string) (AskResult, error) {
	if message == "" {
		return AskResult{}, fmt.Errorf("message is required")
	}
	return s.AskConversation(ctx, []entities.Turn{{Role: entities.RoleUser, Content: message}})
}

// AskConversation sends a whole conversation and waits for the full reply
func (s *ChatService) AskConversation(ctx context.Context, turns []entities.Turn) (AskResult, error) {
	var conversation []entities.Turn
	listener := spark.ListenerFuncs{
		Complete: func(_ string, snapshot []entities.Turn) {
			conversation = snapshot
		},
	}

	content, err := spark.ChatConversation(ctx, s.creds, turns, s.instrument(listener), s.logger, s.opts...)
	if err != nil {
		return AskResult{}, err
	}

	s.logger.Info("Answered question",
		zap.Int("turns", len(turns)),
		zap.Int("contentLength", len(content)))

	return AskResult{
		Content:      content,
		Conversation: conversation,
	}, nil
}

func (s *ChatService) instrument(listener spark.Listener) spark.Listener {
	if s.metrics == nil {
		return listener
	}
	return s.metrics.NewListener(listener)
}
