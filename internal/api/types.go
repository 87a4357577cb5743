package api

import (
	"time"

	"github.com/satriahrh/sparkchat/domain/entities"
)

// TokenRequest represents the request payload for relay client authentication
type TokenRequest struct {
	ClientID string `json:"client_id" validate:"required"`
	APIKey   string `json:"api_key" validate:"required"`
}

// TokenResponse represents the response payload for relay client authentication
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ClientID  string    `json:"client_id"`
}

// ChatRequest carries either a single message or a whole conversation
type ChatRequest struct {
	Message  string          `json:"message,omitempty"`
	Messages []entities.Turn `json:"messages,omitempty"`
}

// ChatResponse is the complete reply of a one-shot chat
type ChatResponse struct {
	Content      string          `json:"content"`
	Conversation []entities.Turn `json:"conversation"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
