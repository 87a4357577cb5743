package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/satriahrh/sparkchat/adapters/spark"
	"github.com/satriahrh/sparkchat/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Inbound message types
const (
	MessageTypeChat    MessageType = "chat"
	MessageTypeClear   MessageType = "clear"
	MessageTypeHistory MessageType = "history"
	MessageTypePing    MessageType = "ping"
)

// Outbound message types
const (
	MessageTypeStatus   MessageType = "status"
	MessageTypeFragment MessageType = "fragment"
	MessageTypeComplete MessageType = "complete"
	MessageTypeError    MessageType = "error"
	MessageTypePong     MessageType = "pong"
)

// Error codes carried by ErrorMessage
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeBusy           = "busy"
	ErrorCodeSigning        = "signing_failed"
	ErrorCodeTransport      = "transport_error"
	ErrorCodeProtocol       = "api_error"
	ErrorCodeDecode         = "decode_error"
	ErrorCodeCanceled       = "canceled"
	ErrorCodeInternal       = "internal_error"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
	MessageID string      `json:"message_id,omitempty"`
}

// ChatMessage asks for a reply. Message appends one user turn to the
// connection's conversation; Messages replaces the conversation.
type ChatMessage struct {
	BaseMessage
	Message  string          `json:"message,omitempty"`
	Messages []entities.Turn `json:"messages,omitempty"`
}

// ClearMessage drops the connection's conversation
type ClearMessage struct {
	BaseMessage
}

// HistoryRequestMessage asks for the connection's conversation
type HistoryRequestMessage struct {
	BaseMessage
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// StatusMessage carries a session state change
type StatusMessage struct {
	BaseMessage
	State entities.SessionState `json:"state"`
}

// FragmentMessage carries one content fragment
type FragmentMessage struct {
	BaseMessage
	Fragment string `json:"fragment"`
	SID      string `json:"sid,omitempty"`
}

// CompleteMessage carries the full reply and the conversation snapshot
type CompleteMessage struct {
	BaseMessage
	Content      string          `json:"content"`
	Conversation []entities.Turn `json:"conversation"`
}

// HistoryMessage carries the conversation
type HistoryMessage struct {
	BaseMessage
	Conversation []entities.Turn `json:"conversation"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage validates an incoming message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	// First parse as base message to get type
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeChat:
		var msg ChatMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid chat message: %w", err)
		}
		if err := v.validateChat(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypeClear:
		return &ClearMessage{BaseMessage: base}, nil

	case MessageTypeHistory:
		return &HistoryRequestMessage{BaseMessage: base}, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	case "":
		return nil, fmt.Errorf("message type is required")

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

// validateChat validates chat message fields
func (v *MessageValidator) validateChat(msg *ChatMessage) error {
	if msg.Message == "" && len(msg.Messages) == 0 {
		return fmt.Errorf("message or messages is required")
	}
	if msg.Message != "" && len(msg.Messages) > 0 {
		return fmt.Errorf("message and messages are mutually exclusive")
	}
	if len(msg.Messages) > 0 {
		if err := entities.NewTranscript(msg.Messages...).Validate(); err != nil {
			return fmt.Errorf("invalid messages: %w", err)
		}
	}
	return nil
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{
		Type:      t,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreateSessionErrorMessage maps a chat session error to an error message
func CreateSessionErrorMessage(err error) *ErrorMessage {
	var apiErr *spark.APIError
	switch {
	case errors.As(err, &apiErr):
		return CreateErrorMessage(ErrorCodeProtocol, apiErr.Message, fmt.Sprintf("code %d", apiErr.Code))
	case errors.Is(err, spark.ErrBusy):
		return CreateErrorMessage(ErrorCodeBusy, "A reply is still being generated", "")
	case errors.Is(err, spark.ErrSigning):
		return CreateErrorMessage(ErrorCodeSigning, "Failed to sign the upstream request", "")
	case errors.Is(err, spark.ErrCanceled):
		return CreateErrorMessage(ErrorCodeCanceled, "The reply was canceled", "")
	case errors.Is(err, spark.ErrDecode):
		return CreateErrorMessage(ErrorCodeDecode, "Received a malformed upstream frame", "")
	case errors.Is(err, spark.ErrTransport):
		return CreateErrorMessage(ErrorCodeTransport, "Upstream connection failed", "")
	default:
		return CreateErrorMessage(ErrorCodeInternal, "Failed to generate a reply", "")
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: newBase(MessageTypePong),
		Data:        data,
	}
}

// CreateStatusMessage creates a session state message
func CreateStatusMessage(state entities.SessionState) *StatusMessage {
	return &StatusMessage{
		BaseMessage: newBase(MessageTypeStatus),
		State:       state,
	}
}

// CreateFragmentMessage creates a content fragment message
func CreateFragmentMessage(fragment, sid string) *FragmentMessage {
	return &FragmentMessage{
		BaseMessage: newBase(MessageTypeFragment),
		Fragment:    fragment,
		SID:         sid,
	}
}

// CreateCompleteMessage creates a completed reply message
func CreateCompleteMessage(content string, conversation []entities.Turn) *CompleteMessage {
	if conversation == nil {
		conversation = []entities.Turn{}
	}
	return &CompleteMessage{
		BaseMessage:  newBase(MessageTypeComplete),
		Content:      content,
		Conversation: conversation,
	}
}

// CreateHistoryMessage creates a conversation history message
func CreateHistoryMessage(conversation []entities.Turn) *HistoryMessage {
	if conversation == nil {
		conversation = []entities.Turn{}
	}
	return &HistoryMessage{
		BaseMessage:  newBase(MessageTypeHistory),
		Conversation: conversation,
	}
}
