package spark

import (
	"encoding/json"
	"fmt"

	"github.com/satriahrh/sparkchat/domain/entities"
)

// StatusFinal marks the last frame of a response
const StatusFinal = 2

// Request is the single frame sent once a connection is open
type Request struct {
	Header    RequestHeader    `json:"header"`
	Parameter RequestParameter `json:"parameter"`
	Payload   RequestPayload   `json:"payload"`
}

type RequestHeader struct {
	AppID string `json:"app_id"`
	UID   string `json:"uid"`
}

type RequestParameter struct {
	Chat ChatParameter `json:"chat"`
}

type ChatParameter struct {
	Domain      string  `json:"domain"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type RequestPayload struct {
	Message RequestMessage `json:"message"`
}

type RequestMessage struct {
	Text []entities.Turn `json:"text"`
}

// Response is one server frame
type Response struct {
	Header  ResponseHeader  `json:"header"`
	Payload ResponsePayload `json:"payload"`
}

type ResponseHeader struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	SID     string `json:"sid"`
}

type ResponsePayload struct {
	Choices Choices `json:"choices"`
	Usage   *Usage  `json:"usage,omitempty"`
}

type Choices struct {
	Status int          `json:"status"`
	Seq    int          `json:"seq"`
	Text   []ChoiceText `json:"text"`
}

type ChoiceText struct {
	Content string `json:"content"`
	Role    string `json:"role"`
	Index   int    `json:"index"`
}

// Usage is reported on the final frame
type Usage struct {
	Text TokenUsage `json:"text"`
}

type TokenUsage struct {
	QuestionTokens   int `json:"question_tokens"`
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Fragment returns the content piece carried by the frame, if any
func (r *Response) Fragment() string {
	if len(r.Payload.Choices.Text) == 0 {
		return ""
	}
	return r.Payload.Choices.Text[0].Content
}

// IsFinal reports whether the frame ends the response
func (r *Response) IsFinal() bool {
	return r.Header.Status == StatusFinal
}

// Err returns the API error carried by the frame, or nil
func (r *Response) Err() error {
	if r.Header.Code == 0 {
		return nil
	}
	return &APIError{
		Code:    r.Header.Code,
		Message: r.Header.Message,
		SID:     r.Header.SID,
	}
}

func newRequest(creds Credentials, uid string, turns []entities.Turn) Request {
	return Request{
		Header: RequestHeader{
			AppID: creds.AppID,
			UID:   uid,
		},
		Parameter: RequestParameter{
			Chat: ChatParameter{
				Domain:      creds.Domain,
				Temperature: creds.Temperature,
				MaxTokens:   creds.MaxTokens,
			},
		},
		Payload: RequestPayload{
			Message: RequestMessage{Text: turns},
		},
	}
}

func decodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return &resp, nil
}
