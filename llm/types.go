package llm

import (
	"encoding/json"
	"strings"
	"time"
)

// Role represents the role of a message
type Role string

// RoleUser is the only role this client sends; replies carry the server's role
const RoleUser Role = "user"

// Content part types
const (
	PartTypeText     = "text"
	PartTypeImageURL = "image_url"
)

// ContentPart is one element of a multimodal message body
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL holds an http(s) URL or an inline data URI
type ImageURL struct {
	URL string `json:"url"`
}

// Message represents an outgoing chat message
type Message struct {
	Role    Role          `json:"role"`
	Content []ContentPart `json:"content"`
}

// ChatRequest represents a chat completion request.
// Stream is always serialized; the batch runners never stream.
type ChatRequest struct {
	Model    string    `json:"model"`
	Stream   bool      `json:"stream"`
	Messages []Message `json:"messages"`
}

// ChatResponse represents a chat completion response
type ChatResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []Choice       `json:"choices"`
	Usage   *Usage         `json:"usage,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
}

// Choice represents a single response choice
type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// ResponseMessage is the assistant message inside a choice
type ResponseMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code,omitempty"`
}

// UnmarshalJSON accepts both {"message": "..."} and a bare string, since some
// relays report errors as "error": "quota exceeded".
func (e *ErrorResponse) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		e.Message = s
		return nil
	}

	type alias ErrorResponse
	return json.Unmarshal(data, (*alias)(e))
}

// Text concatenates the content of every choice, each followed by a blank line.
func (r *ChatResponse) Text() string {
	var b strings.Builder
	for _, choice := range r.Choices {
		b.WriteString(choice.Message.Content)
		b.WriteString("\n\n")
	}
	return b.String()
}

// RawResponse is an undecoded HTTP reply from the chat endpoint
type RawResponse struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the status code is 2xx
func (r *RawResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode parses the body as a ChatResponse
func (r *RawResponse) Decode() (*ChatResponse, error) {
	var resp ChatResponse
	if err := json.Unmarshal(r.Body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClientOptions contains options for creating an LLM client
type ClientOptions struct {
	APIKey       string
	BaseURL      string
	Timeout      time.Duration
	DefaultModel string
	UserAgent    string
}

// ClientOption is a functional option for configuring clients
type ClientOption func(*ClientOptions)

// WithAPIKey sets the API key
func WithAPIKey(key string) ClientOption {
	return func(o *ClientOptions) {
		o.APIKey = key
	}
}

// WithBaseURL sets the base URL. A full .../chat/completions URL is accepted as is.
func WithBaseURL(url string) ClientOption {
	return func(o *ClientOptions) {
		o.BaseURL = url
	}
}

// WithTimeout sets the request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *ClientOptions) {
		o.Timeout = timeout
	}
}

// WithModel sets the default model
func WithModel(model string) ClientOption {
	return func(o *ClientOptions) {
		o.DefaultModel = model
	}
}
