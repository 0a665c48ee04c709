package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nachoal/simple-batch-go/llm"
)

const (
	defaultBaseURL   = "https://api.tu-zi.com/v1"
	defaultTimeout   = 20 * time.Minute // image generation can take a long time
	defaultModel     = "gpt-4o-image-vip"
	defaultUserAgent = "simple-batch-go/1.0"
	completionsPath  = "/chat/completions"
)

// Client implements llm.Client for OpenAI-compatible chat-completion endpoints
type Client struct {
	options    llm.ClientOptions
	httpClient *http.Client
	endpoint   string
}

// NewClient creates a new OpenAI-compatible client
func NewClient(opts ...llm.ClientOption) (*Client, error) {
	options := llm.ClientOptions{
		BaseURL:      defaultBaseURL,
		Timeout:      defaultTimeout,
		DefaultModel: defaultModel,
		UserAgent:    defaultUserAgent,
	}

	// Apply options
	for _, opt := range opts {
		opt(&options)
	}

	// Get API key from environment if not provided
	if options.APIKey == "" {
		options.APIKey = os.Getenv("API_TOKEN")
		if options.APIKey == "" {
			return nil, fmt.Errorf("API token not provided")
		}
	}

	return &Client{
		options: options,
		httpClient: &http.Client{
			Timeout: options.Timeout,
		},
		endpoint: completionsURL(options.BaseURL),
	}, nil
}

// completionsURL accepts either an API root or the full completions URL
func completionsURL(base string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, completionsPath) {
		return base
	}
	return base + completionsPath
}

// Endpoint returns the URL requests are posted to
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Do posts the request and returns the reply body and status untouched
func (c *Client) Do(ctx context.Context, request *llm.ChatRequest) (*llm.RawResponse, error) {
	// Set default model if not specified
	if request.Model == "" {
		request.Model = c.options.DefaultModel
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &llm.RawResponse{
		StatusCode: resp.StatusCode,
		Body:       respBody,
	}, nil
}

// Chat sends a chat request and decodes the reply
func (c *Client) Chat(ctx context.Context, request *llm.ChatRequest) (*llm.ChatResponse, error) {
	raw, err := c.Do(ctx, request)
	if err != nil {
		return nil, err
	}

	if !raw.OK() {
		var errResp struct {
			Error llm.ErrorResponse `json:"error"`
		}
		if err := json.Unmarshal(raw.Body, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("API error: status %d: %s", raw.StatusCode, errResp.Error.Message)
		}
		return nil, fmt.Errorf("API error: status %d, body: %s", raw.StatusCode, string(raw.Body))
	}

	response, err := raw.Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if response.Error != nil {
		return nil, fmt.Errorf("API error: %s", response.Error.Message)
	}

	return response, nil
}

// Close cleans up resources
func (c *Client) Close() error {
	// Nothing to clean up for HTTP client
	return nil
}

// setHeaders sets common headers for requests
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.options.APIKey)
	req.Header.Set("User-Agent", c.options.UserAgent)
}
