// Package ai talks to an OpenAI-compatible chat-completion endpoint.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrUpstream means the provider answered with a non-success status
	ErrUpstream = errors.New("provider request failed")
	// ErrEmptyReply means the provider answered 2xx but the body carried no usable completion
	ErrEmptyReply = errors.New("provider returned no completion")
	// ErrNotConfigured means the API key or model identifier is missing
	ErrNotConfigured = errors.New("provider API key and model are required")
)

// Client calls an OpenAI-compatible chat-completion API
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a provider client. An empty key or model is allowed at
// construction time; Configured reports it and CreateChatCompletion refuses
// to run without them.
func NewClient(apiKey, model, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Configured reports whether both credentials and a model are set
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.model != ""
}

// Model returns the configured model identifier
func (c *Client) Model() string {
	return c.model
}

// Provider returns the provider name recorded with each invocation
func (c *Client) Provider() string {
	return "openai"
}

// CreateChatCompletion sends the messages as a single synchronous call and
// returns the first choice plus whatever usage accounting came back.
func (c *Client) CreateChatCompletion(ctx context.Context, messages []ChatMessage) (*Completion, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	requestBody := chatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, string(body))
	}

	var completionResp chatCompletionResponse
	if err := json.Unmarshal(body, &completionResp); err != nil {
		return nil, fmt.Errorf("%w: unparseable body: %v", ErrEmptyReply, err)
	}

	if completionResp.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrUpstream, completionResp.Error.Message)
	}

	if len(completionResp.Choices) == 0 || completionResp.Choices[0].Message.Content == "" {
		return nil, ErrEmptyReply
	}

	return &Completion{
		Content: completionResp.Choices[0].Message.Content,
		Usage:   completionResp.Usage,
	}, nil
}
