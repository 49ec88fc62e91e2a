package llm

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
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption for one completion.
type Usage struct {
	InputTokens     int
	OutputTokens    int
	ReasoningTokens int
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	Model   string
	BaseURL string
	APIKey  string
	client  *http.Client
}

// New creates a chat client. The API key is read from the named
// environment variable.
func New(baseURL, model, apiKeyEnv string) *Client {
	return &Client{
		Model:   model,
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  os.Getenv(apiKeyEnv),
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// IsConfigured checks if the API key is set.
func (c *Client) IsConfigured() bool {
	return c.APIKey != ""
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens        int `json:"prompt_tokens"`
		CompletionTokens    int `json:"completion_tokens"`
		CompletionTokensDet struct {
			ReasoningTokens int `json:"reasoning_tokens"`
		} `json:"completion_tokens_details"`
	} `json:"usage"`
}

// StatusError is returned for non-2xx API responses so callers can
// distinguish retryable statuses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat API returned %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the error is worth retrying (429 or 5xx).
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Chat sends messages and returns the assistant content plus token usage.
func (c *Client) Chat(ctx context.Context, messages []Message, maxTokens int) (string, Usage, error) {
	if c.APIKey == "" {
		return "", Usage{}, fmt.Errorf("API key not configured")
	}

	body := chatRequest{
		Model:       c.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: 0,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", Usage{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", Usage{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", Usage{}, fmt.Errorf("chat API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", Usage{}, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", Usage{}, fmt.Errorf("decoding response: %w", err)
	}

	if len(result.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("no choices in chat response")
	}

	usage := Usage{
		InputTokens:     result.Usage.PromptTokens,
		OutputTokens:    result.Usage.CompletionTokens,
		ReasoningTokens: result.Usage.CompletionTokensDet.ReasoningTokens,
	}
	return result.Choices[0].Message.Content, usage, nil
}
