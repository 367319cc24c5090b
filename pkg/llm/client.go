// Package llm provides a completion client for OpenAI-compatible endpoints.
package llm

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

// HTTPDoer is the subset of http.Client used by the invocation client.
// Tests substitute a mock implementation.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client invokes chat completions against arbitrary OpenAI-compatible
// endpoints. Endpoint and credentials come from each Invocation, not from
// the client, so one client serves every configured model.
type Client struct {
	httpClient HTTPDoer
}

// NewClient creates a new invocation client.
func NewClient() *Client {
	return &Client{httpClient: &http.Client{}}
}

// NewClientWithHTTP creates a client with a custom HTTP implementation.
func NewClientWithHTTP(doer HTTPDoer) *Client {
	return &Client{httpClient: doer}
}

// Invocation describes a single completion call.
type Invocation struct {
	Endpoint string // base URL, e.g. https://api.openai.com/v1
	APIKey   string
	Model    string
	Prompt   string

	MaxTokens int
	Timeout   time.Duration
}

// Result is the outcome of a successful completion call.
type Result struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}

// Chat completion wire types (OpenAI-compatible).

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Invoke performs one completion call. Failures are returned as
// *InvocationError with a classification and the elapsed wall-clock time;
// they are data for the caller to persist, never a reason to abort a batch.
func (c *Client) Invoke(ctx context.Context, inv Invocation) (*Result, error) {
	start := time.Now()

	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	reqBody := chatRequest{
		Model:     inv.Model,
		Messages:  []chatMessage{{Role: "user", Content: inv.Prompt}},
		MaxTokens: inv.MaxTokens,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &InvocationError{
			Kind:     ErrorKindMalformed,
			Message:  fmt.Sprintf("failed to marshal request: %v", err),
			Duration: time.Since(start),
		}
	}

	url := strings.TrimSuffix(inv.Endpoint, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, &InvocationError{
			Kind:     ErrorKindNetwork,
			Message:  fmt.Sprintf("failed to create request: %v", err),
			Duration: time.Since(start),
		}
	}

	req.Header.Set("Authorization", "Bearer "+inv.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := ErrorKindNetwork
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			kind = ErrorKindTimeout
		}
		return nil, &InvocationError{
			Kind:     kind,
			Message:  fmt.Sprintf("request failed: %v", err),
			Duration: time.Since(start),
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &InvocationError{
			Kind:     ErrorKindNetwork,
			Message:  fmt.Sprintf("failed to read response: %v", err),
			Duration: time.Since(start),
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, respBody, time.Since(start))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, &InvocationError{
			Kind:     ErrorKindMalformed,
			Message:  fmt.Sprintf("failed to unmarshal response: %v", err),
			Duration: time.Since(start),
		}
	}

	if len(chatResp.Choices) == 0 {
		return nil, &InvocationError{
			Kind:     ErrorKindMalformed,
			Message:  "no choices in response",
			Duration: time.Since(start),
		}
	}

	return &Result{
		Text:         chatResp.Choices[0].Message.Content,
		InputTokens:  chatResp.Usage.PromptTokens,
		OutputTokens: chatResp.Usage.CompletionTokens,
		Duration:     time.Since(start),
	}, nil
}

func classifyStatus(status int, body []byte, elapsed time.Duration) *InvocationError {
	message := fmt.Sprintf("API error: status %d", status)
	var ae apiError
	if err := json.Unmarshal(body, &ae); err == nil && ae.Error.Message != "" {
		message = "API error: " + ae.Error.Message
	}

	kind := ErrorKindAPI
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = ErrorKindAuth
	case status == http.StatusTooManyRequests:
		kind = ErrorKindRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		kind = ErrorKindTimeout
	}

	return &InvocationError{Kind: kind, Message: message, Duration: elapsed}
}
