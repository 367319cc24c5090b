// Package testutil provides test doubles for LLM endpoint interactions.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// MockHTTPClient provides a configurable mock HTTP client for testing.
// It satisfies the llm.HTTPDoer interface.
type MockHTTPClient struct {
	mu              sync.Mutex
	responses       []MockResponse
	requests        []*http.Request
	requestBodies   [][]byte
	defaultResponse *MockResponse
}

// MockResponse defines a mock HTTP response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Error      error
	// Delay simulates a slow endpoint before the response (or error) is
	// delivered.
	Delay time.Duration
	// Matcher optionally matches requests - if nil, matches all.
	Matcher func(*http.Request) bool
}

// NewMockHTTPClient creates a new mock HTTP client.
func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{}
}

// AddResponse adds a mock response to the queue.
func (m *MockHTTPClient) AddResponse(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
}

// SetDefaultResponse sets the default response when the queue is empty.
func (m *MockHTTPClient) SetDefaultResponse(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultResponse = &resp
}

// Do implements the HTTP client interface.
func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()

	m.requests = append(m.requests, req)

	if req.Body != nil {
		body, _ := io.ReadAll(req.Body)
		m.requestBodies = append(m.requestBodies, body)
		req.Body = io.NopCloser(bytes.NewReader(body))
	} else {
		m.requestBodies = append(m.requestBodies, nil)
	}

	var resp *MockResponse
	for i, r := range m.responses {
		if r.Matcher == nil || r.Matcher(req) {
			resp = &m.responses[i]
			m.responses = append(m.responses[:i], m.responses[i+1:]...)
			break
		}
	}

	if resp == nil {
		resp = m.defaultResponse
	}
	m.mu.Unlock()

	if resp == nil {
		return nil, &MockError{Message: "no mock response configured"}
	}

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}

	if resp.Error != nil {
		return nil, resp.Error
	}

	httpResp := &http.Response{
		StatusCode: resp.StatusCode,
		Body:       io.NopCloser(strings.NewReader(resp.Body)),
		Header:     make(http.Header),
		Request:    req,
	}
	for k, v := range resp.Headers {
		httpResp.Header.Set(k, v)
	}

	return httpResp, nil
}

// Requests returns all captured requests.
func (m *MockHTTPClient) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

// RequestCount returns the number of captured requests.
func (m *MockHTTPClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// LastRequest returns the last captured request.
func (m *MockHTTPClient) LastRequest() *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// LastRequestBody returns the last captured request body.
func (m *MockHTTPClient) LastRequestBody() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requestBodies) == 0 {
		return nil
	}
	return m.requestBodies[len(m.requestBodies)-1]
}

// MockError represents a mock error.
type MockError struct {
	Message string
}

func (e *MockError) Error() string {
	return e.Message
}

// Common mock response builders

// MockCompletionResponse creates a mock chat completion response with the
// given content and token usage.
func MockCompletionResponse(content string, promptTokens, completionTokens int) MockResponse {
	body, _ := json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-test123",
		"object":  "chat.completion",
		"created": 1234567890,
		"model":   "test-model",
		"choices": []map[string]interface{}{
			{
				"index": 0,
				"message": map[string]string{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
		},
	})
	return MockResponse{
		StatusCode: 200,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// MockJudgeVerdict creates a completion whose content is a judge verdict
// JSON document with the given score and justification.
func MockJudgeVerdict(score float64, justification string) MockResponse {
	verdict := fmt.Sprintf(`{"score": %g, "justification": %q}`, score, justification)
	return MockCompletionResponse(verdict, 40, 20)
}

// MockErrorResponse creates a mock error response.
func MockErrorResponse(statusCode int, message string) MockResponse {
	body, _ := json.Marshal(map[string]interface{}{
		"error": map[string]string{
			"message": message,
			"type":    "error",
		},
	})
	return MockResponse{
		StatusCode: statusCode,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// MockConnectionError creates a mock connection error.
func MockConnectionError() MockResponse {
	return MockResponse{
		Error: &MockError{Message: "connection refused"},
	}
}

// MockMalformedJSON creates a mock response with invalid JSON.
func MockMalformedJSON() MockResponse {
	return MockResponse{
		StatusCode: 200,
		Body:       `{"invalid json`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// MockEmptyCompletion creates a 200 response with no choices.
func MockEmptyCompletion() MockResponse {
	body, _ := json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-test123",
		"choices": []interface{}{},
		"usage":   map[string]int{"prompt_tokens": 0, "completion_tokens": 0},
	})
	return MockResponse{
		StatusCode: 200,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}
