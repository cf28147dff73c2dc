// Package chat is a client for OpenAI-compatible /chat/completions APIs.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
)

// ErrMalformedResponse is returned when a 200 response carries no usable text.
var ErrMalformedResponse = eris.New("chat: malformed response")

// StatusError is returned for non-200 responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client performs chat completions.
type Client interface {
	ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error)
}

// ChatCompletionRequest is the request body for POST /chat/completions.
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

// Message represents a single message in the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse is the response from POST /chat/completions.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`

	// text is resolved once at decode time from whichever shape the server used.
	text string
}

// Choice is a single completion choice.
type Choice struct {
	Index   int     `json:"index"`
	Message Message `json:"message"`
	Text    string  `json:"text,omitempty"`
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Text returns the completion text.
func (r *ChatCompletionResponse) Text() string {
	if r == nil {
		return ""
	}
	return r.text
}

// legacyPaths are tried, in order, when the typed decode yields no text.
// They cover completion-style servers and self-hosted gateways that wrap
// the payload in an extra envelope.
var legacyPaths = []string{
	"choices.0.text",
	"choices.0.message.content",
	"data.choices.0.message.content",
	"message.content",
	"output_text",
	"response",
	"content.0.text",
}

// ExtractText pulls completion text out of a response body. The typed
// chat-completions shape is preferred; the nested-mapping lookups in
// legacyPaths are the fallback. It never panics on an unexpected shape.
func ExtractText(body []byte) (*ChatCompletionResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, eris.Wrapf(ErrMalformedResponse, "invalid json: %s", truncate(string(body), 200))
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err == nil && len(resp.Choices) > 0 {
		if t := resp.Choices[0].Message.Content; t != "" {
			resp.text = t
			return &resp, nil
		}
	}

	for _, p := range legacyPaths {
		if v := gjson.GetBytes(body, p); v.Exists() && v.Type == gjson.String && v.String() != "" {
			resp.text = v.String()
			return &resp, nil
		}
	}

	return nil, eris.Wrapf(ErrMalformedResponse, "no completion text: %s", truncate(string(body), 200))
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *httpClient) {
		c.model = model
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

// NewClient creates a chat completions client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   defaultModel,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "chat: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "chat: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "chat: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "chat: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 500)}
	}

	return ExtractText(respBody)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
