package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-cli/internal/resilience"
	"github.com/sells-group/lead-cli/pkg/chat"
)

// ChatBackend serves completions from an OpenAI-compatible endpoint.
type ChatBackend struct {
	client chat.Client
	model  string
}

// NewChat wraps a chat.Client.
func NewChat(client chat.Client, model string) *ChatBackend {
	return &ChatBackend{client: client, model: model}
}

// Name implements Backend.
func (b *ChatBackend) Name() string { return "openai" }

// Complete implements Backend.
func (b *ChatBackend) Complete(ctx context.Context, req Request) (string, error) {
	var msgs []chat.Message
	if req.System != "" {
		msgs = append(msgs, chat.Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, chat.Message{Role: "user", Content: req.Prompt})

	temp := req.Temperature
	maxTokens := req.MaxTokens
	resp, err := b.client.ChatCompletion(ctx, chat.ChatCompletionRequest{
		Model:       b.model,
		Messages:    msgs,
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		var se *chat.StatusError
		switch {
		case errors.As(err, &se) && resilience.IsTransientHTTPStatus(se.StatusCode):
			return "", resilience.NewTransientError(err, se.StatusCode)
		case eris.Is(err, chat.ErrMalformedResponse):
			return "", eris.Wrap(ErrMalformed, err.Error())
		}
		return "", err
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", eris.Wrap(ErrMalformed, "chat: empty content")
	}
	return text, nil
}
