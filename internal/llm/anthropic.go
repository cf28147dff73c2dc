package llm

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-cli/internal/resilience"
	"github.com/sells-group/lead-cli/pkg/anthropic"
)

// AnthropicBackend serves completions from the Messages API.
type AnthropicBackend struct {
	client anthropic.Client
	model  string
}

// NewAnthropic wraps an anthropic.Client.
func NewAnthropic(client anthropic.Client, model string) *AnthropicBackend {
	return &AnthropicBackend{client: client, model: model}
}

// Name implements Backend.
func (b *AnthropicBackend) Name() string { return "anthropic" }

// Complete implements Backend.
func (b *AnthropicBackend) Complete(ctx context.Context, req Request) (string, error) {
	temp := req.Temperature
	resp, err := b.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       b.model,
		MaxTokens:   int64(req.MaxTokens),
		System:      req.System,
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	})
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			return "", resilience.NewTransientError(err, apiErr.StatusCode)
		}
		return "", err
	}

	resp.Usage.LogCost(b.model, req.Operation)

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", eris.Wrapf(ErrMalformed, "anthropic: empty content (stop_reason=%s)", resp.StopReason)
	}
	return text, nil
}
