// Package llm abstracts the text generation / classification backend used by
// the competitor filter, the AI scorer and the message generator.
package llm

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-cli/internal/config"
	"github.com/sells-group/lead-cli/internal/resilience"
	"github.com/sells-group/lead-cli/pkg/anthropic"
	"github.com/sells-group/lead-cli/pkg/chat"
)

var (
	// ErrMalformed marks a response whose shape could not be interpreted.
	ErrMalformed = eris.New("llm: malformed response")

	// ErrDisabled is returned by New when no backend is configured.
	ErrDisabled = eris.New("llm: backend disabled")
)

// Request is a single-turn completion request.
type Request struct {
	// Operation labels metrics and logs (classify, score, message).
	Operation   string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Backend produces free text for a prompt.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Retryable reports whether a failed call is worth another attempt.
// Malformed responses are retried like transient failures.
func Retryable(err error) bool {
	return resilience.IsTransient(err) || eris.Is(err, ErrMalformed)
}

// New builds the configured backend wrapped in a Guard. Per-call retries are
// applied when retry is true; the message generator runs its own retry loop
// and asks for a backend without one.
func New(cfg config.LLMConfig, retry bool) (Backend, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}

	var backend Backend
	switch cfg.Provider {
	case "anthropic":
		backend = NewAnthropic(anthropic.NewClient(cfg.APIKey, cfg.BaseURL), cfg.Model)
	case "openai":
		var opts []chat.Option
		if cfg.BaseURL != "" {
			opts = append(opts, chat.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, chat.WithModel(cfg.Model))
		}
		backend = NewChat(chat.NewClient(cfg.APIKey, opts...), cfg.Model)
	default:
		return nil, eris.Errorf("llm: unknown provider %q", cfg.Provider)
	}

	guard := GuardConfig{
		Timeout: time.Duration(cfg.TimeoutSecs) * time.Second,
		Breaker: resilience.NewCircuitBreaker(
			resilience.FromCircuitConfig(cfg.Provider, cfg.FailureThreshold, cfg.ResetTimeoutSecs),
		),
	}
	if cfg.RequestsPerMinute > 0 {
		guard.Limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	if retry {
		rc := resilience.FromRetryConfig(cfg.MaxRetries+1, cfg.InitialBackoffMs)
		guard.Retry = &rc
	}
	return NewGuard(backend, guard), nil
}
