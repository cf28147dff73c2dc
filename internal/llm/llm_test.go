package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-cli/internal/config"
	"github.com/sells-group/lead-cli/internal/resilience"
	"github.com/sells-group/lead-cli/pkg/anthropic"
	"github.com/sells-group/lead-cli/pkg/chat"
)

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// scriptedBackend returns the scripted results in order.
type scriptedBackend struct {
	results []error
	text    string
	calls   atomic.Int32
}

func (s *scriptedBackend) Name() string { return "scripted" }

func (s *scriptedBackend) Complete(ctx context.Context, _ Request) (string, error) {
	i := int(s.calls.Add(1)) - 1
	if i < len(s.results) && s.results[i] != nil {
		return "", s.results[i]
	}
	return s.text, nil
}

func TestAnthropicBackend_Complete(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" &&
			req.System == "sys" &&
			req.MaxTokens == 150 &&
			*req.Temperature == 0.3 &&
			req.Messages[0].Content == "prompt"
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "  no  "}},
	}, nil)

	b := NewAnthropic(client, "claude-haiku-4-5-20251001")
	text, err := b.Complete(context.Background(), Request{
		Operation: "classify", System: "sys", Prompt: "prompt", MaxTokens: 150, Temperature: 0.3,
	})
	require.NoError(t, err)
	assert.Equal(t, "no", text)
	client.AssertExpectations(t)
}

func TestAnthropicBackend_EmptyContentIsMalformed(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(&anthropic.MessageResponse{StopReason: "max_tokens"}, nil)

	_, err := NewAnthropic(client, "m").Complete(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrMalformed))
	assert.True(t, Retryable(err))
}

func TestAnthropicBackend_OverloadedIsTransient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(529)
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"type":  "error",
			"error": map[string]any{"type": "overloaded_error", "message": "Overloaded"},
		})
	}))
	defer ts.Close()

	b := NewAnthropic(anthropic.NewClient("k", ts.URL), "claude-haiku-4-5-20251001")
	_, err := b.Complete(context.Background(), Request{Prompt: "p", MaxTokens: 10})
	require.Error(t, err)

	var te *resilience.TransientError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 529, te.StatusCode)
}

func TestChatBackend_Complete(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chat.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "gpt-4", req.Model)
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "yes"}}]}`))
	}))
	defer ts.Close()

	b := NewChat(chat.NewClient("k", chat.WithBaseURL(ts.URL)), "gpt-4")
	text, err := b.Complete(context.Background(), Request{System: "s", Prompt: "p", MaxTokens: 5})
	require.NoError(t, err)
	assert.Equal(t, "yes", text)
}

func TestChatBackend_ErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantTransient bool
		wantMalformed bool
	}{
		{"unavailable", http.StatusServiceUnavailable, `{}`, true, false},
		{"bad request", http.StatusBadRequest, `{"error": "bad"}`, false, false},
		{"garbage", http.StatusOK, `not json`, false, true},
		{"empty content", http.StatusOK, `{"choices": [{"message": {"content": "   "}}]}`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			_, err := NewChat(chat.NewClient("k", chat.WithBaseURL(ts.URL)), "m").
				Complete(context.Background(), Request{Prompt: "p"})
			require.Error(t, err)
			assert.Equal(t, tt.wantTransient, resilience.IsTransient(err))
			assert.Equal(t, tt.wantMalformed, eris.Is(err, ErrMalformed))
		})
	}
}

func TestGuard_RetriesMalformedThenSucceeds(t *testing.T) {
	b := &scriptedBackend{results: []error{eris.Wrap(ErrMalformed, "bad shape")}, text: "ok"}
	g := NewGuard(b, GuardConfig{Retry: &resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond}})

	text, err := g.Complete(context.Background(), Request{Operation: "score"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(2), b.calls.Load())
}

func TestGuard_DoesNotRetryPermanentErrors(t *testing.T) {
	b := &scriptedBackend{results: []error{errors.New("invalid api key")}}
	g := NewGuard(b, GuardConfig{Retry: &resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond}})

	_, err := g.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, int32(1), b.calls.Load())
}

func TestGuard_CircuitOpenShortCircuits(t *testing.T) {
	fail := resilience.NewTransientError(errors.New("down"), 503)
	b := &scriptedBackend{results: []error{fail, fail, fail, fail}}
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	g := NewGuard(b, GuardConfig{
		Breaker: breaker,
		Retry:   &resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond},
	})

	_, err := g.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, resilience.ErrCircuitOpen))
	assert.Equal(t, int32(1), b.calls.Load())
}

type slowBackend struct{}

func (slowBackend) Name() string { return "slow" }

func (slowBackend) Complete(ctx context.Context, _ Request) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestGuard_TimeoutIsTransient(t *testing.T) {
	g := NewGuard(slowBackend{}, GuardConfig{Timeout: 10 * time.Millisecond})

	_, err := g.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.True(t, Retryable(err))
}

func TestNew_ProviderSelection(t *testing.T) {
	_, err := New(config.LLMConfig{}, true)
	assert.True(t, eris.Is(err, ErrDisabled))

	_, err = New(config.LLMConfig{Provider: "ollama", APIKey: "k"}, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")

	b, err := New(config.LLMConfig{Provider: "anthropic", APIKey: "k", Model: "m", RequestsPerMinute: 60}, true)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", b.Name())

	b, err = New(config.LLMConfig{Provider: "openai", APIKey: "k", BaseURL: "http://localhost"}, false)
	require.NoError(t, err)
	assert.Equal(t, "openai", b.Name())
}
