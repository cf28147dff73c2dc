package llm

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-cli/internal/monitoring"
	"github.com/sells-group/lead-cli/internal/resilience"
)

// GuardConfig bounds every call made through a Guard. Zero values disable
// the corresponding protection.
type GuardConfig struct {
	Timeout time.Duration
	Limiter *rate.Limiter
	Breaker *resilience.CircuitBreaker
	Retry   *resilience.RetryConfig
}

// Guard decorates a Backend with a per-call timeout, an advisory rate
// limit, a circuit breaker and optional retries.
type Guard struct {
	next Backend
	cfg  GuardConfig
}

// NewGuard wraps next.
func NewGuard(next Backend, cfg GuardConfig) *Guard {
	return &Guard{next: next, cfg: cfg}
}

// Name implements Backend.
func (g *Guard) Name() string { return g.next.Name() }

// Complete implements Backend.
func (g *Guard) Complete(ctx context.Context, req Request) (string, error) {
	if g.cfg.Retry == nil {
		return g.once(ctx, req)
	}
	rc := *g.cfg.Retry
	rc.ShouldRetry = func(err error) bool {
		return Retryable(err) && !eris.Is(err, resilience.ErrCircuitOpen)
	}
	rc.OnRetry = resilience.RetryLogger(g.next.Name(), req.Operation)
	return resilience.DoVal(ctx, rc, func(ctx context.Context) (string, error) {
		return g.once(ctx, req)
	})
}

func (g *Guard) once(ctx context.Context, req Request) (string, error) {
	if g.cfg.Limiter != nil {
		if err := g.cfg.Limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "llm: rate limiter wait")
		}
	}

	call := func(ctx context.Context) (string, error) {
		if g.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
			defer cancel()
		}
		return g.next.Complete(ctx, req)
	}

	start := time.Now()
	var (
		text string
		err  error
	)
	if g.cfg.Breaker != nil {
		text, err = resilience.ExecuteVal(ctx, g.cfg.Breaker, call)
	} else {
		text, err = call(ctx)
	}
	monitoring.LLMDuration.WithLabelValues(g.next.Name(), req.Operation).Observe(time.Since(start).Seconds())
	monitoring.LLMCalls.WithLabelValues(g.next.Name(), req.Operation, resultLabel(err)).Inc()

	if eris.Is(err, ErrMalformed) {
		zap.L().Warn("llm: malformed response",
			zap.String("backend", g.next.Name()),
			zap.String("operation", req.Operation),
			zap.Error(err),
		)
	}
	return text, err
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case eris.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case eris.Is(err, ErrMalformed):
		return "malformed"
	case resilience.IsTransient(err):
		return "transient"
	default:
		return "error"
	}
}
