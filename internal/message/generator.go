// Package message generates personalised outreach text for Active leads.
package message

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-cli/internal/llm"
	"github.com/sells-group/lead-cli/internal/model"
	"github.com/sells-group/lead-cli/internal/monitoring"
	"github.com/sells-group/lead-cli/internal/resilience"
	"github.com/sells-group/lead-cli/internal/store"
)

// ErrExhausted is returned when every generation attempt for a lead failed.
var ErrExhausted = eris.New("message: attempts exhausted")

// ErrNotPending is returned when a lead left Active or already has a message
// by the time it is processed.
var ErrNotPending = eris.New("message: lead no longer pending")

var errEmpty = eris.New("message: empty response")

// Config controls retries, pacing and sampling.
type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	Delay          time.Duration
	MaxTokens      int
	Temperature    float64
}

// DefaultConfig returns three attempts backing off 1s, 2s, with one lead per
// second.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		Delay:          time.Second,
		MaxTokens:      500,
		Temperature:    0.7,
	}
}

// Writer is the store surface the generator needs.
type Writer interface {
	Get(ctx context.Context, key string) (model.Lead, store.Bucket, error)
	ListByStatus(ctx context.Context, bucket store.Bucket, status model.Status, limit int) ([]model.Lead, error)
	SetMessage(ctx context.Context, key, message string, status model.Status, at time.Time) error
}

// Counters summarise a run.
type Counters struct {
	Generated int
	Failed    int
	Skipped   int
}

// Generator produces outreach messages.
type Generator struct {
	backend llm.Backend
	store   Writer
	locker  store.KeyLocker
	cfg     Config
	now     func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithLocker sets the key locker message writes take. Share it with the
// router so a rescore and a message write on one key never interleave.
func WithLocker(l store.KeyLocker) Option {
	return func(g *Generator) { g.locker = l }
}

// New creates a Generator. Zero config fields take DefaultConfig values,
// except Delay where zero disables pacing.
func New(backend llm.Backend, w Writer, cfg Config, opts ...Option) *Generator {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = def.Temperature
	}
	g := &Generator{backend: backend, store: w, locker: store.NewStripedLocker(0), cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate returns outreach text for lead, retrying with exponential backoff.
// After the last failed attempt it returns ErrExhausted.
func (g *Generator) Generate(ctx context.Context, lead model.Lead) (string, error) {
	tmpl := TemplateFor(lead.Platform)
	req := llm.Request{
		Operation:   "message",
		System:      tmpl.System,
		Prompt:      tmpl.Render(lead),
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	}

	retry := resilience.RetryConfig{
		MaxAttempts:    g.cfg.MaxAttempts,
		InitialBackoff: g.cfg.InitialBackoff,
		MaxBackoff:     time.Minute,
		Multiplier:     2,
		ShouldRetry: func(err error) bool {
			return !eris.Is(err, context.Canceled)
		},
		OnRetry: resilience.RetryLogger(g.backend.Name(), "message"),
	}

	text, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (string, error) {
		out, err := g.backend.Complete(ctx, req)
		if err != nil {
			return "", err
		}
		out = strings.TrimSpace(out)
		if out == "" {
			return "", errEmpty
		}
		return out, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", eris.Wrap(ctx.Err(), "message: generate")
		}
		return "", eris.Wrapf(ErrExhausted, "message: %s: %v", lead.IdentityKey, err)
	}
	return text, nil
}

// Process generates and persists a message for one lead. A lead whose
// attempts are exhausted is marked message_failed and ErrExhausted is
// returned. A lead that is no longer pending yields ErrNotPending; it is
// checked before generation and again under the key lock before the write.
// Store errors are returned as-is.
func (g *Generator) Process(ctx context.Context, lead model.Lead) error {
	key := lead.IdentityKey
	if err := g.checkPending(ctx, key); err != nil {
		return err
	}

	// The lock is not held across generation: backend retries can outlast a
	// distributed lock's TTL.
	text, genErr := g.Generate(ctx, lead)
	if genErr != nil && !eris.Is(genErr, ErrExhausted) {
		return genErr
	}

	unlock, err := g.locker.Lock(ctx, key)
	if err != nil {
		return eris.Wrapf(err, "message: save %s", key)
	}
	defer unlock()

	if err := g.checkPending(ctx, key); err != nil {
		return err
	}

	status := model.StatusMessageGenerated
	if genErr != nil {
		status = model.StatusMessageFailed
	}
	if err := g.store.SetMessage(ctx, key, text, status, g.now().UTC()); err != nil {
		if eris.Is(err, store.ErrNotFound) {
			return eris.Wrapf(ErrNotPending, "message: save %s", key)
		}
		return eris.Wrapf(err, "message: save %s", key)
	}
	return genErr
}

// checkPending returns ErrNotPending unless key is in Active without a
// generated message.
func (g *Generator) checkPending(ctx context.Context, key string) error {
	current, bucket, err := g.store.Get(ctx, key)
	switch {
	case eris.Is(err, store.ErrNotFound):
		return eris.Wrapf(ErrNotPending, "message: %s not found", key)
	case err != nil:
		return eris.Wrapf(err, "message: load %s", key)
	case bucket != store.Active:
		return eris.Wrapf(ErrNotPending, "message: %s is %s", key, bucket)
	case current.Status == model.StatusMessageGenerated:
		return eris.Wrapf(ErrNotPending, "message: %s already messaged", key)
	}
	return nil
}

// Run processes leads sequentially, pacing them by the configured delay.
// Per-lead failures are counted; a store failure or cancellation aborts the
// run and is returned with the counters so far.
func (g *Generator) Run(ctx context.Context, leads []model.Lead) (Counters, error) {
	var c Counters
	log := zap.L().With(zap.String("component", "message"))

	var limiter *rate.Limiter
	if g.cfg.Delay > 0 {
		limiter = rate.NewLimiter(rate.Every(g.cfg.Delay), 1)
	}

	for _, lead := range leads {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return c, eris.Wrap(err, "message: run")
			}
		} else if err := ctx.Err(); err != nil {
			return c, eris.Wrap(err, "message: run")
		}

		err := g.Process(ctx, lead)
		switch {
		case err == nil:
			c.Generated++
			monitoring.MessagesTotal.WithLabelValues("generated").Inc()
		case eris.Is(err, ErrExhausted):
			c.Failed++
			monitoring.MessagesTotal.WithLabelValues("failed").Inc()
			log.Warn("message generation failed", zap.String("identity_key", lead.IdentityKey), zap.Error(err))
		case eris.Is(err, ErrNotPending):
			c.Skipped++
			monitoring.MessagesTotal.WithLabelValues("skipped").Inc()
			log.Info("lead no longer pending", zap.String("identity_key", lead.IdentityKey), zap.Error(err))
		default:
			return c, err
		}
	}

	log.Info("message run complete",
		zap.Int("generated", c.Generated),
		zap.Int("failed", c.Failed),
		zap.Int("skipped", c.Skipped),
	)
	return c, nil
}

// RunPending generates messages for up to limit qualified Active leads that
// have none yet.
func (g *Generator) RunPending(ctx context.Context, limit int) (Counters, error) {
	leads, err := g.store.ListByStatus(ctx, store.Active, model.StatusQualified, limit)
	if err != nil {
		return Counters{}, eris.Wrap(err, "message: list pending")
	}
	return g.Run(ctx, leads)
}
