// Package pipeline runs raw records through normalize, dedup, competitor
// filter, score and route.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-cli/internal/dedup"
	"github.com/sells-group/lead-cli/internal/filter"
	"github.com/sells-group/lead-cli/internal/model"
	"github.com/sells-group/lead-cli/internal/monitoring"
	"github.com/sells-group/lead-cli/internal/normalize"
	"github.com/sells-group/lead-cli/internal/router"
	"github.com/sells-group/lead-cli/internal/scorer"
	"github.com/sells-group/lead-cli/internal/source"
	"github.com/sells-group/lead-cli/internal/store"
)

// Counters summarise a batch. Processed counts every record handed to the
// pipeline; each record lands in exactly one of the other buckets unless the
// batch was aborted before it.
type Counters struct {
	Processed  int `json:"processed"`
	Qualified  int `json:"qualified"`
	Discarded  int `json:"discarded"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
	Errors     int `json:"errors"`
}

// Add accumulates o into c.
func (c *Counters) Add(o Counters) {
	c.Processed += o.Processed
	c.Qualified += o.Qualified
	c.Discarded += o.Discarded
	c.Duplicates += o.Duplicates
	c.Rejected += o.Rejected
	c.Errors += o.Errors
}

// Batch is the output of one adapter.
type Batch struct {
	Source   string
	Platform model.Platform
	Records  []normalize.RawRecord
}

// Pipeline wires the ingestion stages together.
type Pipeline struct {
	normalizer *normalize.Normalizer
	filter     *filter.Filter
	qualifier  *scorer.Qualifier
	router     *router.Router
	persisted  dedup.Persisted
	now        func() time.Time
}

// New creates a Pipeline. persisted is the store view consulted by the
// deduplicator and may be nil.
func New(n *normalize.Normalizer, f *filter.Filter, q *scorer.Qualifier, r *router.Router, persisted dedup.Persisted) *Pipeline {
	return &Pipeline{
		normalizer: n,
		filter:     f,
		qualifier:  q,
		router:     r,
		persisted:  persisted,
		now:        time.Now,
	}
}

// RunBatch processes a batch sequentially. Per-lead failures are counted and
// the batch continues; store unavailability or cancellation aborts the batch
// and is returned together with the counters so far. seen may be shared by
// concurrent batches of the same run; nil starts a fresh run set.
func (p *Pipeline) RunBatch(ctx context.Context, b Batch, seen *dedup.RunSet) (Counters, error) {
	var c Counters
	view := dedup.NewView(seen, p.persisted)
	platform := string(b.Platform)
	log := zap.L().With(
		zap.String("component", "pipeline"),
		zap.String("source", b.Source),
		zap.String("platform", platform),
	)

	for i, raw := range b.Records {
		if err := ctx.Err(); err != nil {
			log.Warn("batch cancelled", zap.Int("remaining", len(b.Records)-i))
			return c, eris.Wrap(err, "pipeline: batch cancelled")
		}
		c.Processed++

		outcome, err := p.processOne(ctx, view, b.Platform, raw)
		switch outcome {
		case monitoring.OutcomeQualified:
			c.Qualified++
		case monitoring.OutcomeDiscarded:
			c.Discarded++
		case monitoring.OutcomeDuplicate:
			c.Duplicates++
		case monitoring.OutcomeRejected:
			c.Rejected++
		default:
			c.Errors++
		}
		monitoring.LeadsTotal.WithLabelValues(platform, outcome).Inc()

		if err != nil {
			if eris.Is(err, store.ErrUnavailable) {
				log.Error("store unavailable, aborting batch", zap.Error(err))
				return c, err
			}
			if ctx.Err() != nil {
				return c, eris.Wrap(ctx.Err(), "pipeline: batch cancelled")
			}
			log.Warn("lead failed", zap.Int("index", i), zap.Error(err))
		}
	}

	log.Info("batch complete",
		zap.Int("processed", c.Processed),
		zap.Int("qualified", c.Qualified),
		zap.Int("discarded", c.Discarded),
		zap.Int("duplicates", c.Duplicates),
		zap.Int("rejected", c.Rejected),
		zap.Int("errors", c.Errors),
	)
	return c, nil
}

// processOne returns the outcome label for one record and, for the error
// outcome, the cause.
func (p *Pipeline) processOne(ctx context.Context, view *dedup.View, platform model.Platform, raw normalize.RawRecord) (string, error) {
	lead, err := p.normalizer.Normalize(platform, raw)
	if err != nil {
		return monitoring.OutcomeError, err
	}

	fresh, err := view.Claim(ctx, lead.IdentityKey)
	if err != nil {
		return monitoring.OutcomeError, err
	}
	if !fresh {
		return monitoring.OutcomeDuplicate, nil
	}

	if competitor, why := p.filter.Check(ctx, lead); competitor {
		zap.L().Debug("competitor rejected",
			zap.String("identity_key", lead.IdentityKey),
			zap.String("rationale", why),
		)
		return monitoring.OutcomeRejected, nil
	}

	out := p.qualifier.Evaluate(ctx, lead)
	lead.ApplyScore(out.Score, out.Rationale, out.Status, p.now().UTC())

	placed, err := p.router.Place(ctx, lead)
	if placed.Duplicate {
		return monitoring.OutcomeDuplicate, nil
	}
	if err != nil {
		view.Release(lead.IdentityKey)
		return monitoring.OutcomeError, err
	}
	if placed.Bucket == store.Active {
		return monitoring.OutcomeQualified, nil
	}
	return monitoring.OutcomeDiscarded, nil
}

// SourceResult is the outcome of one adapter within a run.
type SourceResult struct {
	Source   string   `json:"source"`
	Counters Counters `json:"counters"`
	Err      error    `json:"-"`
}

// RunResult aggregates a multi-source run.
type RunResult struct {
	RunID   string         `json:"run_id"`
	Total   Counters       `json:"total"`
	Sources []SourceResult `json:"sources"`
}

// RunSources fetches every adapter and runs its batch, up to concurrency
// batches at once. Batches share one run set. An adapter fetch failure only
// drops that adapter; a store outage aborts the run and is returned with the
// partial result.
func (p *Pipeline) RunSources(ctx context.Context, adapters []source.Adapter, concurrency int) (*RunResult, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	res := &RunResult{RunID: uuid.New().String(), Sources: make([]SourceResult, len(adapters))}
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("run_id", res.RunID))
	seen := dedup.NewRunSet()

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, a := range adapters {
		g.Go(func() error {
			sr := SourceResult{Source: a.Name()}
			defer func() { res.Sources[i] = sr }()

			recs, err := a.Fetch(gCtx)
			if err != nil {
				sr.Err = err
				log.Warn("adapter failed", zap.String("source", a.Name()), zap.Error(err))
				return nil
			}

			sr.Counters, sr.Err = p.RunBatch(gCtx, Batch{Source: a.Name(), Platform: a.Platform(), Records: recs}, seen)
			if sr.Err != nil && eris.Is(sr.Err, store.ErrUnavailable) {
				return sr.Err
			}
			return nil
		})
	}

	err := g.Wait()
	for _, sr := range res.Sources {
		res.Total.Add(sr.Counters)
	}
	if err != nil {
		return res, eris.Wrap(err, "pipeline: run sources")
	}
	if ctx.Err() != nil {
		return res, eris.Wrap(ctx.Err(), "pipeline: run sources")
	}
	log.Info("run complete",
		zap.Int("sources", len(adapters)),
		zap.Int("processed", res.Total.Processed),
		zap.Int("qualified", res.Total.Qualified),
	)
	return res, nil
}
