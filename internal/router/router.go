// Package router places scored leads into the Active or Discarded store and
// owns the rescore path, the only way a stored lead's score changes.
package router

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-cli/internal/model"
	"github.com/sells-group/lead-cli/internal/monitoring"
	"github.com/sells-group/lead-cli/internal/scorer"
	"github.com/sells-group/lead-cli/internal/store"
)

// Exporter receives every newly qualified lead. Export failures are logged
// and never fail a placement.
type Exporter interface {
	Export(ctx context.Context, lead model.Lead) error
}

// Placement describes where Place put a lead.
type Placement struct {
	Bucket    store.Bucket
	Lead      model.Lead
	Duplicate bool
}

// RescoreResult describes a completed rescore.
type RescoreResult struct {
	Lead     model.Lead
	From     store.Bucket
	To       store.Bucket
	Previous *float64
}

// Moved reports whether the rescore migrated the lead between stores.
func (r RescoreResult) Moved() bool { return r.From != r.To }

// Option configures a Router.
type Option func(*Router)

// WithLocker replaces the default in-process key locker.
func WithLocker(l store.KeyLocker) Option {
	return func(r *Router) { r.locker = l }
}

// WithExporter sets the qualified-lead exporter.
func WithExporter(e Exporter) Option {
	return func(r *Router) { r.exporter = e }
}

// WithClock overrides the time source used for scored_at.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// Router routes leads between the two stores.
type Router struct {
	store     store.Store
	qualifier *scorer.Qualifier
	locker    store.KeyLocker
	exporter  Exporter
	now       func() time.Time
}

// New creates a Router.
func New(st store.Store, q *scorer.Qualifier, opts ...Option) *Router {
	r := &Router{
		store:     st,
		qualifier: q,
		locker:    store.NewStripedLocker(0),
		now:       time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Qualifier returns the qualifier used for rescoring.
func (r *Router) Qualifier() *scorer.Qualifier { return r.qualifier }

// Place writes a scored lead to Active when qualified and to Discarded
// otherwise. A key already present in either store yields a Placement with
// Duplicate set alongside a wrapped store.ErrDuplicate.
func (r *Router) Place(ctx context.Context, lead model.Lead) (Placement, error) {
	bucket := store.BucketFor(lead.Status)
	p := Placement{Bucket: bucket, Lead: lead}

	unlock, err := r.locker.Lock(ctx, lead.IdentityKey)
	if err != nil {
		return p, eris.Wrap(err, "router: place")
	}
	defer unlock()

	if err := r.store.Insert(ctx, bucket, lead); err != nil {
		if eris.Is(err, store.ErrDuplicate) {
			p.Duplicate = true
		}
		return p, eris.Wrapf(err, "router: place %s", lead.IdentityKey)
	}

	if bucket == store.Active && r.exporter != nil {
		if err := r.exporter.Export(ctx, lead); err != nil {
			zap.L().Warn("router: export failed",
				zap.String("identity_key", lead.IdentityKey),
				zap.Error(err),
			)
		}
	}
	return p, nil
}

// Rescore re-evaluates a stored lead with the current strategy. A lead whose
// outcome flips is moved atomically; otherwise it is updated in place.
func (r *Router) Rescore(ctx context.Context, key string) (RescoreResult, error) {
	unlock, err := r.locker.Lock(ctx, key)
	if err != nil {
		return RescoreResult{}, eris.Wrap(err, "router: rescore")
	}
	defer unlock()

	lead, from, err := r.store.Get(ctx, key)
	if err != nil {
		return RescoreResult{}, eris.Wrapf(err, "router: rescore %s", key)
	}

	res := RescoreResult{From: from}
	if lead.FitScore != nil {
		prev := *lead.FitScore
		res.Previous = &prev
	}

	out := r.qualifier.Evaluate(ctx, lead)
	status := out.Status
	// A lead that stays qualified keeps its outreach state.
	if status == model.StatusQualified && from == store.Active &&
		(lead.Status == model.StatusMessageGenerated || lead.Status == model.StatusMessageFailed) {
		status = lead.Status
	}
	lead.ApplyScore(out.Score, out.Rationale, status, r.now().UTC())

	res.To = store.BucketFor(status)
	res.Lead = lead

	if res.Moved() {
		err = r.store.Move(ctx, from, lead)
	} else {
		err = r.store.Update(ctx, from, lead)
	}
	if err != nil {
		return RescoreResult{}, eris.Wrapf(err, "router: rescore %s", key)
	}

	transition := "unchanged"
	if res.Moved() {
		transition = fmt.Sprintf("%s_to_%s", res.From, res.To)
	}
	monitoring.Rescores.WithLabelValues(transition).Inc()

	zap.L().Info("router: rescored lead",
		zap.String("identity_key", key),
		zap.Float64("score", out.Score),
		zap.String("from", string(res.From)),
		zap.String("to", string(res.To)),
	)

	if res.Moved() && res.To == store.Active && r.exporter != nil {
		if err := r.exporter.Export(ctx, lead); err != nil {
			zap.L().Warn("router: export failed", zap.String("identity_key", key), zap.Error(err))
		}
	}
	return res, nil
}

// QueryByScore returns scored leads with min <= score <= max from the
// stores named by scope. Nil bounds are open; order is not guaranteed.
func (r *Router) QueryByScore(ctx context.Context, min, max *float64, scope store.Scope, limit int) ([]model.Lead, error) {
	leads, err := r.store.QueryByScore(ctx, store.ScoreRange{Min: min, Max: max, Scope: scope, Limit: limit})
	if err != nil {
		return nil, eris.Wrap(err, "router: query by score")
	}
	return leads, nil
}
