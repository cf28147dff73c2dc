// Package scorer assigns fit scores to leads and decides qualification.
//
// Two strategies exist: a deterministic keyword heuristic on a 0-100 scale
// and a backend-driven strategy on a 1-10 scale. A Qualifier pairs one
// strategy with a threshold on that strategy's scale.
package scorer

import (
	"context"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-cli/internal/model"
)

// Strategy names accepted by configuration.
const (
	StrategyHeuristic = "heuristic"
	StrategyAI        = "ai"
)

// Range is the closed interval of scores a strategy can produce.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Clamp limits v to the range.
func (r Range) Clamp(v float64) float64 {
	return math.Max(r.Min, math.Min(r.Max, v))
}

// Result is the outcome of scoring one lead.
type Result struct {
	Score     float64
	Rationale string
}

// Strategy scores a single lead.
type Strategy interface {
	Name() string
	Range() Range
	Score(ctx context.Context, lead model.Lead) Result
}

// Outcome is a scored and classified lead.
type Outcome struct {
	Result
	Status model.Status
}

// Qualifier pairs a strategy with a threshold on its scale.
type Qualifier struct {
	strategy  Strategy
	threshold float64
}

// NewQualifier creates a Qualifier. The threshold must lie within the
// strategy's range so scales are never mixed.
func NewQualifier(s Strategy, threshold float64) (*Qualifier, error) {
	if s == nil {
		return nil, eris.New("scorer: strategy is required")
	}
	r := s.Range()
	if !r.Contains(threshold) {
		return nil, eris.Errorf("scorer: threshold %g outside %s range [%g, %g]", threshold, s.Name(), r.Min, r.Max)
	}
	return &Qualifier{strategy: s, threshold: threshold}, nil
}

// Evaluate scores lead and derives its status.
func (q *Qualifier) Evaluate(ctx context.Context, lead model.Lead) Outcome {
	res := q.strategy.Score(ctx, lead)
	return Outcome{Result: res, Status: q.Status(res.Score)}
}

// Status maps a score to qualified or discarded.
func (q *Qualifier) Status(score float64) model.Status {
	if score >= q.threshold {
		return model.StatusQualified
	}
	return model.StatusDiscarded
}

// Threshold returns the qualification threshold.
func (q *Qualifier) Threshold() float64 { return q.threshold }

// Strategy returns the scoring strategy.
func (q *Qualifier) Strategy() Strategy { return q.strategy }
