package scorer

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sells-group/lead-cli/internal/model"
)

var heuristicRange = Range{Min: 0, Max: 100}

type weightedTerm struct {
	term   string
	weight float64
	re     *regexp.Regexp
}

// Heuristic scores leads from role, interest and location keywords.
type Heuristic struct {
	roles          []weightedTerm
	interests      []weightedTerm
	locations      []weightedTerm
	locationWeight float64
}

// NewHeuristic compiles cfg into a Heuristic strategy.
func NewHeuristic(cfg HeuristicConfig) (*Heuristic, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	h := &Heuristic{locationWeight: cfg.LocationWeight}
	for term, w := range cfg.RoleWeights {
		h.roles = append(h.roles, compileTerm(term, w))
	}
	// Heavier terms first, then alphabetical, so rationale text is stable.
	sort.Slice(h.roles, func(i, j int) bool {
		if h.roles[i].weight != h.roles[j].weight {
			return h.roles[i].weight > h.roles[j].weight
		}
		return h.roles[i].term < h.roles[j].term
	})
	for _, term := range cfg.InterestKeywords {
		h.interests = append(h.interests, compileTerm(term, cfg.InterestWeight))
	}
	for _, term := range cfg.Locations {
		h.locations = append(h.locations, compileTerm(term, cfg.LocationWeight))
	}
	return h, nil
}

// compileTerm matches term at the start of a word, so "transform" matches
// "transformation" but "hr" does not match "three".
func compileTerm(term string, weight float64) weightedTerm {
	term = strings.ToLower(strings.TrimSpace(term))
	return weightedTerm{
		term:   term,
		weight: weight,
		re:     regexp.MustCompile(`\b` + regexp.QuoteMeta(term)),
	}
}

// Name implements Strategy.
func (h *Heuristic) Name() string { return StrategyHeuristic }

// Range implements Strategy.
func (h *Heuristic) Range() Range { return heuristicRange }

// Score implements Strategy. Role and interest keywords are matched against
// the headline, job title and primary text; locations against the location
// field, falling back to the same text.
func (h *Heuristic) Score(_ context.Context, lead model.Lead) Result {
	text := strings.ToLower(strings.Join([]string{
		lead.Field(model.FieldHeadline),
		lead.Field(model.FieldJobTitle),
		lead.PrimaryText,
	}, " "))
	location := strings.ToLower(lead.Field(model.FieldLocation))
	if location == "" {
		location = text
	}

	var (
		score float64
		notes []string
	)
	for _, t := range h.roles {
		if t.re.MatchString(text) {
			score += t.weight
			notes = append(notes, fmt.Sprintf("Found role keyword: %s (+%g)", t.term, t.weight))
		}
	}
	for _, t := range h.interests {
		if t.re.MatchString(text) {
			score += t.weight
			notes = append(notes, fmt.Sprintf("Found interest keyword: %s (+%g)", t.term, t.weight))
		}
	}
	for _, t := range h.locations {
		if t.re.MatchString(location) {
			score += t.weight
			notes = append(notes, fmt.Sprintf("Found target location: %s (+%g)", t.term, t.weight))
			break
		}
	}

	rationale := strings.Join(notes, "; ")
	if rationale == "" {
		rationale = "No scoring keywords found"
	}
	return Result{Score: heuristicRange.Clamp(score), Rationale: rationale}
}
