// Package filter rejects leads that are competitors or promotional content.
//
// Checks run in two stages. The keyword stage matches the lead against an
// exclusion vocabulary; the optional AI stage asks a backend for a yes/no
// verdict and runs only when the keyword stage found nothing. The AI stage
// fails open: a backend error lets the lead through.
package filter

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	ahocorasick "github.com/cloudflare/ahocorasick"
	"go.uber.org/zap"

	"github.com/sells-group/lead-cli/internal/llm"
	"github.com/sells-group/lead-cli/internal/model"
	"github.com/sells-group/lead-cli/internal/monitoring"
)

const (
	stageKeyword = "keyword"
	stageAI      = "ai"

	defaultExcerptChars = 500
)

// KeywordStage matches text against an exclusion vocabulary with an
// Aho-Corasick automaton.
type KeywordStage struct {
	mu      sync.Mutex
	terms   []string
	matcher *ahocorasick.Matcher
}

// NewKeywordStage builds the automaton for v.
func NewKeywordStage(v Vocabulary) *KeywordStage {
	terms := v.normalized()
	s := &KeywordStage{terms: terms}
	if len(terms) > 0 {
		s.matcher = ahocorasick.NewStringMatcher(terms)
	}
	return s
}

// Match returns the first vocabulary term (in vocabulary order) found in any
// of texts, case-insensitively.
func (s *KeywordStage) Match(texts ...string) (string, bool) {
	if s.matcher == nil {
		return "", false
	}
	var b strings.Builder
	for _, t := range texts {
		b.WriteString(strings.ToLower(t))
		b.WriteByte('\n')
	}

	// The matcher keeps per-call state and is not safe for concurrent use.
	s.mu.Lock()
	hits := s.matcher.Match([]byte(b.String()))
	s.mu.Unlock()

	if len(hits) == 0 {
		return "", false
	}
	best := hits[0]
	for _, h := range hits[1:] {
		if h < best {
			best = h
		}
	}
	return s.terms[best], true
}

const aiSystem = "You screen social media leads for a life coaching business. " +
	"Answer only yes or no."

const aiPrompt = `Is the following person a coach, mentor, consultant or trainer, or is the text promotional content selling such services?

Name: %s
Text: %s

Answer yes or no.`

var yesWord = regexp.MustCompile(`(?i)\byes\b`)

// AIStage asks a backend whether a lead is a competitor.
type AIStage struct {
	backend      llm.Backend
	excerptChars int
}

// NewAIStage creates an AI stage. excerptChars bounds how much primary text
// is sent; values <= 0 use the default of 500.
func NewAIStage(backend llm.Backend, excerptChars int) *AIStage {
	if excerptChars <= 0 {
		excerptChars = defaultExcerptChars
	}
	return &AIStage{backend: backend, excerptChars: excerptChars}
}

// Classify returns the backend's verdict and answer.
func (s *AIStage) Classify(ctx context.Context, lead model.Lead) (bool, string, error) {
	answer, err := s.backend.Complete(ctx, llm.Request{
		Operation:   "classify",
		System:      aiSystem,
		Prompt:      fmt.Sprintf(aiPrompt, lead.DisplayName, excerpt(lead.PrimaryText, s.excerptChars)),
		MaxTokens:   5,
		Temperature: 0,
	})
	if err != nil {
		return false, "", err
	}
	return yesWord.MatchString(answer), strings.TrimSpace(answer), nil
}

// Filter runs the keyword stage and, when configured, the AI stage.
type Filter struct {
	keywords *KeywordStage
	ai       *AIStage
	log      *zap.Logger
}

// New creates a Filter. ai may be nil to disable the AI stage.
func New(keywords *KeywordStage, ai *AIStage) *Filter {
	return &Filter{
		keywords: keywords,
		ai:       ai,
		log:      zap.L().With(zap.String("component", "filter")),
	}
}

// Check reports whether lead is a competitor and why. It never returns an
// error; AI stage failures are recorded in the rationale and the lead is
// let through.
func (f *Filter) Check(ctx context.Context, lead model.Lead) (bool, string) {
	if term, ok := f.keywords.Match(lead.PrimaryText, lead.DisplayName); ok {
		monitoring.FilterDecisions.WithLabelValues(stageKeyword, "reject").Inc()
		return true, "keyword: " + term
	}
	monitoring.FilterDecisions.WithLabelValues(stageKeyword, "pass").Inc()

	if f.ai == nil {
		return false, ""
	}

	competitor, answer, err := f.ai.Classify(ctx, lead)
	if err != nil {
		monitoring.FilterDecisions.WithLabelValues(stageAI, "error").Inc()
		f.log.Warn("ai filter failed, letting lead through",
			zap.String("identity_key", lead.IdentityKey),
			zap.Error(err),
		)
		return false, "AI filtering error: " + err.Error()
	}
	if competitor {
		monitoring.FilterDecisions.WithLabelValues(stageAI, "reject").Inc()
		return true, "ai: " + answer
	}
	monitoring.FilterDecisions.WithLabelValues(stageAI, "pass").Inc()
	return false, ""
}

// excerpt returns at most n runes of s.
func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
