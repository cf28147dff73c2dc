package scorer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sells-group/lead-cli/internal/llm"
	"github.com/sells-group/lead-cli/internal/model"
)

var aiRange = Range{Min: 1, Max: 10}

// SentinelScore is assigned when the backend cannot produce a usable score.
// It lies below the AI range so a sentinel lead never qualifies.
const SentinelScore = 0

const aiSystem = "You are a lead scoring assistant that analyzes potential coaching clients."

const aiPrompt = `Analyze this potential lead for a personal development/career coaching course:

%s

Score this lead from 1-10 based on their likelihood to purchase a coaching course, where:
1-3: Very low interest - Not a good fit for coaching
4-6: Moderate interest - Some potential but not ideal
7-8: High interest - Strong potential for coaching services
9-10: Very high interest - Ideal candidate for coaching

Focus on these factors:
- Career frustration or dissatisfaction
- Desire for change or growth
- Feeling stuck or overwhelmed
- Receptiveness to guidance
- Not being a competitor (coach, mentor, consultant)

Respond with ONLY a JSON object containing:
{"score": <numeric score 1-10>, "rationale": "<brief explanation for the score>"}`

// promptFields are included in the prompt, in this order, when present.
var promptFields = []struct{ key, label string }{
	{model.FieldJobTitle, "Job Title"},
	{model.FieldHeadline, "Headline"},
	{model.FieldIndustry, "Industry"},
	{model.FieldLocation, "Location"},
	{model.FieldInterests, "Interests"},
	{model.FieldSubreddit, "Subreddit"},
	{model.FieldMatchedKeywords, "Matched Keywords"},
}

// AIConfig tunes the backend request.
type AIConfig struct {
	MaxTokens    int
	Temperature  float64
	ExcerptChars int
}

// DefaultAIConfig returns the default request parameters.
func DefaultAIConfig() AIConfig {
	return AIConfig{MaxTokens: 150, Temperature: 0.3, ExcerptChars: 2000}
}

// AI scores leads by asking a backend for a JSON verdict.
type AI struct {
	backend llm.Backend
	cfg     AIConfig
}

// NewAI creates an AI strategy. Zero fields in cfg take defaults.
func NewAI(backend llm.Backend, cfg AIConfig) *AI {
	def := DefaultAIConfig()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.ExcerptChars <= 0 {
		cfg.ExcerptChars = def.ExcerptChars
	}
	return &AI{backend: backend, cfg: cfg}
}

// Name implements Strategy.
func (a *AI) Name() string { return StrategyAI }

// Range implements Strategy.
func (a *AI) Range() Range { return aiRange }

// Score implements Strategy. It never fails: unusable responses yield
// SentinelScore with an "Error: ..." rationale.
func (a *AI) Score(ctx context.Context, lead model.Lead) Result {
	raw, err := a.backend.Complete(ctx, llm.Request{
		Operation:   "score",
		System:      aiSystem,
		Prompt:      fmt.Sprintf(aiPrompt, describe(lead, a.cfg.ExcerptChars)),
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
	})
	if err != nil {
		return sentinel(lead, "Error: "+err.Error(), "")
	}
	return a.parse(lead, raw)
}

func (a *AI) parse(lead model.Lead, raw string) Result {
	obj, ok := extractJSON(raw)
	if !ok {
		return sentinel(lead, "Error: Failed to parse AI response", raw)
	}

	field := gjson.Get(obj, "score")
	var score float64
	switch field.Type {
	case gjson.Number:
		score = field.Float()
	case gjson.String:
		v, err := strconv.ParseFloat(strings.TrimSpace(field.Str), 64)
		if err != nil {
			return sentinel(lead, "Error: Invalid score value", raw)
		}
		score = v
	case gjson.Null:
		if !field.Exists() {
			return sentinel(lead, "Error: Missing score in AI response", raw)
		}
		return sentinel(lead, "Error: Invalid score value", raw)
	default:
		return sentinel(lead, "Error: Invalid score value", raw)
	}

	rationale := strings.TrimSpace(gjson.Get(obj, "rationale").String())
	if rationale == "" {
		rationale = "No rationale provided"
	}
	return Result{Score: aiRange.Clamp(score), Rationale: rationale}
}

func sentinel(lead model.Lead, rationale, raw string) Result {
	fields := []zap.Field{
		zap.String("identity_key", lead.IdentityKey),
		zap.String("rationale", rationale),
	}
	if raw != "" {
		fields = append(fields, zap.String("raw", truncate(raw, 300)))
	}
	zap.L().Warn("scorer: ai score unavailable", fields...)
	return Result{Score: SentinelScore, Rationale: rationale}
}

// extractJSON locates the outermost JSON object in s, tolerating code
// fences and surrounding prose.
func extractJSON(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	obj := s[start : end+1]
	if !gjson.Valid(obj) {
		return "", false
	}
	return obj, true
}

func describe(lead model.Lead, excerptChars int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Platform: %s\n", lead.Platform)
	fmt.Fprintf(&b, "Name: %s\n", lead.DisplayName)
	for _, f := range promptFields {
		if v := lead.Field(f.key); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", f.label, v)
		}
	}
	fmt.Fprintf(&b, "Text: %s", truncate(lead.PrimaryText, excerptChars))
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
