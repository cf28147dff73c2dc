package scorer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-cli/internal/llm"
	"github.com/sells-group/lead-cli/internal/model"
)

type stubBackend struct {
	answer string
	err    error
	last   llm.Request
}

func (s *stubBackend) Name() string { return "stub" }

func (s *stubBackend) Complete(_ context.Context, req llm.Request) (string, error) {
	s.last = req
	return s.answer, s.err
}

func newHeuristic(t *testing.T) *Heuristic {
	t.Helper()
	h, err := NewHeuristic(DefaultHeuristicConfig())
	require.NoError(t, err)
	return h
}

func TestHeuristic_Score(t *testing.T) {
	h := newHeuristic(t)

	lead := model.Lead{
		Platform: model.PlatformLinkedIn,
		Fields: map[string]string{
			model.FieldHeadline: "CEO & Founder | Leadership Development",
			model.FieldLocation: "London, United Kingdom",
		},
	}
	res := h.Score(context.Background(), lead)

	// ceo 20 + founder 15 + leader 5 + development 10 + leadership 10 + london 15.
	assert.Equal(t, 75.0, res.Score)
	assert.Equal(t,
		"Found role keyword: ceo (+20); Found role keyword: founder (+15); Found role keyword: leader (+5); "+
			"Found interest keyword: development (+10); Found interest keyword: leadership (+10); "+
			"Found target location: london (+15)",
		res.Rationale)
}

func TestHeuristic_LocationCountsOnce(t *testing.T) {
	h := newHeuristic(t)
	res := h.Score(context.Background(), model.Lead{
		Fields: map[string]string{model.FieldLocation: "Leeds, England, UK"},
	})
	assert.Equal(t, 15.0, res.Score)
}

func TestHeuristic_WordPrefixMatching(t *testing.T) {
	h := newHeuristic(t)

	res := h.Score(context.Background(), model.Lead{PrimaryText: "three threads"})
	assert.Equal(t, 0.0, res.Score, "hr must not match inside a word")
	assert.Equal(t, "No scoring keywords found", res.Rationale)

	res = h.Score(context.Background(), model.Lead{PrimaryText: "going through a transformation"})
	assert.Equal(t, 10.0, res.Score)
}

func TestHeuristic_ClampsToRange(t *testing.T) {
	h := newHeuristic(t)
	text := "ceo chief executive founder president director vp vice president executive " +
		"manager head leader officer hr human resources professional development growth " +
		"transition leadership change transform burnout balance career london"
	res := h.Score(context.Background(), model.Lead{PrimaryText: text})
	assert.Equal(t, 100.0, res.Score)

	for _, s := range []string{"", "nothing relevant", strings.Repeat("ceo ", 100)} {
		got := h.Score(context.Background(), model.Lead{PrimaryText: s}).Score
		assert.True(t, heuristicRange.Contains(got), "score %v out of range", got)
	}
}

func TestHeuristic_Deterministic(t *testing.T) {
	h := newHeuristic(t)
	lead := model.Lead{PrimaryText: "Director of HR, career change, Bristol"}
	first := h.Score(context.Background(), lead)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, h.Score(context.Background(), lead))
	}
}

func TestAI_Score(t *testing.T) {
	tests := []struct {
		name      string
		answer    string
		err       error
		score     float64
		rationale string
	}{
		{"plain", `{"score": 7, "rationale": "Feels stuck"}`, nil, 7, "Feels stuck"},
		{"fenced", "```json\n{\"score\": 8.5, \"rationale\": \"ok\"}\n```", nil, 8.5, "ok"},
		{"prose", `Sure! Here it is: {"score": 3, "rationale": "meh"} Hope that helps.`, nil, 3, "meh"},
		{"clamp high", `{"score": 42, "rationale": "r"}`, nil, 10, "r"},
		{"clamp low", `{"score": -3, "rationale": "r"}`, nil, 1, "r"},
		{"numeric string", `{"score": "6", "rationale": "r"}`, nil, 6, "r"},
		{"no rationale", `{"score": 5}`, nil, 5, "No rationale provided"},
		{"not json", "I think about a seven", nil, SentinelScore, "Error: Failed to parse AI response"},
		{"broken json", `{"score": 7, "rationale": }`, nil, SentinelScore, "Error: Failed to parse AI response"},
		{"missing score", `{"rationale": "r"}`, nil, SentinelScore, "Error: Missing score in AI response"},
		{"non-numeric score", `{"score": "high", "rationale": "r"}`, nil, SentinelScore, "Error: Invalid score value"},
		{"null score", `{"score": null}`, nil, SentinelScore, "Error: Invalid score value"},
		{"backend error", "", errors.New("timeout"), SentinelScore, "Error: timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAI(&stubBackend{answer: tt.answer, err: tt.err}, AIConfig{})
			res := a.Score(context.Background(), model.Lead{IdentityKey: "k"})
			assert.Equal(t, tt.score, res.Score)
			assert.Equal(t, tt.rationale, res.Rationale)
			if res.Score != SentinelScore {
				assert.True(t, aiRange.Contains(res.Score))
			}
		})
	}
}

func TestAI_Request(t *testing.T) {
	backend := &stubBackend{answer: `{"score": 5, "rationale": "r"}`}
	a := NewAI(backend, AIConfig{})

	a.Score(context.Background(), model.Lead{
		Platform:    model.PlatformReddit,
		DisplayName: "u1",
		PrimaryText: "Feeling stuck",
		Fields:      map[string]string{model.FieldSubreddit: "careerguidance"},
	})

	assert.Equal(t, "score", backend.last.Operation)
	assert.Equal(t, aiSystem, backend.last.System)
	assert.Equal(t, 150, backend.last.MaxTokens)
	assert.Equal(t, 0.3, backend.last.Temperature)
	assert.Contains(t, backend.last.Prompt, "Platform: reddit")
	assert.Contains(t, backend.last.Prompt, "Subreddit: careerguidance")
	assert.Contains(t, backend.last.Prompt, "Text: Feeling stuck")
}

func TestNewQualifier_RejectsThresholdOutsideRange(t *testing.T) {
	h := newHeuristic(t)
	ai := NewAI(&stubBackend{}, AIConfig{})

	_, err := NewQualifier(h, 30)
	require.NoError(t, err)
	_, err = NewQualifier(h, 101)
	require.Error(t, err)

	_, err = NewQualifier(ai, 4)
	require.NoError(t, err)
	_, err = NewQualifier(ai, 30)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside ai range")
	_, err = NewQualifier(ai, 0)
	require.Error(t, err)

	_, err = NewQualifier(nil, 1)
	require.Error(t, err)
}

func TestQualifier_StatusConsistentWithThreshold(t *testing.T) {
	q, err := NewQualifier(newHeuristic(t), 30)
	require.NoError(t, err)

	for _, score := range []float64{0, 15, 29.9, 30, 30.1, 70, 100} {
		want := model.StatusDiscarded
		if score >= 30 {
			want = model.StatusQualified
		}
		assert.Equal(t, want, q.Status(score), "score %v", score)
	}

	out := q.Evaluate(context.Background(), model.Lead{PrimaryText: "CEO in London"})
	assert.Equal(t, 35.0, out.Score)
	assert.Equal(t, model.StatusQualified, out.Status)
}

func TestQualifier_AISentinelNeverQualifies(t *testing.T) {
	q, err := NewQualifier(NewAI(&stubBackend{err: errors.New("down")}, AIConfig{}), 1)
	require.NoError(t, err)

	out := q.Evaluate(context.Background(), model.Lead{})
	assert.Equal(t, float64(SentinelScore), out.Score)
	assert.Equal(t, model.StatusDiscarded, out.Status)
}

func TestLoadHeuristicConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weights.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
role_weights:
  owner: 12
locations: [dublin]
`), 0o644))

	cfg, err := LoadHeuristicConfig(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"owner": 12}, cfg.RoleWeights)
	assert.Equal(t, []string{"dublin"}, cfg.Locations)
	assert.Equal(t, 10.0, cfg.InterestWeight, "unset sections keep defaults")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("role_weights:\n  ceo: -5\n"), 0o644))
	_, err = LoadHeuristicConfig(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "role_weights[ceo] must be >= 0")

	_, err = LoadHeuristicConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestValidateConfig_Empty(t *testing.T) {
	err := ValidateConfig(HeuristicConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one of")
}
