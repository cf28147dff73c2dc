package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlatform(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Platform
		wantErr bool
	}{
		{"linkedin", PlatformLinkedIn, false},
		{" Reddit ", PlatformReddit, false},
		{"X", PlatformTwitter, false},
		{"twitter", PlatformTwitter, false},
		{"instagram", PlatformInstagram, false},
		{"myspace", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParsePlatform(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlatformCommunity(t *testing.T) {
	t.Parallel()

	assert.True(t, PlatformReddit.Community())
	assert.True(t, PlatformInstagram.Community())
	assert.False(t, PlatformLinkedIn.Community())
	assert.False(t, PlatformTwitter.Community())
}

func TestLead_ApplyScoreKeepsFirstScoredAt(t *testing.T) {
	t.Parallel()

	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	var l Lead
	assert.False(t, l.Scored())

	l.ApplyScore(3, "low", StatusDiscarded, first)
	require.True(t, l.Scored())
	assert.Equal(t, 3.0, l.Score())
	assert.Equal(t, StatusDiscarded, l.Status)

	l.ApplyScore(7, "rescored", StatusQualified, second)
	assert.Equal(t, 7.0, l.Score())
	assert.Equal(t, "rescored", l.Rationale)
	assert.Equal(t, first, *l.ScoredAt)
}

func TestLead_CloneIsDeep(t *testing.T) {
	t.Parallel()

	score := 5.0
	orig := Lead{
		IdentityKey: "https://reddit.com/r/x/1",
		Fields:      map[string]string{FieldSubreddit: "careerguidance"},
		FitScore:    &score,
	}

	c := orig.Clone()
	c.Fields[FieldSubreddit] = "changed"
	*c.FitScore = 9

	assert.Equal(t, "careerguidance", orig.Fields[FieldSubreddit])
	assert.Equal(t, 5.0, *orig.FitScore)
}

func TestLead_URLFallsBackToIdentityKey(t *testing.T) {
	t.Parallel()

	l := Lead{IdentityKey: "twitter:jane"}
	assert.Equal(t, "twitter:jane", l.URL())

	l.Fields = map[string]string{FieldURL: "https://x.com/jane"}
	assert.Equal(t, "https://x.com/jane", l.URL())
}
