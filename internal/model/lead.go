package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Platform identifies the source network a lead was harvested from.
type Platform string

const (
	PlatformLinkedIn  Platform = "linkedin"
	PlatformReddit    Platform = "reddit"
	PlatformTwitter   Platform = "twitter"
	PlatformInstagram Platform = "instagram"
)

// Platforms lists every supported platform in a stable order.
var Platforms = []Platform{PlatformLinkedIn, PlatformReddit, PlatformTwitter, PlatformInstagram}

// ParsePlatform converts a user-supplied platform name. "x" is accepted as
// an alias for twitter.
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "linkedin":
		return PlatformLinkedIn, nil
	case "reddit":
		return PlatformReddit, nil
	case "twitter", "x":
		return PlatformTwitter, nil
	case "instagram":
		return PlatformInstagram, nil
	default:
		return "", eris.Errorf("model: unknown platform %q", s)
	}
}

// Community reports whether the platform is a community/post source rather
// than a professional profile source.
func (p Platform) Community() bool {
	return p == PlatformReddit || p == PlatformInstagram
}

// Status is the lifecycle state of a lead.
type Status string

const (
	StatusNew              Status = "new"
	StatusQualified        Status = "qualified"
	StatusDiscarded        Status = "discarded"
	StatusMessageGenerated Status = "message_generated"
	StatusMessageFailed    Status = "message_failed"
)

// UnknownName is the display name used when a source record carries no name.
const UnknownName = "Unknown"

// Well-known structured field keys.
const (
	FieldLocation        = "location"
	FieldJobTitle        = "job_title"
	FieldHeadline        = "headline"
	FieldIndustry        = "industry"
	FieldInterests       = "interests"
	FieldSubreddit       = "subreddit"
	FieldMatchedKeywords = "matched_keywords"
	FieldPostTitle       = "post_title"
	FieldPostContent     = "post_content"
	FieldUsername        = "username"
	FieldURL             = "url"
)

// Lead is the canonical record every source is normalized into.
type Lead struct {
	IdentityKey        string            `json:"identity_key"`
	Platform           Platform          `json:"platform"`
	DisplayName        string            `json:"display_name"`
	PrimaryText        string            `json:"primary_text"`
	Fields             map[string]string `json:"structured_fields,omitempty"`
	FitScore           *float64          `json:"fit_score,omitempty"`
	Status             Status            `json:"status"`
	Rationale          string            `json:"rationale,omitempty"`
	Message            string            `json:"message,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	ScoredAt           *time.Time        `json:"scored_at,omitempty"`
	MessageGeneratedAt *time.Time        `json:"message_generated_at,omitempty"`
}

// Field returns a structured field value or "" when absent.
func (l *Lead) Field(key string) string {
	if l.Fields == nil {
		return ""
	}
	return l.Fields[key]
}

// URL returns the source URL of the lead if one was recorded, falling back
// to the identity key.
func (l *Lead) URL() string {
	if u := l.Field(FieldURL); u != "" {
		return u
	}
	return l.IdentityKey
}

// Score returns the fit score, or 0 when the lead is unscored.
func (l *Lead) Score() float64 {
	if l.FitScore == nil {
		return 0
	}
	return *l.FitScore
}

// Scored reports whether a fit score has been assigned.
func (l *Lead) Scored() bool {
	return l.FitScore != nil
}

// ApplyScore records a scoring outcome. scored_at keeps its first value so a
// rescore never rewrites when the lead was first scored.
func (l *Lead) ApplyScore(score float64, rationale string, status Status, at time.Time) {
	l.FitScore = &score
	l.Rationale = rationale
	l.Status = status
	if l.ScoredAt == nil {
		t := at
		l.ScoredAt = &t
	}
}

// Clone returns a deep copy so pipeline stages never share mutable state.
func (l Lead) Clone() Lead {
	out := l
	if l.Fields != nil {
		out.Fields = make(map[string]string, len(l.Fields))
		for k, v := range l.Fields {
			out.Fields[k] = v
		}
	}
	if l.FitScore != nil {
		s := *l.FitScore
		out.FitScore = &s
	}
	if l.ScoredAt != nil {
		t := *l.ScoredAt
		out.ScoredAt = &t
	}
	if l.MessageGeneratedAt != nil {
		t := *l.MessageGeneratedAt
		out.MessageGeneratedAt = &t
	}
	return out
}
