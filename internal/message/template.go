package message

import (
	"fmt"
	"strings"

	"github.com/sells-group/lead-cli/internal/model"
)

// Template kinds.
const (
	KindProfessional = "professional"
	KindCommunity    = "community"
)

// Template is a system message plus a prompt body rendered from a lead.
type Template struct {
	Kind   string
	System string
	body   string
}

var professional = Template{
	Kind:   KindProfessional,
	System: "You are an expert outreach specialist for a professional life coaching business.",
	body: `You are a professional sales representative. Generate a personalized message
to reach out to a lead based on the following details:

Name: %s
Industry: %s
Position/Title: %s
Location: %s
Interests: %s
Profile URL: %s

The message should be for someone who might benefit from professional life coaching services.
Focus on how coaching can help with career development, work-life balance, leadership skills,
or personal growth depending on their position and industry.

Keep the message professional, concise, engaging, and authentic. Aim for 150-200 words maximum.
Do not use generic phrases like "I noticed your profile" or "I came across your profile".`,
}

var community = Template{
	Kind:   KindCommunity,
	System: "You are a warm, supportive life coach replying to someone who shared a personal struggle online.",
	body: `Write a short, empathetic private message to %s, who posted the following in %s:

%s

Acknowledge what they are going through in your own words. Offer one gentle, practical thought
and an open, no-pressure invitation to talk if they would find it useful.

Do not sell, do not mention prices, and do not quote their post back to them.
Keep it under 120 words and sound like a person, not a brand.`,
}

// TemplateFor returns the professional template for profile networks and the
// empathetic community template for post-based ones.
func TemplateFor(p model.Platform) Template {
	if p.Community() {
		return community
	}
	return professional
}

// Render fills the template from lead.
func (t Template) Render(lead model.Lead) string {
	if t.Kind == KindCommunity {
		where := string(lead.Platform)
		if sub := lead.Field(model.FieldSubreddit); sub != "" {
			where = "r/" + strings.TrimPrefix(sub, "r/")
		}
		return fmt.Sprintf(t.body, lead.DisplayName, where, orUnknown(lead.PrimaryText))
	}

	title := lead.Field(model.FieldHeadline)
	if title == "" {
		title = lead.Field(model.FieldJobTitle)
	}
	return fmt.Sprintf(t.body,
		lead.DisplayName,
		orUnknown(lead.Field(model.FieldIndustry)),
		orUnknown(title),
		orUnknown(lead.Field(model.FieldLocation)),
		orUnknown(lead.Field(model.FieldInterests)),
		lead.URL(),
	)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return model.UnknownName
	}
	return s
}
