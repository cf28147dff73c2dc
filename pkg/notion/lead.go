package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Property names of the leads database. Key is a rich text copy of the lead
// URL; the API's query filters cannot match url properties, so lookups go
// through it.
const (
	PropName      = "Name"
	PropPlatform  = "Platform"
	PropURL       = "URL"
	PropKey       = "Key"
	PropScore     = "Score"
	PropRationale = "Rationale"
)

// richTextLimit is Notion's per-block text limit.
const richTextLimit = 2000

// LeadPage is one lead row in the leads database.
type LeadPage struct {
	Name      string
	Platform  string
	URL       string
	Score     float64
	Rationale string
}

// Properties renders p as page properties.
func (p LeadPage) Properties() notionapi.Properties {
	return notionapi.Properties{
		PropName: notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: richText(p.Name),
		},
		PropPlatform: notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: p.Platform},
		},
		PropURL: notionapi.URLProperty{
			Type: notionapi.PropertyTypeURL,
			URL:  p.URL,
		},
		PropKey: notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(p.URL),
		},
		PropScore: notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: p.Score,
		},
		PropRationale: notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(p.Rationale),
		},
	}
}

// HasLead reports whether the database already holds a page for url.
func HasLead(ctx context.Context, c Client, dbID, url string) (bool, error) {
	resp, err := c.QueryDatabase(ctx, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: PropKey,
			RichText: &notionapi.TextFilterCondition{Equals: url},
		},
		PageSize: 1,
	})
	if err != nil {
		return false, eris.Wrapf(err, "notion: lookup lead %s", url)
	}
	return len(resp.Results) > 0, nil
}

// AppendLead creates a page for p unless one with the same URL exists. It
// reports whether a page was created.
func AppendLead(ctx context.Context, c Client, dbID string, p LeadPage) (bool, error) {
	exists, err := HasLead(ctx, c, dbID, p.URL)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	_, err = c.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: p.Properties(),
	})
	if err != nil {
		return false, eris.Wrapf(err, "notion: append lead %s", p.URL)
	}
	return true, nil
}

func richText(s string) []notionapi.RichText {
	if r := []rune(s); len(r) > richTextLimit {
		s = string(r[:richTextLimit])
	}
	return []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}}}
}
