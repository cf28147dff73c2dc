package export

import (
	"context"

	"github.com/sells-group/lead-cli/pkg/notion"
)

// NotionDatabase appends rows as pages of a Notion database whose schema has
// Name (title), Platform (select), URL (url), Key (rich text), Score (number)
// and Rationale (rich text) properties.
type NotionDatabase struct {
	client notion.Client
	dbID   string
}

// NewNotionDatabase creates a NotionDatabase.
func NewNotionDatabase(client notion.Client, dbID string) *NotionDatabase {
	return &NotionDatabase{client: client, dbID: dbID}
}

// Name implements Target.
func (n *NotionDatabase) Name() string { return "notion" }

// Append implements Target. A URL already present in the database is
// skipped.
func (n *NotionDatabase) Append(ctx context.Context, row Row) error {
	_, err := notion.AppendLead(ctx, n.client, n.dbID, notion.LeadPage{
		Name:      row.Name,
		Platform:  row.Platform,
		URL:       row.URL,
		Score:     row.Score,
		Rationale: row.Rationale,
	})
	return err
}
