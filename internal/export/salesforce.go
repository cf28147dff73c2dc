package export

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	sf "github.com/sells-group/lead-cli/pkg/salesforce"
)

// individualCompany fills Lead.Company, which Salesforce requires even for
// people with no employer on record.
const individualCompany = "[not provided]"

// SalesforceLeads upserts a Salesforce Lead per row, keyed by Website. An
// existing record only has its Description refreshed.
type SalesforceLeads struct {
	client sf.Client
	source string
}

// NewSalesforceLeads creates a SalesforceLeads target. leadSource populates
// LeadSource on created records and defaults to the row platform.
func NewSalesforceLeads(client sf.Client, leadSource string) *SalesforceLeads {
	return &SalesforceLeads{client: client, source: leadSource}
}

// Name implements Target.
func (s *SalesforceLeads) Name() string { return "salesforce" }

// Append implements Target.
func (s *SalesforceLeads) Append(ctx context.Context, row Row) error {
	existing, err := sf.FindLeadByWebsite(ctx, s.client, row.URL)
	if err != nil {
		return err
	}
	fields := s.fields(row)
	if existing != nil {
		return sf.UpdateLead(ctx, s.client, existing.ID, map[string]any{"Description": fields["Description"]})
	}

	_, err = sf.CreateLead(ctx, s.client, fields)
	return err
}

func (s *SalesforceLeads) fields(row Row) map[string]any {
	first, last := splitName(row.Name)
	source := s.source
	if source == "" {
		source = row.Platform
	}
	f := map[string]any{
		"LastName":    last,
		"Company":     individualCompany,
		"Website":     row.URL,
		"LeadSource":  source,
		"Description": truncate(fmt.Sprintf("Fit score %s. %s", strconv.FormatFloat(row.Score, 'f', -1, 64), row.Rationale), 32000),
	}
	if first != "" {
		f["FirstName"] = first
	}
	return f
}

// splitName splits a display name on its last space. An empty name yields
// the "Unknown" last name.
func splitName(name string) (first, last string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "Unknown"
	}
	i := strings.LastIndex(name, " ")
	if i < 0 {
		return "", name
	}
	return strings.TrimSpace(name[:i]), name[i+1:]
}

// truncate keeps s within a field's character limit.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
