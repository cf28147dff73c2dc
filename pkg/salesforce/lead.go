package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Lead is the subset of the Salesforce Lead sObject the exporter reads.
type Lead struct {
	ID          string `json:"Id" salesforce:"Id"`
	LastName    string `json:"LastName" salesforce:"LastName"`
	Company     string `json:"Company" salesforce:"Company"`
	Website     string `json:"Website" salesforce:"Website"`
	LeadSource  string `json:"LeadSource" salesforce:"LeadSource"`
	Status      string `json:"Status" salesforce:"Status"`
	Description string `json:"Description" salesforce:"Description"`
}

var leadFields = []string{"Id", "LastName", "Company", "Website", "LeadSource", "Status", "Description"}

// FindLeadByWebsite returns the Lead whose Website equals url, or nil.
func FindLeadByWebsite(ctx context.Context, c Client, url string) (*Lead, error) {
	soql := fmt.Sprintf(
		"SELECT %s FROM Lead WHERE Website = '%s' LIMIT 1",
		strings.Join(leadFields, ", "),
		escapeSoql(url),
	)

	var leads []Lead
	if err := c.Query(ctx, soql, &leads); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find lead by website %s", url))
	}
	if len(leads) == 0 {
		return nil, nil
	}
	return &leads[0], nil
}

// CreateLead inserts a Lead and returns its Salesforce ID. LastName and
// Company are required by Salesforce.
func CreateLead(ctx context.Context, c Client, fields map[string]any) (string, error) {
	for _, f := range []string{"LastName", "Company"} {
		if v, _ := fields[f].(string); v == "" {
			return "", eris.New(fmt.Sprintf("sf: lead %s is required", f))
		}
	}
	id, err := c.InsertOne(ctx, "Lead", fields)
	if err != nil {
		return "", eris.Wrap(err, "sf: create lead")
	}
	return id, nil
}

// UpdateLead updates a Lead record with the given fields.
func UpdateLead(ctx context.Context, c Client, id string, fields map[string]any) error {
	if id == "" {
		return eris.New("sf: lead id is required")
	}
	if err := c.UpdateOne(ctx, "Lead", id, fields); err != nil {
		return eris.Wrap(err, fmt.Sprintf("sf: update lead %s", id))
	}
	return nil
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
