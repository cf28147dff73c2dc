// Package export mirrors newly qualified leads into outreach sheets and the
// CRM.
package export

import (
	"context"
	"errors"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-cli/internal/model"
)

// Header is the column order of every export target.
var Header = []string{"Name", "Platform", "URL", "Score", "Rationale"}

// Row is one exported lead.
type Row struct {
	Name      string
	Platform  string
	URL       string
	Score     float64
	Rationale string
}

// RowFor builds the export row for lead.
func RowFor(lead model.Lead) Row {
	return Row{
		Name:      lead.DisplayName,
		Platform:  string(lead.Platform),
		URL:       lead.URL(),
		Score:     lead.Score(),
		Rationale: lead.Rationale,
	}
}

// Strings renders r in Header order.
func (r Row) Strings() []string {
	return []string{r.Name, r.Platform, r.URL, strconv.FormatFloat(r.Score, 'f', -1, 64), r.Rationale}
}

// Target receives exported rows.
type Target interface {
	Name() string
	Append(ctx context.Context, row Row) error
}

// Exporter fans a lead out to every target. Each target is attempted even
// when an earlier one fails; failures are joined.
type Exporter struct {
	targets []Target
}

// New creates an Exporter.
func New(targets ...Target) *Exporter {
	return &Exporter{targets: targets}
}

// Len returns the number of configured targets.
func (e *Exporter) Len() int { return len(e.targets) }

// Export appends lead to every target.
func (e *Exporter) Export(ctx context.Context, lead model.Lead) error {
	row := RowFor(lead)
	var errs []error
	for _, t := range e.targets {
		if err := t.Append(ctx, row); err != nil {
			errs = append(errs, eris.Wrapf(err, "export: %s", t.Name()))
			continue
		}
		zap.L().Debug("export: row appended", zap.String("target", t.Name()), zap.String("url", row.URL))
	}
	return errors.Join(errs...)
}
