package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-cli/internal/model"
)

// leadColumns is the column order used by every SELECT and INSERT.
var leadColumns = []string{
	"identity_key",
	"platform",
	"display_name",
	"primary_text",
	"fields",
	"fit_score",
	"status",
	"rationale",
	"message",
	"created_at",
	"scored_at",
	"message_generated_at",
}

// statsQuery counts leads per bucket and status. It is portable across both
// backends.
const statsQuery = `
SELECT 'active', status, COUNT(*) FROM active_leads GROUP BY status
UNION ALL
SELECT 'discarded', status, COUNT(*) FROM discarded_leads GROUP BY status`

// keepOutreachStatus is the status expression for Update. Arguments 2 and 3
// are placeholders for the new status.
const keepOutreachStatus = `CASE
	WHEN status IN ('message_generated', 'message_failed') AND %[2]s = 'qualified' THEN status
	ELSE %[3]s END`

// Option configures a store.
type Option func(*options)

type options struct {
	timeout time.Duration
}

// WithTimeout bounds every store operation.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func newOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func (o options) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

// scoreQuery builds the range query for r. Scope all is a UNION ALL over
// both tables.
func scoreQuery(r ScoreRange, ph sq.PlaceholderFormat) (string, []any, error) {
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return "", nil, eris.Errorf("store: min %g greater than max %g", *r.Min, *r.Max)
	}

	buckets := []Bucket{Active}
	if r.Scope == ScopeAll {
		buckets = append(buckets, Discarded)
	}

	var (
		parts []string
		args  []any
	)
	for _, b := range buckets {
		q := sq.Select(leadColumns...).From(b.Table()).Where(sq.NotEq{"fit_score": nil})
		if r.Min != nil {
			q = q.Where(sq.GtOrEq{"fit_score": *r.Min})
		}
		if r.Max != nil {
			q = q.Where(sq.LtOrEq{"fit_score": *r.Max})
		}
		part, partArgs, err := q.ToSql()
		if err != nil {
			return "", nil, eris.Wrap(err, "store: build score query")
		}
		parts = append(parts, part)
		args = append(args, partArgs...)
	}

	query := strings.Join(parts, " UNION ALL ")
	if r.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", r.Limit)
	}
	query, err := ph.ReplacePlaceholders(query)
	if err != nil {
		return "", nil, eris.Wrap(err, "store: placeholders")
	}
	return query, args, nil
}

func statusQuery(bucket Bucket, status model.Status, limit int, ph sq.PlaceholderFormat) (string, []any, error) {
	q := sq.Select(leadColumns...).
		From(bucket.Table()).
		Where(sq.Eq{"status": string(status)}).
		OrderBy("created_at").
		PlaceholderFormat(ph)
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return "", nil, eris.Wrap(err, "store: build status query")
	}
	return query, args, nil
}

type scannable interface {
	Scan(dest ...any) error
}

// scanLead reads one row in leadColumns order. prefix receives any leading
// columns selected before the lead columns.
func scanLead(row scannable, prefix ...any) (model.Lead, error) {
	var (
		l         model.Lead
		fields    []byte
		score     sql.NullFloat64
		created   nullTime
		scored    nullTime
		generated nullTime
	)
	dest := append(prefix, //nolint:gocritic
		&l.IdentityKey, &l.Platform, &l.DisplayName, &l.PrimaryText, &fields,
		&score, &l.Status, &l.Rationale, &l.Message,
		&created, &scored, &generated,
	)
	if err := row.Scan(dest...); err != nil {
		return model.Lead{}, err
	}

	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &l.Fields); err != nil {
			return model.Lead{}, eris.Wrapf(err, "store: unmarshal fields for %s", l.IdentityKey)
		}
	}
	if score.Valid {
		v := score.Float64
		l.FitScore = &v
	}
	l.CreatedAt = created.Time
	l.ScoredAt = scored.ptr()
	l.MessageGeneratedAt = generated.ptr()
	return l, nil
}

func marshalFields(fields map[string]string) ([]byte, error) {
	if fields == nil {
		fields = map[string]string{}
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal fields")
	}
	return b, nil
}

// nullTime scans timestamps from either backend. SQLite may hand back text
// depending on the column's declared type.
type nullTime struct {
	Time  time.Time
	Valid bool
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (n *nullTime) Scan(v any) error {
	switch t := v.(type) {
	case nil:
		n.Time, n.Valid = time.Time{}, false
		return nil
	case time.Time:
		n.Time, n.Valid = t.UTC(), true
		return nil
	case []byte:
		return n.parse(string(t))
	case string:
		return n.parse(t)
	default:
		return eris.Errorf("store: cannot scan %T into time", v)
	}
}

func (n *nullTime) parse(s string) error {
	if s == "" {
		n.Time, n.Valid = time.Time{}, false
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			n.Time, n.Valid = t.UTC(), true
			return nil
		}
	}
	return eris.Errorf("store: unrecognized time %q", s)
}

func (n nullTime) ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func scoreArg(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func collectStats(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) (Stats, error) {
	st := Stats{ByStatus: make(map[model.Status]int)}
	for rows.Next() {
		var (
			bucket string
			status string
			count  int
		)
		if err := rows.Scan(&bucket, &status, &count); err != nil {
			return Stats{}, err
		}
		if Bucket(bucket) == Active {
			st.Active += count
		} else {
			st.Discarded += count
		}
		st.ByStatus[model.Status(status)] += count
	}
	return st, rows.Err()
}
