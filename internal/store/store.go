// Package store persists leads in two disjoint stores: Active for qualified
// leads and Discarded for the rest.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-cli/internal/model"
)

var (
	// ErrDuplicate is returned when an identity key already exists in either
	// store. It is not fatal to a batch.
	ErrDuplicate = eris.New("store: duplicate identity key")

	// ErrNotFound is returned when an identity key is in neither store.
	ErrNotFound = eris.New("store: lead not found")

	// ErrUnavailable marks connection failures and timeouts. A batch aborts
	// when it sees one.
	ErrUnavailable = eris.New("store: unavailable")
)

// Bucket names one of the two lead stores.
type Bucket string

const (
	Active    Bucket = "active"
	Discarded Bucket = "discarded"
)

// Table returns the backing table name.
func (b Bucket) Table() string {
	if b == Active {
		return "active_leads"
	}
	return "discarded_leads"
}

// Other returns the opposite bucket.
func (b Bucket) Other() Bucket {
	if b == Active {
		return Discarded
	}
	return Active
}

// BucketFor returns the bucket a lead with status belongs in.
func BucketFor(status model.Status) Bucket {
	if status == model.StatusDiscarded || status == model.StatusNew {
		return Discarded
	}
	return Active
}

// Scope selects which stores a range query covers.
type Scope string

const (
	ScopeActive Scope = "active"
	ScopeAll    Scope = "all"
)

// ParseScope converts a user-supplied scope. Empty means active.
func ParseScope(s string) (Scope, error) {
	switch s {
	case "", string(ScopeActive):
		return ScopeActive, nil
	case string(ScopeAll):
		return ScopeAll, nil
	default:
		return "", eris.Errorf("store: unknown scope %q", s)
	}
}

// ScoreRange is an inclusive fit score range. Nil bounds are open.
type ScoreRange struct {
	Min   *float64
	Max   *float64
	Scope Scope
	Limit int
}

// Stats is a point-in-time snapshot of the stores.
type Stats struct {
	Active    int
	Discarded int
	ByStatus  map[model.Status]int
}

// Store is the persistence interface for leads. Implementations keep each
// identity key in at most one bucket.
type Store interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error

	// Insert adds a new lead to bucket. It returns ErrDuplicate when the key
	// exists in either bucket; nothing is overwritten.
	Insert(ctx context.Context, bucket Bucket, lead model.Lead) error

	// Get locates a lead in either bucket.
	Get(ctx context.Context, key string) (model.Lead, Bucket, error)

	// Exists reports whether key is in either bucket.
	Exists(ctx context.Context, key string) (bool, error)

	// Update rewrites the scoring fields of a lead in place. Message fields
	// are left alone, and a lead that already carries an outreach status
	// keeps it when the new status is qualified.
	Update(ctx context.Context, bucket Bucket, lead model.Lead) error

	// Move deletes the lead from bucket and inserts it into the other one
	// in a single transaction.
	Move(ctx context.Context, from Bucket, lead model.Lead) error

	// QueryByScore returns scored leads within r. Order is not guaranteed.
	QueryByScore(ctx context.Context, r ScoreRange) ([]model.Lead, error)

	// ListByStatus returns up to limit leads from bucket with status.
	// limit <= 0 means no limit.
	ListByStatus(ctx context.Context, bucket Bucket, status model.Status, limit int) ([]model.Lead, error)

	// SetMessage records an outreach outcome on an Active lead.
	SetMessage(ctx context.Context, key, message string, status model.Status, at time.Time) error

	Stats(ctx context.Context) (Stats, error)
}
