package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-cli/internal/db"
	"github.com/sells-group/lead-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	opts    options
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig, opts ...Option) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, pgError(err, "ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, opts: newOptions(opts)}, nil
}

const postgresLeadTable = `
CREATE TABLE IF NOT EXISTS %[1]s (
	identity_key         TEXT PRIMARY KEY,
	platform             TEXT NOT NULL,
	display_name         TEXT NOT NULL DEFAULT 'Unknown',
	primary_text         TEXT NOT NULL DEFAULT '',
	fields               JSONB NOT NULL DEFAULT '{}'::jsonb,
	fit_score            DOUBLE PRECISION,
	status               TEXT NOT NULL DEFAULT 'new',
	rationale            TEXT NOT NULL DEFAULT '',
	message              TEXT NOT NULL DEFAULT '',
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	scored_at            TIMESTAMPTZ,
	message_generated_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_fit_score ON %[1]s(fit_score);
CREATE INDEX IF NOT EXISTS idx_%[1]s_status ON %[1]s(status);
`

func postgresMigration() string {
	return fmt.Sprintf(postgresLeadTable, Active.Table()) + fmt.Sprintf(postgresLeadTable, Discarded.Table())
}

const postgresExists = `SELECT EXISTS (SELECT 1 FROM active_leads WHERE identity_key = $1)
	OR EXISTS (SELECT 1 FROM discarded_leads WHERE identity_key = $1)`

const postgresInsert = `INSERT INTO %s (identity_key, platform, display_name, primary_text, fields, fit_score,
	status, rationale, message, created_at, scored_at, message_generated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := s.opts.bound(ctx)
	defer cancel()
	if err := s.pool.Ping(ctx); err != nil {
		return pgError(err, "ping")
	}
	return nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration())
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, bucket Bucket, lead model.Lead) error {
	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	args, err := insertArgs(lead)
	if err != nil {
		return err
	}

	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, postgresExists, lead.IdentityKey).Scan(&exists); err != nil {
			return pgError(err, "check duplicate")
		}
		if exists {
			return ErrDuplicate
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(postgresInsert, bucket.Table()), args...); err != nil {
			return pgError(err, "insert lead")
		}
		return nil
	})
	return pgError(err, "insert lead")
}

func (s *PostgresStore) Get(ctx context.Context, key string) (model.Lead, Bucket, error) {
	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	cols := strings.Join(leadColumns, ", ")
	query := fmt.Sprintf(
		`SELECT 'active', %[1]s FROM active_leads WHERE identity_key = $1
		 UNION ALL
		 SELECT 'discarded', %[1]s FROM discarded_leads WHERE identity_key = $1`, cols)

	var bucket string
	lead, err := scanLead(s.pool.QueryRow(ctx, query, key), &bucket)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Lead{}, "", eris.Wrapf(ErrNotFound, "postgres: get %s", key)
		}
		return model.Lead{}, "", pgError(err, "get lead")
	}
	return lead, Bucket(bucket), nil
}

func (s *PostgresStore) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	var exists bool
	if err := s.pool.QueryRow(ctx, postgresExists, key).Scan(&exists); err != nil {
		return false, pgError(err, "exists")
	}
	return exists, nil
}

func (s *PostgresStore) Update(ctx context.Context, bucket Bucket, lead model.Lead) error {
	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET fit_score = $1, rationale = $2, scored_at = $3,
			status = `+keepOutreachStatus+` WHERE identity_key = $5`, bucket.Table(), "$4", "$4"),
		scoreArg(lead.FitScore), lead.Rationale, timeArg(lead.ScoredAt),
		string(lead.Status), lead.IdentityKey,
	)
	if err != nil {
		return pgError(err, "update lead")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: update %s in %s", lead.IdentityKey, bucket)
	}
	return nil
}

func (s *PostgresStore) Move(ctx context.Context, from Bucket, lead model.Lead) error {
	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	args, err := insertArgs(lead)
	if err != nil {
		return err
	}

	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE identity_key = $1`, from.Table()), lead.IdentityKey)
		if err != nil {
			return pgError(err, "delete lead")
		}
		if tag.RowsAffected() == 0 {
			return eris.Wrapf(ErrNotFound, "postgres: move %s from %s", lead.IdentityKey, from)
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(postgresInsert, from.Other().Table()), args...); err != nil {
			return pgError(err, "insert moved lead")
		}
		return nil
	})
	return pgError(err, "move lead")
}

func (s *PostgresStore) QueryByScore(ctx context.Context, r ScoreRange) ([]model.Lead, error) {
	query, args, err := scoreQuery(r, sq.Dollar)
	if err != nil {
		return nil, err
	}
	return s.queryLeads(ctx, query, args, "query by score")
}

func (s *PostgresStore) ListByStatus(ctx context.Context, bucket Bucket, status model.Status, limit int) ([]model.Lead, error) {
	query, args, err := statusQuery(bucket, status, limit, sq.Dollar)
	if err != nil {
		return nil, err
	}
	return s.queryLeads(ctx, query, args, "list by status")
}

func (s *PostgresStore) SetMessage(ctx context.Context, key, message string, status model.Status, at time.Time) error {
	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	var generatedAt *time.Time
	if status == model.StatusMessageGenerated {
		generatedAt = &at
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE active_leads SET message = $1, status = $2,
			message_generated_at = COALESCE($3, message_generated_at)
		 WHERE identity_key = $4`,
		message, string(status), timeArg(generatedAt), key,
	)
	if err != nil {
		return pgError(err, "set message")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: set message %s", key)
	}
	return nil
}

func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, statsQuery)
	if err != nil {
		return Stats{}, pgError(err, "stats")
	}
	defer rows.Close()

	st, err := collectStats(rows)
	if err != nil {
		return Stats{}, pgError(err, "scan stats")
	}
	return st, nil
}

func (s *PostgresStore) queryLeads(ctx context.Context, query string, args []any, action string) ([]model.Lead, error) {
	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, pgError(err, action)
	}
	defer rows.Close()

	var out []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, pgError(err, action)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, pgError(err, action)
	}
	return out, nil
}

func insertArgs(lead model.Lead) ([]any, error) {
	fields, err := marshalFields(lead.Fields)
	if err != nil {
		return nil, err
	}
	created := lead.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	name := lead.DisplayName
	if name == "" {
		name = model.UnknownName
	}
	return []any{
		lead.IdentityKey, string(lead.Platform), name, lead.PrimaryText, fields,
		scoreArg(lead.FitScore), string(lead.Status), lead.Rationale, lead.Message,
		created.UTC(), timeArg(lead.ScoredAt), timeArg(lead.MessageGeneratedAt),
	}, nil
}

// pgError maps driver errors onto the store sentinels. Errors that already
// carry a sentinel pass through unchanged.
func pgError(err error, action string) error {
	if err == nil {
		return nil
	}
	if eris.Is(err, ErrDuplicate) || eris.Is(err, ErrNotFound) || eris.Is(err, ErrUnavailable) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	if pgUnavailable(err) {
		return eris.Wrapf(ErrUnavailable, "postgres: %s: %v", action, err)
	}
	return eris.Wrapf(err, "postgres: %s", action)
}

func pgUnavailable(err error) bool {
	var (
		connErr *pgconn.ConnectError
		netErr  net.Error
	)
	return errors.As(err, &connErr) ||
		errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		pgconn.Timeout(err)
}
