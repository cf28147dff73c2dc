package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db   *sql.DB
	opts options
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	// One writer at a time; concurrent batches queue here instead of failing
	// a read-then-write transaction with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db, opts: newOptions(opts)}, nil
}

const sqliteLeadTable = `
CREATE TABLE IF NOT EXISTS %[1]s (
	identity_key         TEXT PRIMARY KEY,
	platform             TEXT NOT NULL,
	display_name         TEXT NOT NULL DEFAULT 'Unknown',
	primary_text         TEXT NOT NULL DEFAULT '',
	fields               TEXT NOT NULL DEFAULT '{}',
	fit_score            REAL,
	status               TEXT NOT NULL DEFAULT 'new',
	rationale            TEXT NOT NULL DEFAULT '',
	message              TEXT NOT NULL DEFAULT '',
	created_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	scored_at            DATETIME,
	message_generated_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_fit_score ON %[1]s(fit_score);
CREATE INDEX IF NOT EXISTS idx_%[1]s_status ON %[1]s(status);
`

const sqliteExists = `SELECT EXISTS (SELECT 1 FROM active_leads WHERE identity_key = ?)
	OR EXISTS (SELECT 1 FROM discarded_leads WHERE identity_key = ?)`

const sqliteInsert = `INSERT INTO %s (identity_key, platform, display_name, primary_text, fields, fit_score,
	status, rationale, message, created_at, scored_at, message_generated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(sqliteLeadTable, Active.Table()) + fmt.Sprintf(sqliteLeadTable, Discarded.Table())
	_, err := s.db.ExecContext(ctx, ddl)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	ctx, cancel := s.opts.bound(ctx)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return sqliteError(err, "ping")
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Insert(ctx context.Context, bucket Bucket, lead model.Lead) error {
	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	args, err := sqliteInsertArgs(lead)
	if err != nil {
		return err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, sqliteExists, lead.IdentityKey, lead.IdentityKey).Scan(&exists); err != nil {
			return sqliteError(err, "check duplicate")
		}
		if exists {
			return ErrDuplicate
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(sqliteInsert, bucket.Table()), args...); err != nil {
			return sqliteError(err, "insert lead")
		}
		return nil
	})
	return sqliteError(err, "insert lead")
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (model.Lead, Bucket, error) {
	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	cols := strings.Join(leadColumns, ", ")
	for _, b := range []Bucket{Active, Discarded} {
		row := s.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT %s FROM %s WHERE identity_key = ?`, cols, b.Table()), key)
		lead, err := scanLead(row)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return model.Lead{}, "", sqliteError(err, "get lead")
		}
		return lead, b, nil
	}
	return model.Lead{}, "", eris.Wrapf(ErrNotFound, "sqlite: get %s", key)
}

func (s *SQLiteStore) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	var exists bool
	if err := s.db.QueryRowContext(ctx, sqliteExists, key, key).Scan(&exists); err != nil {
		return false, sqliteError(err, "exists")
	}
	return exists, nil
}

func (s *SQLiteStore) Update(ctx context.Context, bucket Bucket, lead model.Lead) error {
	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET fit_score = ?, rationale = ?, scored_at = ?,
			status = `+keepOutreachStatus+` WHERE identity_key = ?`, bucket.Table(), "?", "?"),
		scoreArg(lead.FitScore), lead.Rationale, sqliteTime(lead.ScoredAt),
		string(lead.Status), string(lead.Status), lead.IdentityKey,
	)
	if err != nil {
		return sqliteError(err, "update lead")
	}
	return checkRowsAffected(res, "update", lead.IdentityKey)
}

func (s *SQLiteStore) Move(ctx context.Context, from Bucket, lead model.Lead) error {
	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	args, err := sqliteInsertArgs(lead)
	if err != nil {
		return err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE identity_key = ?`, from.Table()), lead.IdentityKey)
		if err != nil {
			return sqliteError(err, "delete lead")
		}
		if err := checkRowsAffected(res, "move", lead.IdentityKey); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(sqliteInsert, from.Other().Table()), args...); err != nil {
			return sqliteError(err, "insert moved lead")
		}
		return nil
	})
	return sqliteError(err, "move lead")
}

func (s *SQLiteStore) QueryByScore(ctx context.Context, r ScoreRange) ([]model.Lead, error) {
	query, args, err := scoreQuery(r, sq.Question)
	if err != nil {
		return nil, err
	}
	return s.queryLeads(ctx, query, args, "query by score")
}

func (s *SQLiteStore) ListByStatus(ctx context.Context, bucket Bucket, status model.Status, limit int) ([]model.Lead, error) {
	query, args, err := statusQuery(bucket, status, limit, sq.Question)
	if err != nil {
		return nil, err
	}
	return s.queryLeads(ctx, query, args, "list by status")
}

func (s *SQLiteStore) SetMessage(ctx context.Context, key, message string, status model.Status, at time.Time) error {
	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	var generatedAt *time.Time
	if status == model.StatusMessageGenerated {
		generatedAt = &at
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE active_leads SET message = ?, status = ?,
			message_generated_at = COALESCE(?, message_generated_at)
		 WHERE identity_key = ?`,
		message, string(status), sqliteTime(generatedAt), key,
	)
	if err != nil {
		return sqliteError(err, "set message")
	}
	return checkRowsAffected(res, "set message", key)
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, statsQuery)
	if err != nil {
		return Stats{}, sqliteError(err, "stats")
	}
	defer rows.Close()

	st, err := collectStats(rows)
	if err != nil {
		return Stats{}, sqliteError(err, "scan stats")
	}
	return st, nil
}

func (s *SQLiteStore) queryLeads(ctx context.Context, query string, args []any, action string) ([]model.Lead, error) {
	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sqliteError(err, action)
	}
	defer rows.Close()

	var out []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, sqliteError(err, action)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteError(err, action)
	}
	return out, nil
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sqliteError(err, "begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return sqliteError(err, "commit tx")
	}
	return nil
}

// sqliteInsertArgs mirrors insertArgs with timestamps rendered as text so
// they read back the same regardless of column affinity.
func sqliteInsertArgs(lead model.Lead) ([]any, error) {
	args, err := insertArgs(lead)
	if err != nil {
		return nil, err
	}
	args[4] = string(args[4].([]byte))
	created := args[9].(time.Time)
	args[9] = created.Format(time.RFC3339Nano)
	args[10] = sqliteTime(lead.ScoredAt)
	args[11] = sqliteTime(lead.MessageGeneratedAt)
	return args, nil
}

func sqliteTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func checkRowsAffected(res sql.Result, action, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", action, key)
	}
	return nil
}

func sqliteError(err error, action string) error {
	if err == nil {
		return nil
	}
	if eris.Is(err, ErrDuplicate) || eris.Is(err, ErrNotFound) || eris.Is(err, ErrUnavailable) {
		return err
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return ErrDuplicate
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, sql.ErrConnDone),
		strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "unable to open database"):
		return eris.Wrapf(ErrUnavailable, "sqlite: %s: %v", action, err)
	}
	return eris.Wrapf(err, "sqlite: %s", action)
}
