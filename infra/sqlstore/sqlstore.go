// Package sqlstore implements store.Gateway on MySQL and SQLite.
//
// Conditional updates are single UPDATE statements whose WHERE clause
// carries the precondition; RowsAffected tells whether it held. Transient
// driver errors are retried with exponential backoff so callers only ever
// see success or a definitive error.
package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/kilianp07/homefix/core/apperr"
	"github.com/kilianp07/homefix/core/logger"
	"github.com/kilianp07/homefix/core/store"
)

// Dialect selects the SQL flavour.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectMySQL
)

func (d Dialect) String() string {
	if d == DialectMySQL {
		return "mysql"
	}
	return "sqlite"
}

// Config configures the persistence backend.
type Config struct {
	// Driver is one of memory, sqlite or mysql.
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	RetryMaxAttempts       int    `json:"retry_max_attempts"`
	RetryInitialMillis     int    `json:"retry_initial_ms"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Driver == "" {
		c.Driver = "memory"
	}
	if c.Driver == "sqlite" && c.DSN == "" {
		c.DSN = "file:homefix.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 16
	}
	if c.ConnMaxLifetimeSeconds <= 0 {
		c.ConnMaxLifetimeSeconds = 600
	}
	if c.RetryMaxAttempts <= 0 {
		c.RetryMaxAttempts = 5
	}
	if c.RetryInitialMillis <= 0 {
		c.RetryInitialMillis = 50
	}
}

// Validate checks the configuration for obvious errors.
func (c Config) Validate() error {
	switch c.Driver {
	case "memory":
		return nil
	case "sqlite":
		if c.DSN == "" {
			return fmt.Errorf("store: sqlite requires a dsn")
		}
		return nil
	case "mysql":
		if _, err := mysql.ParseDSN(c.DSN); err != nil {
			return fmt.Errorf("store: invalid mysql dsn: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("store: unknown driver %q", c.Driver)
	}
}

// Store is a SQL backed store.Gateway.
type Store struct {
	db      *sql.DB
	dialect Dialect
	cfg     Config
	log     logger.Logger
}

var _ store.Gateway = (*Store)(nil)

// Open connects to the configured database and ensures the schema.
func Open(ctx context.Context, cfg Config, log logger.Logger) (*Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var d Dialect
	switch cfg.Driver {
	case "sqlite":
		d = DialectSQLite
	case "mysql":
		d = DialectMySQL
	default:
		return nil, fmt.Errorf("store: driver %q has no SQL backend", cfg.Driver)
	}
	db, err := sql.Open(d.String(), cfg.DSN)
	if err != nil {
		return nil, err
	}
	if d == DialectSQLite {
		// one writer at a time; also keeps :memory: databases on one connection
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeSeconds) * time.Second)
	}
	s := New(db, d, cfg, log)
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.retry(pingCtx, func() error { return db.PingContext(pingCtx) }); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (ping err: %w)", cerr, err)
		}
		return nil, fmt.Errorf("ping %s: %w", d, err)
	}
	if err := s.Migrate(ctx); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	s.log.Infof("connected to %s store", d)
	return s, nil
}

// New wraps an open database handle.
func New(db *sql.DB, d Dialect, cfg Config, log logger.Logger) *Store {
	cfg.SetDefaults()
	return &Store{db: db, dialect: d, cfg: cfg, log: logger.OrNop(log)}
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema(s.dialect) {
		if err := s.retry(ctx, func() error {
			_, err := s.db.ExecContext(ctx, stmt)
			return err
		}); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(s.cfg.RetryInitialMillis) * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 10 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.cfg.RetryMaxAttempts-1)), ctx)
}

// retry runs op until it succeeds, fails with a non-transient error or the
// attempts run out.
func (s *Store) retry(ctx context.Context, op func() error) error {
	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, s.backOff(ctx), func(err error, d time.Duration) {
		s.log.Warnf("transient %s error, retrying in %s: %v", s.dialect, d, err)
	})
}

// inTx runs fn in a transaction, retrying the whole transaction on
// transient errors. A failed Commit is never retried: the outcome is
// unknown and upserts such as BumpRetry are not idempotent.
func (s *Store) inTx(ctx context.Context, fn func(q querier) error) error {
	return s.retry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
				s.log.Warnf("rollback: %v", rerr)
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			return backoff.Permanent(fmt.Errorf("commit: %w", err))
		}
		return nil
	})
}

// transient reports whether err is worth retrying: lost connections,
// MySQL deadlocks and lock wait timeouts, SQLite busy or locked databases.
func transient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1213 || me.Number == 1205
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}

// duplicate reports a primary key violation.
func duplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

// wrap adds context to infrastructure errors and leaves domain errors as
// they are.
func wrap(err error, format string, args ...any) error {
	if err == nil || errors.Is(err, store.ErrConflict) || apperr.CodeOf(err) != apperr.CodeInternal {
		return err
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func notFound(kind, id string) error {
	return apperr.New(apperr.CodeNotFound, "%s %s not found", kind, id)
}

// exists distinguishes a failed precondition from a missing row.
func exists(ctx context.Context, q querier, table, id string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}

func nanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
