// Package repository persists windows, the payout ledger, treasury snapshots,
// reports and ingested posts in SQLite.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/okian/shillbot/pkg/logger"
	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed settlement store. It is safe for concurrent use
// and for use by several processes sharing one database file.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger logger.Logger
}

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithClock overrides the time source used for leases and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// dsn enables WAL, a busy timeout and immediate write transactions so that
// two processes racing for a lease serialize instead of failing.
func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// Open opens (or creates) the database at path and runs migrations.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &Store{db: db, now: time.Now, logger: logger.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	s.logger.Info(ctx, "sqlite store opened", logger.String("path", path))
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS windows (
			id           TEXT PRIMARY KEY,
			opens_at     INTEGER NOT NULL,
			closes_at    INTEGER NOT NULL,
			status       TEXT NOT NULL,
			lock_owner   TEXT,
			lock_expires INTEGER
		)`,

		`CREATE TABLE IF NOT EXISTS ledger (
			window_id  TEXT NOT NULL,
			payee      TEXT NOT NULL,
			seq        INTEGER NOT NULL,
			kind       TEXT NOT NULL,
			rank       INTEGER NOT NULL DEFAULT 0,
			handle     TEXT NOT NULL DEFAULT '',
			wallet     TEXT NOT NULL,
			computed   INTEGER NOT NULL,
			amount     INTEGER NOT NULL,
			status     TEXT NOT NULL,
			signature  TEXT NOT NULL DEFAULT '',
			reason     TEXT NOT NULL DEFAULT '',
			attempts   INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (window_id, payee)
		)`,

		`CREATE TABLE IF NOT EXISTS treasury_snapshots (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			window_id TEXT NOT NULL,
			kind      TEXT NOT NULL,
			balance   INTEGER NOT NULL,
			taken_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_window ON treasury_snapshots(window_id, kind)`,

		`CREATE TABLE IF NOT EXISTS reports (
			window_id  TEXT PRIMARY KEY,
			status     TEXT NOT NULL,
			winner     TEXT NOT NULL DEFAULT '',
			collected  INTEGER NOT NULL DEFAULT 0,
			body       TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS report_history (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			window_id TEXT NOT NULL,
			body      TEXT NOT NULL,
			saved_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_window ON report_history(window_id)`,

		`CREATE TABLE IF NOT EXISTS registrations (
			handle        TEXT PRIMARY KEY,
			display       TEXT NOT NULL,
			wallet        TEXT NOT NULL,
			registered_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS posts (
			post_id    TEXT NOT NULL,
			provenance TEXT NOT NULL,
			handle     TEXT NOT NULL,
			text       TEXT NOT NULL,
			likes      INTEGER NOT NULL DEFAULT 0,
			reposts    INTEGER NOT NULL DEFAULT 0,
			quotes     INTEGER NOT NULL DEFAULT 0,
			replies    INTEGER NOT NULL DEFAULT 0,
			views      INTEGER NOT NULL DEFAULT 0,
			has_media  INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (post_id, provenance)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(provenance, created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// withTx runs fn inside a write transaction.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
