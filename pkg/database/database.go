package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/kupo/pkg/log"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// FileName is the database file created under the working directory.
const FileName = "kupo.sqlite3"

// busyRetryDelay is the fixed backoff applied when SQLite reports BUSY.
const busyRetryDelay = 100 * time.Millisecond

// InputManagement selects what happens to spent inputs.
type InputManagement int

const (
	// MarkSpentInputs keeps spent inputs forever, with a spent marker.
	MarkSpentInputs InputManagement = iota
	// RemoveSpentInputs prunes spent inputs once they fall behind the
	// rollback horizon.
	RemoveSpentInputs
)

// Options configures Open.
type Options struct {
	// WorkDir is the directory holding kupo.sqlite3. Ignored when
	// InMemory is set.
	WorkDir string
	// InMemory keeps the whole database in memory, on a single
	// connection lent out through a mailbox.
	InMemory bool
	// LongestRollback is the rollback horizon, in slots.
	LongestRollback uint64
	// DeferIndexes skips the secondary indexes at first start.
	DeferIndexes bool
}

// DB is the storage engine handle shared by every component.
type DB struct {
	sqlDB           *sql.DB
	arb             *arbitrator
	longestRollback uint64
	// mailbox holds the sole connection of an in-memory database; nil
	// for file-backed databases.
	mailbox chan *sql.Conn
	logger  zerolog.Logger
}

// Open opens (creating if necessary) the database, applies pending
// migrations inside a single IMMEDIATE transaction, and installs indexes.
func Open(ctx context.Context, opts Options) (*DB, error) {
	var dsn string
	if opts.InMemory {
		dsn = "file::memory:?_journal_mode=MEMORY&_foreign_keys=on"
	} else {
		if err := os.MkdirAll(opts.WorkDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create working directory: %w", err)
		}
		path := filepath.Join(opts.WorkDir, FileName)
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on", path)
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{
		sqlDB:           sqlDB,
		arb:             newArbitrator(),
		longestRollback: opts.LongestRollback,
		logger:          log.WithComponent("database"),
	}

	if opts.InMemory {
		// A second connection to :memory: would see a different
		// database, so exactly one is retained and handed around.
		sqlDB.SetMaxOpenConns(1)
		conn, err := sqlDB.Conn(ctx)
		if err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to pin in-memory connection: %w", err)
		}
		db.mailbox = make(chan *sql.Conn, 1)
		db.mailbox <- conn
	} else if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := db.migrate(ctx, opts.DeferIndexes); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Close closes the underlying connections.
func (d *DB) Close() error {
	if d.mailbox != nil {
		select {
		case conn := <-d.mailbox:
			conn.Close()
		default:
		}
	}
	return d.sqlDB.Close()
}

// LongestRollback returns the configured rollback horizon in slots.
func (d *DB) LongestRollback() uint64 {
	return d.longestRollback
}

// acquireConn borrows a connection: the mailbox connection in memory mode,
// a fresh pool connection otherwise. The returned release function must be
// called exactly once.
func (d *DB) acquireConn(ctx context.Context) (*sql.Conn, func(), error) {
	if d.mailbox != nil {
		select {
		case conn := <-d.mailbox:
			return conn, func() { d.mailbox <- conn }, nil
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	conn, err := d.sqlDB.Conn(ctx)
	if err != nil {
		return nil, nil, err
	}
	return conn, func() { conn.Close() }, nil
}

// ReadOnly runs fn inside a short-lived deferred transaction, serialized
// against the long-lived writer by the arbitration discipline.
func (d *DB) ReadOnly(ctx context.Context, fn func(*Tx) error) error {
	if err := d.arb.acquireShortLived(ctx); err != nil {
		return err
	}
	defer d.arb.releaseShortLived()

	conn, release, err := d.acquireConn(ctx)
	if err != nil {
		return err
	}
	defer release()

	return runTransaction(ctx, conn, false, fn)
}

// ReadWrite runs fn inside a short-lived IMMEDIATE transaction, retrying on
// BUSY with a fixed 100 ms backoff until the transaction commits or ctx is
// cancelled.
func (d *DB) ReadWrite(ctx context.Context, fn func(*Tx) error) error {
	if err := d.arb.acquireShortLived(ctx); err != nil {
		return err
	}
	defer d.arb.releaseShortLived()

	conn, release, err := d.acquireConn(ctx)
	if err != nil {
		return err
	}
	defer release()

	for {
		err := runTransaction(ctx, conn, true, fn)
		if !isBusy(err) {
			return err
		}
		d.logger.Debug().Msg("Database busy, retrying")
		select {
		case <-time.After(busyRetryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ExclusiveWrite runs fn inside the long-lived writer's slot: it waits for
// short-lived transactions to drain, then runs an IMMEDIATE transaction.
// The chain consumer and the garbage collector are its only callers.
func (d *DB) ExclusiveWrite(ctx context.Context, fn func(*Tx) error) error {
	if err := d.arb.acquireLongLived(ctx); err != nil {
		return err
	}
	defer d.arb.releaseLongLived()

	conn, release, err := d.acquireConn(ctx)
	if err != nil {
		return err
	}
	defer release()

	for {
		err := runTransaction(ctx, conn, true, fn)
		if !isBusy(err) {
			return err
		}
		d.logger.Debug().Msg("Database busy in writer, retrying")
		select {
		case <-time.After(busyRetryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Tx is an open transaction. All statements go through parameter binding;
// the only SQL assembled from input is emitted by the pattern translator.
type Tx struct {
	ctx  context.Context
	conn *sql.Conn
}

func (t *Tx) exec(query string, args ...interface{}) (sql.Result, error) {
	return t.conn.ExecContext(t.ctx, query, args...)
}

func (t *Tx) query(query string, args ...interface{}) (*sql.Rows, error) {
	return t.conn.QueryContext(t.ctx, query, args...)
}

func (t *Tx) queryRow(query string, args ...interface{}) *sql.Row {
	return t.conn.QueryRowContext(t.ctx, query, args...)
}

func runTransaction(ctx context.Context, conn *sql.Conn, immediate bool, fn func(*Tx) error) error {
	// database/sql has no notion of SQLite's locking flavors, so the
	// write intent is declared by hand.
	begin := "BEGIN DEFERRED"
	if immediate {
		begin = "BEGIN IMMEDIATE"
	}
	if _, err := conn.ExecContext(ctx, begin); err != nil {
		return err
	}

	tx := &Tx{ctx: ctx, conn: conn}
	if err := fn(tx); err != nil {
		conn.ExecContext(ctx, "ROLLBACK")
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		// Leave nothing ambiguous behind: a failed commit is rolled
		// back so the caller can retry cleanly.
		conn.ExecContext(ctx, "ROLLBACK")
		return err
	}
	return nil
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	// The BEGIN/COMMIT statements surface busy states as plain errors.
	return strings.Contains(err.Error(), "database is locked") ||
		strings.Contains(err.Error(), "database table is locked")
}
