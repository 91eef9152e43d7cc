// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	_ "modernc.org/sqlite" // SQLite driver.
)

const driverName = "sqlite"

// busy_timeout lets a second writer wait for the lock instead of failing
// immediately; _txlock=immediate takes the write lock at BEGIN.
var dsnParams = []string{
	"_pragma=foreign_keys(1)",
	"_pragma=journal_mode(WAL)",
	"_pragma=busy_timeout(5000)",
	"_txlock=immediate",
}

// Store owns the connection pool for one database file. It is safe for
// concurrent use.
type Store struct {
	db     *sqlx.DB
	path   string
	logger *zap.Logger
}

// Open opens or creates the SQLite database at path and applies pending
// migrations. Every failure is a *StorageInitError.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &StorageInitError{Op: "create directory", Path: dir, Err: err}
	}
	db, err := sqlx.Open(driverName, dsn(path))
	if err != nil {
		return nil, &StorageInitError{Op: "open", Path: path, Err: err}
	}
	st := &Store{db: db, path: path, logger: logger}
	if err := st.init(context.Background()); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on init failure.
			_ = cerr
		}
		return nil, err
	}
	logger.Debug("Opened database", zap.String("path", path))
	return st, nil
}

func dsn(path string) string {
	return "file:" + path + "?" + strings.Join(dsnParams, "&")
}

func (s *Store) init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &StorageInitError{Op: "open", Path: s.path, Err: err}
	}
	var mode string
	if err := s.db.GetContext(ctx, &mode, "PRAGMA journal_mode"); err != nil {
		return &StorageInitError{Op: "read journal mode", Path: s.path, Err: err}
	}
	if !strings.EqualFold(mode, "wal") {
		return &StorageInitError{Op: "enable WAL", Path: s.path, Err: fmt.Errorf("journal mode is %q", mode)}
	}
	if err := runMigrations(s.db.DB, s.logger); err != nil {
		return &StorageInitError{Op: "migrate", Path: s.path, Err: err}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// SchemaVersion reports the applied migration version and whether the last
// migration was left incomplete.
func (s *Store) SchemaVersion(ctx context.Context) (uint, bool, error) {
	var row struct {
		Version uint `db:"version"`
		Dirty   bool `db:"dirty"`
	}
	err := s.db.GetContext(ctx, &row, "SELECT version, dirty FROM "+migrationsTable+" LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, persistErr("read schema version", err)
	}
	return row.Version, row.Dirty, nil
}

// BeginTx starts a transaction. Writes inside it stay invisible to other
// connections until Commit.
func (s *Store) BeginTx(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, persistErr("begin transaction", err)
	}
	return &Tx{tx: tx}, nil
}

// Exec runs a parameterized statement and returns the number of rows affected.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, persistErr("exec", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, persistErr("rows affected", err)
	}
	return n, nil
}

// Select scans all rows of a parameterized query into dest, a pointer to a slice.
func (s *Store) Select(ctx context.Context, dest any, query string, args ...any) error {
	return persistErr("select", s.db.SelectContext(ctx, dest, query, args...))
}

// Get scans a single row into dest. A missing row still satisfies
// errors.Is(err, sql.ErrNoRows).
func (s *Store) Get(ctx context.Context, dest any, query string, args ...any) error {
	return persistErr("get", s.db.GetContext(ctx, dest, query, args...))
}

// Tx is a transaction scope. Rollback is a no-op once Commit succeeded, so
// it is safe to defer.
type Tx struct {
	tx   *sqlx.Tx
	done bool
}

// Exec runs a parameterized statement inside the transaction.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr("exec", err)
	}
	return res, nil
}

// Select scans all rows of a parameterized query into dest.
func (t *Tx) Select(ctx context.Context, dest any, query string, args ...any) error {
	return persistErr("select", t.tx.SelectContext(ctx, dest, query, args...))
}

// Get scans a single row into dest.
func (t *Tx) Get(ctx context.Context, dest any, query string, args ...any) error {
	return persistErr("get", t.tx.GetContext(ctx, dest, query, args...))
}

// Commit makes every write in the transaction visible.
func (t *Tx) Commit() error {
	if t.done {
		return persistErr("commit", sql.ErrTxDone)
	}
	if err := t.tx.Commit(); err != nil {
		return persistErr("commit", err)
	}
	t.done = true
	return nil
}

// Rollback discards every write in the transaction.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return persistErr("rollback", err)
	}
	return nil
}
