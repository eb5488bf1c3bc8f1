// Package channeldb is the transactional store over lightning.sqlite3: one
// table per logical record the commitment/revocation engine needs to
// survive a restart, written through database/sql against the pure-Go
// modernc.org/sqlite driver.
package channeldb

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/lightningnetwork/lnd/clock"

	"github.com/lightningd-go/lnchand/lnlog"
)

// schemaVersion is stamped into migration_tracker the first time a database
// file is created. There is only ever one version today; the column exists
// so a future schema change has a row to compare against.
const schemaVersion = 1

// pragmas are the fixed set of SQLite PRAGMAs applied through the DSN on
// every connection this Store opens.
var pragmas = []struct{ name, value string }{
	{"foreign_keys", "on"},
	{"journal_mode", "WAL"},
	{"busy_timeout", "5000"},
}

// Config holds the tunables for opening a Store.
type Config struct {
	// Path is the sqlite file path, e.g. "lightning.sqlite3".
	Path string

	// Clock is the time source used to stamp migration_tracker when a new
	// database is created. Defaults to the real wall clock; tests inject
	// clock.NewTestClock for a deterministic value.
	Clock clock.Clock
}

// Store is the transactional store. A single in-flight transaction is
// enforced by inTx: every write-site asserts it before touching the
// database, matching the single-process reentrancy guard the engine
// requires.
type Store struct {
	cfg *Config
	db  *sql.DB

	mu   sync.Mutex
	inTx bool
	tx   *sql.Tx
}

// New opens the database at cfg.Path, creating it and applying the schema
// atomically if it does not yet exist. If schema application fails, the
// partial file is removed.
func New(cfg *Config) (*Store, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	_, statErr := os.Stat(cfg.Path)
	isNew := os.IsNotExist(statErr)

	db, err := sql.Open("sqlite", dsn(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", ErrStorageFailure, err)
	}

	if isNew {
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			os.Remove(cfg.Path)
			return nil, fmt.Errorf("%w: apply schema: %v", ErrStorageFailure, err)
		}

		const stamp = `INSERT INTO migration_tracker (version, migration_time) VALUES (?, ?)`
		if _, err := db.Exec(stamp, schemaVersion, cfg.Clock.Now()); err != nil {
			db.Close()
			os.Remove(cfg.Path)
			return nil, fmt.Errorf("%w: stamp schema version: %v", ErrStorageFailure, err)
		}
	}

	lnlog.CDBLog.Infof("opened database %s (new=%v)", cfg.Path, isNew)

	return &Store{cfg: cfg, db: db}, nil
}

// dsn builds the modernc.org/sqlite connection string with this store's
// fixed pragma set, following the teacher's query-string PRAGMA convention.
func dsn(path string) string {
	q := make(url.Values)
	for _, p := range pragmas {
		q.Add("_pragma", fmt.Sprintf("%s=%s", p.name, p.value))
	}
	return fmt.Sprintf("%s?%s", path, q.Encode())
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginTransaction opens the single transaction every multi-write protocol
// step runs inside. It fails if one is already open.
func (s *Store) BeginTransaction() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inTx {
		return ErrReentrantTransaction
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStorageFailure, err)
	}

	s.tx = tx
	s.inTx = true
	return nil
}

// CommitTransaction commits the open transaction.
func (s *Store) CommitTransaction() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inTx {
		return ErrNoTransaction
	}

	err := s.tx.Commit()
	s.tx = nil
	s.inTx = false

	if err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStorageFailure, err)
	}
	return nil
}

// AbortTransaction rolls back the open transaction, used on any error
// encountered between BeginTransaction and CommitTransaction.
func (s *Store) AbortTransaction() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inTx {
		return ErrNoTransaction
	}

	err := s.tx.Rollback()
	s.tx = nil
	s.inTx = false

	if err != nil {
		return fmt.Errorf("%w: rollback: %v", ErrStorageFailure, err)
	}
	return nil
}

// SchemaStampedAt returns the time the schema was created, as recorded in
// migration_tracker when this database file was first opened.
func (s *Store) SchemaStampedAt() (time.Time, error) {
	var t time.Time
	row := s.q().QueryRow(`SELECT migration_time FROM migration_tracker WHERE version = ?`, schemaVersion)
	if err := row.Scan(&t); err != nil {
		return time.Time{}, fmt.Errorf("%w: schema stamp: %v", ErrStorageFailure, err)
	}
	return t, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx, letting read paths run
// either standalone or inside an open transaction.
type querier interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// q returns the open transaction's querier if one is in flight, the bare db
// handle otherwise -- every write-site MUST be called with one open,
// asserted by requireTx.
func (s *Store) q() querier {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inTx {
		return s.tx
	}
	return s.db
}

// requireTx asserts a transaction is open; every write method in this
// package calls it first.
func (s *Store) requireTx() error {
	s.mu.Lock()
	open := s.inTx
	s.mu.Unlock()
	if !open {
		return ErrNoTransaction
	}
	return nil
}
