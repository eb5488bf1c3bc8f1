package channeldb

import "errors"

var (
	// ErrStorageFailure wraps any database/sql error surfaced by this
	// package, per the ProtocolViolation/StorageFailure/... taxonomy.
	ErrStorageFailure = errors.New("channeldb: storage failure")

	// ErrNoRows is returned by lookups that found nothing.
	ErrNoRows = errors.New("channeldb: no such row")

	// ErrGuardViolation is returned when an UPDATE ... WHERE state=?
	// guard affects zero rows -- a protocol bug, never a recoverable
	// runtime condition.
	ErrGuardViolation = errors.New("channeldb: update-with-guard affected no rows")

	// ErrReentrantTransaction is returned when a write is attempted while
	// another transaction is already open on this Store.
	ErrReentrantTransaction = errors.New("channeldb: reentrant transaction")

	// ErrNoTransaction is returned when a write is attempted outside of
	// BeginTransaction/CommitTransaction.
	ErrNoTransaction = errors.New("channeldb: write attempted outside of a transaction")
)
