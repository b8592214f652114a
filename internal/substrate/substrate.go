// Package substrate defines the transactional key-value store the list
// engine is built on.
//
// The contract is small: single-key get and put, an atomic integer increment,
// and optimistic multi-key transactions. Reads and writes of a transaction are staged and
// validated together at commit: if two transactions read overlapping keys and
// either writes one of them, the later commit is rejected with ErrConflict.
package substrate

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("key not found")
	ErrConflict = errors.New("transaction conflict")
	ErrClosed   = errors.New("transaction closed")
)

// Substrate the transactional key-value store.
type Substrate interface {
	// Get returns the value stored under key outside of any transaction.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Put stores value under key outside of any transaction.
	Put(ctx context.Context, key, value []byte) error

	// Increment atomically adds delta to the integer c reads from the value
	// of key and stores it back through c. ErrNotFound when the key does not
	// exist; errors of c are returned unchanged and leave the value as is.
	Increment(ctx context.Context, key []byte, delta int64, c Counter) (int64, error)

	// Begin opens an optimistic transaction.
	Begin(ctx context.Context) (Transaction, error)

	Close() error
}

// Transaction a staged set of reads and writes. Read may be called from
// several goroutines at once; Write, Remove and Commit may not overlap with
// other calls.
type Transaction interface {
	// Read returns the value of key as seen by the transaction, including its
	// own staged writes. ErrNotFound when the key does not exist.
	Read(key []byte) ([]byte, error)

	Write(key, value []byte) error
	Remove(key []byte) error

	// Commit validates the reads and applies the writes atomically.
	// ErrConflict when a concurrent commit invalidated a read.
	Commit() error

	// Discard abandons the transaction. Safe to call after Commit.
	Discard()
}
