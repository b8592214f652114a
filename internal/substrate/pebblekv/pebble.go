// Package pebblekv a substrate on pebble. Transactions read from a pebble
// snapshot taken at Begin and commit as one batch after their reads are
// validated against the live database.
package pebblekv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"go.uber.org/zap"

	"github.com/PlatformLab/Ramdis/internal/substrate"
)

type Store struct {
	db     *pebble.DB
	logger *zap.Logger

	// commitMu orders direct puts and batch commits so validation and apply
	// see no writes in between.
	commitMu sync.Mutex
}

var _ substrate.Substrate = (*Store)(nil)

// Open opens a pebble database at path. An empty path keeps the data in an
// in-memory filesystem.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := &pebble.Options{}
	if path == "" {
		opts.FS = vfs.NewMem()
	}
	logger.Info("opening_pebble_db", zap.String("path", path))
	db, err := pebble.Open(path, opts)
	if err != nil {
		logger.Error("pebble_open_failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Get(_ context.Context, key []byte) ([]byte, error) {
	v, found, err := load(s.db, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, substrate.ErrNotFound
	}
	return v, nil
}

func (s *Store) Put(_ context.Context, key, value []byte) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	return s.db.Set(key, value, pebble.Sync)
}

func (s *Store) Increment(_ context.Context, key []byte, delta int64, c substrate.Counter) (int64, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	old, found, err := load(s.db, key)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, substrate.ErrNotFound
	}
	n, value, err := substrate.Add(c, old, delta)
	if err != nil {
		return 0, err
	}
	if err := s.db.Set(key, value, pebble.Sync); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Begin(_ context.Context) (substrate.Transaction, error) {
	return &txn{
		store:  s,
		snap:   s.db.NewSnapshot(),
		buffer: substrate.NewBuffer(),
	}, nil
}

func (s *Store) Close() error {
	s.logger.Info("pebble_closed")
	return s.db.Close()
}

type reader interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

// load returns a copy of the value of key.
func load(r reader, key []byte) ([]byte, bool, error) {
	v, closer, err := r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

type txn struct {
	store  *Store
	buffer *substrate.Buffer

	snapMu sync.Mutex
	snap   *pebble.Snapshot
}

func (t *txn) Read(key []byte) ([]byte, error) {
	return t.buffer.Read(key, func(key []byte) ([]byte, bool, error) {
		return load(t.snap, key)
	})
}

func (t *txn) Write(key, value []byte) error {
	return t.buffer.Write(key, value)
}

func (t *txn) Remove(key []byte) error {
	return t.buffer.Remove(key)
}

func (t *txn) Commit() error {
	defer t.release()

	s := t.store
	batch := s.db.NewBatch()
	defer batch.Close()

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	err := t.buffer.Commit(
		func(key []byte) ([]byte, bool, error) { return load(s.db, key) },
		func(key, value []byte) error { return batch.Set(key, value, nil) },
		func(key []byte) error { return batch.Delete(key, nil) },
	)
	if err != nil {
		return err
	}
	if batch.Empty() {
		return nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("pebble batch commit: %w", err)
	}
	return nil
}

func (t *txn) Discard() {
	t.buffer.Discard()
	t.release()
}

func (t *txn) release() {
	t.snapMu.Lock()
	defer t.snapMu.Unlock()
	if t.snap != nil {
		_ = t.snap.Close()
		t.snap = nil
	}
}
