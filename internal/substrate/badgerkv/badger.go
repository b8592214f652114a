// Package badgerkv a substrate on badger. Badger transactions are optimistic
// with snapshot reads, so conflicts of transactions that write come straight
// from its commit. Badger skips conflict detection for a transaction with no
// pending writes; those commits compare the versions they read against a
// fresh view instead.
package badgerkv

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/PlatformLab/Ramdis/internal/substrate"
)

type Store struct {
	db     *badger.DB
	logger *zap.Logger
}

var _ substrate.Substrate = (*Store)(nil)

// Open opens a badger database at path. An empty path keeps the data in
// memory.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := badger.DefaultOptions(path).
		WithLogger(newLogger(logger)).
		WithLoggingLevel(badger.WARNING)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	logger.Info("opening badger store", zap.String("path", path), zap.Bool("in-memory", path == ""))
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger open %q: %w", path, err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Get(_ context.Context, key []byte) (value []byte, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		value, err = get(txn, key)
		return err
	})
	return value, err
}

func (s *Store) Put(_ context.Context, key, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Increment runs the read-modify-write in a badger update, repeated while it
// conflicts with other writers.
func (s *Store) Increment(ctx context.Context, key []byte, delta int64, c substrate.Counter) (n int64, err error) {
	for {
		err = s.db.Update(func(txn *badger.Txn) error {
			old, err := get(txn, key)
			if err != nil {
				return err
			}
			var value []byte
			if n, value, err = substrate.Add(c, old, delta); err != nil {
				return err
			}
			return txn.Set(key, value)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		if cerr := ctx.Err(); cerr != nil {
			return 0, cerr
		}
		s.logger.Debug("badger increment conflict, retrying", zap.Binary("key", key))
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Begin(_ context.Context) (substrate.Transaction, error) {
	return &txn{
		store:    s,
		txn:      s.db.NewTransaction(true),
		versions: make(map[string]uint64),
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func get(txn *badger.Txn, key []byte) ([]byte, error) {
	value, _, err := getVersion(txn, key)
	return value, err
}

// getVersion returns the value of key and the version it was written at, 0
// with ErrNotFound for a missing key.
func getVersion(txn *badger.Txn, key []byte) ([]byte, uint64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, 0, substrate.ErrNotFound
	} else if err != nil {
		return nil, 0, err
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, 0, err
	}
	return value, item.Version(), nil
}

// txn serializes staging against concurrent reads; badger.Txn keeps its
// pending writes in a plain map.
type txn struct {
	store *Store

	mu     sync.RWMutex
	txn    *badger.Txn
	writes int
	closed bool

	versionsMu sync.Mutex
	versions   map[string]uint64
}

func (t *txn) Read(key []byte) ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, substrate.ErrClosed
	}
	value, version, err := getVersion(t.txn, key)
	if err != nil && !errors.Is(err, substrate.ErrNotFound) {
		return nil, err
	}
	if t.writes == 0 {
		t.versionsMu.Lock()
		if _, seen := t.versions[string(key)]; !seen {
			t.versions[string(key)] = version
		}
		t.versionsMu.Unlock()
	}
	return value, err
}

func (t *txn) Write(key, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return substrate.ErrClosed
	}
	t.writes++
	return t.txn.Set(key, value)
}

func (t *txn) Remove(key []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return substrate.ErrClosed
	}
	t.writes++
	return t.txn.Delete(key)
}

func (t *txn) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return substrate.ErrClosed
	}
	t.closed = true

	if t.writes == 0 {
		defer t.txn.Discard()
		return t.validate()
	}
	err := t.txn.Commit()
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %w", substrate.ErrConflict, err)
	}
	return err
}

// validate checks that no key read by a read-only transaction was written
// since.
func (t *txn) validate() error {
	t.versionsMu.Lock()
	defer t.versionsMu.Unlock()
	if len(t.versions) == 0 {
		return nil
	}
	return t.store.db.View(func(view *badger.Txn) error {
		for k, read := range t.versions {
			_, current, err := getVersion(view, []byte(k))
			if err != nil && !errors.Is(err, substrate.ErrNotFound) {
				return err
			}
			if current != read {
				t.store.logger.Debug("badger read-only commit conflict",
					zap.Binary("key", []byte(k)), zap.Uint64("read", read), zap.Uint64("current", current))
				return fmt.Errorf("%w: key %x moved from version %d to %d", substrate.ErrConflict, k, read, current)
			}
		}
		return nil
	})
}

func (t *txn) Discard() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.txn.Discard()
}
