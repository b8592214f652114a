// Package boltkv a substrate on a single bbolt bucket. Transaction reads are
// individual view transactions; the commit validates and applies inside one
// bolt update, which bolt runs with exclusive write access.
package boltkv

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/PlatformLab/Ramdis/internal/substrate"
)

const DefaultBucket = "ramdis"

type Store struct {
	db     *bbolt.DB
	bucket []byte
	logger *zap.Logger
}

var _ substrate.Substrate = (*Store)(nil)

// Open opens or creates the bolt file at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt open %q: %w", path, err)
	}

	// Ensure the application bucket exists.
	err = db.Update(func(tx *bbolt.Tx) error {
		_, bucketErr := tx.CreateBucketIfNotExists([]byte(DefaultBucket))
		if bucketErr != nil {
			return fmt.Errorf("failed to create internal bucket %q: %w", DefaultBucket, bucketErr)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("bolt store opened", zap.String("path", path))
	return &Store{db: db, bucket: []byte(DefaultBucket), logger: logger}, nil
}

func (s *Store) Get(_ context.Context, key []byte) ([]byte, error) {
	v, found, err := s.load(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, substrate.ErrNotFound
	}
	return v, nil
}

func (s *Store) Put(_ context.Context, key, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Put(key, value)
	})
}

func (s *Store) Increment(_ context.Context, key []byte, delta int64, c substrate.Counter) (n int64, err error) {
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		old, found := lookup(b, key)
		if !found {
			return substrate.ErrNotFound
		}
		var value []byte
		if n, value, err = substrate.Add(c, old, delta); err != nil {
			return err
		}
		return b.Put(key, value)
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Begin(_ context.Context) (substrate.Transaction, error) {
	return &txn{store: s, buffer: substrate.NewBuffer()}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) load(key []byte) (value []byte, found bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		value, found = lookup(tx.Bucket(s.bucket), key)
		return nil
	})
	return value, found, err
}

// lookup seeks key with a cursor, which tells a zero-length value from a
// missing key. The value is copied out of the mmap.
func lookup(b *bbolt.Bucket, key []byte) ([]byte, bool) {
	k, v := b.Cursor().Seek(key)
	if k == nil || !bytes.Equal(k, key) {
		return nil, false
	}
	return bytes.Clone(v), true
}

type txn struct {
	store  *Store
	buffer *substrate.Buffer
}

func (t *txn) Read(key []byte) ([]byte, error) {
	return t.buffer.Read(key, t.store.load)
}

func (t *txn) Write(key, value []byte) error {
	return t.buffer.Write(key, value)
}

func (t *txn) Remove(key []byte) error {
	return t.buffer.Remove(key)
}

func (t *txn) Commit() error {
	if t.buffer.Empty() {
		// read-only: validate under a view, nothing to apply
		return t.store.db.View(func(tx *bbolt.Tx) error {
			return t.commitIn(tx.Bucket(t.store.bucket))
		})
	}
	return t.store.db.Update(func(tx *bbolt.Tx) error {
		return t.commitIn(tx.Bucket(t.store.bucket))
	})
}

func (t *txn) commitIn(b *bbolt.Bucket) error {
	return t.buffer.Commit(
		func(key []byte) ([]byte, bool, error) {
			v, found := lookup(b, key)
			return v, found, nil
		},
		b.Put,
		b.Delete,
	)
}

func (t *txn) Discard() {
	t.buffer.Discard()
}
