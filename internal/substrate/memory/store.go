// Package memory an in-process substrate: a red-black tree of versioned
// entries guarded by a single RWMutex.
//
// Every commit stamps the entries it writes with a new version. A
// transaction remembers the version of each key it read (zero for absent
// keys) and commits only if none of them moved.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/PlatformLab/Ramdis/internal/substrate"
)

// Store the in-memory substrate, thread safe
type Store struct {
	mu      sync.RWMutex
	tree    redBlackTree
	version uint64
	logger  *zap.Logger
}

var _ substrate.Substrate = (*Store)(nil)

// New make an empty store
func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{logger: logger}
}

func (s *Store) Get(_ context.Context, key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node := s.tree.get(key)
	if node == nil {
		return nil, substrate.ErrNotFound
	}
	return bytes.Clone(node.entry.value), nil
}

func (s *Store) Put(_ context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.version++
	s.tree.put(bytes.Clone(key), entry{value: bytes.Clone(value), version: s.version})
	return nil
}

func (s *Store) Increment(_ context.Context, key []byte, delta int64, c substrate.Counter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node := s.tree.get(key)
	if node == nil {
		return 0, substrate.ErrNotFound
	}
	n, value, err := substrate.Add(c, node.entry.value, delta)
	if err != nil {
		return 0, err
	}
	s.version++
	node.entry = entry{value: value, version: s.version}
	return n, nil
}

func (s *Store) Begin(_ context.Context) (substrate.Transaction, error) {
	return &txn{
		store:  s,
		reads:  make(map[string]observed),
		writes: make(map[string]staged),
	}, nil
}

func (s *Store) Close() error {
	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.size
}

// Keys returns the stored keys starting with prefix, in order.
func (s *Store) Keys(prefix []byte) [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys [][]byte
	it := s.tree.iteratorAt(s.tree.ceiling(prefix))
	for ok := it.node != nil; ok && bytes.HasPrefix(it.node.key, prefix); ok = it.next() {
		keys = append(keys, bytes.Clone(it.node.key))
	}
	return keys
}

// Remove deletes key outside of any transaction.
func (s *Store) Remove(key []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tree.remove(key) {
		return false
	}
	s.version++
	return true
}

func (s *Store) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.String()
}

// versionOf returns the version of key, 0 when absent. Caller holds mu.
func (s *Store) versionOf(key []byte) uint64 {
	if node := s.tree.get(key); node != nil {
		return node.entry.version
	}
	return 0
}

type observed struct {
	value   []byte
	version uint64
}

type staged struct {
	value   []byte
	removed bool
}

type txn struct {
	store *Store

	mu     sync.Mutex
	reads  map[string]observed
	writes map[string]staged
	closed bool
}

func (t *txn) Read(key []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, substrate.ErrClosed
	}
	if w, ok := t.writes[string(key)]; ok {
		if w.removed {
			return nil, substrate.ErrNotFound
		}
		return bytes.Clone(w.value), nil
	}

	o, ok := t.reads[string(key)]
	if !ok {
		t.store.mu.RLock()
		if node := t.store.tree.get(key); node != nil {
			o = observed{value: node.entry.value, version: node.entry.version}
		}
		t.store.mu.RUnlock()
		t.reads[string(key)] = o
	}
	if o.version == 0 {
		return nil, substrate.ErrNotFound
	}
	return bytes.Clone(o.value), nil
}

func (t *txn) Write(key, value []byte) error {
	return t.stage(key, staged{value: bytes.Clone(value)})
}

func (t *txn) Remove(key []byte) error {
	return t.stage(key, staged{removed: true})
}

func (t *txn) stage(key []byte, s staged) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return substrate.ErrClosed
	}
	t.writes[string(key)] = s
	return nil
}

func (t *txn) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return substrate.ErrClosed
	}
	t.closed = true

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, o := range t.reads {
		if v := s.versionOf([]byte(k)); v != o.version {
			s.logger.Debug("memory: commit conflict",
				zap.Binary("key", []byte(k)), zap.Uint64("read", o.version), zap.Uint64("current", v))
			return fmt.Errorf("%w: key %x moved from version %d to %d", substrate.ErrConflict, k, o.version, v)
		}
	}
	if len(t.writes) == 0 {
		return nil
	}

	s.version++
	for k, w := range t.writes {
		if w.removed {
			s.tree.remove([]byte(k))
			continue
		}
		s.tree.put([]byte(k), entry{value: w.value, version: s.version})
	}
	return nil
}

func (t *txn) Discard() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}
