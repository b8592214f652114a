package substrate

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
)

// Buffer holds the read set and staged writes of a value-validated
// transaction, for backends without native optimistic transactions. A commit
// is valid when every key read still holds the value observed by the first
// read of it.
type Buffer struct {
	mu     sync.Mutex
	reads  map[string]observed
	writes map[string]staged
	closed bool
}

type observed struct {
	value []byte
	found bool
}

type staged struct {
	value   []byte
	removed bool
}

// NewBuffer make an empty transaction buffer
func NewBuffer() *Buffer {
	return &Buffer{
		reads:  make(map[string]observed),
		writes: make(map[string]staged),
	}
}

// Read returns the transaction's view of key. load is called for keys that
// are neither staged nor read before.
func (b *Buffer) Read(key []byte, load func(key []byte) ([]byte, bool, error)) ([]byte, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	if w, ok := b.writes[string(key)]; ok {
		b.mu.Unlock()
		if w.removed {
			return nil, ErrNotFound
		}
		return bytes.Clone(w.value), nil
	}
	if o, ok := b.reads[string(key)]; ok {
		b.mu.Unlock()
		return o.result()
	}
	b.mu.Unlock()

	value, found, err := load(key)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.reads[string(key)]
	if !ok {
		o = observed{value: bytes.Clone(value), found: found}
		b.reads[string(key)] = o
	}
	return o.result()
}

func (o observed) result() ([]byte, error) {
	if !o.found {
		return nil, ErrNotFound
	}
	return bytes.Clone(o.value), nil
}

func (b *Buffer) Write(key, value []byte) error {
	return b.stage(key, staged{value: bytes.Clone(value)})
}

func (b *Buffer) Remove(key []byte) error {
	return b.stage(key, staged{removed: true})
}

func (b *Buffer) stage(key []byte, s staged) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.writes[string(key)] = s
	return nil
}

// Commit validates the read set with load and hands the staged writes, in key
// order, to set and remove. The caller provides the mutual exclusion that
// makes validate-then-apply atomic. The buffer is closed afterwards.
func (b *Buffer) Commit(
	load func(key []byte) ([]byte, bool, error),
	set func(key, value []byte) error,
	remove func(key []byte) error,
) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.closed = true

	for k, o := range b.reads {
		value, found, err := load([]byte(k))
		if err != nil {
			return err
		}
		if found != o.found || (found && !bytes.Equal(value, o.value)) {
			return fmt.Errorf("%w: key %x changed", ErrConflict, k)
		}
	}

	keys := make([]string, 0, len(b.writes))
	for k := range b.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		w := b.writes[k]
		var err error
		if w.removed {
			err = remove([]byte(k))
		} else {
			err = set([]byte(k), w.value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Discard closes the buffer.
func (b *Buffer) Discard() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

// Empty reports whether nothing was staged.
func (b *Buffer) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.writes) == 0
}
