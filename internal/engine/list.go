package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/PlatformLab/Ramdis/internal/rootrec"
	"github.com/PlatformLab/Ramdis/internal/segment"
	"github.com/PlatformLab/Ramdis/internal/substrate"
)

// PushHead prepends value to the list at key, creating the list when key does
// not exist. Returns the new length.
func (e *Engine) PushHead(ctx context.Context, key, value []byte) (uint64, error) {
	return e.push(ctx, "lpush", rootrec.Head, key, value)
}

// PushTail appends value to the list at key, creating the list when key does
// not exist. Returns the new length.
func (e *Engine) PushTail(ctx context.Context, key, value []byte) (uint64, error) {
	return e.push(ctx, "rpush", rootrec.Tail, key, value)
}

func (e *Engine) push(ctx context.Context, op string, end rootrec.End, key, value []byte) (total uint64, err error) {
	defer func(start time.Time) { e.metrics.observe(op, start, err) }(time.Now())

	if len(value) > segment.MaxElementSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrElementTooLarge, len(value))
	}
	rootKey, err := e.keys.Root(key)
	if err != nil {
		return 0, err
	}

	err = e.update(ctx, op, key, func(tx substrate.Transaction) error {
		r, _, err := e.readList(tx, rootKey)
		if err != nil {
			return err
		}

		var elems [][]byte
		i, ok := r.Front(end)
		switch {
		case !ok || e.segmentFull(r.Entries[i]):
			id, err := r.NextID(end)
			if errors.Is(err, rootrec.ErrFull) {
				return fmt.Errorf("%w: %w", ErrListFull, err)
			}
			r = r.Grow(end, rootrec.Descriptor{ID: id})
			i, _ = r.Front(end)
			elems = [][]byte{value}
		case r.Entries[i].Count == 0:
			elems = [][]byte{value}
		default:
			d := r.Entries[i]
			old, err := e.readSegment(tx, key, d, 0, int(d.Count)-1)
			if err != nil {
				return err
			}
			if end == rootrec.Head {
				elems = append([][]byte{value}, old...)
			} else {
				elems = append(old, value)
			}
		}

		buf, err := segment.Encode(elems)
		if err != nil {
			return err
		}
		d := r.Entries[i]
		d.Count = uint16(len(elems))
		d.SizeKb = segment.SizeKb(len(buf))
		r = r.Replace(i, d)

		segKey, err := e.keys.Segment(key, d.ID)
		if err != nil {
			return err
		}
		if err := tx.Write(segKey, buf); err != nil {
			return err
		}
		if err := tx.Write(rootKey, rootrec.Encode(r)); err != nil {
			return err
		}
		total = r.Len()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// segmentFull reports whether the front segment d must not take more pushes.
func (e *Engine) segmentFull(d rootrec.Descriptor) bool {
	return d.SizeKb >= e.thresholdKb || d.Count == math.MaxUint16
}

// PopHead removes and returns the first element of the list at key.
func (e *Engine) PopHead(ctx context.Context, key []byte) ([]byte, error) {
	return e.pop(ctx, "lpop", rootrec.Head, key)
}

// PopTail removes and returns the last element of the list at key.
func (e *Engine) PopTail(ctx context.Context, key []byte) ([]byte, error) {
	return e.pop(ctx, "rpop", rootrec.Tail, key)
}

// pop takes one element from end. Emptied segments are dropped from the
// index and left in the substrate; an index that holds no elements is
// rewritten in canonical form before ErrListEmpty is returned.
func (e *Engine) pop(ctx context.Context, op string, end rootrec.End, key []byte) (value []byte, err error) {
	defer func(start time.Time) { e.metrics.observe(op, start, err) }(time.Now())

	rootKey, err := e.keys.Root(key)
	if err != nil {
		return nil, err
	}

	var empty bool
	err = e.update(ctx, op, key, func(tx substrate.Transaction) error {
		value, empty = nil, false

		r, found, err := e.readList(tx, rootKey)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}

		trimmed := r.TrimEmpty(end)
		if len(trimmed.Entries) == 0 {
			empty = true
			if r.IsCanonical() {
				return nil
			}
			e.sugar.Debugw("canonicalising empty list index", "key", string(key), "entries", len(r.Entries))
			return tx.Write(rootKey, rootrec.Encode(rootrec.Canonical()))
		}

		i, _ := trimmed.Front(end)
		d := trimmed.Entries[i]
		elems, err := e.readSegment(tx, key, d, 0, int(d.Count)-1)
		if err != nil {
			return err
		}
		var rest [][]byte
		if end == rootrec.Head {
			value, rest = elems[0], elems[1:]
		} else {
			value, rest = elems[len(elems)-1], elems[:len(elems)-1]
		}

		var next rootrec.Record
		switch {
		case len(rest) == 0 && trimmed.Len() == 1:
			next = rootrec.Canonical()
		case len(rest) == 0:
			next = trimmed.Drop(end, 1).TrimEmpty(end)
		default:
			buf, err := segment.Encode(rest)
			if err != nil {
				return err
			}
			segKey, err := e.keys.Segment(key, d.ID)
			if err != nil {
				return err
			}
			if err := tx.Write(segKey, buf); err != nil {
				return err
			}
			d.Count = uint16(len(rest))
			d.SizeKb = segment.SizeKb(len(buf))
			next = trimmed.Replace(i, d)
		}
		return tx.Write(rootKey, rootrec.Encode(next))
	})
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, ErrListEmpty
	}
	return value, nil
}

// Len returns the number of elements of the list at key, 0 when key does not
// exist.
func (e *Engine) Len(ctx context.Context, key []byte) (n uint64, err error) {
	defer func(start time.Time) { e.metrics.observe("llen", start, err) }(time.Now())

	rootKey, err := e.keys.Root(key)
	if err != nil {
		return 0, err
	}
	buf, err := e.db.Get(ctx, rootKey)
	if errors.Is(err, substrate.ErrNotFound) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	r, err := rootrec.Decode(buf)
	if err != nil {
		err = corrupt(nil, err)
		e.reportCorrupt("llen", key, err)
		return 0, err
	}
	if r.Type != rootrec.TypeList {
		return 0, ErrWrongType
	}
	return r.Len(), nil
}
