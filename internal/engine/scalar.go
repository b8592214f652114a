package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/PlatformLab/Ramdis/internal/keys"
	"github.com/PlatformLab/Ramdis/internal/rootrec"
	"github.com/PlatformLab/Ramdis/internal/substrate"
)

// Get returns the scalar value of key. Concurrent gets of one key share a
// single substrate read, which a cancelled caller does not cancel for the
// others.
func (e *Engine) Get(ctx context.Context, key []byte) (value []byte, err error) {
	defer func(start time.Time) { e.metrics.observe("get", start, err) }(time.Now())

	rootKey, err := e.keys.Root(key)
	if err != nil {
		return nil, err
	}
	shared := context.WithoutCancel(ctx)
	ch := e.gets.DoChan(string(rootKey), func() (interface{}, error) {
		buf, err := e.db.Get(shared, rootKey)
		if errors.Is(err, substrate.ErrNotFound) {
			return nil, ErrNotFound
		} else if err != nil {
			return nil, err
		}
		r, err := rootrec.Decode(buf)
		if err != nil {
			err = corrupt(nil, err)
			e.reportCorrupt("get", key, err)
			return nil, err
		}
		if r.Type != rootrec.TypeScalar {
			return nil, ErrWrongType
		}
		return r.Value, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	return bytes.Clone(res.Val.([]byte)), nil
}

// Set stores value under key, replacing whatever key held. The segments of a
// replaced list are left behind.
func (e *Engine) Set(ctx context.Context, key, value []byte) (err error) {
	defer func(start time.Time) { e.metrics.observe("set", start, err) }(time.Now())

	rootKey, err := e.keys.Root(key)
	if err != nil {
		return err
	}
	return e.db.Put(ctx, rootKey, rootrec.Encode(rootrec.NewScalar(value)))
}

// MSet stores every key/value pair in one transaction.
func (e *Engine) MSet(ctx context.Context, keyList, values [][]byte) (err error) {
	defer func(start time.Time) { e.metrics.observe("mset", start, err) }(time.Now())

	if len(keyList) != len(values) {
		return fmt.Errorf("mset: %d keys for %d values", len(keyList), len(values))
	}
	rootKeys := make([]keys.Key, len(keyList))
	for i, k := range keyList {
		if rootKeys[i], err = e.keys.Root(k); err != nil {
			return err
		}
	}
	if len(rootKeys) == 0 {
		return nil
	}

	return e.update(ctx, "mset", keyList[0], func(tx substrate.Transaction) error {
		for i, rk := range rootKeys {
			if err := tx.Write(rk, rootrec.Encode(rootrec.NewScalar(values[i]))); err != nil {
				return err
			}
		}
		return nil
	})
}

// Incr adds one to the integer stored at key.
func (e *Engine) Incr(ctx context.Context, key []byte) (int64, error) {
	return e.incrBy(ctx, "incr", key, 1)
}

// IncrBy adds delta to the integer stored at key and returns the result. The
// key must exist and hold a decimal int64.
func (e *Engine) IncrBy(ctx context.Context, key []byte, delta int64) (int64, error) {
	return e.incrBy(ctx, "incrby", key, delta)
}

func (e *Engine) incrBy(ctx context.Context, op string, key []byte, delta int64) (n int64, err error) {
	defer func(start time.Time) { e.metrics.observe(op, start, err) }(time.Now())

	rootKey, err := e.keys.Root(key)
	if err != nil {
		return 0, err
	}
	n, err = e.db.Increment(ctx, rootKey, delta, scalarCounter{})
	switch {
	case errors.Is(err, substrate.ErrNotFound):
		return 0, ErrNotFound
	case errors.Is(err, ErrCorrupt):
		e.reportCorrupt(op, key, err)
		return 0, err
	case err != nil:
		return 0, err
	}
	return n, nil
}

// scalarCounter reads the integer of a scalar root record for the substrate
// increment.
type scalarCounter struct{}

func (scalarCounter) Decode(value []byte) (int64, error) {
	r, err := rootrec.Decode(value)
	if err != nil {
		return 0, corrupt(nil, err)
	}
	if r.Type != rootrec.TypeScalar {
		return 0, ErrWrongType
	}
	return substrate.Decimal{}.Decode(r.Value)
}

func (scalarCounter) Encode(n int64) []byte {
	return rootrec.Encode(rootrec.NewScalar(substrate.Decimal{}.Encode(n)))
}

// Del removes each key together with its list segments and returns how many
// of them existed. Every key is removed in its own transaction.
func (e *Engine) Del(ctx context.Context, keyList ...[]byte) (removed int, err error) {
	defer func(start time.Time) { e.metrics.observe("del", start, err) }(time.Now())

	for _, key := range keyList {
		existed, err := e.del(ctx, key)
		if err != nil {
			return removed, err
		}
		if existed {
			removed++
		}
	}
	return removed, nil
}

func (e *Engine) del(ctx context.Context, key []byte) (existed bool, err error) {
	rootKey, err := e.keys.Root(key)
	if err != nil {
		return false, err
	}
	err = e.update(ctx, "del", key, func(tx substrate.Transaction) error {
		r, found, err := e.readRoot(tx, rootKey)
		existed = found
		if errors.Is(err, ErrCorrupt) {
			// drop the unreadable root, its segments cannot be located
			e.sugar.Warnw("deleting corrupt root record", "key", string(key), "error", err)
			existed = true
			return tx.Remove(rootKey)
		} else if err != nil || !found {
			return err
		}

		for _, d := range r.Entries {
			segKey, err := e.keys.Segment(key, d.ID)
			if err != nil {
				return err
			}
			if err := tx.Remove(segKey); err != nil {
				return err
			}
		}
		return tx.Remove(rootKey)
	})
	return existed, err
}
