// Package engine implements Redis-style scalar and list commands on top of a
// transactional key-value substrate.
//
// A user key owns one root record and, when it holds a list, a set of
// segment records named by the root's index. Every operation that touches
// more than one record runs in a single optimistic substrate transaction.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"lukechampine.com/frand"

	"github.com/PlatformLab/Ramdis/internal/keys"
	"github.com/PlatformLab/Ramdis/internal/rootrec"
	"github.com/PlatformLab/Ramdis/internal/segment"
	"github.com/PlatformLab/Ramdis/internal/substrate"
)

const (
	DefaultSegmentSize  = 5 << 10
	DefaultRetries      = 3
	DefaultRetryBackoff = time.Millisecond

	maxBackoffFactor = 64
)

// Engine the list engine, thread safe
type Engine struct {
	db      substrate.Substrate
	keys    keys.Encoder
	sugar   *zap.SugaredLogger
	metrics *Metrics

	thresholdKb uint8
	retries     int
	backoff     time.Duration

	gets singleflight.Group
}

type Option func(e *Engine)

// WithSegmentSize sets the encoded size, in bytes, at which a front segment
// stops taking pushes. Rounded down to whole KiB, at least 1 KiB.
func WithSegmentSize(size int) Option {
	return func(e *Engine) {
		kb := size / 1024
		switch {
		case kb < 1:
			kb = 1
		case kb > math.MaxUint8:
			kb = math.MaxUint8
		}
		e.thresholdKb = uint8(kb)
	}
}

func WithMaxKeySize(size int) Option {
	return func(e *Engine) {
		e.keys = keys.NewEncoder(size)
	}
}

// WithRetries sets how many times a conflicting commit is retried. 0 surfaces
// the first conflict as ErrRetryable.
func WithRetries(n int) Option {
	return func(e *Engine) {
		if n < 0 {
			n = 0
		}
		e.retries = n
	}
}

func WithRetryBackoff(d time.Duration) Option {
	return func(e *Engine) {
		e.backoff = d
	}
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New make new engine over db
func New(db substrate.Substrate, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		db:      db,
		keys:    keys.NewEncoder(keys.DefaultMaxUserKeySize),
		sugar:   logger.Sugar(),
		retries: DefaultRetries,
		backoff: DefaultRetryBackoff,
	}
	WithSegmentSize(DefaultSegmentSize)(e)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// update runs fn in a transaction and commits it, retrying conflicts with
// backoff. fn is called once per attempt and must reset anything it captures.
func (e *Engine) update(ctx context.Context, op string, key []byte, fn func(tx substrate.Transaction) error) error {
	wait := e.backoff
	for attempt := 0; ; attempt++ {
		err := e.attempt(ctx, op, key, fn)
		if !errors.Is(err, substrate.ErrConflict) {
			return err
		}

		e.metrics.conflict(op)
		if attempt >= e.retries {
			return fmt.Errorf("%w: %s after %d attempts: %w", ErrRetryable, op, attempt+1, err)
		}
		e.sugar.Debugw("commit conflict, retrying", "op", op, "key", string(key), "attempt", attempt+1)

		if err := sleep(ctx, jitter(wait)); err != nil {
			return err
		}
		if wait < e.backoff*maxBackoffFactor {
			wait *= 2
		}
	}
}

func (e *Engine) attempt(ctx context.Context, op string, key []byte, fn func(tx substrate.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Discard()

	if err := fn(tx); err != nil {
		if errors.Is(err, ErrCorrupt) {
			// Reads are validated only at commit, so a layout mismatch may come
			// from a concurrent writer. fn stages nothing before it fails.
			if cerr := tx.Commit(); errors.Is(cerr, substrate.ErrConflict) {
				return cerr
			}
			e.reportCorrupt(op, key, err)
		}
		return err
	}
	return tx.Commit()
}

func (e *Engine) reportCorrupt(op string, key []byte, err error) {
	e.metrics.corrupt(op)

	var c *corruption
	if errors.As(err, &c) && c.desc != nil {
		e.sugar.Errorw("corrupt list record", "op", op, "key", string(key), "descriptor", c.desc.String(), "error", err)
		return
	}
	e.sugar.Errorw("corrupt root record", "op", op, "key", string(key), "error", err)
}

func jitter(d time.Duration) time.Duration {
	if d <= 1 {
		return d
	}
	half := d / 2
	return half + time.Duration(frand.Uint64n(uint64(d-half)))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// readRoot reads and decodes the root record of key. found is false when the
// key does not exist.
func (e *Engine) readRoot(tx substrate.Transaction, rootKey keys.Key) (r rootrec.Record, found bool, err error) {
	buf, err := tx.Read(rootKey)
	if errors.Is(err, substrate.ErrNotFound) {
		return rootrec.Record{}, false, nil
	} else if err != nil {
		return rootrec.Record{}, false, err
	}
	r, err = rootrec.Decode(buf)
	if err != nil {
		return rootrec.Record{}, false, corrupt(nil, err)
	}
	return r, true, nil
}

// readList reads the root of key as a list. An absent key reads as an empty
// list with found false.
func (e *Engine) readList(tx substrate.Transaction, rootKey keys.Key) (rootrec.Record, bool, error) {
	r, found, err := e.readRoot(tx, rootKey)
	if err != nil {
		return r, false, err
	}
	if !found {
		return rootrec.NewList(), false, nil
	}
	if r.Type != rootrec.TypeList {
		return r, true, ErrWrongType
	}
	return r, true, nil
}

// readSegment returns elements [from, to] of the segment d describes.
func (e *Engine) readSegment(tx substrate.Transaction, key []byte, d rootrec.Descriptor, from, to int) ([][]byte, error) {
	segKey, err := e.keys.Segment(key, d.ID)
	if err != nil {
		return nil, err
	}
	buf, err := tx.Read(segKey)
	if errors.Is(err, substrate.ErrNotFound) {
		return nil, corrupt(&d, errors.New("segment record missing"))
	} else if err != nil {
		return nil, err
	}
	elems, err := segment.Slice(buf, int(d.Count), from, to)
	if errors.Is(err, segment.ErrOutOfRange) {
		return nil, err
	} else if err != nil {
		return nil, corrupt(&d, err)
	}
	return elems, nil
}
