package engine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/PlatformLab/Ramdis/internal/rootrec"
	"github.com/PlatformLab/Ramdis/internal/substrate"
)

// span the part of one segment a range covers, local element indices
type span struct {
	desc     rootrec.Descriptor
	from, to int
}

// Range returns the elements between start and end, both inclusive. Negative
// indices count from the tail, -1 being the last element. Both bounds are
// clamped into the list; an end before start selects the element at start.
func (e *Engine) Range(ctx context.Context, key []byte, start, end int64) (elems [][]byte, err error) {
	defer func(t time.Time) { e.metrics.observe("lrange", t, err) }(time.Now())

	rootKey, err := e.keys.Root(key)
	if err != nil {
		return nil, err
	}

	err = e.update(ctx, "lrange", key, func(tx substrate.Transaction) error {
		elems = nil

		r, found, err := e.readList(tx, rootKey)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		n := int64(r.Len())
		if n == 0 {
			elems = [][]byte{}
			return nil
		}

		from, to := clamp(start, n), clamp(end, n)
		if to < from {
			to = from
		}
		spans := plan(r.Entries, from, to)

		parts := make([][][]byte, len(spans))
		g, gctx := errgroup.WithContext(ctx)
		for i, s := range spans {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				part, err := e.readSegment(tx, key, s.desc, s.from, s.to)
				parts[i] = part
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		elems = make([][]byte, 0, to-from+1)
		for _, part := range parts {
			elems = append(elems, part...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return elems, nil
}

// clamp resolves a Redis index against a list of n elements into [0, n-1].
func clamp(i, n int64) int64 {
	if i < 0 {
		i += n
	}
	switch {
	case i < 0:
		return 0
	case i >= n:
		return n - 1
	}
	return i
}

// plan walks the index once and returns the segments covering the absolute
// elements [from, to] in list order.
func plan(entries []rootrec.Descriptor, from, to int64) []span {
	var spans []span
	var offset int64
	for _, d := range entries {
		if offset > to {
			break
		}
		count := int64(d.Count)
		first, last := offset, offset+count-1
		offset += count
		if count == 0 || last < from {
			continue
		}
		spans = append(spans, span{
			desc: d,
			from: int(max(from, first) - first),
			to:   int(min(to, last) - first),
		})
	}
	return spans
}
