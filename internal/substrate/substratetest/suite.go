// Package substratetest checks a substrate implementation against the
// transaction contract the list engine relies on.
package substratetest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/PlatformLab/Ramdis/internal/substrate"
)

// Run runs the conformance checks. open returns a fresh, empty substrate;
// the checks close it.
func Run(t *testing.T, open func(t *testing.T) substrate.Substrate) {
	tests := []struct {
		name string
		fn   func(t *testing.T, db substrate.Substrate)
	}{
		{"GetPut", testGetPut},
		{"ReadYourWrites", testReadYourWrites},
		{"RepeatableRead", testRepeatableRead},
		{"Conflict", testConflict},
		{"ConflictOnAbsentKey", testConflictOnAbsentKey},
		{"Disjoint", testDisjoint},
		{"ReadOnly", testReadOnly},
		{"ReadOnlyConflict", testReadOnlyConflict},
		{"Closed", testClosed},
		{"ParallelReads", testParallelReads},
		{"Counter", testCounter},
		{"Increment", testIncrement},
		{"IncrementConcurrent", testIncrementConcurrent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := open(t)
			t.Cleanup(func() { _ = db.Close() })
			tt.fn(t, db)
		})
	}
}

func testGetPut(t *testing.T, db substrate.Substrate) {
	ctx := context.Background()

	_, err := db.Get(ctx, []byte("k"))
	require.ErrorIs(t, err, substrate.ErrNotFound)

	require.NoError(t, db.Put(ctx, []byte("k"), []byte("v1")))
	require.NoError(t, db.Put(ctx, []byte("k"), []byte("v2")))

	v, err := db.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), v)
}

func testReadYourWrites(t *testing.T, db substrate.Substrate) {
	ctx := context.Background()
	require.NoError(t, db.Put(ctx, []byte("gone"), []byte("x")))

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	defer tx.Discard()

	require.NoError(t, tx.Write([]byte("k"), []byte("v")))
	require.NoError(t, tx.Remove([]byte("gone")))

	v, err := tx.Read([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)
	_, err = tx.Read([]byte("gone"))
	require.ErrorIs(t, err, substrate.ErrNotFound)

	// nothing visible before commit
	_, err = db.Get(ctx, []byte("k"))
	require.ErrorIs(t, err, substrate.ErrNotFound)

	require.NoError(t, tx.Commit())

	v, err = db.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)
	_, err = db.Get(ctx, []byte("gone"))
	require.ErrorIs(t, err, substrate.ErrNotFound)
}

func testRepeatableRead(t *testing.T, db substrate.Substrate) {
	ctx := context.Background()
	require.NoError(t, db.Put(ctx, []byte("k"), []byte("old")))

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	defer tx.Discard()

	v, err := tx.Read([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("old"), v)

	require.NoError(t, db.Put(ctx, []byte("k"), []byte("new")))

	v, err = tx.Read([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("old"), v)
	require.ErrorIs(t, tx.Commit(), substrate.ErrConflict)
}

func testConflict(t *testing.T, db substrate.Substrate) {
	ctx := context.Background()
	require.NoError(t, db.Put(ctx, []byte("k"), []byte("0")))

	first, err := db.Begin(ctx)
	require.NoError(t, err)
	defer first.Discard()
	second, err := db.Begin(ctx)
	require.NoError(t, err)
	defer second.Discard()

	_, err = first.Read([]byte("k"))
	require.NoError(t, err)
	_, err = second.Read([]byte("k"))
	require.NoError(t, err)

	require.NoError(t, second.Write([]byte("k"), []byte("second")))
	require.NoError(t, second.Commit())

	require.NoError(t, first.Write([]byte("k"), []byte("first")))
	require.ErrorIs(t, first.Commit(), substrate.ErrConflict)

	v, err := db.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("second"), v)
}

func testConflictOnAbsentKey(t *testing.T, db substrate.Substrate) {
	ctx := context.Background()

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	defer tx.Discard()

	_, err = tx.Read([]byte("k"))
	require.ErrorIs(t, err, substrate.ErrNotFound)

	require.NoError(t, db.Put(ctx, []byte("k"), []byte("created")))

	require.NoError(t, tx.Write([]byte("k"), []byte("mine")))
	require.ErrorIs(t, tx.Commit(), substrate.ErrConflict)
}

func testDisjoint(t *testing.T, db substrate.Substrate) {
	ctx := context.Background()

	a, err := db.Begin(ctx)
	require.NoError(t, err)
	defer a.Discard()
	b, err := db.Begin(ctx)
	require.NoError(t, err)
	defer b.Discard()

	_, err = a.Read([]byte("a"))
	require.ErrorIs(t, err, substrate.ErrNotFound)
	_, err = b.Read([]byte("b"))
	require.ErrorIs(t, err, substrate.ErrNotFound)

	require.NoError(t, a.Write([]byte("a"), []byte("1")))
	require.NoError(t, b.Write([]byte("b"), []byte("2")))
	require.NoError(t, b.Commit())
	require.NoError(t, a.Commit())
}

func testReadOnly(t *testing.T, db substrate.Substrate) {
	ctx := context.Background()
	require.NoError(t, db.Put(ctx, []byte("k"), []byte("v")))

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	defer tx.Discard()

	v, err := tx.Read([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)
	require.NoError(t, tx.Commit())
}

// A transaction that only reads still fails when a key it read moved, absent
// keys included.
func testReadOnlyConflict(t *testing.T, db substrate.Substrate) {
	ctx := context.Background()
	require.NoError(t, db.Put(ctx, []byte("k"), []byte("v")))

	for _, key := range []string{"k", "absent"} {
		tx, err := db.Begin(ctx)
		require.NoError(t, err)

		_, _ = tx.Read([]byte(key))
		require.NoError(t, db.Put(ctx, []byte(key), []byte("moved")))
		require.ErrorIs(t, tx.Commit(), substrate.ErrConflict, key)
		tx.Discard()
	}
}

func testClosed(t *testing.T, db substrate.Substrate) {
	ctx := context.Background()

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	_, err = tx.Read([]byte("k"))
	require.ErrorIs(t, err, substrate.ErrClosed)
	require.ErrorIs(t, tx.Write([]byte("k"), []byte("v")), substrate.ErrClosed)
	require.ErrorIs(t, tx.Commit(), substrate.ErrClosed)
	tx.Discard()

	tx, err = db.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Write([]byte("k"), []byte("v")))
	tx.Discard()
	require.ErrorIs(t, tx.Commit(), substrate.ErrClosed)

	_, err = db.Get(ctx, []byte("k"))
	require.ErrorIs(t, err, substrate.ErrNotFound, "discarded writes are dropped")
}

func testParallelReads(t *testing.T, db substrate.Substrate) {
	ctx := context.Background()
	const n = 32
	for i := 0; i < n; i++ {
		require.NoError(t, db.Put(ctx, []byte(fmt.Sprintf("k%02d", i)), []byte(strconv.Itoa(i))))
	}

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	defer tx.Discard()

	got := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			v, err := tx.Read([]byte(fmt.Sprintf("k%02d", i)))
			got[i] = string(v)
			return err
		})
	}
	require.NoError(t, g.Wait())
	for i, v := range got {
		require.Equal(t, strconv.Itoa(i), v)
	}
	require.NoError(t, tx.Commit())
}

// testCounter increments one key from several goroutines, retrying on
// conflict. Lost updates show up as a short count.
func testCounter(t *testing.T, db substrate.Substrate) {
	ctx := context.Background()
	const workers, rounds = 8, 25
	key := []byte("counter")

	incr := func() error {
		for {
			tx, err := db.Begin(ctx)
			if err != nil {
				return err
			}
			n := 0
			v, err := tx.Read(key)
			switch {
			case err == nil:
				n, err = strconv.Atoi(string(v))
				if err != nil {
					tx.Discard()
					return err
				}
			case !errors.Is(err, substrate.ErrNotFound):
				tx.Discard()
				return err
			}
			if err := tx.Write(key, []byte(strconv.Itoa(n+1))); err != nil {
				tx.Discard()
				return err
			}
			err = tx.Commit()
			tx.Discard()
			if errors.Is(err, substrate.ErrConflict) {
				continue
			}
			return err
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				if err := incr(); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	v, err := db.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(workers*rounds), string(v))
}

func testIncrement(t *testing.T, db substrate.Substrate) {
	ctx := context.Background()

	_, err := db.Increment(ctx, []byte("n"), 1, substrate.Decimal{})
	require.ErrorIs(t, err, substrate.ErrNotFound)
	_, err = db.Get(ctx, []byte("n"))
	require.ErrorIs(t, err, substrate.ErrNotFound, "not created")

	require.NoError(t, db.Put(ctx, []byte("n"), []byte("40")))
	n, err := db.Increment(ctx, []byte("n"), 2, substrate.Decimal{})
	require.NoError(t, err)
	require.EqualValues(t, 42, n)
	n, err = db.Increment(ctx, []byte("n"), -50, substrate.Decimal{})
	require.NoError(t, err)
	require.EqualValues(t, -8, n)

	v, err := db.Get(ctx, []byte("n"))
	require.NoError(t, err)
	require.Equal(t, "-8", string(v))

	require.NoError(t, db.Put(ctx, []byte("s"), []byte("text")))
	_, err = db.Increment(ctx, []byte("s"), 1, substrate.Decimal{})
	require.ErrorIs(t, err, substrate.ErrNotInteger)
	v, err = db.Get(ctx, []byte("s"))
	require.NoError(t, err)
	require.Equal(t, "text", string(v), "value untouched")

	// an increment moves the key under a transaction that read it
	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	defer tx.Discard()
	_, err = tx.Read([]byte("n"))
	require.NoError(t, err)
	_, err = db.Increment(ctx, []byte("n"), 1, substrate.Decimal{})
	require.NoError(t, err)
	require.NoError(t, tx.Write([]byte("other"), []byte("x")))
	require.ErrorIs(t, tx.Commit(), substrate.ErrConflict)
}

func testIncrementConcurrent(t *testing.T, db substrate.Substrate) {
	ctx := context.Background()
	const workers, rounds = 8, 25
	require.NoError(t, db.Put(ctx, []byte("n"), []byte("0")))

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for r := 0; r < rounds; r++ {
				if _, err := db.Increment(gctx, []byte("n"), 1, substrate.Decimal{}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	v, err := db.Get(ctx, []byte("n"))
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(workers*rounds), string(v))
}
