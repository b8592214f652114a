package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/PlatformLab/Ramdis/internal/substrate"
	"github.com/PlatformLab/Ramdis/internal/substrate/badgerkv"
	"github.com/PlatformLab/Ramdis/internal/substrate/boltkv"
	"github.com/PlatformLab/Ramdis/internal/substrate/memory"
	"github.com/PlatformLab/Ramdis/internal/substrate/pebblekv"
)

var backends = []struct {
	name string
	open func(t *testing.T) substrate.Substrate
}{
	{"memory", func(t *testing.T) substrate.Substrate {
		return memory.New(zaptest.NewLogger(t))
	}},
	{"badger", func(t *testing.T) substrate.Substrate {
		s, err := badgerkv.Open("", zaptest.NewLogger(t))
		require.NoError(t, err)
		return s
	}},
	{"pebble", func(t *testing.T) substrate.Substrate {
		s, err := pebblekv.Open("", zaptest.NewLogger(t))
		require.NoError(t, err)
		return s
	}},
	{"bolt", func(t *testing.T) substrate.Substrate {
		s, err := boltkv.Open(filepath.Join(t.TempDir(), "ramdis.db"), zaptest.NewLogger(t))
		require.NoError(t, err)
		return s
	}},
}

func forEachBackend(t *testing.T, fn func(t *testing.T, e *Engine)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			db := b.open(t)
			t.Cleanup(func() { _ = db.Close() })
			fn(t, New(db, zaptest.NewLogger(t), WithSegmentSize(1024), WithRetryBackoff(50*time.Microsecond)))
		})
	}
}

// retry repeats fn while it reports ErrRetryable.
func retry[T any](fn func() (T, error)) (T, error) {
	for {
		v, err := fn()
		if !errors.Is(err, ErrRetryable) {
			return v, err
		}
	}
}

func TestBackends_DequeLaw(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		ctx := context.Background()
		k := []byte("deque")

		const n = 120
		for i := 0; i < n; i++ {
			total, err := e.PushTail(ctx, k, []byte(fmt.Sprintf("%03d-%090d", i, i)))
			require.NoError(t, err)
			require.EqualValues(t, i+1, total)
		}
		all, err := e.Range(ctx, k, 0, -1)
		require.NoError(t, err)
		require.Len(t, all, n)

		for i := 0; i < n; i++ {
			v, err := e.PopHead(ctx, k)
			require.NoError(t, err)
			require.Equal(t, fmt.Sprintf("%03d-%090d", i, i), string(v))
		}
		_, err = e.PopHead(ctx, k)
		require.ErrorIs(t, err, ErrListEmpty)
		_, err = e.PopTail(ctx, k)
		require.ErrorIs(t, err, ErrListEmpty)

		removed, err := e.Del(ctx, k)
		require.NoError(t, err)
		require.Equal(t, 1, removed)
		_, err = e.Range(ctx, k, 0, -1)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestBackends_ConcurrentPush(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		ctx := context.Background()
		k := []byte("race")

		// two pushes against an empty list
		var wg sync.WaitGroup
		for _, v := range []string{"v1", "v2"} {
			wg.Add(1)
			go func(v string) {
				defer wg.Done()
				_, err := retry(func() (uint64, error) { return e.PushTail(ctx, k, []byte(v)) })
				assert.NoError(t, err)
			}(v)
		}
		wg.Wait()

		got, err := e.Range(ctx, k, 0, -1)
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"v1", "v2"}, strs(got))

		// many writers on both ends, readers in between
		const workers, rounds = 6, 15
		var want []string
		var mu sync.Mutex
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for r := 0; r < rounds; r++ {
					v := uuid.NewString()
					push := e.PushTail
					if (w+r)%2 == 0 {
						push = e.PushHead
					}
					_, err := retry(func() (uint64, error) { return push(ctx, k, []byte(v)) })
					if !assert.NoError(t, err) {
						return
					}
					mu.Lock()
					want = append(want, v)
					mu.Unlock()

					_, err = retry(func() ([][]byte, error) { return e.Range(ctx, k, 0, -1) })
					assert.NoError(t, err)
				}
			}(w)
		}
		wg.Wait()

		got, err = e.Range(ctx, k, 0, -1)
		require.NoError(t, err)
		gotStrs := strs(got)
		want = append(want, "v1", "v2")
		sort.Strings(want)
		sort.Strings(gotStrs)
		require.Equal(t, want, gotStrs)

		l, err := e.Len(ctx, k)
		require.NoError(t, err)
		require.EqualValues(t, len(want), l)
	})
}

func TestBackends_ConcurrentPop(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		ctx := context.Background()
		k := []byte("drain")

		const n = 80
		for i := 0; i < n; i++ {
			_, err := e.PushTail(ctx, k, []byte(fmt.Sprintf("%02d", i)))
			require.NoError(t, err)
		}

		var mu sync.Mutex
		seen := map[string]int{}
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				pop := e.PopHead
				if w%2 == 1 {
					pop = e.PopTail
				}
				for {
					v, err := retry(func() ([]byte, error) { return pop(ctx, k) })
					if errors.Is(err, ErrListEmpty) {
						return
					}
					if !assert.NoError(t, err) {
						return
					}
					mu.Lock()
					seen[string(v)]++
					mu.Unlock()
				}
			}(w)
		}
		wg.Wait()

		require.Len(t, seen, n)
		for v, c := range seen {
			require.Equal(t, 1, c, "popped %s", v)
		}
	})
}

func TestBackends_ConcurrentIncr(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		ctx := context.Background()
		require.NoError(t, e.Set(ctx, []byte("n"), []byte("0")))

		const workers, rounds = 6, 20
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for r := 0; r < rounds; r++ {
					_, err := e.IncrBy(ctx, []byte("n"), 2)
					assert.NoError(t, err)
				}
			}()
		}
		wg.Wait()

		v, err := e.Get(ctx, []byte("n"))
		require.NoError(t, err)
		require.Equal(t, fmt.Sprint(2*workers*rounds), string(v))

		_, err = e.PushTail(ctx, []byte("l"), []byte("x"))
		require.NoError(t, err)
		_, err = e.Incr(ctx, []byte("l"))
		require.ErrorIs(t, err, ErrWrongType)
		_, err = e.Incr(ctx, []byte("missing"))
		require.ErrorIs(t, err, ErrNotFound)
	})
}
