package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PlatformLab/Ramdis/internal/rootrec"
)

func strs(elems [][]byte) []string {
	out := make([]string, len(elems))
	for i, e := range elems {
		out[i] = string(e)
	}
	return out
}

func TestEngine_Range(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	_, err := e.Range(ctx, []byte("k"), 0, -1)
	require.ErrorIs(t, err, ErrNotFound)

	for _, v := range []string{"a", "b", "c", "d", "e"} {
		_, err := e.PushTail(ctx, []byte("k"), []byte(v))
		require.NoError(t, err)
	}

	tests := []struct {
		start, end int64
		want       []string
	}{
		{0, -1, []string{"a", "b", "c", "d", "e"}},
		{1, 2, []string{"b", "c"}},
		{-2, -1, []string{"d", "e"}},
		{3, 100, []string{"d", "e"}},
		{-100, 0, []string{"a"}},
		{-100, 100, []string{"a", "b", "c", "d", "e"}},
		{3, 1, []string{"d"}},
		{10, 20, []string{"e"}},
		{2, 2, []string{"c"}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d..%d", tt.start, tt.end), func(t *testing.T) {
			got, err := e.Range(ctx, []byte("k"), tt.start, tt.end)
			require.NoError(t, err)
			require.Equal(t, tt.want, strs(got))
		})
	}
}

func TestEngine_RangeEmpty(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	_, err := e.PushHead(ctx, []byte("k"), []byte("a"))
	require.NoError(t, err)
	_, err = e.PopHead(ctx, []byte("k"))
	require.NoError(t, err)

	got, err := e.Range(ctx, []byte("k"), 0, -1)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

// Ranges crossing segment boundaries from both growth fronts.
func TestEngine_RangeAcrossSegments(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, WithSegmentSize(1024))

	var want []string
	for i := 0; i < 60; i++ {
		v := fmt.Sprintf("%03d-%0100d", i, 0)
		if i%2 == 0 {
			_, err := e.PushTail(ctx, []byte("k"), []byte(v))
			require.NoError(t, err)
			want = append(want, v)
		} else {
			_, err := e.PushHead(ctx, []byte("k"), []byte(v))
			require.NoError(t, err)
			want = append([]string{v}, want...)
		}
	}
	require.Greater(t, len(getRoot(t, store, "k").Entries), 4)

	n := int64(len(want))
	for start := int64(0); start < n; start += 7 {
		for end := start; end < n; end += 11 {
			got, err := e.Range(ctx, []byte("k"), start, end)
			require.NoError(t, err)
			require.Equal(t, want[start:end+1], strs(got), "range %d..%d", start, end)
		}
	}
}

func TestRange_Plan(t *testing.T) {
	entries := []rootrec.Descriptor{
		{ID: 2, Count: 3},
		{ID: 1, Count: 0},
		{ID: 0, Count: 4},
		{ID: -1, Count: 2},
	}

	require.Equal(t, []span{
		{desc: entries[0], from: 1, to: 2},
		{desc: entries[2], from: 0, to: 1},
	}, plan(entries, 1, 4))

	require.Equal(t, []span{{desc: entries[3], from: 1, to: 1}}, plan(entries, 8, 8))
	require.Equal(t, []span{{desc: entries[2], from: 0, to: 3}}, plan(entries, 3, 6))
}

func TestRange_Clamp(t *testing.T) {
	tests := []struct{ i, n, want int64 }{
		{0, 5, 0},
		{-1, 5, 4},
		{-5, 5, 0},
		{-6, 5, 0},
		{5, 5, 4},
		{2, 5, 2},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, clamp(tt.i, tt.n), "clamp(%d, %d)", tt.i, tt.n)
	}
}
