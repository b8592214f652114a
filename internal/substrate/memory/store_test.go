package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/PlatformLab/Ramdis/internal/substrate"
	"github.com/PlatformLab/Ramdis/internal/substrate/substratetest"
)

func TestStore_Conformance(t *testing.T) {
	substratetest.Run(t, func(t *testing.T) substrate.Substrate {
		return New(zaptest.NewLogger(t))
	})
}

// A rewrite of the same value still moves the version.
func TestStore_ConflictOnSameValue(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	require.NoError(t, s.Put(ctx, []byte("k"), []byte("v")))

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Read([]byte("k"))
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, []byte("k"), []byte("v")))
	require.ErrorIs(t, tx.Commit(), substrate.ErrConflict)
}

func TestStore_Keys(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	for _, k := range []string{"a", "b1", "b2", "b3", "c"} {
		require.NoError(t, s.Put(ctx, []byte(k), []byte(k)))
	}
	require.Equal(t, 5, s.Len())

	require.Equal(t, [][]byte{[]byte("b1"), []byte("b2"), []byte("b3")}, s.Keys([]byte("b")))
	require.Empty(t, s.Keys([]byte("d")))
	require.Len(t, s.Keys(nil), 5)

	require.True(t, s.Remove([]byte("b2")))
	require.False(t, s.Remove([]byte("b2")))
	require.Equal(t, [][]byte{[]byte("b1"), []byte("b3")}, s.Keys([]byte("b")))
}

func TestStore_Isolation(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	value := []byte("v")
	require.NoError(t, s.Put(ctx, []byte("k"), value))
	value[0] = 'x'

	got, err := s.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)

	got[0] = 'y'
	got, err = s.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
}

func TestStore_String(t *testing.T) {
	s := New(nil)
	require.Equal(t, "RedBlackTree\n", s.String())

	require.NoError(t, s.Put(context.Background(), []byte{0xab}, []byte("v")))
	require.Contains(t, s.String(), "B ab v1")
}
