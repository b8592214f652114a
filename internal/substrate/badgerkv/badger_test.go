package badgerkv

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
		s, err := Open("", zaptest.NewLogger(t))
		require.NoError(t, err)
		return s
	})
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, []byte("k"), []byte("v")))
	require.NoError(t, s.Close())

	s, err = Open(dir, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()
	v, err := s.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)
}
