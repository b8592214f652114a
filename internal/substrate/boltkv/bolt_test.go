package boltkv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/PlatformLab/Ramdis/internal/substrate"
	"github.com/PlatformLab/Ramdis/internal/substrate/substratetest"
)

func TestStore_Conformance(t *testing.T) {
	substratetest.Run(t, func(t *testing.T) substrate.Substrate {
		s, err := Open(filepath.Join(t.TempDir(), "ramdis.db"), zaptest.NewLogger(t))
		require.NoError(t, err)
		return s
	})
}

func TestStore_EmptyValue(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "ramdis.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(ctx, []byte("k"), []byte{}))
	v, err := s.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.Empty(t, v)

	_, err = s.Get(ctx, []byte("j"))
	require.ErrorIs(t, err, substrate.ErrNotFound)
	_, err = s.Get(ctx, []byte("k0"))
	require.ErrorIs(t, err, substrate.ErrNotFound)
}
