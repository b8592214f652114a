package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/PlatformLab/Ramdis/internal/config"
	"github.com/PlatformLab/Ramdis/internal/engine"
)

func TestNewEngine(t *testing.T) {
	ctx := context.Background()
	for _, name := range []string{config.BackendMemory, config.BackendBadger, config.BackendPebble, config.BackendBolt} {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Backend = name
			if name == config.BackendBolt {
				cfg.Path = filepath.Join(t.TempDir(), "ramdis.db")
			}
			cfg.MaxKeySize = 8

			e, db, err := NewEngine(cfg, zaptest.NewLogger(t))
			require.NoError(t, err)
			defer db.Close()

			total, err := e.PushTail(ctx, []byte("k"), []byte("v"))
			require.NoError(t, err)
			require.EqualValues(t, 1, total)

			_, err = e.PushTail(ctx, []byte("longer than eight"), []byte("v"))
			require.ErrorIs(t, err, engine.ErrKeyTooLarge)
		})
	}
}

func TestOpen_Unknown(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "redis"
	_, err := Open(cfg, zaptest.NewLogger(t))
	require.Error(t, err)
}
