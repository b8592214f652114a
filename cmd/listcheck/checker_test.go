package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/PlatformLab/Ramdis/internal/checker"
	"github.com/PlatformLab/Ramdis/internal/engine"
	"github.com/PlatformLab/Ramdis/internal/substrate/memory"
)

func TestListChecker_Run(t *testing.T) {
	logger := zaptest.NewLogger(t)
	e := engine.New(memory.New(nil), logger, engine.WithSegmentSize(1<<10))

	c := newListChecker(e, 3, logger)
	require.NoError(t, c.run(context.Background(), 200*time.Millisecond, 3, 2))
	require.Zero(t, c.ledger.Outstanding())
}

func TestListChecker_PushPop(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	c := newListChecker(engine.New(memory.New(nil), logger), 1, logger)

	d, err := c.source(ctx)
	require.NoError(t, err)
	require.Equal(t, statePush, d.NextState)

	d, err = c.push(ctx, d)
	require.NoError(t, err)
	require.Equal(t, statePop, d.NextState)
	require.Equal(t, 1, c.ledger.Outstanding())

	after, err := c.pop(ctx, d)
	require.NoError(t, err)
	require.Empty(t, after.NextState)
	require.Equal(t, d.Data.(item).value, after.Data.(popped).value)
	require.NoError(t, c.checkPop(d, after))
	require.Zero(t, c.ledger.Outstanding())

	// a second pop finds the list empty
	after, err = c.pop(ctx, d)
	require.NoError(t, err)
	require.Empty(t, after.Data.(popped).value)
	require.NoError(t, c.checkPop(d, after))

	require.Error(t, c.checkPop(d, checker.DataToBeVerified{Data: popped{value: "stranger"}}))
}

func TestListChecker_SourceDone(t *testing.T) {
	logger := zaptest.NewLogger(t)
	c := newListChecker(engine.New(memory.New(nil), logger), 0, logger)
	require.Equal(t, 1, c.lists)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.source(ctx)
	require.ErrorIs(t, err, checker.ErrSourceDone)
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := retry(ctx, func() error {
		calls++
		if calls < 3 {
			return engine.ErrRetryable
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)

	calls = 0
	err = retry(ctx, func() error {
		calls++
		return engine.ErrRetryable
	})
	require.ErrorIs(t, err, engine.ErrRetryable)
	require.Equal(t, maxAttempts, calls)

	calls = 0
	err = retry(ctx, func() error {
		calls++
		return engine.ErrListFull
	})
	require.ErrorIs(t, err, engine.ErrListFull)
	require.Equal(t, 1, calls)
}
