package checker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLedger(t *testing.T) {
	l := NewLedger()

	l.Announce("a")
	l.Announce("b")
	l.Announce("c")
	l.Pushed("a")
	l.Abandon("c")

	// b is popped before its pusher confirms
	require.NoError(t, l.Popped("b"))
	l.Pushed("b")
	require.Equal(t, 1, l.Outstanding())

	require.ErrorIs(t, l.Popped("c"), ErrUnknownValue)
	require.ErrorIs(t, l.Popped("zzz"), ErrUnknownValue)

	err := l.Verify()
	require.Error(t, err)
	require.Contains(t, err.Error(), "1 values lost: a")

	require.NoError(t, l.Popped("a"))
	require.NoError(t, l.Verify())
	require.Zero(t, l.Outstanding())

	require.Error(t, l.Popped("a"))
	err = l.Verify()
	require.Error(t, err)
	require.Contains(t, err.Error(), "1 values duplicated: a")
}
