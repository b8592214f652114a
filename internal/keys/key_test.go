package keys

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKey_NoCollisions(t *testing.T) {
	e := NewEncoder(0)
	users := [][]byte{
		{},
		[]byte("a"),
		[]byte("ab"),
		[]byte("a\x00"),
		[]byte("a\x01\x00\x00"),
		{0, 0, 0, 1},
	}

	seen := make(map[string]string)
	add := func(k Key, what string) {
		prev, ok := seen[string(k)]
		require.False(t, ok, "%s collides with %s", what, prev)
		seen[string(k)] = what
	}

	for _, u := range users {
		root, err := e.Root(u)
		require.NoError(t, err)
		add(root, "root "+string(u))
		for _, id := range []int16{0, 1, -1, 256, -32768, 32767} {
			seg, err := e.Segment(u, id)
			require.NoError(t, err)
			add(seg, "segment "+string(u)+" "+Key(seg).String())
		}
	}
}

func TestKey_Parse(t *testing.T) {
	e := NewEncoder(0)

	root, err := e.Root([]byte("mylist"))
	require.NoError(t, err)
	user, kind, id, err := Parse(root)
	require.NoError(t, err)
	require.Equal(t, []byte("mylist"), user)
	require.Equal(t, KindRoot, kind)
	require.EqualValues(t, 0, id)

	seg, err := e.Segment([]byte("mylist"), -7)
	require.NoError(t, err)
	user, kind, id, err = Parse(seg)
	require.NoError(t, err)
	require.Equal(t, []byte("mylist"), user)
	require.Equal(t, KindSegment, kind)
	require.EqualValues(t, -7, id)

	_, _, _, err = Parse(Key{0, 0, 0, 9, 'a'})
	require.ErrorIs(t, err, ErrMalformed)
	_, _, _, err = Parse(append(root, 0))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestKey_Prefix(t *testing.T) {
	e := NewEncoder(0)
	prefix, err := e.Prefix([]byte("k"))
	require.NoError(t, err)

	root, _ := e.Root([]byte("k"))
	seg, _ := e.Segment([]byte("k"), 3)
	other, _ := e.Root([]byte("kk"))

	require.True(t, bytes.HasPrefix(root, prefix))
	require.True(t, bytes.HasPrefix(seg, prefix))
	require.False(t, bytes.HasPrefix(other, prefix))
}

func TestKey_TooLarge(t *testing.T) {
	e := NewEncoder(8)

	_, err := e.Root([]byte(strings.Repeat("x", 8)))
	require.NoError(t, err)

	_, err = e.Root([]byte(strings.Repeat("x", 9)))
	require.ErrorIs(t, err, ErrKeyTooLarge)
	_, err = e.Segment([]byte(strings.Repeat("x", 9)), 0)
	require.ErrorIs(t, err, ErrKeyTooLarge)
}

func TestKey_String(t *testing.T) {
	e := NewEncoder(0)
	seg, _ := e.Segment([]byte{0xab}, 2)
	require.Equal(t, "ab segment 2", seg.String())
	root, _ := e.Root([]byte{0xab})
	require.Equal(t, "ab root", root.String())
}
