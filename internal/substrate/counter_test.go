package substrate

import (
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdd(t *testing.T) {
	tests := []struct {
		name  string
		old   string
		delta int64
		want  int64
		err   error
	}{
		{"incr", "41", 1, 42, nil},
		{"negative", "-3", -7, -10, nil},
		{"zero", "0", 0, 0, nil},
		{"not a number", "abc", 1, 0, ErrNotInteger},
		{"empty", "", 1, 0, ErrNotInteger},
		{"overflow", strconv.FormatInt(math.MaxInt64, 10), 1, 0, ErrNotInteger},
		{"underflow", strconv.FormatInt(math.MinInt64, 10), -1, 0, ErrNotInteger},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, buf, err := Add(Decimal{}, []byte(tt.old), tt.delta)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				require.Nil(t, buf)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, n)
			require.Equal(t, strconv.FormatInt(tt.want, 10), string(buf))
		})
	}
}
