package substrate

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

var ErrNotInteger = errors.New("value is not an integer or out of range")

// Counter maps a stored value to the integer Increment works on and back.
type Counter interface {
	Decode(value []byte) (int64, error)
	Encode(n int64) []byte
}

// Decimal a Counter over values holding a base 10 int64.
type Decimal struct{}

func (Decimal) Decode(value []byte) (int64, error) {
	n, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNotInteger, value)
	}
	return n, nil
}

func (Decimal) Encode(n int64) []byte {
	return strconv.AppendInt(nil, n, 10)
}

// Add applies delta to the integer in old and returns the result with its
// encoding. Backends call it while holding the key exclusively.
func Add(c Counter, old []byte, delta int64) (int64, []byte, error) {
	cur, err := c.Decode(old)
	if err != nil {
		return 0, nil, err
	}
	if (delta > 0 && cur > math.MaxInt64-delta) || (delta < 0 && cur < math.MinInt64-delta) {
		return 0, nil, fmt.Errorf("%w: %d%+d overflows", ErrNotInteger, cur, delta)
	}
	n := cur + delta
	return n, c.Encode(n), nil
}
