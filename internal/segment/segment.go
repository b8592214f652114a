// Package segment encodes the payload of one list segment: a run of
// length-prefixed elements stored in list order.
//
//	[u16 len][len bytes] [u16 len][len bytes] ...
package segment

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// MaxElementSize the largest element a 16 bit length prefix can describe.
	MaxElementSize = math.MaxUint16

	prefixSize = 2
	kb         = 1024
)

var (
	ErrCorrupt         = errors.New("corrupt segment")
	ErrElementTooLarge = errors.New("list element too large")
	ErrOutOfRange      = errors.New("segment slice out of range")
)

// Size returns the encoded size of elems.
func Size(elems [][]byte) int {
	n := 0
	for _, e := range elems {
		n += prefixSize + len(e)
	}
	return n
}

// SizeKb converts an encoded size to the descriptor's approximate KiB field.
func SizeKb(size int) uint8 {
	k := size / kb
	if k > math.MaxUint8 {
		return math.MaxUint8
	}
	return uint8(k)
}

// Encode writes elems into a new buffer.
func Encode(elems [][]byte) ([]byte, error) {
	buf := make([]byte, 0, Size(elems))
	for _, e := range elems {
		if len(e) > MaxElementSize {
			return nil, fmt.Errorf("%w: %d bytes", ErrElementTooLarge, len(e))
		}
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(e)))
		buf = append(buf, e...)
	}
	return buf, nil
}

// Decode returns the count elements held by buf. The elements are copies and
// never alias buf.
func Decode(buf []byte, count int) ([][]byte, error) {
	return Slice(buf, count, 0, count-1)
}

// Slice returns copies of the elements [from, to] (inclusive) of a segment
// holding count elements. The whole buffer is validated, only the requested
// elements are copied.
func Slice(buf []byte, count, from, to int) ([][]byte, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: negative count %d", ErrCorrupt, count)
	}
	if count > 0 && (from < 0 || to >= count || from > to) {
		return nil, fmt.Errorf("%w: [%d, %d] of [0, %d)", ErrOutOfRange, from, to, count)
	}

	var out [][]byte
	if count > 0 {
		out = make([][]byte, 0, to-from+1)
	}
	c := cursor{buf: buf}
	for i := 0; i < count; i++ {
		e, err := c.next()
		if err != nil {
			return nil, fmt.Errorf("%w: element %d of %d: %v", ErrCorrupt, i, count, err)
		}
		if i >= from && i <= to {
			out = append(out, bytes.Clone(e))
		}
	}
	if !c.done() {
		return nil, fmt.Errorf("%w: %d trailing bytes after %d elements", ErrCorrupt, c.remaining(), count)
	}
	return out, nil
}

// cursor consumes a segment buffer element by element.
type cursor struct {
	buf []byte
	off int
}

var (
	errShortPrefix = errors.New("short length prefix")
	errShortValue  = errors.New("short element")
)

// next returns the next element. The result aliases the cursor's buffer.
func (c *cursor) next() ([]byte, error) {
	if c.remaining() < prefixSize {
		return nil, errShortPrefix
	}
	n := int(binary.BigEndian.Uint16(c.buf[c.off:]))
	c.off += prefixSize
	if c.remaining() < n {
		return nil, errShortValue
	}
	e := c.buf[c.off : c.off+n : c.off+n]
	c.off += n
	return e, nil
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.off
}

func (c *cursor) done() bool {
	return c.off == len(c.buf)
}
