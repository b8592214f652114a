// Package keys builds substrate keys from user keys.
package keys

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// Kind the record discriminator stored after the user key.
type Kind byte

const (
	KindRoot    Kind = 0
	KindSegment Kind = 1

	// DefaultMaxUserKeySize limit used when the encoder is built with zero.
	DefaultMaxUserKeySize = 32 << 10

	lenSize = 4
	idSize  = 2
)

var (
	ErrKeyTooLarge = errors.New("key too large")
	ErrMalformed   = errors.New("malformed substrate key")
)

// Key the synthetic substrate key. All digits stored in BigEndian notation.
//
// [0:4] length of the user key uint32
//
// [4:4+n] the user key
//
// [4+n] the kind (root or segment)
//
// [5+n:7+n] the segment id int16, segment keys only
//
//	Prefix      Kind Segment
//	len || user 00   -       root record
//	len || user 01   id      segment record
type Key []byte

// Encoder builds keys for user keys no longer than MaxUserKeySize.
type Encoder struct {
	MaxUserKeySize int
}

// NewEncoder make new encoder, limit <= 0 means DefaultMaxUserKeySize
func NewEncoder(limit int) Encoder {
	if limit <= 0 {
		limit = DefaultMaxUserKeySize
	}
	return Encoder{MaxUserKeySize: limit}
}

// Prefix returns the bytes shared by every record of the user key.
func (e Encoder) Prefix(user []byte) (Key, error) {
	if err := e.check(user); err != nil {
		return nil, err
	}
	k := make(Key, lenSize+len(user))
	binary.BigEndian.PutUint32(k[0:lenSize], uint32(len(user)))
	copy(k[lenSize:], user)
	return k, nil
}

// Root make the root record key
func (e Encoder) Root(user []byte) (Key, error) {
	if err := e.check(user); err != nil {
		return nil, err
	}
	k := make(Key, lenSize+len(user)+1)
	binary.BigEndian.PutUint32(k[0:lenSize], uint32(len(user)))
	copy(k[lenSize:], user)
	k[lenSize+len(user)] = byte(KindRoot)
	return k, nil
}

// Segment make the segment record key
func (e Encoder) Segment(user []byte, id int16) (Key, error) {
	if err := e.check(user); err != nil {
		return nil, err
	}
	n := len(user)
	k := make(Key, lenSize+n+1+idSize)
	binary.BigEndian.PutUint32(k[0:lenSize], uint32(n))
	copy(k[lenSize:], user)
	k[lenSize+n] = byte(KindSegment)
	binary.BigEndian.PutUint16(k[lenSize+n+1:], uint16(id))
	return k, nil
}

func (e Encoder) check(user []byte) error {
	limit := e.MaxUserKeySize
	if limit <= 0 {
		limit = DefaultMaxUserKeySize
	}
	if len(user) > limit {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrKeyTooLarge, len(user), limit)
	}
	return nil
}

// Parse splits a substrate key back into its parts. The id is zero for root keys.
func Parse(k Key) (user []byte, kind Kind, id int16, err error) {
	if len(k) < lenSize+1 {
		return nil, 0, 0, ErrMalformed
	}
	n := int(binary.BigEndian.Uint32(k[0:lenSize]))
	if n > len(k)-lenSize-1 {
		return nil, 0, 0, ErrMalformed
	}
	user = k[lenSize : lenSize+n]
	kind = Kind(k[lenSize+n])
	rest := k[lenSize+n+1:]
	switch kind {
	case KindRoot:
		if len(rest) != 0 {
			return nil, 0, 0, ErrMalformed
		}
	case KindSegment:
		if len(rest) != idSize {
			return nil, 0, 0, ErrMalformed
		}
		id = int16(binary.BigEndian.Uint16(rest))
	default:
		return nil, 0, 0, ErrMalformed
	}
	return user, kind, id, nil
}

// String is Stringer implementation
func (k Key) String() string {
	user, kind, id, err := Parse(k)
	if err != nil {
		return "malformed " + hex.EncodeToString(k)
	}
	if kind == KindRoot {
		return fmt.Sprintf("%s root", hex.EncodeToString(user))
	}
	return fmt.Sprintf("%s segment %d", hex.EncodeToString(user), id)
}
