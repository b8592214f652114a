// Package rootrec encodes the record stored under a user key's root key: a
// type tag followed by either the scalar value or the list segment index.
//
//	Scalar  [01][value ...]
//	List    [02][head i16][tail i16][descriptor]...
//	        descriptor = [id i16][count u16][sizeKb u8]
//
// All digits stored in BigEndian notation.
package rootrec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

type Type byte

const (
	TypeScalar Type = 1
	TypeList   Type = 2
)

func (t Type) String() string {
	switch t {
	case TypeScalar:
		return "scalar"
	case TypeList:
		return "list"
	}
	return fmt.Sprintf("type(%d)", byte(t))
}

// End selects one of the two growth fronts of a list.
type End int

const (
	Head End = iota
	Tail
)

func (e End) String() string {
	if e == Head {
		return "head"
	}
	return "tail"
}

const (
	tagSize        = 1
	listHeaderSize = tagSize + 4
	descriptorSize = 5
)

var (
	ErrCorrupt = errors.New("corrupt root record")
	ErrFull    = errors.New("list growth fronts collided")
)

// Descriptor an index entry naming one segment.
type Descriptor struct {
	ID     int16
	Count  uint16
	SizeKb uint8
}

func (d Descriptor) String() string {
	return fmt.Sprintf("{id=%d count=%d size=%dKiB}", d.ID, d.Count, d.SizeKb)
}

// Record the decoded root record. Records are values: the list
// transformations below return new records and never modify the receiver.
type Record struct {
	Type  Type
	Value []byte // scalar only

	// Head and Tail are the ids of the head and tail segments. Entries is
	// ordered head to tail, so Head == Entries[0].ID and
	// Tail == Entries[len-1].ID, and ids descend by one along Entries.
	Head, Tail int16
	Entries    []Descriptor
}

// NewScalar make a scalar record holding value
func NewScalar(value []byte) Record {
	return Record{Type: TypeScalar, Value: value}
}

// NewList make a list record with no segments
func NewList() Record {
	return Record{Type: TypeList}
}

// Canonical returns the canonical empty list: one empty segment with id 0.
func Canonical() Record {
	return Record{Type: TypeList, Entries: []Descriptor{{}}}
}

// IsCanonical reports whether r is the canonical empty list.
func (r Record) IsCanonical() bool {
	return r.Type == TypeList && len(r.Entries) == 1 && r.Entries[0] == Descriptor{}
}

// Len returns the number of list elements.
func (r Record) Len() uint64 {
	var n uint64
	for _, d := range r.Entries {
		n += uint64(d.Count)
	}
	return n
}

// Front returns the index of the descriptor at the growth end.
func (r Record) Front(end End) (int, bool) {
	if len(r.Entries) == 0 {
		return 0, false
	}
	if end == Head {
		return 0, true
	}
	return len(r.Entries) - 1, true
}

// NextID returns the id of the segment to allocate at end. A list without
// segments starts at 0.
func (r Record) NextID(end End) (int16, error) {
	if len(r.Entries) == 0 {
		return 0, nil
	}
	var id, opposite int16
	if end == Head {
		id, opposite = r.Head+1, r.Tail
	} else {
		id, opposite = r.Tail-1, r.Head
	}
	if id == opposite {
		return 0, fmt.Errorf("%w: next %s id %d", ErrFull, end, id)
	}
	return id, nil
}

// Grow returns r with d added at end.
func (r Record) Grow(end End, d Descriptor) Record {
	entries := make([]Descriptor, 0, len(r.Entries)+1)
	if end == Head {
		entries = append(entries, d)
		entries = append(entries, r.Entries...)
	} else {
		entries = append(entries, r.Entries...)
		entries = append(entries, d)
	}
	return r.with(entries)
}

// Replace returns r with the descriptor at i replaced by d.
func (r Record) Replace(i int, d Descriptor) Record {
	entries := append([]Descriptor(nil), r.Entries...)
	entries[i] = d
	return r.with(entries)
}

// Drop returns r without the n descriptors nearest to end.
func (r Record) Drop(end End, n int) Record {
	if n > len(r.Entries) {
		n = len(r.Entries)
	}
	var entries []Descriptor
	if end == Head {
		entries = append(entries, r.Entries[n:]...)
	} else {
		entries = append(entries, r.Entries[:len(r.Entries)-n]...)
	}
	return r.with(entries)
}

// TrimEmpty returns r without the empty descriptors nearest to end.
func (r Record) TrimEmpty(end End) Record {
	n := 0
	for n < len(r.Entries) {
		i := n
		if end == Tail {
			i = len(r.Entries) - 1 - n
		}
		if r.Entries[i].Count != 0 {
			break
		}
		n++
	}
	if n == 0 {
		return r
	}
	return r.Drop(end, n)
}

func (r Record) with(entries []Descriptor) Record {
	out := Record{Type: TypeList, Entries: entries}
	if len(entries) > 0 {
		out.Head = entries[0].ID
		out.Tail = entries[len(entries)-1].ID
	}
	return out
}

// Encode writes r into a new buffer.
func Encode(r Record) []byte {
	if r.Type == TypeScalar {
		buf := make([]byte, tagSize, tagSize+len(r.Value))
		buf[0] = byte(TypeScalar)
		return append(buf, r.Value...)
	}

	buf := make([]byte, listHeaderSize, listHeaderSize+descriptorSize*len(r.Entries))
	buf[0] = byte(TypeList)
	binary.BigEndian.PutUint16(buf[1:3], uint16(r.Head))
	binary.BigEndian.PutUint16(buf[3:5], uint16(r.Tail))
	for _, d := range r.Entries {
		buf = binary.BigEndian.AppendUint16(buf, uint16(d.ID))
		buf = binary.BigEndian.AppendUint16(buf, d.Count)
		buf = append(buf, d.SizeKb)
	}
	return buf
}

// Decode parses a root record. The result does not alias buf.
func Decode(buf []byte) (Record, error) {
	if len(buf) < tagSize {
		return Record{}, fmt.Errorf("%w: empty record", ErrCorrupt)
	}

	switch Type(buf[0]) {
	case TypeScalar:
		return NewScalar(append([]byte{}, buf[tagSize:]...)), nil
	case TypeList:
	default:
		return Record{}, fmt.Errorf("%w: unknown type tag %d", ErrCorrupt, buf[0])
	}

	if len(buf) < listHeaderSize || (len(buf)-listHeaderSize)%descriptorSize != 0 {
		return Record{}, fmt.Errorf("%w: list record of %d bytes is not aligned to descriptors", ErrCorrupt, len(buf))
	}
	r := Record{
		Type: TypeList,
		Head: int16(binary.BigEndian.Uint16(buf[1:3])),
		Tail: int16(binary.BigEndian.Uint16(buf[3:5])),
	}
	n := (len(buf) - listHeaderSize) / descriptorSize
	if n == 0 {
		return r, nil
	}

	r.Entries = make([]Descriptor, n)
	for i := range r.Entries {
		off := listHeaderSize + i*descriptorSize
		r.Entries[i] = Descriptor{
			ID:     int16(binary.BigEndian.Uint16(buf[off : off+2])),
			Count:  binary.BigEndian.Uint16(buf[off+2 : off+4]),
			SizeKb: buf[off+4],
		}
		if i > 0 && r.Entries[i].ID != r.Entries[i-1].ID-1 {
			return Record{}, fmt.Errorf("%w: descriptor %d %v does not follow %v", ErrCorrupt, i, r.Entries[i], r.Entries[i-1])
		}
	}
	if r.Head != r.Entries[0].ID || r.Tail != r.Entries[n-1].ID {
		return Record{}, fmt.Errorf("%w: fronts head=%d tail=%d disagree with index %v..%v",
			ErrCorrupt, r.Head, r.Tail, r.Entries[0], r.Entries[n-1])
	}
	return r, nil
}
