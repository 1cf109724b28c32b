// Package varint decodes the variable-length integer encodings that appear in
// the supported artifact formats: standard base-128 varints (LevelDB logs,
// tables and manifests) and the nibble-count variant used by Apple metadata
// stores.
package varint

import (
	"errors"
	"fmt"
)

// MaxLen64 is the maximum byte length of a base-128 encoded 64-bit integer.
const MaxLen64 = 10

var (
	// ErrOverflow indicates a varint encoding a value wider than 64 bits.
	ErrOverflow = errors.New("varint: 64-bit overflow")
	// ErrTruncated indicates the buffer ended inside a varint.
	ErrTruncated = errors.New("varint: truncated")
)

// Uvarint decodes a base-128 varint from the start of b. Each byte carries
// seven value bits, least significant group first; a set high bit marks a
// continuation. Returns the value and the number of bytes consumed.
func Uvarint(b []byte) (uint64, int, error) {
	var v uint64
	var shift uint
	for i, c := range b {
		if i >= MaxLen64 {
			return 0, 0, ErrOverflow
		}
		if c < 0x80 {
			if i == MaxLen64-1 && c > 1 {
				return 0, 0, ErrOverflow
			}
			return v | uint64(c)<<shift, i + 1, nil
		}
		v |= uint64(c&0x7f) << shift
		shift += 7
	}
	return 0, 0, ErrTruncated
}

// nibbleMasks map the count of leading set bits in the first byte to the
// number of additional big-endian value bytes that follow.
var nibbleMasks = [...]byte{0x80, 0xC0, 0xE0, 0xF0, 0xF8, 0xFC, 0xFE, 0xFF}

// AppleUvarint decodes the nibble-count variant: the run of leading set bits
// in the first byte gives the count of extra big-endian bytes, and the first
// byte's remaining low bits contribute the most significant value bits. With
// more than four extra bytes the first byte carries no value bits at all.
func AppleUvarint(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, ErrTruncated
	}
	lead := b[0]
	extra := 0
	for _, mask := range nibbleMasks {
		if lead&mask != mask {
			break
		}
		extra++
	}
	if len(b) < 1+extra {
		return 0, 0, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, 1+extra, len(b))
	}
	var v uint64
	if extra < 5 {
		// The failing mask's complement keeps the lead byte's value bits.
		keep := byte(0xFF)
		if extra < len(nibbleMasks) {
			keep = ^nibbleMasks[extra]
		}
		v = uint64(lead & keep)
	}
	for _, c := range b[1 : 1+extra] {
		v = v<<8 | uint64(c)
	}
	return v, 1 + extra, nil
}

// PutUvarint encodes v as a base-128 varint into b and returns the byte
// count. Panics when b is too short; size with UvarintLen first.
func PutUvarint(b []byte, v uint64) int {
	i := 0
	for v >= 0x80 {
		b[i] = byte(v) | 0x80
		v >>= 7
		i++
	}
	b[i] = byte(v)
	return i + 1
}

// UvarintLen returns the encoded length of v as a base-128 varint.
func UvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// AppendUvarint appends the base-128 encoding of v to dst.
func AppendUvarint(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}
