package buf

import (
	"fmt"
	"math"

	"github.com/artifactkit/artifactkit/pkg/types"
)

// AddOverflowSafe adds two non-negative byte counts, reporting ok = false on
// negative input or int overflow.
func AddOverflowSafe(a, b int) (int, bool) {
	if a < 0 || b < 0 || a > math.MaxInt-b {
		return 0, false
	}
	return a + b, true
}

// MulOverflowSafe multiplies a non-negative element count by an element size,
// reporting ok = false on negative input or int overflow.
func MulOverflowSafe(count, size int) (int, bool) {
	if count < 0 || size < 0 {
		return 0, false
	}
	if size != 0 && count > math.MaxInt/size {
		return 0, false
	}
	return count * size, true
}

// CheckListBounds validates that count elements of elementSize bytes fit in a
// buffer of bufLen bytes starting at offset, returning the end offset.
// Negative or overflowing dimensions report ErrSchema; an end past the buffer
// reports ErrTruncated. Decode loops validate a whole table before iterating:
//
//	end, err := buf.CheckListBounds(len(body), off, numKeys, 4)
//	if err != nil {
//	    return fmt.Errorf("sub page list: %w", err)
//	}
func CheckListBounds(bufLen, offset, count, elementSize int) (int, error) {
	if offset < 0 || count < 0 || elementSize < 0 {
		return 0, fmt.Errorf("list of %d %d-byte elements at offset %d: %w",
			count, elementSize, offset, types.ErrSchema)
	}
	size, ok := MulOverflowSafe(count, elementSize)
	if !ok {
		return 0, fmt.Errorf("list of %d %d-byte elements overflows: %w",
			count, elementSize, types.ErrSchema)
	}
	end, ok := AddOverflowSafe(offset, size)
	if !ok {
		return 0, fmt.Errorf("list of %d bytes at offset %d overflows: %w",
			size, offset, types.ErrSchema)
	}
	if end > bufLen {
		return 0, fmt.Errorf("list ends at %d of %d: %w", end, bufLen, types.ErrTruncated)
	}
	return end, nil
}

// Slice returns the sub-slice [off:off+n] if it fits within len(b).
func Slice(b []byte, off, n int) ([]byte, bool) {
	if off < 0 || off > len(b) {
		return nil, false
	}
	end, ok := AddOverflowSafe(off, n)
	if !ok || end > len(b) {
		return nil, false
	}
	return b[off:end], true
}

// Has reports whether b[off:off+n] is within bounds.
func Has(b []byte, off, n int) bool {
	_, ok := Slice(b, off, n)
	return ok
}
