package leveldb

import (
	"fmt"

	"github.com/artifactkit/artifactkit/internal/buf"
	"github.com/artifactkit/artifactkit/internal/varint"
	"github.com/artifactkit/artifactkit/pkg/types"
)

// Value types of batch entries and internal keys.
const (
	TypeDeletion = 0
	TypeValue    = 1
)

// BatchEntry is one key operation inside a write batch.
type BatchEntry struct {
	Type  byte // TypeDeletion or TypeValue
	Key   []byte
	Value []byte // nil for deletions
}

// Batch is the decoded payload of one write-ahead log record.
type Batch struct {
	Sequence uint64
	Count    uint32
	Entries  []BatchEntry
}

// ParseBatch decodes a write batch: an 8-byte sequence number and 4-byte
// entry count, then count entries of {type, key, [value]} with
// varint-length-prefixed slices.
func ParseBatch(data []byte) (*Batch, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("batch header: %d bytes: %w", len(data), types.ErrTruncated)
	}
	b := &Batch{
		Sequence: buf.U64LE(data),
		Count:    buf.U32LE(data[8:]),
	}
	off := 12
	for i := uint32(0); i < b.Count; i++ {
		if off >= len(data) {
			return nil, fmt.Errorf("batch entry %d at %d: %w", i, off, types.ErrTruncated)
		}
		entry := BatchEntry{Type: data[off]}
		off++
		if entry.Type != TypeDeletion && entry.Type != TypeValue {
			return nil, fmt.Errorf("batch entry %d type %d: %w", i, entry.Type, types.ErrUnsupported)
		}
		key, n, err := readLengthPrefixed(data, off)
		if err != nil {
			return nil, fmt.Errorf("batch entry %d key: %w", i, err)
		}
		entry.Key = key
		off += n
		if entry.Type == TypeValue {
			value, n, err := readLengthPrefixed(data, off)
			if err != nil {
				return nil, fmt.Errorf("batch entry %d value: %w", i, err)
			}
			entry.Value = value
			off += n
		}
		b.Entries = append(b.Entries, entry)
	}
	return b, nil
}

// readUvarintAt decodes a varint at off, reporting truncation with the
// package error taxonomy.
func readUvarintAt(data []byte, off int) (uint64, int, error) {
	v, n, err := varint.Uvarint(data[off:])
	if err != nil {
		return 0, 0, fmt.Errorf("varint at %d: %w", off, types.ErrTruncated)
	}
	return v, n, nil
}

// readLengthPrefixed reads a varint length then that many bytes at off,
// returning the slice and total bytes consumed.
func readLengthPrefixed(data []byte, off int) ([]byte, int, error) {
	length, n, err := varint.Uvarint(data[off:])
	if err != nil {
		return nil, 0, fmt.Errorf("length at %d: %w", off, types.ErrTruncated)
	}
	if length > uint64(len(data)) {
		return nil, 0, fmt.Errorf("length %d at %d: %w", length, off, types.ErrTruncated)
	}
	s, ok := buf.Slice(data, off+n, int(length))
	if !ok {
		return nil, 0, fmt.Errorf("%d bytes at %d: %w", length, off+n, types.ErrTruncated)
	}
	return s, n + int(length), nil
}
