package leveldb

import (
	"bytes"
	"fmt"

	"github.com/artifactkit/artifactkit/internal/buf"
	"github.com/artifactkit/artifactkit/internal/compress"
	"github.com/artifactkit/artifactkit/pkg/types"
)

// Stored table file layout constants.
const (
	footerSize       = 48
	blockTrailerSize = 5
	tableMagic       = 0xdb4775248b80fb57
)

// Block compression types stored in the block trailer.
const (
	blockNoCompression     = 0
	blockSnappyCompression = 1
	blockZstdCompression   = 2
)

// BlockHandle references a block elsewhere in the same file.
type BlockHandle struct {
	Offset uint64
	Size   uint64
}

// decodeBlockHandle reads the two-varint encoding of a handle.
func decodeBlockHandle(data []byte, off int) (BlockHandle, int, error) {
	offset, n1, err := readUvarintAt(data, off)
	if err != nil {
		return BlockHandle{}, 0, err
	}
	size, n2, err := readUvarintAt(data, off+n1)
	if err != nil {
		return BlockHandle{}, 0, err
	}
	return BlockHandle{Offset: offset, Size: size}, n1 + n2, nil
}

// InternalKey is a user key plus the engine's sequence/type suffix.
type InternalKey struct {
	UserKey  []byte
	Sequence uint64
	Type     byte // TypeDeletion or TypeValue
}

// parseInternalKey splits the trailing 8-byte suffix: a little-endian u64
// packing the sequence number in the high 56 bits and the value type in the
// low byte.
func parseInternalKey(key []byte) (InternalKey, error) {
	if len(key) < 8 {
		return InternalKey{}, fmt.Errorf("internal key of %d bytes: %w", len(key), types.ErrTruncated)
	}
	tag := buf.U64LE(key[len(key)-8:])
	return InternalKey{
		UserKey:  key[:len(key)-8],
		Sequence: tag >> 8,
		Type:     byte(tag & 0xff),
	}, nil
}

// TableReader decodes a stored table file: footer, index block, then data
// blocks addressed by block handles.
type TableReader struct {
	data      []byte
	index     []blockEntry
	metaindex BlockHandle
	closed    bool
}

// blockEntry is one decoded prefix-compressed block entry.
type blockEntry struct {
	key   []byte
	value []byte
}

// NewTableReader opens a complete stored table file image. It reads the
// footer and index block eagerly; data blocks load on demand.
func NewTableReader(data []byte, opts types.OpenOptions) (*TableReader, error) {
	if len(data) < footerSize {
		return nil, fmt.Errorf("table of %d bytes: %w", len(data), types.ErrTruncated)
	}
	footer := data[len(data)-footerSize:]
	if buf.U64LE(footer[footerSize-8:]) != tableMagic {
		return nil, fmt.Errorf("table footer magic: %w", types.ErrBadSignature)
	}
	metaindex, n, err := decodeBlockHandle(footer, 0)
	if err != nil {
		return nil, fmt.Errorf("metaindex handle: %w", err)
	}
	indexHandle, _, err := decodeBlockHandle(footer, n)
	if err != nil {
		return nil, fmt.Errorf("index handle: %w", err)
	}

	t := &TableReader{data: data, metaindex: metaindex}
	indexData, err := t.readBlock(indexHandle)
	if err != nil {
		return nil, fmt.Errorf("index block: %w", err)
	}
	t.index, err = parseBlockEntries(indexData)
	if err != nil {
		return nil, fmt.Errorf("index block: %w", err)
	}
	return t, nil
}

// Close releases the reader. Further operations report ErrClosed.
func (t *TableReader) Close() error {
	if t.closed {
		return fmt.Errorf("table reader: %w", types.ErrClosed)
	}
	t.closed = true
	t.data = nil
	t.index = nil
	return nil
}

// readBlock loads and decompresses the block a handle references, validating
// its 5-byte trailer. The trailer checksum is decoded but not verified;
// decoding targets possibly damaged artifacts where strict checksums would
// reject otherwise readable content.
func (t *TableReader) readBlock(h BlockHandle) ([]byte, error) {
	raw, ok := buf.Slice(t.data, int(h.Offset), int(h.Size)+blockTrailerSize)
	if !ok {
		return nil, fmt.Errorf("block at %d (%d bytes): %w", h.Offset, h.Size, types.ErrTruncated)
	}
	body := raw[:h.Size]
	compression := raw[h.Size]
	switch compression {
	case blockNoCompression:
		return body, nil
	case blockSnappyCompression:
		out, err := compress.Decompress(compress.Snappy, body, -1)
		if err != nil {
			return nil, fmt.Errorf("block at %d: %w", h.Offset, err)
		}
		return out, nil
	case blockZstdCompression:
		out, err := compress.Decompress(compress.Zstd, body, -1)
		if err != nil {
			return nil, fmt.Errorf("block at %d: %w", h.Offset, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("block at %d compression type %d: %w", h.Offset, compression, types.ErrUnsupported)
	}
}

// parseBlockEntries decodes a block's prefix-compressed entries. The block
// tail holds a restart-point array and its length; entries end where the
// restart array begins. A shared length exceeding the previous key is a
// fatal desync.
func parseBlockEntries(block []byte) ([]blockEntry, error) {
	if len(block) < 4 {
		return nil, fmt.Errorf("block of %d bytes: %w", len(block), types.ErrTruncated)
	}
	numRestarts := int(buf.U32LE(block[len(block)-4:]))
	restartsOff := len(block) - 4 - numRestarts*4
	if restartsOff < 0 {
		return nil, fmt.Errorf("block restart array (%d points): %w", numRestarts, types.ErrSizeMismatch)
	}
	entriesData := block[:restartsOff]

	var entries []blockEntry
	var prevKey []byte
	off := 0
	for off < len(entriesData) {
		shared, n, err := readUvarintAt(entriesData, off)
		if err != nil {
			return nil, err
		}
		off += n
		nonShared, n, err := readUvarintAt(entriesData, off)
		if err != nil {
			return nil, err
		}
		off += n
		valueLen, n, err := readUvarintAt(entriesData, off)
		if err != nil {
			return nil, err
		}
		off += n

		if shared > uint64(len(prevKey)) {
			return nil, fmt.Errorf("entry at %d shares %d of a %d-byte previous key: %w",
				off, shared, len(prevKey), types.ErrSizeMismatch)
		}
		suffix, ok := buf.Slice(entriesData, off, int(nonShared))
		if !ok {
			return nil, fmt.Errorf("entry key at %d: %w", off, types.ErrTruncated)
		}
		off += int(nonShared)
		value, ok := buf.Slice(entriesData, off, int(valueLen))
		if !ok {
			return nil, fmt.Errorf("entry value at %d: %w", off, types.ErrTruncated)
		}
		off += int(valueLen)

		key := make([]byte, 0, int(shared)+len(suffix))
		key = append(key, prevKey[:shared]...)
		key = append(key, suffix...)
		entries = append(entries, blockEntry{key: key, value: value})
		prevKey = key
	}
	return entries, nil
}

// Iterate calls fn for every entry in key order, passing the parsed internal
// key and value. Iteration stops early when fn returns false.
func (t *TableReader) Iterate(fn func(key InternalKey, value []byte) bool) error {
	if t.closed {
		return fmt.Errorf("table reader: %w", types.ErrClosed)
	}
	for _, idx := range t.index {
		handle, _, err := decodeBlockHandle(idx.value, 0)
		if err != nil {
			return fmt.Errorf("index entry handle: %w", err)
		}
		block, err := t.readBlock(handle)
		if err != nil {
			return err
		}
		entries, err := parseBlockEntries(block)
		if err != nil {
			return fmt.Errorf("data block at %d: %w", handle.Offset, err)
		}
		for _, e := range entries {
			ikey, err := parseInternalKey(e.key)
			if err != nil {
				return err
			}
			if !fn(ikey, e.value) {
				return nil
			}
		}
	}
	return nil
}

// Get returns the newest live value stored under userKey. The boolean
// reports whether the key was found live; a deletion marker reports false.
func (t *TableReader) Get(userKey []byte) ([]byte, bool, error) {
	if t.closed {
		return nil, false, fmt.Errorf("table reader: %w", types.ErrClosed)
	}
	var found []byte
	var ok, deleted bool
	var best uint64
	err := t.Iterate(func(key InternalKey, value []byte) bool {
		if !bytes.Equal(key.UserKey, userKey) {
			return true
		}
		if key.Sequence >= best {
			best = key.Sequence
			if key.Type == TypeDeletion {
				deleted = true
				ok = false
			} else {
				deleted = false
				ok = true
				found = value
			}
		}
		return true
	})
	if err != nil {
		return nil, false, err
	}
	if deleted || !ok {
		return nil, false, nil
	}
	return found, true, nil
}
