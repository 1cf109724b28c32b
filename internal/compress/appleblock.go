package compress

import (
	"bytes"
	"fmt"

	"github.com/artifactkit/artifactkit/internal/buf"
	"github.com/artifactkit/artifactkit/pkg/types"
)

// Apple LZ4 block stream signatures.
var (
	sigLZ4Block = []byte("bv41") // lz4-compressed block
	sigStored   = []byte("bv4-") // stored, no compression
	sigEnd      = []byte("bv4$") // end-of-stream marker
)

// BlockHeader is the 12-byte header preceding each block in an Apple LZ4
// stream. The end marker carries only its 4-byte signature.
//
// Offset  Size  Field
// 0x00    4     signature ("bv41", "bv4-" or "bv4$")
// 0x04    4     uncompressed data size
// 0x08    4     compressed data size
type BlockHeader struct {
	Signature        [4]byte
	UncompressedSize uint32
	CompressedSize   uint32
}

// End reports whether the header is the end-of-stream marker.
func (h *BlockHeader) End() bool { return bytes.Equal(h.Signature[:], sigEnd) }

// Stored reports whether the block payload is uncompressed.
func (h *BlockHeader) Stored() bool { return bytes.Equal(h.Signature[:], sigStored) }

// ReadBlockHeader parses an Apple LZ4 block header at off. The end marker is
// returned with both sizes zero and only 4 bytes consumed.
func ReadBlockHeader(data []byte, off int) (*BlockHeader, int, error) {
	sig, ok := buf.Slice(data, off, 4)
	if !ok {
		return nil, 0, fmt.Errorf("block header at %d: %w", off, types.ErrTruncated)
	}
	var h BlockHeader
	copy(h.Signature[:], sig)
	if h.End() {
		return &h, 4, nil
	}
	if !bytes.Equal(sig, sigLZ4Block) && !bytes.Equal(sig, sigStored) {
		return nil, 0, fmt.Errorf("block signature %q at %d: %w", sig, off, types.ErrBadSignature)
	}
	rest, ok := buf.Slice(data, off+4, 8)
	if !ok {
		return nil, 0, fmt.Errorf("block header at %d: %w", off, types.ErrTruncated)
	}
	h.UncompressedSize = buf.U32LE(rest)
	h.CompressedSize = buf.U32LE(rest[4:])
	return &h, 12, nil
}

// DecompressBlock expands one block's payload per its header. Stored blocks
// pass through unchanged; lz4 blocks must expand to exactly
// UncompressedSize bytes.
func DecompressBlock(h *BlockHeader, payload []byte) ([]byte, error) {
	if h.Stored() {
		return payload, nil
	}
	return Decompress(LZ4, payload, int(h.UncompressedSize))
}

// ReadAll decompresses a whole Apple LZ4 block stream: a run of bv41/bv4-
// blocks terminated by the bv4$ marker. Data after the marker is ignored.
func ReadAll(data []byte) ([]byte, error) {
	var out []byte
	off := 0
	for {
		h, n, err := ReadBlockHeader(data, off)
		if err != nil {
			return nil, err
		}
		off += n
		if h.End() {
			return out, nil
		}
		size := int(h.CompressedSize)
		payload, ok := buf.Slice(data, off, size)
		if !ok {
			return nil, fmt.Errorf("block payload at %d (%d bytes): %w", off, size, types.ErrTruncated)
		}
		block, err := DecompressBlock(h, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
		off += size
	}
}
