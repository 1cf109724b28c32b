package compress

import (
	"fmt"

	"github.com/artifactkit/artifactkit/pkg/schema"
	"github.com/artifactkit/artifactkit/pkg/types"
)

// Chunk is one step of a chunk-stream iteration.
type Chunk struct {
	Offset  int
	Header  *schema.Structure
	Payload []byte
}

// ChunkIterator walks a buffer of length-delimited chunks: a fixed-layout
// header carrying the payload size, the payload, then padding to the next
// alignment boundary. Iteration is forward-only and not restartable; a
// malformed chunk aborts the stream rather than skipping.
type ChunkIterator struct {
	data      []byte
	off       int
	headerFmt *schema.Schema
	sizeField string
	align     int
	isEnd     func(*schema.Structure) bool
	warn      *types.WarningList
	done      bool
}

// NewChunkIterator returns an iterator over data. headerFmt describes the
// fixed-size chunk header and sizeField names its payload-size field. align
// of 0 packs chunks tightly; 4 or 8 pads each chunk to that boundary. isEnd,
// when non-nil, recognizes an explicit end-of-stream chunk header.
func NewChunkIterator(data []byte, headerFmt *schema.Schema, sizeField string, align int, isEnd func(*schema.Structure) bool, warn *types.WarningList) *ChunkIterator {
	return &ChunkIterator{
		data:      data,
		headerFmt: headerFmt,
		sizeField: sizeField,
		align:     align,
		isEnd:     isEnd,
		warn:      warn,
	}
}

// Next returns the next chunk, or (nil, nil) when the stream ends cleanly:
// either the buffer is exhausted on a chunk boundary or the end marker was
// seen. Exhaustion mid-header is an error, not a clean end.
func (it *ChunkIterator) Next() (*Chunk, error) {
	if it.done {
		return nil, nil
	}
	if it.off >= len(it.data) {
		it.done = true
		return nil, nil
	}
	start := it.off
	cur := schema.NewCursorAt(it.data, it.off)
	hdr, err := schema.Read(cur, it.headerFmt, it.warn)
	if err != nil {
		it.done = true
		return nil, fmt.Errorf("chunk header at %d: unexpected end of stream: %w", start, err)
	}
	if it.isEnd != nil && it.isEnd(hdr) {
		it.done = true
		return nil, nil
	}
	size, ok := hdr.Uint(it.sizeField)
	if !ok {
		it.done = true
		return nil, fmt.Errorf("chunk header at %d: no %q field: %w", start, it.sizeField, types.ErrSchema)
	}
	payload, err := cur.ReadFixed(int(size))
	if err != nil {
		it.done = true
		return nil, fmt.Errorf("chunk payload at %d: %w", start, err)
	}
	it.off = cur.Offset()
	if it.align > 1 {
		if rem := it.off % it.align; rem != 0 {
			pad := it.align - rem
			if it.off+pad > len(it.data) {
				// Trailing padding may be cut short at end of buffer.
				it.off = len(it.data)
			} else {
				it.off += pad
			}
		}
	}
	return &Chunk{Offset: start, Header: hdr, Payload: payload}, nil
}
