package schema

import (
	"fmt"

	"github.com/artifactkit/artifactkit/internal/buf"
	"github.com/artifactkit/artifactkit/pkg/types"
)

// Cursor walks an immutable byte buffer, owning the current offset. A cursor
// belongs to one decode operation and is never shared.
type Cursor struct {
	data []byte
	off  int
}

// NewCursor returns a cursor positioned at the start of data.
func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

// NewCursorAt returns a cursor positioned at off within data.
func NewCursorAt(data []byte, off int) *Cursor {
	return &Cursor{data: data, off: off}
}

// Offset reports the current absolute offset.
func (c *Cursor) Offset() int { return c.off }

// Remaining reports how many bytes are left.
func (c *Cursor) Remaining() int {
	if c.off >= len(c.data) {
		return 0
	}
	return len(c.data) - c.off
}

// ReadFixed returns the next n bytes and advances. The returned slice aliases
// the underlying buffer.
func (c *Cursor) ReadFixed(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("read %d bytes at offset %d: %w", n, c.off, types.ErrSchema)
	}
	b, ok := buf.Slice(c.data, c.off, n)
	if !ok {
		return nil, fmt.Errorf("read %d bytes at offset %d of %d: %w", n, c.off, len(c.data), types.ErrTruncated)
	}
	c.off += n
	return b, nil
}

// Skip advances past n bytes without returning them.
func (c *Cursor) Skip(n int) error {
	_, err := c.ReadFixed(n)
	return err
}

// Seek repositions the cursor to an absolute offset.
func (c *Cursor) Seek(off int) error {
	if off < 0 || off > len(c.data) {
		return fmt.Errorf("seek to %d of %d: %w", off, len(c.data), types.ErrTruncated)
	}
	c.off = off
	return nil
}

// ReadCString reads bytes until a zero byte or end of buffer, consuming the
// terminator when present, and returns the raw bytes without it.
func (c *Cursor) ReadCString() []byte {
	start := c.off
	for c.off < len(c.data) && c.data[c.off] != 0 {
		c.off++
	}
	raw := c.data[start:c.off]
	if c.off < len(c.data) {
		c.off++ // terminator
	}
	return raw
}

// ReadCString16 reads UTF-16 code units until a two-byte zero terminator or
// end of buffer, consuming the terminator, and returns the raw bytes without
// it. An odd trailing byte is returned as part of the string.
func (c *Cursor) ReadCString16() []byte {
	start := c.off
	for c.off+2 <= len(c.data) {
		if c.data[c.off] == 0 && c.data[c.off+1] == 0 {
			raw := c.data[start:c.off]
			c.off += 2
			return raw
		}
		c.off += 2
	}
	c.off = len(c.data)
	return c.data[start:c.off]
}
