// Package compress implements the chunked-compression container machinery
// shared by the block-oriented formats: codec dispatch for block payloads,
// the Apple LZ4 block framing, and a forward-only chunk iterator with
// format-specific alignment.
package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/artifactkit/artifactkit/pkg/types"
)

// Codec names a block compression method. Callers select the codec from the
// surrounding format; payloads are never sniffed.
type Codec int

const (
	None Codec = iota
	Zlib
	LZ4
	Snappy
	Zstd
)

func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case Zlib:
		return "zlib"
	case LZ4:
		return "lz4"
	case Snappy:
		return "snappy"
	case Zstd:
		return "zstd"
	}
	return fmt.Sprintf("codec(%d)", int(c))
}

// Decompress expands src with the named codec. When dstSize is non-negative
// the result length must match it exactly or ErrSizeMismatch is returned;
// pass -1 when the caller has no declared size to check.
func Decompress(c Codec, src []byte, dstSize int) ([]byte, error) {
	out, err := decompress(c, src, dstSize)
	if err != nil {
		return nil, err
	}
	if dstSize >= 0 && len(out) != dstSize {
		return nil, fmt.Errorf("%s: got %d bytes, declared %d: %w", c, len(out), dstSize, types.ErrSizeMismatch)
	}
	return out, nil
}

func decompress(c Codec, src []byte, dstSize int) ([]byte, error) {
	switch c {
	case None:
		return src, nil
	case Zlib:
		r, err := zlib.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("zlib: %v: %w", err, types.ErrDecompress)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("zlib: %v: %w", err, types.ErrDecompress)
		}
		return out, nil
	case LZ4:
		if dstSize < 0 {
			return nil, fmt.Errorf("lz4 block needs a declared size: %w", types.ErrDecompress)
		}
		dst := make([]byte, dstSize)
		n, err := lz4.UncompressBlock(src, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4: %v: %w", err, types.ErrDecompress)
		}
		return dst[:n], nil
	case Snappy:
		out, err := snappy.Decode(nil, src)
		if err != nil {
			return nil, fmt.Errorf("snappy: %v: %w", err, types.ErrDecompress)
		}
		return out, nil
	case Zstd:
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd: %v: %w", err, types.ErrDecompress)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(src, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %v: %w", err, types.ErrDecompress)
		}
		return out, nil
	}
	return nil, fmt.Errorf("codec %d: %w", int(c), types.ErrUnsupported)
}
