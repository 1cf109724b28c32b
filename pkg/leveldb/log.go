// Package leveldb decodes the on-disk formats of the LevelDB storage engine:
// write-ahead log files ([0-9]{6}.log), MANIFEST descriptor files and stored
// table files ([0-9]{6}.ldb).
package leveldb

import (
	"fmt"
	"io"

	"github.com/artifactkit/artifactkit/internal/buf"
	"github.com/artifactkit/artifactkit/pkg/types"
)

// BlockSize is the fixed physical block size of log and manifest files.
const BlockSize = 32 * 1024

// logHeaderSize is the per-record physical header: checksum, length, type.
const logHeaderSize = 7

// Physical record types.
const (
	recordFull   = 1
	recordFirst  = 2
	recordMiddle = 3
	recordLast   = 4
)

// Record is one reassembled logical record.
type Record struct {
	// Offset is the file offset of the record's first fragment.
	Offset uint64
	// Payload is the reassembled record body.
	Payload []byte
}

// LogReader reassembles logical records from the physical block layout of a
// write-ahead log or manifest file. Records fragment across fixed 32 KiB
// blocks; a block whose tail has six or fewer bytes left is padded with
// zeros and the remainder skipped.
type LogReader struct {
	data []byte
	off  int
	max  int
}

// NewLogReader returns a reader over a complete log file image.
func NewLogReader(data []byte, opts types.OpenOptions) *LogReader {
	max := opts.MaxRecordSize
	if max == 0 {
		max = types.DefaultMaxRecordSize
	}
	return &LogReader{data: data, max: max}
}

// ReadRecord returns the next logical record, or io.EOF after the last one.
// A MIDDLE or LAST fragment with no preceding FIRST is a fatal framing error.
func (r *LogReader) ReadRecord() (*Record, error) {
	var assembled []byte
	var start uint64
	inFragment := false

	for {
		// Skip the zero-padded tail of a block.
		if rem := BlockSize - r.off%BlockSize; rem <= logHeaderSize-1 {
			r.off += rem
		}
		if r.off >= len(r.data) {
			if inFragment {
				return nil, fmt.Errorf("log record at %d: missing LAST fragment: %w", start, types.ErrTruncated)
			}
			return nil, io.EOF
		}
		hdr, ok := buf.Slice(r.data, r.off, logHeaderSize)
		if !ok {
			if inFragment {
				return nil, fmt.Errorf("log record at %d: %w", start, types.ErrTruncated)
			}
			return nil, io.EOF
		}
		length := int(buf.U16LE(hdr[4:]))
		recType := hdr[6]
		payload, ok := buf.Slice(r.data, r.off+logHeaderSize, length)
		if !ok {
			return nil, fmt.Errorf("log fragment at %d (%d bytes): %w", r.off, length, types.ErrTruncated)
		}
		fragOff := uint64(r.off)
		r.off += logHeaderSize + length

		switch recType {
		case recordFull:
			if inFragment {
				return nil, fmt.Errorf("FULL fragment at %d inside open record: %w", fragOff, types.ErrSchema)
			}
			return &Record{Offset: fragOff, Payload: payload}, nil
		case recordFirst:
			if inFragment {
				return nil, fmt.Errorf("FIRST fragment at %d inside open record: %w", fragOff, types.ErrSchema)
			}
			inFragment = true
			start = fragOff
			assembled = append(assembled, payload...)
		case recordMiddle:
			if !inFragment {
				return nil, fmt.Errorf("MIDDLE fragment at %d with no FIRST: %w", fragOff, types.ErrSchema)
			}
			assembled = append(assembled, payload...)
		case recordLast:
			if !inFragment {
				return nil, fmt.Errorf("LAST fragment at %d with no FIRST: %w", fragOff, types.ErrSchema)
			}
			assembled = append(assembled, payload...)
			return &Record{Offset: start, Payload: assembled}, nil
		default:
			return nil, fmt.Errorf("log record type %d at %d: %w", recType, fragOff, types.ErrUnsupported)
		}
		if len(assembled) > r.max {
			return nil, fmt.Errorf("log record at %d exceeds %d bytes: %w", start, r.max, types.ErrTruncated)
		}
	}
}

// ReadAll collects every remaining logical record.
func (r *LogReader) ReadAll() ([]*Record, error) {
	var out []*Record
	for {
		rec, err := r.ReadRecord()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}
