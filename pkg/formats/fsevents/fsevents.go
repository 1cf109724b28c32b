// Package fsevents reads MacOS fseventsd activity files: gzip-compressed
// streams of DLS pages, each page holding change records with a path, event
// flags and an event identifier.
package fsevents

import (
	"bytes"
	"fmt"

	"github.com/artifactkit/artifactkit/internal/buf"
	"github.com/artifactkit/artifactkit/internal/mmfile"
	"github.com/artifactkit/artifactkit/pkg/formats/gzipf"
	"github.com/artifactkit/artifactkit/pkg/schema"
	"github.com/artifactkit/artifactkit/pkg/types"
)

// Page signatures. Version 1 was used through macOS 10.12, version 2 since
// High Sierra.
var (
	sigDLSv1 = []byte("1SLD")
	sigDLSv2 = []byte("2SLD")
)

const pageHeaderSize = 12

// Record is one file system change record.
type Record struct {
	Path string
	// EventIdentifier orders the event within the fseventsd stream.
	EventIdentifier uint64
	EventFlags      uint32
	// NodeIdentifier is only present in version 2 pages.
	NodeIdentifier uint64
}

// Page is one DLS page with its decoded records.
type Page struct {
	FormatVersion int
	Offset        int
	Size          int
	Records       []*Record
}

// File is an open fseventsd file.
type File struct {
	pages  []*Page
	unmap  func() error
	closed bool
}

// Open memory-maps and reads the fseventsd file at path.
func Open(path string, opts types.OpenOptions) (*File, error) {
	data, unmap, err := mmfile.Map(path)
	if err != nil {
		return nil, err
	}
	f, err := OpenBytes(data, opts)
	if err != nil {
		unmap()
		return nil, err
	}
	f.unmap = unmap
	return f, nil
}

// OpenBytes reads an fseventsd file from a complete gzip-compressed image.
func OpenBytes(data []byte, opts types.OpenOptions) (*File, error) {
	gz, err := gzipf.OpenBytes(data, opts)
	if err != nil {
		return nil, fmt.Errorf("fseventsd: %w", err)
	}
	stream := gz.Data()
	gz.Close()

	f := &File{}
	offset := 0
	for offset < len(stream) {
		page, err := readPage(stream, offset)
		if err != nil {
			return nil, fmt.Errorf("page at offset %d: %w", offset, err)
		}
		f.pages = append(f.pages, page)
		offset += page.Size
	}
	return f, nil
}

// readPage decodes one DLS page: a 12-byte header whose page size spans the
// header itself, then records until the page end.
func readPage(stream []byte, offset int) (*Page, error) {
	header, ok := buf.Slice(stream, offset, pageHeaderSize)
	if !ok {
		return nil, fmt.Errorf("page header: %w", types.ErrTruncated)
	}

	page := &Page{Offset: offset}
	switch {
	case bytes.Equal(header[:4], sigDLSv1):
		page.FormatVersion = 1
	case bytes.Equal(header[:4], sigDLSv2):
		page.FormatVersion = 2
	default:
		return nil, fmt.Errorf("page signature %q: %w", header[:4], types.ErrBadSignature)
	}

	page.Size = int(buf.U32LE(header[8:]))
	if page.Size < pageHeaderSize || offset+page.Size > len(stream) {
		return nil, fmt.Errorf("page size %d: %w", page.Size, types.ErrSizeMismatch)
	}

	// Bounding the cursor to the page keeps a corrupt final record from
	// consuming bytes of the next page.
	pageEnd := offset + page.Size
	cursor := schema.NewCursorAt(stream[:pageEnd], offset+pageHeaderSize)
	for cursor.Offset() < pageEnd {
		record, err := readRecord(cursor, page.FormatVersion)
		if err != nil {
			return nil, err
		}
		page.Records = append(page.Records, record)
	}
	return page, nil
}

// readRecord decodes one change record: a zero-terminated path, the event
// identifier and flags, and for version 2 a node identifier.
func readRecord(cursor *schema.Cursor, formatVersion int) (*Record, error) {
	record := &Record{Path: string(cursor.ReadCString())}

	fixedSize := 12
	if formatVersion == 2 {
		fixedSize = 20
	}
	fixed, err := cursor.ReadFixed(fixedSize)
	if err != nil {
		return nil, fmt.Errorf("record %q: %w", record.Path, err)
	}
	record.EventIdentifier = buf.U64LE(fixed)
	record.EventFlags = buf.U32LE(fixed[8:])
	if formatVersion == 2 {
		record.NodeIdentifier = buf.U64LE(fixed[12:])
	}
	return record, nil
}

// Pages returns the decoded pages in stream order.
func (f *File) Pages() []*Page {
	return f.pages
}

// Records returns all records across pages in stream order.
func (f *File) Records() []*Record {
	var out []*Record
	for _, page := range f.pages {
		out = append(out, page.Records...)
	}
	return out
}

// Close releases the file.
func (f *File) Close() error {
	if f.closed {
		return fmt.Errorf("fseventsd: %w", types.ErrClosed)
	}
	f.closed = true
	f.pages = nil
	if f.unmap != nil {
		return f.unmap()
	}
	return nil
}
